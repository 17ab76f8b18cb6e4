package commands

import (
	"context"
	"os"

	"github.com/wolfeidau/bundlekit/internal/build"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
)

type BuildCmd struct{}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log, shutdown := setup(ctx, globals, "bundlekit-build")
	defer shutdown()

	proj, err := loadProject(globals, descriptor.ModeProduction)
	if err != nil {
		return err
	}

	log.Debug().
		Str("version", globals.Version).
		Str("root", proj.paths.Root).
		Strs("env_files", proj.env.LoadedFiles()).
		Msg("Starting build")

	report, err := build.New(proj.paths, proj.env, proj.overlay).Run(ctx)
	if err != nil {
		return describe(os.Stderr, err)
	}

	report.Print(os.Stdout)
	return nil
}
