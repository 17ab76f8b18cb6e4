package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/devserver"
)

type StartCmd struct{}

func (c *StartCmd) Run(ctx context.Context, globals *Globals) error {
	log, shutdown := setup(ctx, globals, "bundlekit-start")
	defer shutdown()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	proj, err := loadProject(globals, descriptor.ModeDevelopment)
	if err != nil {
		return err
	}

	log.Debug().
		Str("version", globals.Version).
		Str("root", proj.paths.Root).
		Strs("env_files", proj.env.LoadedFiles()).
		Msg("Starting development server")

	srv, err := devserver.New(proj.paths, proj.env, proj.overlay, os.Stdout)
	if err != nil {
		return describe(os.Stderr, err)
	}

	if err := srv.Run(ctx); err != nil {
		return describe(os.Stderr, err)
	}
	return nil
}
