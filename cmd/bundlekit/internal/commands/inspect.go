package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/bundlekit/internal/build"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/pipeline"
	"gopkg.in/yaml.v3"
)

type InspectCmd struct {
	Mode string `help:"Mode to resolve the descriptor for." default:"development" enum:"development,production"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	_, shutdown := setup(ctx, globals, "bundlekit-inspect")
	defer shutdown()

	return c.inspect(globals, os.Stdout)
}

// inspect writes the effective descriptor as YAML, the same shape a project
// file uses for its overlays.
func (c *InspectCmd) inspect(globals *Globals, w io.Writer) error {
	mode, err := descriptor.ParseMode(c.Mode)
	if err != nil {
		return err
	}

	proj, err := loadProject(globals, mode)
	if err != nil {
		return err
	}

	var desc descriptor.PipelineDescriptor
	if mode == descriptor.ModeProduction {
		desc, err = build.New(proj.paths, proj.env, proj.overlay).Descriptor()
	} else {
		desc, err = pipeline.Effective(mode, proj.paths, proj.overlay)
	}
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(desc); err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return enc.Close()
}
