// Package build produces an optimized production bundle. A build runs the
// engine once, writes everything into a staging directory and only then
// replaces the output directory, so a failed build never leaves a partial
// or stale output behind.
package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/env"
	"github.com/wolfeidau/bundlekit/internal/paths"
	"github.com/wolfeidau/bundlekit/internal/pipeline"
)

// Driver runs production builds for one project.
type Driver struct {
	paths   *paths.Paths
	env     *env.Env
	project *descriptor.Project
}

// New returns a driver. The env must be loaded for production and project
// may be nil.
func New(p *paths.Paths, e *env.Env, project *descriptor.Project) *Driver {
	return &Driver{paths: p, env: e, project: project}
}

// Descriptor returns the effective production descriptor: base, production
// overlay, the public path from the environment or package homepage, then
// the project overlay.
func (d *Driver) Descriptor() (descriptor.PipelineDescriptor, error) {
	desc, err := pipeline.Effective(descriptor.ModeProduction, d.paths, nil)
	if err != nil {
		return descriptor.PipelineDescriptor{}, err
	}

	pkg, err := d.paths.Package()
	if err != nil {
		return descriptor.PipelineDescriptor{}, err
	}

	desc = descriptor.MergeAll(desc,
		descriptor.PipelineDescriptor{Output: descriptor.OutputPolicy{PublicPath: d.env.PublicURL(pkg.Homepage)}},
		d.project.Overlay(descriptor.ModeProduction),
	)
	return desc, nil
}

// Run builds the project. Engine start failures are returned as
// *assets.EngineError and builds with errors as *assets.Diagnostic. When CI
// is set, warnings fail the build too.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	desc, err := d.Descriptor()
	if err != nil {
		return nil, err
	}

	eng, err := assets.New(desc, d.paths, d.env)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	outdir := eng.OutputDir()
	stage, err := beginStaging(outdir)
	if err != nil {
		return nil, err
	}

	promoted := false
	defer func() {
		if !promoted {
			stage.abort()
		}
	}()

	copied, err := copyPublic(d.paths.Public, stage.dir, eng.HTMLTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to copy public directory: %w", err)
	}

	log.Info().Str("output", d.paths.Rel(outdir)).Msg("Creating an optimized production build...")

	out, err := eng.Build(ctx)
	if err != nil {
		return nil, err
	}

	if out.HasErrors() {
		return nil, &assets.Diagnostic{Errors: out.Errors, Warnings: out.Warnings}
	}

	if len(out.Warnings) > 0 && d.env.Bool("CI") {
		log.Warn().Msg("Treating warnings as errors because CI is set")
		return nil, &assets.Diagnostic{Warnings: out.Warnings}
	}

	if err := stage.writeFiles(out.Files); err != nil {
		return nil, err
	}

	if err := stage.promote(ctx); err != nil {
		return nil, err
	}
	promoted = true

	report, err := newReport(out, filepath.ToSlash(d.paths.Rel(outdir)), desc.Output.PublicPath)
	if err != nil {
		return nil, err
	}
	report.PublicFiles = copied

	log.Debug().
		Str("build_id", out.ID).
		Int("public_files", copied).
		Int("files", len(out.Files)).
		Dur("duration", out.Duration).
		Msg("build complete")

	return report, nil
}
