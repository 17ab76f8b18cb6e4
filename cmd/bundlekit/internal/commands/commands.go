package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/env"
	"github.com/wolfeidau/bundlekit/internal/logger"
	"github.com/wolfeidau/bundlekit/internal/paths"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

type Globals struct {
	Debug     bool
	Root      string
	Telemetry bool
	Version   string
}

// project is everything a command needs to know about the app it works on.
type project struct {
	paths   *paths.Paths
	env     *env.Env
	overlay *descriptor.Project
}

func loadProject(globals *Globals, mode descriptor.Mode) (*project, error) {
	p, err := paths.Resolve(globals.Root)
	if err != nil {
		return nil, err
	}

	e, err := env.FromProcess(p.Root, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	overlay, err := descriptor.LoadProject(p.ProjectFile)
	if err != nil {
		return nil, err
	}

	return &project{paths: p, env: e, overlay: overlay}, nil
}

func setup(ctx context.Context, globals *Globals, service string) (zerolog.Logger, func()) {
	log := logger.Setup(globals.Debug)
	logger.SetGlobal(log)

	shutdown, err := telemetry.Init(ctx, globals.Telemetry, service, globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		shutdown = func(ctx context.Context) error { return nil }
	}

	return log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// describe prints build diagnostics to w and returns the error the command
// exits with.
func describe(w io.Writer, err error) error {
	var diag *assets.Diagnostic
	if errors.As(err, &diag) {
		if len(diag.Errors) > 0 {
			fmt.Fprintln(w, color.RedString("Failed to compile."))
			fmt.Fprintln(w)
			for _, msg := range assets.FormatErrors(diag.Errors) {
				fmt.Fprint(w, msg)
			}
		} else {
			fmt.Fprintln(w, color.YellowString("Treating warnings as errors because process.env.CI = true."))
			fmt.Fprintln(w, "Most CI servers set it automatically.")
			fmt.Fprintln(w)
			fmt.Fprintln(w, color.RedString("Failed to compile."))
			fmt.Fprintln(w)
			for _, msg := range assets.FormatWarnings(diag.Warnings) {
				fmt.Fprint(w, msg)
			}
		}
		return err
	}

	var engineErr *assets.EngineError
	if errors.As(err, &engineErr) && engineErr.HasMessage() {
		return fmt.Errorf("failed to start the bundler: %w", engineErr)
	}

	return err
}
