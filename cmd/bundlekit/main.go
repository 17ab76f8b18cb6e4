package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/bundlekit/cmd/bundlekit/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool   `help:"Enable debug mode."`
		Root      string `help:"Project root directory." default:"." env:"BUNDLEKIT_ROOT" type:"path"`
		Telemetry bool   `help:"Export traces and metrics over OTLP." default:"false" env:"BUNDLEKIT_TELEMETRY"`
		Version   kong.VersionFlag

		Build   commands.BuildCmd   `cmd:"" help:"Create an optimized production build"`
		Start   commands.StartCmd   `cmd:"" help:"Start the development server"`
		Inspect commands.InspectCmd `cmd:"" help:"Print the effective pipeline descriptor"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("bundlekit"),
		kong.Description("Build and serve React applications with esbuild."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Root: cli.Root, Telemetry: cli.Telemetry, Version: version})
	cmd.FatalIfErrorf(err)
}
