// Package pipeline declares the built-in pipeline descriptors: the base shared
// by every mode and one overlay per mode.
package pipeline

import (
	"slices"

	d "github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

const (
	scriptTest    = `\.(js|mjs|jsx)$`
	appScriptTest = `\.(js|mjs|jsx|ts|tsx)$`
	nodeModules   = `[\\/]node_modules[\\/]`
)

var resolveExtensions = []string{
	".web.mjs", ".mjs",
	".web.js", ".js",
	".web.ts", ".ts",
	".web.tsx", ".tsx",
	".json",
	".web.jsx", ".jsx",
}

// Base returns the descriptor shared by every mode: entry point, output
// directory, module resolution and the lint and transpile rules.
func Base(p *paths.Paths) d.PipelineDescriptor {
	return d.PipelineDescriptor{
		EntryPoints: []string{p.Index},
		Output: d.OutputPolicy{
			Directory:  p.Build,
			PublicPath: "/",
		},
		Resolve: d.ResolvePolicy{
			Extensions: slices.Clone(resolveExtensions),
		},
		Rules: []d.TransformRule{
			// lint before anything transforms the source
			{
				Name:    "lint",
				Test:    scriptTest,
				Enforce: d.EnforcePre,
				Include: []string{p.Src},
				Use:     []d.LoaderInvocation{{Loader: "lint"}},
			},
			{
				Name:    "transpile",
				Test:    scriptTest,
				Exclude: []string{nodeModules},
				Use:     []d.LoaderInvocation{{Loader: "transpile"}},
			},
		},
		Plugins: basePlugins(p),
	}
}
