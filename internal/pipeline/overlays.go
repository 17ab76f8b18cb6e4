package pipeline

import (
	d "github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

const (
	cssTest          = `\.css$`
	cssModuleTest    = `\.module\.css$`
	sassTest         = `\.(scss|sass)$`
	sassModuleTest   = `\.module\.(scss|sass)$`
	babelRuntimePath = `@babel(?:\/|\\{1,2})runtime`
	assetFilename    = "static/media/[name].[hash]"
)

// Development returns the overlay for fast iteration: unminified output,
// inline source maps, injected styles and the live-reload dev server.
func Development(p *paths.Paths) d.PipelineDescriptor {
	return d.PipelineDescriptor{
		Mode:      d.ModeDevelopment,
		SourceMap: d.SourceMapInline,
		Output: d.OutputPolicy{
			Filename:      "static/js/bundle",
			ChunkFilename: "static/js/[name].chunk",
			AssetFilename: assetFilename,
		},
		Optimization: d.OptimizationPolicy{
			Minimize:             d.Bool(false),
			ChunkSplit:           d.ChunkSplitNone,
			RuntimeChunkSeparate: d.Bool(false),
		},
		DevServer: d.DevServerPolicy{
			ContentBase:     p.Public,
			HistoryFallback: d.Bool(true),
			LiveReload:      d.Bool(true),
			Compress:        d.Bool(true),
		},
		Rules:   []d.TransformRule{moduleRules(p, "style-inject", false)},
		Plugins: BuildPlugins(d.ModeDevelopment, p),
	}
}

// Production returns the overlay for optimized output: minification, css
// extracted to files, content hashed names and shared chunk splitting.
func Production(p *paths.Paths) d.PipelineDescriptor {
	return d.PipelineDescriptor{
		Mode:      d.ModeProduction,
		SourceMap: d.SourceMapLinked,
		Output: d.OutputPolicy{
			Filename:      "static/[ext]/[name].[hash]",
			ChunkFilename: "static/[ext]/[name].[hash].chunk",
			AssetFilename: assetFilename,
		},
		Optimization: d.OptimizationPolicy{
			Minimize:             d.Bool(true),
			ChunkSplit:           d.ChunkSplitAll,
			RuntimeChunkSeparate: d.Bool(true),
		},
		Rules:   []d.TransformRule{moduleRules(p, "extract", true)},
		Plugins: BuildPlugins(d.ModeProduction, p),
	}
}

// moduleRules is the exclusive rule group shared by both modes. Only the
// style loader and css source maps differ.
func moduleRules(p *paths.Paths, styleLoader string, sourceMap bool) d.TransformRule {
	style := d.LoaderInvocation{Loader: styleLoader}

	css := func(modules bool, importLoaders int) d.LoaderInvocation {
		return d.LoaderInvocation{Loader: "css", Options: map[string]any{
			"importLoaders": importLoaders,
			"sourceMap":     sourceMap,
			"modules":       modules,
		}}
	}

	return d.TransformRule{
		OneOf: []d.TransformRule{
			// application code, including TypeScript and JSX
			{
				Test:    appScriptTest,
				Include: []string{p.Src},
				Use: []d.LoaderInvocation{{Loader: "transpile", Options: map[string]any{
					"jsx": "automatic",
				}}},
			},
			// code outside the app only gets standard language features
			{
				Test:    `\.(js|mjs)$`,
				Exclude: []string{babelRuntimePath},
				Use: []d.LoaderInvocation{{Loader: "transpile", Options: map[string]any{
					"sourceMaps": false,
				}}},
			},
			{
				Test:    cssTest,
				Exclude: []string{cssModuleTest},
				Use:     []d.LoaderInvocation{style, css(false, 1)},
			},
			{
				Test: cssModuleTest,
				Use:  []d.LoaderInvocation{style, css(true, 1)},
			},
			{
				Test:    sassTest,
				Exclude: []string{sassModuleTest},
				Use:     []d.LoaderInvocation{style, css(false, 2), {Loader: "sass"}},
			},
			{
				Test: sassModuleTest,
				Use:  []d.LoaderInvocation{style, css(true, 2), {Loader: "sass"}},
			},
			// everything else becomes a file; new rules go above this one
			{
				Exclude: []string{appScriptTest, `\.cjs$`, `\.html$`, `\.json$`},
				Use:     []d.LoaderInvocation{{Loader: "file"}},
			},
		},
	}
}
