package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	lintRule = TransformRule{
		Test:    `\.(js|mjs|jsx)$`,
		Enforce: EnforcePre,
		Use:     []LoaderInvocation{{Loader: "lint"}},
	}
	transpileRule = TransformRule{
		Name:    "transpile",
		Test:    `\.(js|mjs|jsx)$`,
		Exclude: []string{`node_modules`},
		Use:     []LoaderInvocation{{Loader: "transpile"}},
	}
	styleExtractRule = TransformRule{
		Test: `\.css$`,
		Use:  []LoaderInvocation{{Loader: "extract"}, {Loader: "css"}},
	}
)

func testBase() PipelineDescriptor {
	return PipelineDescriptor{
		Mode:        ModeDevelopment,
		EntryPoints: []string{"src/index.js"},
		Output: OutputPolicy{
			Directory:  "build",
			Filename:   "static/js/bundle",
			PublicPath: "/",
		},
		Resolve: ResolvePolicy{Extensions: []string{".js", ".jsx"}},
		Rules:   []TransformRule{lintRule, transpileRule},
		Plugins: []PluginInvocation{
			{Name: "html", Options: map[string]any{"title": "App"}},
			{Name: "define-env"},
		},
		Optimization: OptimizationPolicy{
			Minimize:   Bool(true),
			ChunkSplit: ChunkSplitNone,
		},
		SourceMap: SourceMapInline,
	}
}

func TestMerge_emptyOverlayIsIdentity(t *testing.T) {
	base := testBase()
	require.Equal(t, base, Merge(base, PipelineDescriptor{}))
	require.Equal(t, PipelineDescriptor{}, Merge(PipelineDescriptor{}, PipelineDescriptor{}))
}

func TestMerge_appendsRulesAfterBase(t *testing.T) {
	base := testBase()

	merged := Merge(base, PipelineDescriptor{Rules: []TransformRule{styleExtractRule}})

	require.Equal(t, []TransformRule{lintRule, transpileRule, styleExtractRule}, merged.Rules)
}

func TestMerge_replacesRuleWithSameKey(t *testing.T) {
	base := testBase()
	replacement := TransformRule{
		Name: "transpile",
		Test: `\.(js|mjs|jsx|ts|tsx)$`,
		Use:  []LoaderInvocation{{Loader: "transpile", Options: map[string]any{"jsx": "automatic"}}},
	}

	merged := Merge(base, PipelineDescriptor{Rules: []TransformRule{replacement}})

	require.Len(t, merged.Rules, 2)
	require.Equal(t, lintRule, merged.Rules[0])
	require.Equal(t, replacement, merged.Rules[1])
}

func TestMerge_scalarsOverlayWins(t *testing.T) {
	base := testBase()

	merged := Merge(base, PipelineDescriptor{
		Mode:      ModeProduction,
		SourceMap: SourceMapLinked,
		Output: OutputPolicy{
			Filename: "static/[ext]/[name].[hash]",
		},
		Optimization: OptimizationPolicy{
			Minimize:   Bool(false),
			ChunkSplit: ChunkSplitAll,
		},
	})

	require.Equal(t, ModeProduction, merged.Mode)
	require.Equal(t, SourceMapLinked, merged.SourceMap)
	require.Equal(t, "static/[ext]/[name].[hash]", merged.Output.Filename)
	require.Equal(t, "build", merged.Output.Directory)
	require.Equal(t, "/", merged.Output.PublicPath)
	require.False(t, IsTrue(merged.Optimization.Minimize))
	require.Equal(t, ChunkSplitAll, merged.Optimization.ChunkSplit)
	require.Nil(t, merged.Optimization.RuntimeChunkSeparate)
}

func TestMerge_untouchedFieldsPreserved(t *testing.T) {
	base := testBase()

	merged := Merge(base, PipelineDescriptor{
		DevServer: DevServerPolicy{ContentBase: "public"},
	})

	require.Equal(t, base.EntryPoints, merged.EntryPoints)
	require.Equal(t, base.Output, merged.Output)
	require.Equal(t, base.Resolve, merged.Resolve)
	require.Equal(t, base.Rules, merged.Rules)
	require.Equal(t, base.Plugins, merged.Plugins)
	require.Equal(t, base.Optimization, merged.Optimization)
	require.Equal(t, base.SourceMap, merged.SourceMap)
	require.Equal(t, "public", merged.DevServer.ContentBase)
}

func TestMerge_pluginsReplacedByName(t *testing.T) {
	base := testBase()

	merged := Merge(base, PipelineDescriptor{
		Plugins: []PluginInvocation{
			{Name: "html", Options: map[string]any{"title": "Production"}},
			{Name: "css-extract"},
		},
	})

	require.Equal(t, []PluginInvocation{
		{Name: "html", Options: map[string]any{"title": "Production"}},
		{Name: "define-env"},
		{Name: "css-extract"},
	}, merged.Plugins)
}

func TestMerge_doesNotMutateInputs(t *testing.T) {
	base := testBase()
	snapshot := testBase()
	overlay := PipelineDescriptor{
		EntryPoints:  []string{"src/other.js"},
		Rules:        []TransformRule{styleExtractRule},
		Optimization: OptimizationPolicy{Minimize: Bool(false)},
	}

	merged := Merge(base, overlay)
	merged.Rules[0].Use[0].Loader = "changed"
	merged.EntryPoints[0] = "changed"
	merged.Plugins[0].Options["title"] = "changed"

	require.Equal(t, snapshot, base)
	require.True(t, *base.Optimization.Minimize)
}

func TestMerge_sharesNoFlagsWithInputs(t *testing.T) {
	base := testBase()
	overlay := PipelineDescriptor{
		Optimization: OptimizationPolicy{RuntimeChunkSeparate: Bool(true)},
		DevServer:    DevServerPolicy{HistoryFallback: Bool(true), LiveReload: Bool(true), Compress: Bool(true)},
	}

	merged := Merge(base, overlay)
	*merged.Optimization.Minimize = false
	*merged.Optimization.RuntimeChunkSeparate = false
	*merged.DevServer.HistoryFallback = false
	*merged.DevServer.LiveReload = false
	*merged.DevServer.Compress = false

	require.True(t, *base.Optimization.Minimize)
	require.True(t, *overlay.Optimization.RuntimeChunkSeparate)
	require.True(t, *overlay.DevServer.HistoryFallback)
	require.True(t, *overlay.DevServer.LiveReload)
	require.True(t, *overlay.DevServer.Compress)

	identity := Merge(base, PipelineDescriptor{})
	*identity.Optimization.Minimize = false
	require.True(t, *base.Optimization.Minimize)
}

func TestMerge_deterministic(t *testing.T) {
	overlay := PipelineDescriptor{
		Mode:  ModeProduction,
		Rules: []TransformRule{styleExtractRule},
	}

	require.Equal(t, Merge(testBase(), overlay), Merge(testBase(), overlay))
}

func TestMergeAll(t *testing.T) {
	merged := MergeAll(testBase(),
		PipelineDescriptor{Rules: []TransformRule{styleExtractRule}},
		PipelineDescriptor{Output: OutputPolicy{Directory: "dist"}},
	)

	require.Len(t, merged.Rules, 3)
	require.Equal(t, "dist", merged.Output.Directory)
}
