package assets

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

// assetLoaders covers files the rule set never sees, such as assets imported
// from node_modules css.
var assetLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".bmp":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".avif":  api.LoaderFile,
	".svg":   api.LoaderFile,
	".ico":   api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
	".otf":   api.LoaderFile,
	".mp4":   api.LoaderFile,
	".webm":  api.LoaderFile,
	".wav":   api.LoaderFile,
	".mp3":   api.LoaderFile,
}

// buildOptions translates an effective descriptor into esbuild options. Files
// are kept in memory; callers decide where they go.
func buildOptions(desc descriptor.PipelineDescriptor, p *paths.Paths) api.BuildOptions {
	minify := descriptor.IsTrue(desc.Optimization.Minimize)

	opts := api.BuildOptions{
		AbsWorkingDir:     p.Root,
		EntryPoints:       slices.Clone(desc.EntryPoints),
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Outdir:            outputDir(desc, p),
		EntryNames:        namePattern(desc.Output.Filename, "[dir]/[name]"),
		ChunkNames:        namePattern(desc.Output.ChunkFilename, "[name]-[hash]"),
		AssetNames:        namePattern(desc.Output.AssetFilename, "[name]-[hash]"),
		PublicPath:        desc.Output.PublicPath,
		ResolveExtensions: slices.Clone(desc.Resolve.Extensions),
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            api.ES2020,
		JSX:               api.JSXAutomatic,
		Splitting:         desc.Optimization.ChunkSplit == descriptor.ChunkSplitAll,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         sourceMap(desc.SourceMap),
		LogLevel:          api.LogLevelSilent,
		Loader:            assetLoaders,
		Define:            map[string]string{},
	}

	if p.UsesTypeScript() {
		opts.Tsconfig = p.TSConfig
	}

	return opts
}

func outputDir(desc descriptor.PipelineDescriptor, p *paths.Paths) string {
	if filepath.IsAbs(desc.Output.Directory) {
		return desc.Output.Directory
	}
	return filepath.Join(p.Root, desc.Output.Directory)
}

// namePattern drops the extension placeholder esbuild appends itself.
func namePattern(pattern, fallback string) string {
	if pattern == "" {
		return fallback
	}
	return strings.TrimSuffix(pattern, ".[ext]")
}

func sourceMap(kind descriptor.SourceMap) api.SourceMap {
	switch kind {
	case descriptor.SourceMapInline:
		return api.SourceMapInline
	case descriptor.SourceMapLinked:
		return api.SourceMapLinked
	case descriptor.SourceMapExternal:
		return api.SourceMapExternal
	default:
		return api.SourceMapNone
	}
}

// publicPath normalises the output public path so it always ends in a slash.
func publicPath(desc descriptor.PipelineDescriptor) string {
	pp := desc.Output.PublicPath
	if pp == "" {
		return "/"
	}
	if !strings.HasSuffix(pp, "/") {
		pp += "/"
	}
	return pp
}

// publicURL is the prefix exposed to templates and client code as
// PUBLIC_URL, which carries no trailing slash.
func publicURL(desc descriptor.PipelineDescriptor) string {
	return strings.TrimSuffix(publicPath(desc), "/")
}
