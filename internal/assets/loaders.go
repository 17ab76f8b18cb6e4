package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
)

// module is the state threaded through a loader chain for one file.
type module struct {
	path       string
	contents   string
	loader     api.Loader
	resolveDir string
	errors     []api.Message
	warnings   []api.Message
	watchFiles []string
}

type loaderFunc func(e *Engine, step descriptor.LoaderInvocation, m *module) error

// loaders is keyed by the name used in descriptor rules.
var loaders = map[string]loaderFunc{
	"lint":         lintLoader,
	"transpile":    transpileLoader,
	"css":          cssLoader,
	"sass":         sassLoader,
	"style-inject": styleInjectLoader,
	"extract":      extractLoader,
	"file":         fileLoader,
}

// scriptLoader picks the esbuild loader for a script by extension. Plain
// JavaScript may contain JSX.
func scriptLoader(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	default:
		return api.LoaderJSX
	}
}

// lintLoader parses the module on its own and reports what the parser finds
// without changing the source.
func lintLoader(e *Engine, _ descriptor.LoaderInvocation, m *module) error {
	result := api.Transform(m.contents, api.TransformOptions{
		Loader:     scriptLoader(m.path),
		Sourcefile: e.paths.Rel(m.path),
		JSX:        api.JSXAutomatic,
		Target:     api.ES2020,
		LogLevel:   api.LogLevelSilent,
	})

	for _, msg := range result.Warnings {
		msg.PluginName = "lint"
		m.warnings = append(m.warnings, msg)
	}
	for _, msg := range result.Errors {
		msg.PluginName = "lint"
		m.errors = append(m.errors, msg)
	}
	return nil
}

func transpileLoader(_ *Engine, _ descriptor.LoaderInvocation, m *module) error {
	m.loader = scriptLoader(m.path)
	return nil
}

func cssLoader(_ *Engine, step descriptor.LoaderInvocation, m *module) error {
	if step.Bool("modules") {
		m.loader = api.LoaderLocalCSS
	} else {
		m.loader = api.LoaderCSS
	}
	return nil
}

func sassLoader(e *Engine, step descriptor.LoaderInvocation, m *module) error {
	syntax := godartsass.SourceSyntaxSCSS
	if strings.EqualFold(filepath.Ext(m.path), ".sass") {
		syntax = godartsass.SourceSyntaxSASS
	}

	css, err := e.sass.compile(godartsass.Args{
		Source:          m.contents,
		URL:             "file://" + filepath.ToSlash(m.path),
		SourceSyntax:    syntax,
		OutputStyle:     godartsass.OutputStyleExpanded,
		IncludePaths:    []string{filepath.Dir(m.path), e.paths.NodeModules},
		EnableSourceMap: step.Bool("sourceMap"),
	})
	if err != nil {
		return err
	}

	m.contents = css
	m.loader = api.LoaderCSS
	return nil
}

// styleInjectLoader bundles the stylesheet on its own and replaces the module
// with script that adds a style element at runtime. Local class names stay
// available as the default export.
func styleInjectLoader(e *Engine, _ descriptor.LoaderInvocation, m *module) error {
	loader := api.LoaderCSS
	stdin := `import "inline-css";`
	if m.loader == api.LoaderLocalCSS {
		loader = api.LoaderLocalCSS
		stdin = `export { default } from "inline-css";`
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   stdin,
			ResolveDir: m.resolveDir,
			Sourcefile: filepath.Base(m.path) + ".js",
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir: e.paths.Root,
		Bundle:        true,
		Write:         false,
		Outdir:        m.resolveDir,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Loader:        inlineAssetLoaders(),
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{inlineCSSPlugin(m, loader)},
	})

	m.errors = append(m.errors, result.Errors...)
	m.warnings = append(m.warnings, result.Warnings...)
	if len(result.Errors) > 0 {
		return nil
	}

	var script, css string
	for _, f := range result.OutputFiles {
		switch filepath.Ext(f.Path) {
		case ".js":
			script = string(f.Contents)
		case ".css":
			css = string(f.Contents)
		}
	}

	encoded, err := json.Marshal(css)
	if err != nil {
		return err
	}
	source, err := json.Marshal(e.paths.Rel(m.path))
	if err != nil {
		return err
	}

	m.contents = script + fmt.Sprintf(`
(() => {
  const style = document.createElement("style");
  style.setAttribute("data-source", %s);
  style.textContent = %s;
  document.head.appendChild(style);
})();
`, source, encoded)
	m.loader = api.LoaderJS
	return nil
}

func inlineAssetLoaders() map[string]api.Loader {
	out := make(map[string]api.Loader, len(assetLoaders))
	for ext := range assetLoaders {
		out[ext] = api.LoaderDataURL
	}
	return out
}

func inlineCSSPlugin(m *module, loader api.Loader) api.Plugin {
	return api.Plugin{
		Name: "inline-css",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^inline-css$`}, func(api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: m.path, Namespace: "inline-css"}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "inline-css"}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := m.contents
				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     loader,
					ResolveDir: m.resolveDir,
				}, nil
			})
		},
	}
}

// extractLoader leaves css for the bundler to write as a stylesheet next to
// the entry script; the css-extract plugin must be enabled.
func extractLoader(_ *Engine, _ descriptor.LoaderInvocation, m *module) error {
	if m.loader != api.LoaderLocalCSS {
		m.loader = api.LoaderCSS
	}
	return nil
}

func fileLoader(_ *Engine, _ descriptor.LoaderInvocation, m *module) error {
	m.loader = api.LoaderFile
	return nil
}

// sassCompiler starts the dart-sass process on first use and shares it
// between modules.
type sassCompiler struct {
	mu         sync.Mutex
	transpiler *godartsass.Transpiler
	startErr   error
	started    bool
}

func (s *sassCompiler) compile(args godartsass.Args) (string, error) {
	t, err := s.start()
	if err != nil {
		return "", err
	}

	res, err := t.Execute(args)
	if err != nil {
		return "", fmt.Errorf("failed to compile %s: %w", args.URL, err)
	}
	return res.CSS, nil
}

func (s *sassCompiler) start() (*godartsass.Transpiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.transpiler, s.startErr = godartsass.Start(godartsass.Options{})
		if s.startErr != nil {
			s.startErr = fmt.Errorf("the sass loader needs the dart-sass executable on PATH: %w", s.startErr)
		}
	}
	return s.transpiler, s.startErr
}

func (s *sassCompiler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transpiler == nil {
		return nil
	}
	err := s.transpiler.Close()
	s.transpiler = nil
	s.started = false
	if err != nil && !errors.Is(err, godartsass.ErrShutdown) {
		return err
	}
	log.Debug().Msg("sass compiler stopped")
	return nil
}
