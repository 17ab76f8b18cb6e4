// Package assets runs a pipeline descriptor through esbuild. Descriptor rules
// become an esbuild plugin that applies the loader chain for each module, and
// the result is returned with every file held in memory.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/env"
	"github.com/wolfeidau/bundlekit/internal/paths"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine holds a validated descriptor and the loaders and plugins it uses.
type Engine struct {
	desc    descriptor.PipelineDescriptor
	paths   *paths.Paths
	env     *env.Env
	matcher *descriptor.Matcher
	plugins []api.Plugin
	sass    *sassCompiler
	metrics *telemetry.Metrics

	// set by plugin factories
	html       *htmlRenderer
	liveReload bool
	extract    bool
}

// New validates desc and prepares an engine for it. Unknown loaders and
// plugins are configuration errors.
func New(desc descriptor.PipelineDescriptor, p *paths.Paths, e *env.Env) (*Engine, error) {
	matcher, err := descriptor.Validate(desc)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		desc:    desc,
		paths:   p,
		env:     e,
		matcher: matcher,
		sass:    &sassCompiler{},
		metrics: telemetry.GetMetrics(),
	}

	for i, inv := range desc.Plugins {
		factory, ok := plugins[inv.Name]
		if !ok {
			return nil, &descriptor.ConfigurationError{
				Path: fmt.Sprintf("plugins[%d]", i),
				Err:  fmt.Errorf("%w: %s", ErrUnknownPlugin, inv.Name),
			}
		}

		plugin, err := factory(eng, inv)
		if err != nil {
			return nil, &descriptor.ConfigurationError{Path: fmt.Sprintf("plugins[%d]", i), Err: err}
		}
		if plugin != nil {
			eng.plugins = append(eng.plugins, *plugin)
		}
	}

	if err := eng.checkLoaders(desc.Rules, "rules"); err != nil {
		return nil, err
	}

	if descriptor.IsTrue(desc.Optimization.RuntimeChunkSeparate) {
		log.Debug().Msg("runtime chunk separation is implied by esm output")
	}

	return eng, nil
}

func (e *Engine) checkLoaders(rules []descriptor.TransformRule, path string) error {
	for i, r := range rules {
		at := fmt.Sprintf("%s[%d]", path, i)

		for j, use := range r.Use {
			if _, ok := loaders[use.Loader]; !ok {
				return &descriptor.ConfigurationError{
					Path: fmt.Sprintf("%s.use[%d]", at, j),
					Err:  fmt.Errorf("%w: %s", ErrUnknownLoader, use.Loader),
				}
			}
			if use.Loader == "extract" && !e.extract {
				return &descriptor.ConfigurationError{Path: fmt.Sprintf("%s.use[%d]", at, j), Err: ErrMissingExtractPlugin}
			}
		}

		if err := e.checkLoaders(r.OneOf, at+".oneOf"); err != nil {
			return err
		}
	}
	return nil
}

// Descriptor returns the descriptor the engine was built from.
func (e *Engine) Descriptor() descriptor.PipelineDescriptor {
	return e.desc
}

// OutputDir returns the absolute output directory.
func (e *Engine) OutputDir() string {
	return outputDir(e.desc, e.paths)
}

// HTMLFilename returns the rendered page path relative to the output
// directory, or an empty string when the html plugin is not enabled.
func (e *Engine) HTMLFilename() string {
	if e.html == nil {
		return ""
	}
	return filepath.ToSlash(e.html.filename)
}

// HTMLTemplate returns the template path of the html plugin.
func (e *Engine) HTMLTemplate() string {
	if e.html == nil {
		return ""
	}
	return e.html.templatePath
}

// LiveReload reports whether pages get the live reload client.
func (e *Engine) LiveReload() bool {
	return e.liveReload
}

// Build runs the bundler exactly once.
func (e *Engine) Build(ctx context.Context) (*Output, error) {
	session, err := e.Start(Hooks{})
	if err != nil {
		return nil, err
	}
	defer session.Dispose()

	return session.Rebuild(ctx)
}

// Hooks observe builds, including the ones watch mode starts.
type Hooks struct {
	OnStart func()
	OnEnd   func(*Output)
}

// Session is a live esbuild context.
type Session struct {
	engine *Engine
	bc     api.BuildContext

	mu       sync.Mutex
	started  time.Time
	disposed bool
	// last is the output the OnEnd hook produced, when one is installed
	last     *Output
	lastErr  error
	hooked   bool
}

// Start creates the esbuild context. Failures are returned as EngineError.
func (e *Engine) Start(hooks Hooks) (*Session, error) {
	s := &Session{engine: e, hooked: hooks.OnEnd != nil}

	opts := buildOptions(e.desc, e.paths)
	opts.Plugins = append(opts.Plugins, e.plugins...)
	opts.Plugins = append(opts.Plugins, e.rulesPlugin(), s.hooksPlugin(hooks))

	bc, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, newEngineError(ctxErr, ctxErr.Errors)
	}
	s.bc = bc

	return s, nil
}

// Rebuild runs one build. Cancelling ctx cancels the build in progress.
func (s *Session) Rebuild(ctx context.Context) (*Output, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bundlekit.build")
	defer span.End()

	done := make(chan api.BuildResult, 1)
	go func() {
		done <- s.bc.Rebuild()
	}()

	select {
	case result := <-done:
		if s.hooked {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.last, s.lastErr
		}
		return s.engine.finish(ctx, result, s.startedAt())
	case <-ctx.Done():
		s.bc.Cancel()
		<-done
		return nil, ctx.Err()
	}
}

// Watch lets esbuild rebuild whenever an input changes. Results arrive
// through the OnEnd hook.
func (s *Session) Watch() error {
	if err := s.bc.Watch(api.WatchOptions{}); err != nil {
		return &EngineError{Err: err}
	}
	return nil
}

// Dispose stops watching and releases the context and any sass process.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true

	s.bc.Dispose()
	if err := s.engine.sass.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to stop sass compiler")
	}
}

func (s *Session) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) hooksPlugin(hooks Hooks) api.Plugin {
	return api.Plugin{
		Name: "session-hooks",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				s.mu.Lock()
				s.started = time.Now()
				s.mu.Unlock()

				if hooks.OnStart != nil {
					hooks.OnStart()
				}
				return api.OnStartResult{}, nil
			})

			if hooks.OnEnd == nil {
				return
			}

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				out, err := s.engine.finish(context.Background(), *result, s.startedAt())

				s.mu.Lock()
				s.last, s.lastErr = out, err
				s.mu.Unlock()

				if err != nil {
					return api.OnEndResult{}, err
				}
				hooks.OnEnd(out)
				return api.OnEndResult{}, nil
			})
		},
	}
}

// rulesPlugin loads every file through the loader chain its rules select.
// Files no rule matches are left to esbuild.
func (e *Engine) rulesPlugin() api.Plugin {
	return api.Plugin{
		Name: "rules",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				plan := e.matcher.Match(args.Path)
				if !plan.Matched() {
					return api.OnLoadResult{}, nil
				}

				data, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				m := &module{
					path:       args.Path,
					contents:   string(data),
					resolveDir: filepath.Dir(args.Path),
				}

				for _, step := range plan.Steps {
					if err := loaders[step.Loader](e, step, m); err != nil {
						return api.OnLoadResult{}, fmt.Errorf("%s loader: %w", step.Loader, err)
					}
					e.metrics.LoaderInvocations.Add(context.Background(), 1,
						metric.WithAttributes(attribute.String("loader", step.Loader)))
				}

				if m.loader == api.LoaderNone {
					m.loader = api.LoaderDefault
				}

				return api.OnLoadResult{
					Contents:   &m.contents,
					Loader:     m.loader,
					ResolveDir: m.resolveDir,
					Errors:     m.errors,
					Warnings:   m.warnings,
					WatchFiles: m.watchFiles,
				}, nil
			})
		},
	}
}

// finish converts an esbuild result into an Output and renders the page.
func (e *Engine) finish(ctx context.Context, result api.BuildResult, started time.Time) (*Output, error) {
	out := &Output{
		ID:       uuid.NewString(),
		Files:    make(map[string][]byte, len(result.OutputFiles)+1),
		Errors:   dedupe(result.Errors),
		Warnings: dedupe(result.Warnings),
	}
	if !started.IsZero() {
		out.Duration = time.Since(started)
	}

	defer e.record(ctx, out)

	if out.HasErrors() {
		return out, nil
	}

	outdir := e.OutputDir()
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outdir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside %s: %w", f.Path, outdir, err)
		}
		out.Files[filepath.ToSlash(rel)] = f.Contents
	}

	metadata, err := parseMetadata(result.Metafile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	out.Metadata = metadata

	if e.html != nil {
		page, err := e.renderPage(metadata)
		if err != nil {
			out.Errors = append(out.Errors, api.Message{
				PluginName: "html",
				Text:       fmt.Sprintf("failed to render %s: %v", e.html.filename, err),
			})
			return out, nil
		}
		out.Files[filepath.ToSlash(e.html.filename)] = page
	}

	return out, nil
}

func (e *Engine) renderPage(metadata *BuildMetadata) ([]byte, error) {
	base := publicPath(e.desc)
	outdir := e.OutputDir()

	toOutputRel := func(key string) string {
		rel, err := filepath.Rel(outdir, filepath.Join(e.paths.Root, key))
		if err != nil {
			return key
		}
		return filepath.ToSlash(rel)
	}

	data := PageData{
		Title:     e.html.title,
		PublicURL: publicURL(e.desc),
		Env:       e.env.Client(publicURL(e.desc)),
	}
	if e.liveReload {
		data.LiveReload = LiveReloadScriptPath
	}

	for _, entry := range e.desc.EntryPoints {
		key := filepath.ToSlash(e.paths.Rel(entry))
		entryAssets, ok := metadata.entryAssets(key, toOutputRel)
		if !ok {
			return nil, fmt.Errorf("entry point %s not found in build metadata", key)
		}

		data.Scripts = append(data.Scripts, base+entryAssets.Script)
		for _, p := range entryAssets.Preloads {
			data.Preloads = append(data.Preloads, base+p)
		}
		for _, s := range entryAssets.Styles {
			data.Styles = append(data.Styles, base+s)
		}
	}

	return e.html.Render(data)
}

func (e *Engine) record(ctx context.Context, out *Output) {
	attrs := metric.WithAttributes(attribute.String("mode", e.desc.Mode.String()))

	e.metrics.BuildsTotal.Add(ctx, 1, attrs)
	e.metrics.BuildDuration.Record(ctx, float64(out.Duration.Milliseconds()), attrs)
	e.metrics.BuildWarnings.Add(ctx, int64(len(out.Warnings)), attrs)
	if out.HasErrors() {
		e.metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		return
	}

	var total int64
	for _, data := range out.Files {
		total += int64(len(data))
	}
	e.metrics.OutputBytes.Record(ctx, total, attrs)

	log.Debug().
		Str("build_id", out.ID).
		Int("files", len(out.Files)).
		Dur("duration", out.Duration).
		Msg("bundle complete")
}

// IsEngineError reports whether err is an EngineError.
func IsEngineError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr)
}
