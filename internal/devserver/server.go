// Package devserver serves a development bundle from memory, rebuilds it when
// sources change and reloads connected browsers.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/env"
	bkhttp "github.com/wolfeidau/bundlekit/internal/http"
	"github.com/wolfeidau/bundlekit/internal/paths"
	"github.com/wolfeidau/bundlekit/internal/pipeline"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 5 * time.Second

// Server is a development server for one project.
type Server struct {
	paths   *paths.Paths
	env     *env.Env
	desc    descriptor.PipelineDescriptor
	engine  *assets.Engine
	store   *Store
	hub     *Hub
	state   stateMachine
	out     io.Writer
	metrics *telemetry.Metrics

	debounce time.Duration
	ready    chan struct{}
	addr     net.Addr
	session  *assets.Session
}

// New prepares a server using the development descriptor merged with the
// project overlay. The env must be loaded for development and project may
// be nil. Status messages are written to out.
func New(p *paths.Paths, e *env.Env, project *descriptor.Project, out io.Writer) (*Server, error) {
	desc, err := pipeline.Effective(descriptor.ModeDevelopment, p, project)
	if err != nil {
		return nil, err
	}

	eng, err := assets.New(desc, p, e)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return &Server{
		paths:    p,
		env:      e,
		desc:     desc,
		engine:   eng,
		store:    NewStore(),
		hub:      NewHub(),
		out:      out,
		metrics:  telemetry.GetMetrics(),
		debounce: defaultDebounce,
		ready:    make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return s.state.load()
}

// Ready is closed once the server is listening and the first build finished.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Run builds, binds and serves until ctx is cancelled. A bind failure is
// returned as *BindError after the engine is disposed.
func (s *Server) Run(ctx context.Context) error {
	s.state.set(StateStarting)

	session, err := s.engine.Start(assets.Hooks{OnStart: s.buildStarted, OnEnd: s.buildFinished})
	if err != nil {
		s.state.set(StateFailed)
		return err
	}
	defer session.Dispose()
	s.session = session

	ln, protocol, err := s.listen()
	if err != nil {
		s.state.set(StateFailed)
		return err
	}
	s.addr = ln.Addr()

	if _, err := session.Rebuild(ctx); err != nil {
		_ = ln.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		s.state.set(StateFailed)
		return err
	}

	if err := session.Watch(); err != nil {
		_ = ln.Close()
		s.state.set(StateFailed)
		return err
	}
	s.state.set(StateWatching)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.desc.DevServer.ContentBase != "" {
		w, err := newDirWatcher(s.desc.DevServer.ContentBase, s.debounce, s.publicChanged(ctx))
		if err != nil {
			log.Warn().Err(err).Msg("not watching public directory")
		} else {
			watching := make(chan struct{})
			go func() {
				defer close(watching)
				w.run(ctx)
			}()
			// stop the watcher before session.Dispose runs
			defer func() {
				cancel()
				<-watching
			}()
		}
	}

	srv := configureHTTPServer(s.Handler())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	s.printInstructions(protocol)
	close(s.ready)

	select {
	case err := <-serveErr:
		s.hub.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.state.set(StateFailed)
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down dev server")
	s.hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dev server: %w", err)
	}
	return nil
}

func (s *Server) listen() (net.Listener, string, error) {
	host, port, protocol := s.env.ServerAddress()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if port < 1 || port > 65535 {
		return nil, protocol, &BindError{Addr: addr, Port: port, Err: ErrInvalidPort}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, protocol, &BindError{Addr: addr, Port: port, Err: err}
	}
	return ln, protocol, nil
}

func configureHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func (s *Server) buildStarted() {
	if s.state.transition(StateWatching, StateRebuilding) {
		s.metrics.RebuildsTotal.Add(context.Background(), 1)
		log.Info().Msg("Compiling...")
	}
}

func (s *Server) buildFinished(out *assets.Output) {
	hash := s.store.Publish(out)
	s.state.transition(StateRebuilding, StateWatching)

	switch {
	case out.HasErrors():
		fmt.Fprintln(s.out, color.RedString("Failed to compile."))
		fmt.Fprintln(s.out)
		for _, msg := range assets.FormatErrors(out.Errors) {
			fmt.Fprint(s.out, msg)
		}
	case len(out.Warnings) > 0:
		fmt.Fprintln(s.out, color.YellowString("Compiled with warnings."))
		fmt.Fprintln(s.out)
		for _, msg := range assets.FormatWarnings(out.Warnings) {
			fmt.Fprint(s.out, msg)
		}
	default:
		log.Info().Str("build_id", out.ID).Dur("duration", out.Duration).Msg("Compiled successfully")
	}

	s.hub.Broadcast(hash)
}

// publicChanged re-renders the page when the template changes and reloads
// browsers for any other file in the public directory.
func (s *Server) publicChanged(ctx context.Context) func([]string) {
	tmpl := filepath.Clean(s.engine.HTMLTemplate())

	return func(changed []string) {
		if ctx.Err() != nil {
			return
		}
		for _, p := range changed {
			if filepath.Clean(p) == tmpl {
				if _, err := s.session.Rebuild(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("failed to rebuild after template change")
				}
				return
			}
		}
		log.Debug().Strs("paths", changed).Msg("public directory changed")
		s.hub.Broadcast(uuid.NewString())
	}
}

func (s *Server) printInstructions(protocol string) {
	pkg, err := s.paths.Package()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read package.json")
	}
	name := pkg.Name
	if name == "" {
		name = filepath.Base(s.paths.Root)
	}

	host, _, _ := s.env.ServerAddress()
	_, port, _ := net.SplitHostPort(s.addr.String())

	display := host
	if host == env.DefaultHost || host == "::" {
		display = "localhost"
	}

	fmt.Fprintf(s.out, "\nYou can now view %s in the browser.\n\n", color.New(color.Bold).Sprint(name))
	fmt.Fprintf(s.out, "  %s %s\n\n", "Local:", color.CyanString("%s://%s:%s/", protocol, display, port))
	fmt.Fprintln(s.out, "Note that the development build is not optimized.")
	fmt.Fprintf(s.out, "To create a production build, use %s.\n\n", color.CyanString("bundlekit build"))
}

// Handler returns the full handler chain: tracing, request logging, CORS,
// compression and the routes.
func (s *Server) Handler() http.Handler {
	var app http.Handler = http.HandlerFunc(s.serveApp)
	if descriptor.IsTrue(s.desc.DevServer.Compress) {
		app = gzhttp.GzipHandler(app)
	}

	mux := http.NewServeMux()
	if s.engine.LiveReload() {
		// the event stream stays outside compression so events flush immediately
		mux.Handle(assets.LiveReloadPath, s.hub)
		mux.HandleFunc(assets.LiveReloadScriptPath, serveLiveReloadScript)
	}
	mux.Handle("/", bkhttp.NoCache(app))

	handler := bkhttp.RequestLogger(log.Logger)(cors.AllowAll().Handler(mux))
	return otelhttp.NewHandler(handler, "bundlekit.devserver")
}

// serveApp serves the bundle from memory, then the public directory, then
// the page for client side routes.
func (s *Server) serveApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name, ok := s.relativePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	page := s.engine.HTMLFilename()
	if name == "" {
		name = page
	}

	if name == page && len(s.store.Errors()) > 0 {
		s.serveErrors(w)
		return
	}

	if data, modTime, ok := s.store.Get(name); ok {
		serveBytes(w, r, name, modTime, data)
		return
	}

	if s.servePublic(w, r, name) {
		return
	}

	if descriptor.IsTrue(s.desc.DevServer.HistoryFallback) && acceptsHTML(r) {
		if len(s.store.Errors()) > 0 {
			s.serveErrors(w)
			return
		}
		if data, modTime, ok := s.store.Get(page); ok {
			serveBytes(w, r, page, modTime, data)
			return
		}
	}

	http.NotFound(w, r)
}

// relativePath strips the public path and cleans the remainder.
func (s *Server) relativePath(urlPath string) (string, bool) {
	prefix := strings.TrimSuffix(s.desc.Output.PublicPath, "/") + "/"
	if !strings.HasPrefix(urlPath, prefix) {
		return "", false
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(urlPath, prefix))
	return strings.TrimPrefix(cleaned, "/"), true
}

func (s *Server) servePublic(w http.ResponseWriter, r *http.Request, name string) bool {
	base := s.desc.DevServer.ContentBase
	if base == "" || name == "" {
		return false
	}

	file := filepath.Join(base, filepath.FromSlash(name))
	if file == filepath.Clean(s.engine.HTMLTemplate()) {
		return false
	}

	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return false
	}

	http.ServeFile(w, r, file)
	return true
}

func serveBytes(w http.ResponseWriter, r *http.Request, name string, modTime time.Time, data []byte) {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, name, modTime, bytes.NewReader(data))
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}

var errorPage = template.Must(template.New("errors").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Failed to compile</title>
    <style>
      body { background: #111; color: #eee; font-family: monospace; padding: 2em; }
      h1 { color: #ff5555; font-size: 1.4em; }
      pre { white-space: pre-wrap; line-height: 1.4; }
    </style>
  </head>
  <body>
    <h1>Failed to compile</h1>
    {{ range .Errors }}<pre>{{ . }}</pre>{{ end }}
    {{ if .LiveReload }}<script src="{{ .LiveReload }}"></script>{{ end }}
  </body>
</html>
`))

func (s *Server) serveErrors(w http.ResponseWriter) {
	errs, hash := s.store.Failure()
	data := struct {
		Errors     []string
		LiveReload string
	}{Errors: errs}
	if s.engine.LiveReload() {
		data.LiveReload = liveReloadSrc(hash)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	if err := errorPage.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("failed to render error page")
	}
}
