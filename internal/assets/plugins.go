package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
)

// pluginFactory configures the engine for one plugin invocation. Factories
// that need to hook into esbuild return a plugin; the rest only set engine
// state and return nil.
type pluginFactory func(e *Engine, inv descriptor.PluginInvocation) (*api.Plugin, error)

var plugins = map[string]pluginFactory{
	"html":                 htmlPlugin,
	"define-env":           defineEnvPlugin,
	"case-sensitive-paths": caseSensitivePathsPlugin,
	"live-reload":          liveReloadPlugin,
	"css-extract":          cssExtractPlugin,
}

const defaultTitle = "React App"

func htmlPlugin(e *Engine, inv descriptor.PluginInvocation) (*api.Plugin, error) {
	h := &htmlRenderer{
		templatePath: inv.String("template"),
		filename:     inv.String("filename"),
		title:        inv.String("title"),
	}
	switch {
	case h.templatePath == "":
		h.templatePath = e.paths.HTML
	case !filepath.IsAbs(h.templatePath):
		h.templatePath = filepath.Join(e.paths.Root, h.templatePath)
	}
	// public/index.html may be absent, in which case Render uses the built-in
	// page; any other template must exist
	h.optional = filepath.Clean(h.templatePath) == filepath.Clean(e.paths.HTML)
	if !h.optional {
		info, err := os.Stat(h.templatePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, e.paths.Rel(h.templatePath))
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrTemplateNotFound, e.paths.Rel(h.templatePath))
		}
	}
	if h.filename == "" {
		h.filename = "index.html"
	}
	if filepath.IsAbs(h.filename) || strings.HasPrefix(filepath.Clean(h.filename), "..") {
		return nil, fmt.Errorf("html filename %q must be relative to the output directory", h.filename)
	}
	if h.title == "" {
		h.title = defaultTitle
	}

	e.html = h
	return nil, nil
}

// defineEnvPlugin replaces process.env.NAME expressions with the client
// environment. It runs as an esbuild plugin so it sees the final options.
func defineEnvPlugin(e *Engine, _ descriptor.PluginInvocation) (*api.Plugin, error) {
	defines := e.env.Define(publicURL(e.desc))

	return &api.Plugin{
		Name: "define-env",
		Setup: func(build api.PluginBuild) {
			if build.InitialOptions.Define == nil {
				build.InitialOptions.Define = make(map[string]string, len(defines))
			}
			for k, v := range defines {
				build.InitialOptions.Define[k] = v
			}
		},
	}, nil
}

func liveReloadPlugin(e *Engine, _ descriptor.PluginInvocation) (*api.Plugin, error) {
	e.liveReload = true
	return nil, nil
}

func cssExtractPlugin(e *Engine, _ descriptor.PluginInvocation) (*api.Plugin, error) {
	e.extract = true
	return nil, nil
}

// caseSensitivePathsPlugin fails a module whose import path differs in case
// from the file on disk, which would break on case sensitive file systems.
func caseSensitivePathsPlugin(e *Engine, _ descriptor.PluginInvocation) (*api.Plugin, error) {
	checker := &caseChecker{root: e.paths.Root}

	return &api.Plugin{
		Name: "case-sensitive-paths",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				checker.reset()
				return api.OnStartResult{}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				actual, ok := checker.check(args.Path)
				if ok {
					return api.OnLoadResult{}, nil
				}
				return api.OnLoadResult{
					Errors: []api.Message{{
						Text: fmt.Sprintf("%s does not match the corresponding path on disk %s", e.paths.Rel(args.Path), actual),
					}},
				}, nil
			})
		},
	}, nil
}

type caseChecker struct {
	root    string
	mu      sync.Mutex
	entries map[string][]string
}

func (c *caseChecker) reset() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

// check walks path below root one element at a time, returning the on-disk
// spelling of the first element that only matches ignoring case.
func (c *caseChecker) check(path string) (string, bool) {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", true
	}

	dir := c.root
	for _, name := range strings.Split(rel, string(filepath.Separator)) {
		names := c.list(dir)
		found := false
		var folded string
		for _, n := range names {
			if n == name {
				found = true
				break
			}
			if folded == "" && strings.EqualFold(n, name) {
				folded = n
			}
		}
		if !found && folded != "" {
			return c.relTo(filepath.Join(dir, folded)), false
		}
		dir = filepath.Join(dir, name)
	}
	return "", true
}

func (c *caseChecker) relTo(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (c *caseChecker) list(dir string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if names, ok := c.entries[dir]; ok {
		return names
	}

	entries, err := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	if err == nil {
		for _, de := range entries {
			names = append(names, de.Name())
		}
	}

	if c.entries == nil {
		c.entries = make(map[string][]string)
	}
	c.entries[dir] = names
	return names
}
