// Package env loads the environment a build runs with: dotenv files for the
// selected mode layered under the process environment.
package env

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
)

const (
	// ClientPrefix marks variables that are embedded into the bundle
	ClientPrefix = "REACT_APP_"

	DefaultHost = "0.0.0.0"
	DefaultPort = 3000
)

// Env is an immutable view of the variables for one invocation.
type Env struct {
	mode  descriptor.Mode
	vars  map[string]string
	files []string
}

// Files returns the dotenv file names considered for mode, highest priority first.
func Files(mode descriptor.Mode) []string {
	return []string{
		".env." + mode.String() + ".local",
		".env.local",
		".env." + mode.String(),
		".env",
	}
}

// Load reads the dotenv cascade for mode from root. Earlier files win over
// later ones and environ wins over every file. NODE_ENV and BABEL_ENV always
// reflect mode.
func Load(root string, mode descriptor.Mode, environ []string) (*Env, error) {
	vars := make(map[string]string)
	var loaded []string

	for _, name := range Files(mode) {
		path := filepath.Join(root, name)
		fileVars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		loaded = append(loaded, name)

		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}

	vars["NODE_ENV"] = mode.String()
	vars["BABEL_ENV"] = mode.String()

	return &Env{mode: mode, vars: vars, files: loaded}, nil
}

// FromProcess loads the cascade with the current process environment on top.
func FromProcess(root string, mode descriptor.Mode) (*Env, error) {
	return Load(root, mode, os.Environ())
}

// New builds an Env from explicit variables, mainly for tests.
func New(mode descriptor.Mode, vars map[string]string) *Env {
	v := maps.Clone(vars)
	if v == nil {
		v = make(map[string]string)
	}
	v["NODE_ENV"] = mode.String()
	v["BABEL_ENV"] = mode.String()
	return &Env{mode: mode, vars: v}
}

func (e *Env) Mode() descriptor.Mode {
	return e.mode
}

// LoadedFiles lists the dotenv files that were found, highest priority first.
func (e *Env) LoadedFiles() []string {
	return slices.Clone(e.files)
}

func (e *Env) Get(key string) string {
	return e.vars[key]
}

func (e *Env) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Bool reports whether key is set to anything other than "false", the way
// react-scripts reads CI. Unset and empty values are false.
func (e *Env) Bool(key string) bool {
	v := e.vars[key]
	return v != "" && !strings.EqualFold(v, "false")
}

// Client returns the variables exposed to browser code: every REACT_APP_
// variable plus NODE_ENV and PUBLIC_URL.
func (e *Env) Client(publicURL string) map[string]string {
	out := map[string]string{
		"NODE_ENV":   e.mode.String(),
		"PUBLIC_URL": publicURL,
	}
	for k, v := range e.vars {
		if strings.HasPrefix(k, ClientPrefix) {
			out[k] = v
		}
	}
	return out
}

// Define renders the client variables as bundler define replacements for
// process.env.NAME expressions.
func (e *Env) Define(publicURL string) map[string]string {
	client := e.Client(publicURL)
	out := make(map[string]string, len(client))
	for k, v := range client {
		encoded, _ := json.Marshal(v)
		out["process.env."+k] = string(encoded)
	}
	return out
}

// PublicURL returns the URL prefix the production bundle is served from.
// PUBLIC_URL wins over the package homepage; the result always ends in "/".
func (e *Env) PublicURL(homepage string) string {
	raw := e.vars["PUBLIC_URL"]
	if raw == "" {
		raw = homepage
	}
	if raw == "" || raw == "." || raw == "./" {
		return "/"
	}

	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		raw = u.Path
	}

	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw
}

// ServerAddress resolves the dev server host, port and protocol label from
// HOST, PORT and HTTPS. A PORT that is not a number falls back to the default.
func (e *Env) ServerAddress() (host string, port int, protocol string) {
	host = e.vars["HOST"]
	if host == "" {
		host = DefaultHost
	}

	port = DefaultPort
	if raw := strings.TrimSpace(e.vars["PORT"]); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			port = n
		}
	}

	protocol = "http"
	if e.vars["HTTPS"] == "true" {
		protocol = "https"
	}

	return host, port, protocol
}
