package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"os"
	"strings"
)

const (
	// LiveReloadPath serves the server-sent event stream
	LiveReloadPath = "/__livereload"
	// LiveReloadScriptPath serves the client that listens to LiveReloadPath
	LiveReloadScriptPath = "/__livereload.js"
)

const defaultTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{ .Title }}</title>
  </head>
  <body>
    <noscript>You need to enable JavaScript to run this app.</noscript>
    <div id="root"></div>
  </body>
</html>
`

// PageData is passed to the HTML template.
type PageData struct {
	Title      string
	PublicURL  string
	Scripts    []string
	Preloads   []string
	Styles     []string
	Env        map[string]string
	LiveReload string
}

type htmlRenderer struct {
	templatePath string
	filename     string
	title        string
	// optional is set when no template was configured
	optional bool
}

// Render executes the template with data. Client variables referenced as
// %NAME% are replaced first. When the template does not place the asset tags
// itself they are injected before </head> and </body>.
func (h *htmlRenderer) Render(data PageData) ([]byte, error) {
	raw, err := os.ReadFile(h.templatePath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && h.optional:
		raw = []byte(defaultTemplate)
	case err != nil:
		return nil, err
	}

	source := interpolate(string(raw), data.Env)

	tmpl, err := template.New(h.filename).Funcs(template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}).Parse(source)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}

	out := buf.String()
	if !strings.Contains(source, ".Scripts") {
		out = injectTags(out, data)
	}
	return []byte(out), nil
}

func interpolate(source string, vars map[string]string) string {
	if len(vars) == 0 {
		return source
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "%"+k+"%", v)
	}
	return strings.NewReplacer(pairs...).Replace(source)
}

func injectTags(page string, data PageData) string {
	var head, body strings.Builder

	for _, href := range data.Preloads {
		head.WriteString(`<link rel="modulepreload" href="` + template.HTMLEscapeString(href) + `">`)
	}
	for _, href := range data.Styles {
		head.WriteString(`<link href="` + template.HTMLEscapeString(href) + `" rel="stylesheet">`)
	}
	for _, src := range data.Scripts {
		body.WriteString(`<script type="module" src="` + template.HTMLEscapeString(src) + `"></script>`)
	}
	if data.LiveReload != "" {
		body.WriteString(`<script src="` + template.HTMLEscapeString(data.LiveReload) + `"></script>`)
	}

	page = insertBefore(page, "</head>", head.String())
	return insertBefore(page, "</body>", body.String())
}

func insertBefore(page, marker, content string) string {
	if content == "" {
		return page
	}
	idx := strings.LastIndex(strings.ToLower(page), marker)
	if idx < 0 {
		return page + content
	}
	return page[:idx] + content + page[idx:]
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
