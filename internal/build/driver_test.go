package build

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/env"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}
}

func testProject(t *testing.T, files map[string]string) *paths.Paths {
	t.Helper()

	root := t.TempDir()
	base := map[string]string{
		"package.json":      `{"name": "demo", "homepage": "https://example.com/demo"}`,
		"src/index.js":      "import \"./index.css\";\ndocument.title = process.env.REACT_APP_TITLE;\n",
		"src/index.css":     "body { margin: 0; }\n",
		"public/index.html": "<html><head><title>{{ .Title }}</title></head><body></body></html>",
		"public/robots.txt": "User-agent: *\n",
	}
	for k, v := range files {
		base[k] = v
	}
	writeFiles(t, root, base)

	p, err := paths.Resolve(root)
	require.NoError(t, err)
	return p
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()

	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestDriver_Run(t *testing.T) {
	p := testProject(t, nil)
	d := New(p, env.New(descriptor.ModeProduction, map[string]string{"REACT_APP_TITLE": "Demo"}), nil)

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	files := listFiles(t, p.Build)
	require.Contains(t, files, "index.html")
	require.Contains(t, files, "robots.txt")

	page, err := os.ReadFile(filepath.Join(p.Build, "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(page), `<script type="module" src="/demo/static/js/index.`)
	require.Contains(t, string(page), `<link href="/demo/static/css/index.`)

	require.Equal(t, "build", report.OutputDir)
	require.Equal(t, "/demo/", report.PublicPath)
	require.Equal(t, 1, report.PublicFiles)
	require.Len(t, report.Files, 2)
	for _, f := range report.Files {
		require.True(t, strings.HasPrefix(f.Path, "build/static/"), f.Path)
		require.Positive(t, f.Gzip)
	}

	var buf bytes.Buffer
	report.Print(&buf)
	require.Contains(t, buf.String(), "File sizes after gzip:")
	require.Contains(t, buf.String(), "/demo/")

	entries, err := os.ReadDir(filepath.Dir(p.Build))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".staging-")
		require.NotContains(t, e.Name(), ".prev-")
	}
}

func TestDriver_Run_removesStaleFiles(t *testing.T) {
	p := testProject(t, map[string]string{
		"build/static/js/old.js": "stale",
	})
	d := New(p, env.New(descriptor.ModeProduction, nil), nil)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(p.Build, "static", "js", "old.js"))
	require.FileExists(t, filepath.Join(p.Build, "index.html"))
}

func TestDriver_Run_templateCopiedOnce(t *testing.T) {
	p := testProject(t, map[string]string{
		"public/index.html": "<html><head><title>{{ .Title }}</title></head><body>template marker</body></html>",
	})
	d := New(p, env.New(descriptor.ModeProduction, nil), nil)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	count := 0
	for _, f := range listFiles(t, p.Build) {
		data, err := os.ReadFile(filepath.Join(p.Build, filepath.FromSlash(f)))
		require.NoError(t, err)
		if strings.Contains(string(data), "template marker") {
			count++
		}
	}
	require.Equal(t, 1, count)

	page, err := os.ReadFile(filepath.Join(p.Build, "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(page), "<title>Production</title>")
}

func TestDriver_Run_projectTemplate(t *testing.T) {
	p := testProject(t, map[string]string{
		"public/app.html": "<html><head><title>{{ .Title }}</title></head><body>custom template</body></html>",
	})
	project, err := descriptor.ParseProject([]byte(`
production:
  plugins:
    - name: html
      options:
        template: public/app.html
`))
	require.NoError(t, err)

	_, err = New(p, env.New(descriptor.ModeProduction, nil), project).Run(context.Background())
	require.NoError(t, err)

	page, err := os.ReadFile(filepath.Join(p.Build, "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(page), "custom template")

	require.NotContains(t, listFiles(t, p.Build), "app.html")
}

func TestDriver_Run_projectTemplateMissing(t *testing.T) {
	p := testProject(t, nil)
	project := &descriptor.Project{
		Production: descriptor.PipelineDescriptor{
			Plugins: []descriptor.PluginInvocation{{Name: "html", Options: map[string]any{"template": "public/app.html"}}},
		},
	}

	_, err := New(p, env.New(descriptor.ModeProduction, nil), project).Run(context.Background())
	require.ErrorIs(t, err, assets.ErrTemplateNotFound)

	var cfgErr *descriptor.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.NoDirExists(t, p.Build)
}

func TestDriver_Run_failureLeavesOutputUntouched(t *testing.T) {
	p := testProject(t, map[string]string{
		"src/index.js":        "export const = ;\n",
		"build/index.html":    "previous",
		"build/static/app.js": "previous",
	})
	d := New(p, env.New(descriptor.ModeProduction, nil), nil)

	_, err := d.Run(context.Background())
	require.ErrorIs(t, err, assets.ErrBuildFailed)

	var diag *assets.Diagnostic
	require.True(t, errors.As(err, &diag))
	require.NotEmpty(t, diag.Errors)

	require.ElementsMatch(t, []string{"index.html", "static/app.js"}, listFiles(t, p.Build))

	entries, err := os.ReadDir(p.Root)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".staging-")
	}
}

func TestDriver_Run_warningsFailInCI(t *testing.T) {
	p := testProject(t, map[string]string{
		"src/index.js": "if (typeof x == \"undefned\") { console.log(x); }\n",
	})

	for _, ci := range []string{"true", "yes", "1"} {
		_, err := New(p, env.New(descriptor.ModeProduction, map[string]string{"CI": ci}), nil).Run(context.Background())
		require.ErrorIs(t, err, assets.ErrBuildFailed, "CI=%s", ci)

		var diag *assets.Diagnostic
		require.True(t, errors.As(err, &diag))
		require.Empty(t, diag.Errors)
		require.NotEmpty(t, diag.Warnings)
		require.NoDirExists(t, p.Build)
	}

	_, err := New(p, env.New(descriptor.ModeProduction, map[string]string{"CI": "false"}), nil).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(p.Build))

	report, err := New(p, env.New(descriptor.ModeProduction, nil), nil).Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Warnings)
}

func TestDriver_Run_engineError(t *testing.T) {
	p := testProject(t, nil)
	d := New(p, env.New(descriptor.ModeProduction, map[string]string{"REACT_APP_BAD-NAME": "x"}), nil)

	_, err := d.Run(context.Background())

	var engineErr *assets.EngineError
	require.True(t, errors.As(err, &engineErr))
	require.NoDirExists(t, p.Build)
}

func TestDriver_Descriptor_projectOverlay(t *testing.T) {
	p := testProject(t, nil)
	project := &descriptor.Project{
		Production: descriptor.PipelineDescriptor{
			Output: descriptor.OutputPolicy{PublicPath: "/cdn/"},
		},
	}

	desc, err := New(p, env.New(descriptor.ModeProduction, nil), project).Descriptor()
	require.NoError(t, err)
	require.Equal(t, "/cdn/", desc.Output.PublicPath)

	desc, err = New(p, env.New(descriptor.ModeProduction, map[string]string{"PUBLIC_URL": "/env"}), nil).Descriptor()
	require.NoError(t, err)
	require.Equal(t, "/env/", desc.Output.PublicPath)
}

func TestCopyPublic_followsSymlinks(t *testing.T) {
	src := t.TempDir()
	shared := t.TempDir()
	writeFiles(t, src, map[string]string{"index.html": "template", "img/logo.png": "png"})
	writeFiles(t, shared, map[string]string{"fonts/a.woff": "font"})
	require.NoError(t, os.Symlink(filepath.Join(shared, "fonts"), filepath.Join(src, "fonts")))

	dst := t.TempDir()
	n, err := copyPublic(src, dst, filepath.Join(src, "index.html"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []string{"img/logo.png", "fonts/a.woff"}, listFiles(t, dst))

	info, err := os.Lstat(filepath.Join(dst, "fonts"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCopyPublic_missingDir(t *testing.T) {
	n, err := copyPublic(filepath.Join(t.TempDir(), "public"), t.TempDir(), "")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGzipSize(t *testing.T) {
	data := bytes.Repeat([]byte("bundlekit "), 1000)
	n, err := gzipSize(data)
	require.NoError(t, err)
	require.Positive(t, n)
	require.Less(t, n, len(data))
}
