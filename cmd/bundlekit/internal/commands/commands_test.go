package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/descriptor"
	"gopkg.in/yaml.v3"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}
	return root
}

func TestInspect(t *testing.T) {
	root := writeProject(t, map[string]string{
		"package.json":   `{"name": "demo", "homepage": "https://example.com/app"}`,
		"src/index.js":   "console.log(1)\n",
		"bundlekit.yaml": "production:\n  output:\n    directory: dist\n",
	})
	t.Setenv("PUBLIC_URL", "")

	tests := []struct {
		mode       string
		publicPath string
		directory  string
	}{
		{mode: "development", publicPath: "/", directory: "build"},
		{mode: "production", publicPath: "/app/", directory: "dist"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &InspectCmd{Mode: tt.mode}
			require.NoError(t, cmd.inspect(&Globals{Root: root}, &buf))

			var desc descriptor.PipelineDescriptor
			require.NoError(t, yaml.Unmarshal(buf.Bytes(), &desc))
			require.Equal(t, descriptor.Mode(tt.mode), desc.Mode)
			require.Equal(t, tt.publicPath, desc.Output.PublicPath)
			require.Equal(t, tt.directory, filepath.Base(desc.Output.Directory))
			require.NotEmpty(t, desc.Rules)
		})
	}
}

func TestInspect_invalidProjectFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/index.js":   "console.log(1)\n",
		"bundlekit.yaml": "production:\n  unknownField: true\n",
	})

	err := (&InspectCmd{Mode: "production"}).inspect(&Globals{Root: root}, &bytes.Buffer{})

	var configErr *descriptor.ConfigurationError
	require.ErrorAs(t, err, &configErr)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		output  string
		message string
	}{
		{
			name:    "errors",
			err:     &assets.Diagnostic{Errors: []api.Message{{Text: "Could not resolve \"./missing\""}}},
			output:  "Could not resolve",
			message: "build failed with 1 error(s)",
		},
		{
			name:    "warnings in ci",
			err:     &assets.Diagnostic{Warnings: []api.Message{{Text: "suspicious typeof"}}},
			output:  "Treating warnings as errors",
			message: "warning(s) treated as errors",
		},
		{
			name:    "engine message",
			err:     &assets.EngineError{Message: "Invalid define key"},
			message: "failed to start the bundler: Invalid define key",
		},
		{
			name:    "other",
			err:     errors.New("boom"),
			message: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := describe(&buf, tt.err)
			require.ErrorContains(t, err, tt.message)
			if tt.output != "" {
				require.Contains(t, buf.String(), tt.output)
			}
		})
	}
}
