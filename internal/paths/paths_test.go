package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	p, err := Resolve(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "public", "index.html"), p.HTML)
	require.Equal(t, filepath.Join(root, "build"), p.Build)
	require.Equal(t, filepath.Join(root, "src", "index.js"), p.Index)
}

func TestResolve_entryExtensionOrder(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.js"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.tsx"), nil, 0o600))

	p, err := Resolve(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(src, "index.tsx"), p.Index)
	require.Equal(t, "src/index.tsx", p.Rel(p.Index))
}

func TestPackage(t *testing.T) {
	root := t.TempDir()
	p, err := Resolve(root)
	require.NoError(t, err)

	info, err := p.Package()
	require.NoError(t, err)
	require.Equal(t, PackageInfo{}, info)

	require.NoError(t, os.WriteFile(p.PackageJSON, []byte(`{"name":"demo","homepage":"https://example.com/demo"}`), 0o600))
	info, err = p.Package()
	require.NoError(t, err)
	require.Equal(t, "demo", info.Name)
	require.Equal(t, "https://example.com/demo", info.Homepage)

	require.NoError(t, os.WriteFile(p.PackageJSON, []byte(`{`), 0o600))
	_, err = p.Package()
	require.Error(t, err)
}
