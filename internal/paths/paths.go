// Package paths resolves the project relative locations every other component
// works from.
package paths

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// moduleExtensions is the lookup order for the application entry module.
var moduleExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs"}

// Paths holds absolute project locations.
type Paths struct {
	Root        string
	Src         string
	Public      string
	HTML        string
	Build       string
	Index       string
	TSConfig    string
	PackageJSON string
	ProjectFile string
	NodeModules string
}

// PackageInfo is the subset of package.json the tooling reads.
type PackageInfo struct {
	Name     string `json:"name"`
	Homepage string `json:"homepage"`
}

// Resolve builds Paths for a project rooted at root.
func Resolve(root string) (*Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	p := &Paths{
		Root:        abs,
		Src:         filepath.Join(abs, "src"),
		Public:      filepath.Join(abs, "public"),
		HTML:        filepath.Join(abs, "public", "index.html"),
		Build:       filepath.Join(abs, "build"),
		TSConfig:    filepath.Join(abs, "tsconfig.json"),
		PackageJSON: filepath.Join(abs, "package.json"),
		ProjectFile: filepath.Join(abs, "bundlekit.yaml"),
		NodeModules: filepath.Join(abs, "node_modules"),
	}
	p.Index = resolveModule(p.Src, "index")

	return p, nil
}

// resolveModule returns the first existing file for name under dir, falling
// back to the .js extension so error messages point at a sensible path.
func resolveModule(dir, name string) string {
	for _, ext := range moduleExtensions {
		candidate := filepath.Join(dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(dir, name+".js")
}

// Rel returns path relative to the project root using forward slashes.
func (p *Paths) Rel(path string) string {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// UsesTypeScript reports whether the project has a tsconfig.json.
func (p *Paths) UsesTypeScript() bool {
	_, err := os.Stat(p.TSConfig)
	return err == nil
}

// Package reads package.json. A missing file yields an empty PackageInfo.
func (p *Paths) Package() (PackageInfo, error) {
	var info PackageInfo

	data, err := os.ReadFile(p.PackageJSON)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("failed to read package.json: %w", err)
	}

	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to parse package.json: %w", err)
	}

	return info, nil
}
