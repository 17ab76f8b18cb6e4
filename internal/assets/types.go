package assets

import (
	"encoding/json"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads.
type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes int `json:"bytes"`
}

type OutputInfo struct {
	Bytes      int          `json:"bytes"`
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

func parseMetadata(metafile string) (*BuildMetadata, error) {
	var metadata BuildMetadata
	if metafile == "" {
		return &metadata, nil
	}
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// EntryAssets lists the files a page needs for one entry point, as paths
// relative to the output directory.
type EntryAssets struct {
	Script   string
	Preloads []string
	Styles   []string
}

// entryAssets finds the output for entryPoint (relative to the working
// directory) and walks its static imports so shared chunks can be preloaded.
func (m *BuildMetadata) entryAssets(entryPoint string, toOutputRel func(string) string) (EntryAssets, bool) {
	for _, outputPath := range slices.Sorted(maps.Keys(m.Outputs)) {
		info := m.Outputs[outputPath]
		if info.EntryPoint != entryPoint {
			continue
		}

		assets := EntryAssets{Script: toOutputRel(outputPath)}
		if info.CSSBundle != "" {
			assets.Styles = append(assets.Styles, toOutputRel(info.CSSBundle))
		}

		visited := map[string]bool{outputPath: true}
		m.addDependencies(info, &assets, visited, toOutputRel)
		return assets, true
	}
	return EntryAssets{}, false
}

func (m *BuildMetadata) addDependencies(output OutputInfo, assets *EntryAssets, visited map[string]bool, toOutputRel func(string) string) {
	for _, imp := range output.Imports {
		if imp.External || imp.Kind != "import-statement" || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		assets.Preloads = append(assets.Preloads, toOutputRel(imp.Path))

		if chunkInfo, exists := m.Outputs[imp.Path]; exists {
			m.addDependencies(chunkInfo, assets, visited, toOutputRel)
		}
	}
}

// Output is the result of one bundler run with every file held in memory.
type Output struct {
	// ID identifies the run; it changes on every build
	ID string
	// Files maps slash separated paths relative to the output directory to contents
	Files    map[string][]byte
	Metadata *BuildMetadata
	Errors   []api.Message
	Warnings []api.Message
	Duration time.Duration
}

func (o *Output) HasErrors() bool {
	return len(o.Errors) > 0
}

// Paths returns the output file paths in sorted order.
func (o *Output) Paths() []string {
	return slices.Sorted(maps.Keys(o.Files))
}

// Assets returns the sizes of emitted scripts and stylesheets.
func (o *Output) Assets() map[string]int {
	out := make(map[string]int)
	for name, data := range o.Files {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".js", ".css":
			out[name] = len(data)
		}
	}
	return out
}
