package descriptor

import (
	"errors"
	"fmt"
)

// Validate checks that an effective descriptor has the shape a bundler run
// needs, and returns the compiled rule matcher.
func Validate(d PipelineDescriptor) (*Matcher, error) {
	if len(d.EntryPoints) == 0 {
		return nil, &ConfigurationError{Path: "entryPoints", Err: ErrNoEntryPoint}
	}

	if d.Output.Directory == "" {
		return nil, &ConfigurationError{Path: "output.directory", Err: errors.New("output directory is required")}
	}

	switch d.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return nil, &ConfigurationError{Path: "mode", Err: fmt.Errorf("unknown mode %q", d.Mode)}
	}

	switch d.SourceMap {
	case "", SourceMapNone, SourceMapInline, SourceMapLinked, SourceMapExternal:
	default:
		return nil, &ConfigurationError{Path: "sourceMap", Err: fmt.Errorf("unknown source map kind %q", d.SourceMap)}
	}

	switch d.Optimization.ChunkSplit {
	case "", ChunkSplitNone, ChunkSplitAll:
	default:
		return nil, &ConfigurationError{Path: "optimization.chunkSplit", Err: fmt.Errorf("unknown chunk split strategy %q", d.Optimization.ChunkSplit)}
	}

	for i, p := range d.Plugins {
		if p.Name == "" {
			return nil, &ConfigurationError{Path: fmt.Sprintf("plugins[%d]", i), Err: errors.New("plugin name is required")}
		}
	}

	return Compile(d.Rules)
}
