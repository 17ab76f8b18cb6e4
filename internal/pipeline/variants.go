package pipeline

import (
	"fmt"

	d "github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

var overlays = map[d.Mode]func(*paths.Paths) d.PipelineDescriptor{
	d.ModeDevelopment: Development,
	d.ModeProduction:  Production,
}

// Overlay returns the built-in overlay for mode.
func Overlay(mode d.Mode, p *paths.Paths) (d.PipelineDescriptor, error) {
	fn, ok := overlays[mode]
	if !ok {
		return d.PipelineDescriptor{}, fmt.Errorf("no overlay for mode %q", mode)
	}
	return fn(p), nil
}

// Effective merges the base descriptor with the overlay for mode, then with
// the project's own overlay for that mode when one is given.
func Effective(mode d.Mode, p *paths.Paths, project *d.Project) (d.PipelineDescriptor, error) {
	overlay, err := Overlay(mode, p)
	if err != nil {
		return d.PipelineDescriptor{}, err
	}
	return d.MergeAll(Base(p), overlay, project.Overlay(mode)), nil
}
