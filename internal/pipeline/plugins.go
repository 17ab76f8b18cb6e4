package pipeline

import (
	d "github.com/wolfeidau/bundlekit/internal/descriptor"
	"github.com/wolfeidau/bundlekit/internal/paths"
)

func basePlugins(p *paths.Paths) []d.PluginInvocation {
	return []d.PluginInvocation{
		{Name: "html", Options: map[string]any{
			"template": p.HTML,
			"filename": "index.html",
		}},
		{Name: "define-env"},
	}
}

// BuildPlugins returns the plugins a mode adds on top of the base descriptor.
func BuildPlugins(mode d.Mode, p *paths.Paths) []d.PluginInvocation {
	switch mode {
	case d.ModeDevelopment:
		return []d.PluginInvocation{
			{Name: "case-sensitive-paths"},
			{Name: "live-reload"},
		}
	case d.ModeProduction:
		return []d.PluginInvocation{
			{Name: "html", Options: map[string]any{
				"template": p.HTML,
				"filename": "index.html",
				"title":    "Production",
			}},
			{Name: "css-extract"},
		}
	default:
		return nil
	}
}
