package descriptor

import (
	"maps"
	"slices"

	"dario.cat/mergo"
)

// Merge combines base with overlay and returns the effective descriptor.
//
// Scalars set in overlay win, sequences are appended, rules and plugins with the
// same key as a base entry replace it in place, nested objects merge field by
// field. Neither input is modified and no semantic validation is performed.
func Merge(base, overlay PipelineDescriptor) PipelineDescriptor {
	out := PipelineDescriptor{
		Mode:        base.Mode,
		SourceMap:   base.SourceMap,
		EntryPoints: appendStrings(base.EntryPoints, overlay.EntryPoints),
		Resolve: ResolvePolicy{
			Extensions: appendStrings(base.Resolve.Extensions, overlay.Resolve.Extensions),
		},
		Rules:        mergeRules(base.Rules, overlay.Rules),
		Plugins:      mergePlugins(base.Plugins, overlay.Plugins),
		Output:       base.Output,
		Optimization: base.Optimization,
		DevServer:    base.DevServer,
	}

	if overlay.Mode != "" {
		out.Mode = overlay.Mode
	}
	if overlay.SourceMap != "" {
		out.SourceMap = overlay.SourceMap
	}

	mergeNested(&out.Output, overlay.Output)
	mergeNested(&out.Optimization, overlay.Optimization)
	mergeNested(&out.DevServer, overlay.DevServer)

	out.Optimization.Minimize = cloneBool(out.Optimization.Minimize)
	out.Optimization.RuntimeChunkSeparate = cloneBool(out.Optimization.RuntimeChunkSeparate)
	out.DevServer.HistoryFallback = cloneBool(out.DevServer.HistoryFallback)
	out.DevServer.LiveReload = cloneBool(out.DevServer.LiveReload)
	out.DevServer.Compress = cloneBool(out.DevServer.Compress)

	return out
}

// MergeAll folds overlays onto base from left to right.
func MergeAll(base PipelineDescriptor, overlays ...PipelineDescriptor) PipelineDescriptor {
	out := Merge(base, PipelineDescriptor{})
	for _, o := range overlays {
		out = Merge(out, o)
	}
	return out
}

// mergeNested copies every field set in src over dst. Pointers are replaced,
// never written through; Merge clones them afterwards.
func mergeNested[T any](dst *T, src T) {
	// both arguments are the same struct type so this cannot fail
	_ = mergo.Merge(dst, src, mergo.WithOverride, mergo.WithoutDereference)
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return Bool(*b)
}

func appendStrings(base, overlay []string) []string {
	if len(overlay) == 0 {
		return slices.Clone(base)
	}
	out := make([]string, 0, len(base)+len(overlay))
	out = append(out, base...)
	return append(out, overlay...)
}

func mergeRules(base, overlay []TransformRule) []TransformRule {
	if base == nil && overlay == nil {
		return nil
	}

	out := make([]TransformRule, 0, len(base)+len(overlay))
	for _, r := range base {
		out = append(out, cloneRule(r))
	}

	for _, r := range overlay {
		key := r.Key()
		idx := -1
		if key != "" {
			idx = slices.IndexFunc(out, func(existing TransformRule) bool {
				return existing.Key() == key
			})
		}
		if idx >= 0 {
			out[idx] = cloneRule(r)
			continue
		}
		out = append(out, cloneRule(r))
	}

	return out
}

func mergePlugins(base, overlay []PluginInvocation) []PluginInvocation {
	if base == nil && overlay == nil {
		return nil
	}

	out := make([]PluginInvocation, 0, len(base)+len(overlay))
	for _, p := range base {
		out = append(out, clonePlugin(p))
	}

	for _, p := range overlay {
		idx := slices.IndexFunc(out, func(existing PluginInvocation) bool {
			return existing.Name == p.Name
		})
		if idx >= 0 {
			out[idx] = clonePlugin(p)
			continue
		}
		out = append(out, clonePlugin(p))
	}

	return out
}

func cloneRule(r TransformRule) TransformRule {
	out := r
	out.Include = slices.Clone(r.Include)
	out.Exclude = slices.Clone(r.Exclude)

	if r.Use != nil {
		out.Use = make([]LoaderInvocation, len(r.Use))
		for i, l := range r.Use {
			out.Use[i] = LoaderInvocation{Loader: l.Loader, Options: maps.Clone(l.Options)}
		}
	}

	if r.OneOf != nil {
		out.OneOf = make([]TransformRule, len(r.OneOf))
		for i, child := range r.OneOf {
			out.OneOf[i] = cloneRule(child)
		}
	}

	return out
}

func clonePlugin(p PluginInvocation) PluginInvocation {
	return PluginInvocation{Name: p.Name, Options: maps.Clone(p.Options)}
}
