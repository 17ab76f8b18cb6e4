package descriptor

import "fmt"

// Mode selects which overlay is merged onto the base descriptor.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDevelopment, ModeProduction:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// SourceMap controls how source maps are emitted.
type SourceMap string

const (
	SourceMapNone     SourceMap = "none"
	SourceMapInline   SourceMap = "inline"
	SourceMapLinked   SourceMap = "linked"
	SourceMapExternal SourceMap = "external"
)

// ChunkSplitStrategy controls code splitting of shared modules.
type ChunkSplitStrategy string

const (
	ChunkSplitNone ChunkSplitStrategy = "none"
	ChunkSplitAll  ChunkSplitStrategy = "all"
)

// EnforcePre marks a rule that runs before normal transform rules.
const EnforcePre = "pre"

// PipelineDescriptor describes a complete bundler pipeline. The same shape is
// used for partial overlays, where zero values mean "not set".
type PipelineDescriptor struct {
	Mode         Mode               `yaml:"mode,omitempty"`
	EntryPoints  []string           `yaml:"entryPoints,omitempty"`
	Output       OutputPolicy       `yaml:"output,omitempty"`
	Resolve      ResolvePolicy      `yaml:"resolve,omitempty"`
	Rules        []TransformRule    `yaml:"rules,omitempty"`
	Plugins      []PluginInvocation `yaml:"plugins,omitempty"`
	Optimization OptimizationPolicy `yaml:"optimization,omitempty"`
	SourceMap    SourceMap          `yaml:"sourceMap,omitempty"`
	DevServer    DevServerPolicy    `yaml:"devServer,omitempty"`
}

type OutputPolicy struct {
	// Directory the bundle is written to
	Directory string `yaml:"directory,omitempty"`
	// Entry file name pattern, e.g. "static/[ext]/[name].[hash]"
	Filename string `yaml:"filename,omitempty"`
	// Shared chunk file name pattern
	ChunkFilename string `yaml:"chunkFilename,omitempty"`
	// Name pattern for files emitted by the file loader
	AssetFilename string `yaml:"assetFilename,omitempty"`
	// URL prefix the bundle is served from
	PublicPath string `yaml:"publicPath,omitempty"`
}

type ResolvePolicy struct {
	Extensions []string `yaml:"extensions,omitempty"`
}

type OptimizationPolicy struct {
	Minimize             *bool              `yaml:"minimize,omitempty"`
	ChunkSplit           ChunkSplitStrategy `yaml:"chunkSplit,omitempty"`
	RuntimeChunkSeparate *bool              `yaml:"runtimeChunkSeparate,omitempty"`
}

type DevServerPolicy struct {
	ContentBase     string `yaml:"contentBase,omitempty"`
	HistoryFallback *bool  `yaml:"historyFallback,omitempty"`
	LiveReload      *bool  `yaml:"liveReload,omitempty"`
	Compress        *bool  `yaml:"compress,omitempty"`
}

// TransformRule matches module paths and applies a loader chain to them.
type TransformRule struct {
	Name    string             `yaml:"name,omitempty"`
	Test    string             `yaml:"test,omitempty"`
	Include []string           `yaml:"include,omitempty"`
	Exclude []string           `yaml:"exclude,omitempty"`
	Enforce string             `yaml:"enforce,omitempty"`
	Use     []LoaderInvocation `yaml:"use,omitempty"`
	OneOf   []TransformRule    `yaml:"oneOf,omitempty"`
}

// Key identifies the rule for merge replacement. Rules without a name or test
// have no key and are always appended.
func (r TransformRule) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Test
}

// IsCatchAll reports whether the rule matches every path.
func (r TransformRule) IsCatchAll() bool {
	return r.Test == "" && len(r.OneOf) == 0
}

type LoaderInvocation struct {
	Loader  string         `yaml:"loader"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Bool reads a boolean loader option.
func (l LoaderInvocation) Bool(name string) bool {
	v, _ := l.Options[name].(bool)
	return v
}

// String reads a string loader option.
func (l LoaderInvocation) String(name string) string {
	v, _ := l.Options[name].(string)
	return v
}

type PluginInvocation struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// String reads a string plugin option.
func (p PluginInvocation) String(name string) string {
	v, _ := p.Options[name].(string)
	return v
}

// Plugin returns the invocation with the given name.
func (d PipelineDescriptor) Plugin(name string) (PluginInvocation, bool) {
	for _, p := range d.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginInvocation{}, false
}

// Bool returns a pointer to b, for optional descriptor fields.
func Bool(b bool) *bool {
	return &b
}

// IsTrue reports whether an optional flag is set and true.
func IsTrue(b *bool) bool {
	return b != nil && *b
}
