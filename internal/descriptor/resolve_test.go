package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func loaders(p Plan) []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Loader)
	}
	return out
}

func TestResolve_firstMatchWinsInOneOf(t *testing.T) {
	rules := []TransformRule{{
		OneOf: []TransformRule{
			{Name: "app", Test: `\.(js|jsx)$`, Use: []LoaderInvocation{{Loader: "first"}}},
			{Name: "any", Test: `\.js$`, Use: []LoaderInvocation{{Loader: "second"}}},
		},
	}}

	plan, err := Resolve(rules, "/app/src/index.js")
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, loaders(plan))
	require.Equal(t, []string{"app"}, plan.Rules)
}

func TestResolve_preRulesRunFirst(t *testing.T) {
	rules := []TransformRule{
		{Test: `\.js$`, Use: []LoaderInvocation{{Loader: "transpile"}}},
		{Test: `\.js$`, Enforce: EnforcePre, Use: []LoaderInvocation{{Loader: "lint"}}},
	}

	plan, err := Resolve(rules, "src/a.js")
	require.NoError(t, err)
	require.Equal(t, []string{"lint", "transpile"}, loaders(plan))
}

func TestResolve_loaderChainRunsLastToFirst(t *testing.T) {
	rules := []TransformRule{{
		Test: `\.scss$`,
		Use:  []LoaderInvocation{{Loader: "style-inject"}, {Loader: "css"}, {Loader: "sass"}},
	}}

	plan, err := Resolve(rules, "src/a.scss")
	require.NoError(t, err)
	require.Equal(t, []string{"sass", "css", "style-inject"}, loaders(plan))
}

func TestResolve_includeAndExclude(t *testing.T) {
	rules := []TransformRule{
		{
			Test:    `\.js$`,
			Include: []string{"/app/src"},
			Use:     []LoaderInvocation{{Loader: "app"}},
		},
		{
			Test:    `\.js$`,
			Exclude: []string{`node_modules`},
			Use:     []LoaderInvocation{{Loader: "outside"}},
		},
	}

	tests := []struct {
		name     string
		path     string
		expected []string
	}{
		{name: "app source", path: "/app/src/index.js", expected: []string{"app", "outside"}},
		{name: "sibling prefix is not included", path: "/app/srcfoo/index.js", expected: []string{"outside"}},
		{name: "node_modules excluded", path: "/app/node_modules/x/index.js", expected: []string{}},
		{name: "no match", path: "/app/src/index.css", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Resolve(rules, tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.expected, loaders(plan))
		})
	}
}

func TestResolve_catchAllWithExclusions(t *testing.T) {
	rules := []TransformRule{{
		OneOf: []TransformRule{
			{Test: `\.css$`, Use: []LoaderInvocation{{Loader: "css"}}},
			{Exclude: []string{`\.(js|mjs|jsx|ts|tsx)$`, `\.html$`, `\.json$`}, Use: []LoaderInvocation{{Loader: "file"}}},
		},
	}}

	plan, err := Resolve(rules, "src/logo.svg")
	require.NoError(t, err)
	require.Equal(t, []string{"file"}, loaders(plan))

	plan, err = Resolve(rules, "src/data.json")
	require.NoError(t, err)
	require.False(t, plan.Matched())
}

func TestCompile_errors(t *testing.T) {
	tests := []struct {
		name  string
		rules []TransformRule
		err   error
		path  string
	}{
		{
			name:  "empty loader chain",
			rules: []TransformRule{{Test: `\.js$`}},
			err:   ErrEmptyLoaderChain,
			path:  "rules[0]",
		},
		{
			name: "catch-all not last",
			rules: []TransformRule{{
				OneOf: []TransformRule{
					{Use: []LoaderInvocation{{Loader: "file"}}},
					{Test: `\.css$`, Use: []LoaderInvocation{{Loader: "css"}}},
				},
			}},
			err:  ErrCatchAllNotLast,
			path: "rules[0].oneOf[0]",
		},
		{
			name:  "invalid test",
			rules: []TransformRule{{Test: `(`, Use: []LoaderInvocation{{Loader: "x"}}}},
			err:   ErrInvalidPattern,
			path:  "rules[0].test",
		},
		{
			name:  "invalid exclude",
			rules: []TransformRule{{Test: `\.js$`, Exclude: []string{`[`}, Use: []LoaderInvocation{{Loader: "x"}}}},
			err:   ErrInvalidPattern,
			path:  "rules[0].exclude[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules)
			require.ErrorIs(t, err, tt.err)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.path, cfgErr.Path)
		})
	}
}

func TestValidate(t *testing.T) {
	d := testBase()
	m, err := Validate(d)
	require.NoError(t, err)
	require.NotNil(t, m)

	d.EntryPoints = nil
	_, err = Validate(d)
	require.ErrorIs(t, err, ErrNoEntryPoint)

	d = testBase()
	d.SourceMap = "eval"
	_, err = Validate(d)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "sourceMap", cfgErr.Path)
}
