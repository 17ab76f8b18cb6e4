package descriptor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Plan is the loader chain selected for a single module, in execution order.
type Plan struct {
	// Rules names the keys of the matched rules, for diagnostics
	Rules []string
	// Steps lists loaders in the order they run
	Steps []LoaderInvocation
}

// Matched reports whether any rule applied to the module.
func (p Plan) Matched() bool {
	return len(p.Steps) > 0
}

// Matcher resolves module paths against a compiled rule set.
type Matcher struct {
	rules []compiledRule
}

type compiledRule struct {
	key     string
	test    *regexp.Regexp
	include []string
	exclude []*regexp.Regexp
	pre     bool
	use     []LoaderInvocation
	oneOf   []compiledRule
}

// Compile checks the structural shape of rules and prepares them for matching.
func Compile(rules []TransformRule) (*Matcher, error) {
	compiled, err := compileGroup(rules, "rules")
	if err != nil {
		return nil, err
	}
	return &Matcher{rules: compiled}, nil
}

func compileGroup(rules []TransformRule, path string) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))

	for i, r := range rules {
		at := fmt.Sprintf("%s[%d]", path, i)

		if r.IsCatchAll() && i != len(rules)-1 {
			return nil, &ConfigurationError{Path: at, Err: ErrCatchAllNotLast}
		}

		cr := compiledRule{
			key:     r.Key(),
			include: r.Include,
			pre:     r.Enforce == EnforcePre,
			use:     r.Use,
		}

		if r.Test != "" {
			re, err := regexp.Compile(r.Test)
			if err != nil {
				return nil, &ConfigurationError{Path: at + ".test", Err: fmt.Errorf("%w: %v", ErrInvalidPattern, err)}
			}
			cr.test = re
		}

		for j, ex := range r.Exclude {
			re, err := regexp.Compile(ex)
			if err != nil {
				return nil, &ConfigurationError{Path: fmt.Sprintf("%s.exclude[%d]", at, j), Err: fmt.Errorf("%w: %v", ErrInvalidPattern, err)}
			}
			cr.exclude = append(cr.exclude, re)
		}

		switch {
		case len(r.OneOf) > 0 && len(r.Use) > 0:
			return nil, &ConfigurationError{Path: at, Err: fmt.Errorf("rule cannot declare both use and oneOf")}
		case len(r.OneOf) > 0:
			children, err := compileGroup(r.OneOf, at+".oneOf")
			if err != nil {
				return nil, err
			}
			cr.oneOf = children
		case len(r.Use) == 0:
			return nil, &ConfigurationError{Path: at, Err: ErrEmptyLoaderChain}
		}

		for j, l := range r.Use {
			if l.Loader == "" {
				return nil, &ConfigurationError{Path: fmt.Sprintf("%s.use[%d]", at, j), Err: fmt.Errorf("loader name is required")}
			}
		}

		out = append(out, cr)
	}

	return out, nil
}

// Resolve compiles rules and matches a single path. Prefer Compile when
// matching many paths.
func Resolve(rules []TransformRule, path string) (Plan, error) {
	m, err := Compile(rules)
	if err != nil {
		return Plan{}, err
	}
	return m.Match(path), nil
}

// Match returns the loader plan for path. Pre rules run first, then normal
// rules in declaration order. Within a oneOf group only the first matching
// rule applies. Each rule's loaders run last to first.
func (m *Matcher) Match(path string) Plan {
	path = filepath.ToSlash(path)

	var pre, normal Plan
	for _, r := range m.rules {
		target := &normal
		if r.pre {
			target = &pre
		}

		if !r.matches(path) {
			continue
		}

		if len(r.oneOf) > 0 {
			for _, child := range r.oneOf {
				if child.matches(path) {
					target.add(child)
					break
				}
			}
			continue
		}

		target.add(r)
	}

	return Plan{
		Rules: append(pre.Rules, normal.Rules...),
		Steps: append(pre.Steps, normal.Steps...),
	}
}

func (p *Plan) add(r compiledRule) {
	p.Rules = append(p.Rules, r.key)
	for i := len(r.use) - 1; i >= 0; i-- {
		p.Steps = append(p.Steps, r.use[i])
	}
}

func (r compiledRule) matches(path string) bool {
	if r.test != nil && !r.test.MatchString(path) {
		return false
	}

	if len(r.include) > 0 {
		included := false
		for _, dir := range r.include {
			if isWithin(path, filepath.ToSlash(dir)) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, ex := range r.exclude {
		if ex.MatchString(path) {
			return false
		}
	}

	return true
}

func isWithin(path, dir string) bool {
	dir = strings.TrimSuffix(dir, "/")
	return path == dir || strings.HasPrefix(path, dir+"/")
}
