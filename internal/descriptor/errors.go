package descriptor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEntryPoint indicates the descriptor has nothing to bundle
	ErrNoEntryPoint = errors.New("no entry points configured")
	// ErrEmptyLoaderChain indicates a rule has neither loaders nor a oneOf group
	ErrEmptyLoaderChain = errors.New("rule has an empty loader chain")
	// ErrCatchAllNotLast indicates a catch-all rule shadows the rules after it
	ErrCatchAllNotLast = errors.New("catch-all rule must be the last rule in its group")
	// ErrInvalidPattern indicates a rule test or exclude pattern does not compile
	ErrInvalidPattern = errors.New("invalid rule pattern")
)

// ConfigurationError reports a malformed descriptor. It is raised when the
// bundler engine receives the effective descriptor, never by Merge.
type ConfigurationError struct {
	// Path locates the offending element, e.g. "rules[2].oneOf[0]"
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error at %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
