package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	// ErrBuildFailed indicates the bundler ran but reported errors
	ErrBuildFailed = errors.New("build failed with errors")
	// ErrUnknownLoader indicates a rule references a loader that is not registered
	ErrUnknownLoader = errors.New("unknown loader")
	// ErrUnknownPlugin indicates the descriptor references a plugin that is not registered
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrMissingExtractPlugin indicates the extract loader is used without the css-extract plugin
	ErrMissingExtractPlugin = errors.New("the extract loader requires the css-extract plugin")
	// ErrTemplateNotFound indicates the html plugin names a template that does not exist
	ErrTemplateNotFound = errors.New("html template not found")
)

// EngineError reports that the bundler engine could not start. When the engine
// supplied a message, Error returns exactly that message; otherwise it falls
// back to the underlying error.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "bundler engine failed"
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// HasMessage reports whether the engine supplied a message of its own.
func (e *EngineError) HasMessage() bool {
	return e.Message != ""
}

func newEngineError(err error, msgs []api.Message) *EngineError {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return &EngineError{Message: strings.Join(texts, "\n"), Err: err}
}

// Diagnostic reports a bundler run that completed with errors, or with
// warnings when they are treated as fatal.
type Diagnostic struct {
	Errors   []api.Message
	Warnings []api.Message
}

func (d *Diagnostic) Error() string {
	switch {
	case len(d.Errors) > 0:
		return fmt.Sprintf("build failed with %d error(s): %s", len(d.Errors), d.Errors[0].Text)
	case len(d.Warnings) > 0:
		return fmt.Sprintf("build failed with %d warning(s) treated as errors: %s", len(d.Warnings), d.Warnings[0].Text)
	default:
		return ErrBuildFailed.Error()
	}
}

func (d *Diagnostic) Unwrap() error {
	return ErrBuildFailed
}

// FormatErrors renders error messages the way the engine prints them.
func FormatErrors(msgs []api.Message) []string {
	return api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
}

// FormatWarnings renders warning messages the way the engine prints them.
func FormatWarnings(msgs []api.Message) []string {
	return api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.WarningMessage})
}

// dedupe drops repeated messages, which happen when the lint loader and the
// bundler report the same problem for a file.
func dedupe(msgs []api.Message) []api.Message {
	if len(msgs) < 2 {
		return msgs
	}

	type key struct {
		text, file   string
		line, column int
	}

	seen := make(map[key]bool, len(msgs))
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		k := key{text: m.Text}
		if m.Location != nil {
			k.file, k.line, k.column = m.Location.File, m.Location.Line, m.Location.Column
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}
