package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Project holds per-mode partial descriptors supplied by the project being
// built. They are merged after the built-in mode overlay.
type Project struct {
	Development PipelineDescriptor `yaml:"development,omitempty"`
	Production  PipelineDescriptor `yaml:"production,omitempty"`
}

// LoadProject reads a project file. A missing file yields an empty project.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Project{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	return ParseProject(data)
}

// ParseProject decodes a project file, rejecting unknown fields.
func ParseProject(data []byte) (*Project, error) {
	var p Project

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Path: "project", Err: err}
	}

	return &p, nil
}

// Overlay returns the partial descriptor for mode.
func (p *Project) Overlay(mode Mode) PipelineDescriptor {
	if p == nil {
		return PipelineDescriptor{}
	}
	switch mode {
	case ModeDevelopment:
		return p.Development
	case ModeProduction:
		return p.Production
	default:
		return PipelineDescriptor{}
	}
}
