package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the project file looked up when none is given.
const DefaultFile = "yamake.yml"

// Format is a project file syntax.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatCUE      Format = "cue"
	FormatStarlark Format = "starlark"
)

// FormatOf infers the syntax from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".star", ".bzl":
		return FormatStarlark, nil
	default:
		return "", fmt.Errorf("unsupported project file %s: expected .yml, .yaml, .cue or .star", path)
	}
}

// Load reads and validates a project file.
func Load(ctx context.Context, path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	format, err := FormatOf(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	p, err := Parse(ctx, data, format, abs)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse decodes project source without validating it. filename is used for
// error positions and to resolve relative directories.
func Parse(ctx context.Context, data []byte, format Format, filename string) (*Project, error) {
	var (
		p   *Project
		err error
	)
	switch format {
	case FormatYAML:
		p, err = parseYAML(data, filename)
	case FormatCUE:
		p, err = NewCUEParser().Parse(data, filename)
	case FormatStarlark:
		p, err = NewStarlarkEvaluator(0).Evaluate(ctx, filename, data, filepath.Dir(filename))
	default:
		err = fmt.Errorf("unsupported project format %q", format)
	}
	if err != nil {
		return nil, err
	}
	p.File = filename
	return p, nil
}

func parseYAML(data []byte, filename string) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			errs := make(ValidationErrors, 0, len(typeErr.Errors))
			for _, msg := range typeErr.Errors {
				errs = append(errs, ValidationError{File: filename, Message: msg})
			}
			return nil, errs
		}
		if errors.Is(err, io.EOF) {
			return nil, ValidationErrors{{File: filename, Message: "empty project file"}}
		}
		return nil, ValidationErrors{{File: filename, Message: err.Error()}}
	}
	return &p, nil
}
