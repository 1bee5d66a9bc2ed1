package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the project against the default registry.
func (p *Project) Validate() error {
	return p.ValidateWith(DefaultRegistry)
}

// ValidateWith checks struct constraints and graph consistency. It returns
// ValidationErrors listing every problem found.
func (p *Project) ValidateWith(reg *Registry) error {
	var errs ValidationErrors

	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, ValidationError{
					File:    p.File,
					Path:    fe.Namespace(),
					Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
		} else {
			errs = append(errs, ValidationError{File: p.File, Message: err.Error()})
		}
	}

	kinds := make(map[string]string, len(p.Nodes))
	roots := make(map[string]bool, len(p.Nodes))
	for i, n := range p.Nodes {
		at := fmt.Sprintf("nodes[%d]", i)
		if n.Path != "" && (!filepath.IsLocal(n.Path) || path.Clean(n.Path) != n.Path) {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("path %q must be clean and relative", n.Path)})
		}
		if _, dup := kinds[n.Path]; dup {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("duplicate path %q", n.Path)})
		}
		kinds[n.Path] = n.Kind
		roots[n.Path] = n.Root
		if n.Kind != "" && !reg.Has(n.Kind) {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("unknown kind %q", n.Kind)})
		}
	}

	for i, e := range p.Edges {
		at := fmt.Sprintf("edges[%d]", i)
		if _, ok := kinds[e.From]; !ok && e.From != "" {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("unknown edge source %q", e.From)})
		}
		if _, ok := kinds[e.To]; !ok && e.To != "" {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("unknown edge target %q", e.To)})
		}
		if e.From == e.To && e.From != "" {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("%q cannot depend on itself", e.From)})
		}
		if roots[e.To] {
			errs = append(errs, ValidationError{File: p.File, Path: at, Message: fmt.Sprintf("root node %q cannot have explicit dependencies", e.To)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
