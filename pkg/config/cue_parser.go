package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// projectSchema constrains CUE project files. Definitions are closed, so
// unknown fields are reported.
const projectSchema = `
#Node: {
	kind:           string & !=""
	path:           string & !=""
	root?:          bool
	flags?:         [...string]
	include_paths?: [...string]
	libs?:          [...string]
	output?:        string
	gen_dir?:       string
	only?:          string
	tool?:          string
}

#Edge: {
	from: string & !=""
	to:   string & !=""
}

#Project: {
	name:            string & !=""
	src_dir:         string & !=""
	sandbox:         string & !=""
	workers?:        int & >=0
	root_policy?:    "declared" | "no-incoming"
	max_iterations?: int & >=0
	nodes: [...#Node]
	edges?: [...#Edge]
}
`

// CUEParser decodes CUE project files.
type CUEParser struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewCUEParser creates a parser with the project schema compiled.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	schema := ctx.CompileString(projectSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("invalid built-in project schema: %v", err))
	}
	return &CUEParser{
		ctx:    ctx,
		schema: schema.LookupPath(cue.ParsePath("#Project")),
	}
}

// Parse compiles CUE source and decodes the project it describes. The
// project is the top-level "project" field when present, else the whole
// file.
func (cp *CUEParser) Parse(data []byte, filename string) (*Project, error) {
	val := cp.ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	if pv := val.LookupPath(cue.ParsePath("project")); pv.Exists() {
		val = pv
	}

	unified := cp.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	var p Project
	if err := unified.Decode(&p); err != nil {
		return nil, ValidationErrors{{File: filename, Message: fmt.Sprintf("failed to decode project: %v", err)}}
	}
	return &p, nil
}

// convertCUEErrors flattens CUE errors into ValidationErrors with positions.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	return validationErrors
}
