// Package config loads yamake project files and turns them into engine
// graphs.
//
// # Formats
//
// A project is declared in one of three syntaxes, chosen by extension:
//
//   - .yml, .yaml: plain YAML decoded with gopkg.in/yaml.v3. Unknown fields
//     are rejected.
//   - .cue: CUE, unified with a closed #Project schema. The project is the
//     top-level "project" value when present, else the whole file.
//   - .star: a Starlark script calling project(), node() and edge(), with
//     glob() to enumerate sources.
//
// The three forms below describe the same project:
//
//	# yamake.yml
//	name: hello
//	src_dir: src
//	sandbox: build
//	nodes:
//	  - {kind: CFile, path: main.c, root: true}
//	  - {kind: OFile, path: main.o}
//	  - {kind: XFile, path: hello}
//	edges:
//	  - {from: main.c, to: main.o}
//	  - {from: main.o, to: hello}
//
//	// yamake.cue
//	project: {
//	    name: "hello", src_dir: "src", sandbox: "build"
//	    nodes: [
//	        {kind: "CFile", path: "main.c", root: true},
//	        {kind: "OFile", path: "main.o"},
//	        {kind: "XFile", path: "hello"},
//	    ]
//	    edges: [{from: "main.c", to: "main.o"}, {from: "main.o", to: "hello"}]
//	}
//
//	# yamake.star
//	project(name = "hello", src_dir = "src", sandbox = "build")
//	c = node("CFile", "main.c", root = True)
//	o = node("OFile", "main.o")
//	edge(c, o)
//	edge(o, node("XFile", "hello"))
//
// # Validation
//
// Validate applies go-playground/validator struct tags and checks the graph:
// duplicate or unclean paths, unknown kinds, edges to unknown paths and
// explicit edges into root nodes. Every problem is reported in a single
// ValidationErrors value.
//
// # Building
//
// Project.Build resolves SrcDir and Sandbox against the project file's
// directory and creates the nodes through the Registry.
package config
