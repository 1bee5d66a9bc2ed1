// Package c provides artifact kinds for C projects: source and header roots,
// object files compiled with gcc, static archives built with ar, and linked
// executables.
//
// OFile discovers header dependencies by scanning its C sources for
// `#include "..."` directives, so headers only need to be declared as roots:
//
//	g := engine.NewGraph("src", "build")
//	mainC, _ := g.AddRootNode(c.NewCFile("app/main.c"))
//	_, _ = g.AddRootNode(c.NewHFile("app/util.h"))
//	mainO, _ := g.AddNode(c.NewOFile("app/main.o", nil, []string{"-Wall"}))
//	app, _ := g.AddNode(c.NewXFile("app/app"))
//	_ = g.AddEdge(mainC, mainO)
//	_ = g.AddEdge(mainO, app)
//
// Build actions shell out through package command, so every node leaves its
// compiler output in <sandbox>/logs.
package c
