package c

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openfroyo/yamake/pkg/engine"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestOFile_Scan(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		includePaths []string
		preds        []engine.Node
		wantComplete bool
		wantFound    []string
	}{
		{
			name: "direct include reported verbatim",
			files: map[string]string{
				"project_C/add.c": "#include \"project_C/add.h\"\nint add(int a, int b) { return a + b; }\n",
				"project_C/add.h": "int add(int a, int b);\n",
			},
			preds:        []engine.Node{NewCFile("project_C/add.c")},
			wantComplete: true,
			wantFound:    []string{"project_C/add.h"},
		},
		{
			name: "recursive includes visited once",
			files: map[string]string{
				"p/main.c":  "#include \"p/a.h\"\n  #include \"p/b.h\"\n",
				"p/a.h":     "#include \"p/types.h\"\n",
				"p/b.h":     "#include \"p/types.h\"\n",
				"p/types.h": "typedef int num;\n",
			},
			preds:        []engine.Node{NewCFile("p/main.c")},
			wantComplete: true,
			wantFound:    []string{"p/a.h", "p/types.h", "p/b.h"},
		},
		{
			name: "missing header makes scan incomplete",
			files: map[string]string{
				"p/main.c": "#include \"p/generated.h\"\n",
			},
			preds:        []engine.Node{NewCFile("p/main.c")},
			wantComplete: false,
			wantFound:    []string{"p/generated.h"},
		},
		{
			name: "relative include path",
			files: map[string]string{
				"p/main.c":         "#include \"util.h\"\n",
				"p/include/util.h": "void util(void);\n",
			},
			includePaths: []string{"p/include"},
			preds:        []engine.Node{NewCFile("p/main.c")},
			wantComplete: true,
			wantFound:    []string{"p/include/util.h"},
		},
		{
			name: "system includes and headers are not scanned",
			files: map[string]string{
				"p/main.c": "#include <stdio.h>\n",
				"p/x.h":    "#include \"p/never.h\"\n",
			},
			preds:        []engine.Node{NewCFile("p/main.c"), NewHFile("p/x.h")},
			wantComplete: true,
			wantFound:    nil,
		},
		{
			name:         "missing source makes scan incomplete",
			preds:        []engine.Node{NewCFile("p/absent.c")},
			wantComplete: false,
			wantFound:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sandbox := t.TempDir()
			for name, content := range tt.files {
				write(t, sandbox, name, content)
			}

			o := NewOFile("p/main.o", tt.includePaths, nil)
			complete, found := o.Scan(context.Background(), sandbox, tt.preds)

			if complete != tt.wantComplete {
				t.Errorf("Expected complete=%v, got %v", tt.wantComplete, complete)
			}
			if !reflect.DeepEqual(found, tt.wantFound) {
				t.Errorf("Expected %v, got %v", tt.wantFound, found)
			}
		})
	}
}

func TestOFile_Scan_AbsoluteIncludePath(t *testing.T) {
	sandbox := t.TempDir()
	external := t.TempDir()
	write(t, sandbox, "p/main.c", "#include \"ext.h\"\n")
	write(t, external, "ext.h", "#include \"nested.h\"\n")
	write(t, external, "nested.h", "\n")

	o := NewOFile("p/main.o", []string{external}, nil)
	complete, found := o.Scan(context.Background(), sandbox, []engine.Node{NewCFile("p/main.c")})

	if !complete {
		t.Error("Expected scan to be complete")
	}
	want := []string{filepath.Join(external, "ext.h"), filepath.Join(external, "nested.h")}
	if !reflect.DeepEqual(found, want) {
		t.Errorf("Expected %v, got %v", want, found)
	}
}

func TestSourceFiles_Build(t *testing.T) {
	sandbox := t.TempDir()
	write(t, sandbox, "gen/lang.c", "int x;\n")

	if !NewCFile("gen/lang.c").Build(context.Background(), sandbox, nil) {
		t.Error("Expected present C file to build")
	}
	if NewHFile("gen/lang.h").Build(context.Background(), sandbox, nil) {
		t.Error("Expected missing header to fail")
	}
}
