package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// importsOf parses the non-test Go files in dir and returns their imports
// keyed by file name.
func importsOf(t *testing.T, dir string) map[string][]string {
	t.Helper()
	fset := token.NewFileSet()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}

	out := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}
		for _, imp := range f.Imports {
			out[path] = append(out[path], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return out
}

// TestCoreImportsOnlyStdlib verifies pkg/core has no dependencies outside
// the standard library.
func TestCoreImportsOnlyStdlib(t *testing.T) {
	for file, imports := range importsOf(t, ".") {
		for _, imp := range imports {
			// Stdlib paths have no dot in their first element.
			if strings.Contains(strings.Split(imp, "/")[0], ".") {
				t.Errorf("%s imports non-stdlib package: %s", file, imp)
			}
		}
	}
}

// TestPublicPackagesDoNotImportInternal verifies the pkg/ tree stays usable
// without the engine.
func TestPublicPackagesDoNotImportInternal(t *testing.T) {
	for _, dir := range []string{".", "../document", "../lint"} {
		for file, imports := range importsOf(t, dir) {
			for _, imp := range imports {
				if strings.Contains(imp, "/internal/") {
					t.Errorf("%s imports internal package: %s", file, imp)
				}
			}
		}
	}
}
