// Package testutil provides shared helpers for architecture tests so that
// individual packages can pin their import boundaries close to the code they
// protect instead of relying on a single central sweep.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency resolves the full dependency closure of pattern
// (e.g. "./..." or ".") through `go list -deps` and fails the test when any
// resolved package path matches the forbidden predicate. The closure includes
// the listed packages themselves, so predicates must not match the package
// under test.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	violations, out, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, string(out))
	}
	failIfTransitive(t, reason, violations)
}

// AssertNoDirectImports parses every non-test .go file directly inside dir
// (typically "." from within the guarded package) and fails when an import
// path matches the forbidden predicate. Subdirectories and build tags are not
// considered.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	violations, err := directViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfDirect(t, reason, violations)
}

// DomainImportForbidden matches import paths that resolve to a pkg/domain
// package, including module paths carrying a version suffix.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches import paths that cross an internal package
// boundary.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveViolations(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var violations []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if forbidden(line) {
			violations = append(violations, line)
		}
	}
	return violations, out, nil
}

func directViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var violations []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				violations = append(violations, path+" (in "+name+")")
			}
		}
	}
	return violations, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitive(t fatalLogger, reason string, violations []string) {
	if len(violations) > 0 {
		t.Fatalf("forbidden transitive dependency (%s):\n%s", reason, strings.Join(violations, "\n"))
	}
}

func failIfDirect(t fatalLogger, reason string, violations []string) {
	if len(violations) > 0 {
		t.Fatalf("forbidden direct import (%s):\n%s", reason, strings.Join(violations, "\n"))
	}
}
