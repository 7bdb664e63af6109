package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoInternalImportsInDomain keeps the domain layer at the bottom of the
// dependency graph: engine, stores and adapters import these types, never the
// reverse. The scan is a plain string pass over import lines, so this package
// never imports the shared guard helpers that sit above it.
func TestNoInternalImportsInDomain(t *testing.T) {
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read package dir: %v", err)
	}

	var violations []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		data, err := os.ReadFile(filepath.Clean(name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		for _, path := range importLines(string(data)) {
			if strings.Contains(path, "/internal/") {
				violations = append(violations, path+" (in "+name+")")
			}
		}
	}

	if len(violations) > 0 {
		t.Fatalf("domain files must not import internal packages:\n%s", strings.Join(violations, "\n"))
	}
}

// importLines extracts quoted import paths from source text. It understands
// single-line imports and grouped import blocks, which is all the files in
// this package use.
func importLines(src string) []string {
	var paths []string
	inBlock := false
	for _, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case inBlock && line == ")":
			inBlock = false
		case inBlock:
			if p := quotedPath(line); p != "" {
				paths = append(paths, p)
			}
		case strings.HasPrefix(line, "import ("):
			inBlock = true
		case strings.HasPrefix(line, "import "):
			if p := quotedPath(line); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func quotedPath(line string) string {
	start := strings.Index(line, `"`)
	if start < 0 {
		return ""
	}
	rest := line[start+1:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
