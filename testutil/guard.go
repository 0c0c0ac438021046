// Package testutil provides dependency guards for architecture tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ImportPredicate reports whether an import path is forbidden.
type ImportPredicate func(path string) bool

// InternalImport matches any path below an internal/ directory.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/")
}

// ThirdPartyImport matches paths whose first element carries a dot. Standard
// library paths never do.
func ThirdPartyImport(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// Under matches each root and anything below it.
func Under(roots ...string) ImportPredicate {
	return func(path string) bool {
		for _, root := range roots {
			if path == root || strings.HasPrefix(path, root+"/") {
				return true
			}
		}
		return false
	}
}

// Any matches when one of preds does.
func Any(preds ...ImportPredicate) ImportPredicate {
	return func(path string) bool {
		for _, pred := range preds {
			if pred(path) {
				return true
			}
		}
		return false
	}
}

// AssertNoDirectImports fails if a non-test .go file in dir imports a
// forbidden path. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, "direct import", reason, viols)
}

// AssertNoTransitiveDependency loads pattern with its full dependency graph
// and fails if any reachable package is forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "transitive dependency", reason, viols)
}

func transitiveViolations(pattern string, forbidden ImportPredicate) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	packages.Visit(roots, func(pkg *packages.Package) bool {
		if forbidden(pkg.PkgPath) {
			seen[pkg.PkgPath] = struct{}{}
		}
		return true
	}, nil)
	viols := make([]string, 0, len(seen))
	for path := range seen {
		viols = append(viols, path)
	}
	sort.Strings(viols)
	return viols, nil
}

func directImportViolations(dir string, forbidden ImportPredicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
