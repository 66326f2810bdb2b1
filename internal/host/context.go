package host

import (
	"github.com/kithinjibrian/pod/internal/ast"
	"github.com/kithinjibrian/pod/internal/graph"
)

// BuildContext assembles the "context" object spec.md §4.3 says every macro
// invocation receives, as a map of closures and handles rather than a
// custom struct — yaegi can call arbitrary func values and native Go
// values' methods without needing a generated symbol table for our own
// package types, whereas exporting a bespoke struct type into the
// interpreter's symbol table would. Each capability spec.md lists is
// represented as one map entry:
//
//   - "file": the call-site's source file.
//   - "callSite": the call-site's AST node (an *ast.Node, not printed text),
//     per spec.md §4.3's "the call-site AST node and its source file".
//   - "factory": an *ast.Factory, spec.md §4.3's "an AST factory", so a
//     macro can build new nodes rather than only return ones it was handed.
//   - "graph": the Expander's *graph.Graph handle, spec.md §4.3's "the
//     graph handle" — a genuine Go value, so a hosted macro can call its
//     exported methods (Get, GetResult, CreateKey, ...) directly.
//   - "error": spec.md's error(message) function; it panics with an
//     *ExecutionError, which Invoke recovers and turns into the macro's
//     reported error.
//   - "storeAdd"/"storeGet": the shared process-wide Store.
//   - "checker": the "deferred program/checker accessor" — this
//     implementation has no static type checker, so it is a documented
//     no-op that always returns nil.
func BuildContext(file string, callSite *ast.Node, g *graph.Graph, store *Store) map[string]any {
	return map[string]any{
		"file":     file,
		"callSite": callSite,
		"factory":  ast.NewFactory(),
		"graph":    g,
		"error": func(message string) {
			panic(&ExecutionError{Cause: errorString(message)})
		},
		"storeAdd": func(key string, value any) {
			store.Add(key, value)
		},
		"storeGet": func(key string) []any {
			return store.Get(key)
		},
		"checker": func() any {
			return nil
		},
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
