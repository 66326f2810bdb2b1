// Package host implements the Macro Host Runtime (spec.md §4.3): given a
// module specifier and an export name, it loads, caches, and invokes macro
// definitions in a context isolated from the caller's process state.
//
// The reference implementation runs macro bodies as bundled CommonJS inside
// a V8 isolate. Go has no embeddable V8, but it does have a real
// interpreter for itself — github.com/traefik/yaegi — so macro authors
// write macro bodies as plain Go source files, and the Runtime interprets
// them with a whitelisted stdlib surface, exactly the isolation strategy
// spec.md §9 Design Notes anticipates ("expose macro bodies as
// dynamically-loadable... code... preserves the contract").
package host

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// MacroFunc is the uniform shape every hosted macro definition must satisfy.
// args are the evaluated argument values (plain Go scalars/slices/maps,
// mirroring ast.Value's shape); the return value is converted to an
// *ast.Node by the caller via ast.FromGo — this is this implementation's
// chosen variant of "returns an AST node" (spec.md §3 Macro Definition).
type MacroFunc func(args []any, ctx map[string]any) any

// allowedImports mirrors the teacher's yaegi sandbox whitelist: safe,
// side-effect-free stdlib packages only. No os, os/exec, net, net/http,
// syscall, or unsafe — macros must not be able to reach outside the build.
var allowedImports = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"path":            true,
	"path/filepath":   true,
}

// Runtime caches loaded interpreters and resolved macro functions per
// specifier (spec.md §4.3 Lifetime: "persists across Expander runs within a
// single process; there is no unload").
type Runtime struct {
	interpreters map[string]*interp.Interpreter
	funcs        map[string]map[string]MacroFunc
	readFile     func(path string) ([]byte, error)
}

// NewRuntime returns an empty Runtime. readFile defaults to os.ReadFile;
// tests may override it to avoid touching disk.
func NewRuntime() *Runtime {
	return &Runtime{
		interpreters: make(map[string]*interp.Interpreter),
		funcs:        make(map[string]map[string]MacroFunc),
		readFile:     os.ReadFile,
	}
}

// ClearCache drops cached interpreters. An empty specifier clears
// everything; a non-empty one clears just that module (spec.md §4.3).
func (r *Runtime) ClearCache(specifier string) {
	if specifier == "" {
		r.interpreters = make(map[string]*interp.Interpreter)
		r.funcs = make(map[string]map[string]MacroFunc)
		return
	}
	delete(r.interpreters, specifier)
	delete(r.funcs, specifier)
}

// Load resolves name's macro definition inside the module at specifier
// (specifier is an absolute path to a .go source file, already resolved by
// the Expander against the project's module-resolution root). Only names
// ending in "$", plus the literal "default", are visible — "any other
// export is ignored" (spec.md §3, §6).
func (r *Runtime) Load(specifier, name string) (MacroFunc, error) {
	if name != "default" && !strings.HasSuffix(name, "$") {
		return nil, &NotFoundError{Specifier: specifier, Name: name}
	}

	if fns, ok := r.funcs[specifier]; ok {
		if fn, ok := fns[name]; ok {
			return fn, nil
		}
	}

	i, err := r.interpreterFor(specifier)
	if err != nil {
		return nil, err
	}

	exportedName := name
	if name == "default" {
		exportedName = "Default"
	}

	v, err := i.Eval("macro." + exportedName)
	if err != nil {
		return nil, &NotFoundError{Specifier: specifier, Name: name}
	}

	fn, ok := v.Interface().(func([]any, map[string]any) any)
	if !ok {
		return nil, &LoadError{Specifier: specifier, Cause: fmt.Errorf("export %q has an unsupported signature, expected func([]any, map[string]any) any", name)}
	}

	if r.funcs[specifier] == nil {
		r.funcs[specifier] = make(map[string]MacroFunc)
	}
	r.funcs[specifier][name] = MacroFunc(fn)
	return MacroFunc(fn), nil
}

func (r *Runtime) interpreterFor(specifier string) (*interp.Interpreter, error) {
	if i, ok := r.interpreters[specifier]; ok {
		return i, nil
	}

	src, err := r.readFile(specifier)
	if err != nil {
		return nil, &LoadError{Specifier: specifier, Cause: err}
	}

	wrapped := wrapCode(string(src))
	if err := validateImports(wrapped); err != nil {
		return nil, &LoadError{Specifier: specifier, Cause: err}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &LoadError{Specifier: specifier, Cause: fmt.Errorf("loading stdlib symbols: %w", err)}
	}
	if _, err := i.Eval(wrapped); err != nil {
		return nil, &LoadError{Specifier: specifier, Cause: err}
	}

	r.interpreters[specifier] = i
	return i, nil
}

// wrapCode ensures src declares "package macro", the package name the
// Runtime always looks exports up under.
func wrapCode(src string) string {
	if strings.Contains(src, "package macro") {
		return src
	}
	// Strip any other package clause the author left in place and replace
	// it, rather than prepend a second declaration.
	if idx := strings.Index(src, "package "); idx >= 0 {
		end := strings.IndexByte(src[idx:], '\n')
		if end >= 0 {
			return "package macro\n" + src[idx+end+1:]
		}
	}
	return "package macro\n\n" + src
}

// validateImports rejects anything outside allowedImports, scanning import
// statements textually rather than via a full parse — the same strategy
// the reference sandbox uses, since at this point we only need to reject
// dangerous imports, not understand the source.
func validateImports(src string) error {
	lines := strings.Split(src, "\n")
	inBlock := false
	var forbidden []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg == "" {
				continue
			}
			if alias := strings.Fields(pkg); len(alias) > 1 {
				pkg = strings.Trim(alias[len(alias)-1], `"`)
			}
			if !allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
			pkg = strings.Trim(pkg, `"`)
			if !allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}

	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports in macro module: %v", forbidden)
	}
	return nil
}

// Invoke calls fn with args and hostCtx, racing it against ctx's deadline
// (spec.md §5: macros must not suspend, but the Runtime should be able to
// abort a runaway one). yaegi's evaluation is not preemptible, so this is
// the documented best-effort form of "cooperative interrupt": on
// cancellation Invoke stops waiting and returns an error, but the abandoned
// goroutine may still be running.
func Invoke(ctx context.Context, macroName string, fn MacroFunc, args []any, hostCtx map[string]any) (any, error) {
	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if mErr, ok := r.(*ExecutionError); ok {
					if mErr.Macro == "" {
						mErr.Macro = macroName
					}
					done <- result{err: mErr}
					return
				}
				done <- result{err: &ExecutionError{Macro: macroName, Cause: fmt.Errorf("panic: %v", r)}}
			}
		}()
		done <- result{val: fn(args, hostCtx)}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return nil, &ExecutionError{Macro: macroName, Cause: fmt.Errorf("timed out after %s: %w", time.Since(start), ctx.Err())}
	}
}
