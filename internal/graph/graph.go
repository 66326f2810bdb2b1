// Package graph implements the Macro Graph (spec.md §4.1): a mapping from
// site-key to macro Site, plus the project-root path used to normalize
// keys. It is an explicit value owned by the outer build coordinator
// (spec.md §9 Design Notes prefer this over a module-scoped singleton), with
// a short-held mutex covering every mutating operation so a future
// parallel-per-file build can share one Graph safely (spec.md §5).
package graph

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kithinjibrian/pod/internal/ast"
)

// Graph is the process-wide (or per-build) store of macro sites.
type Graph struct {
	mu          sync.Mutex
	root        string
	sites       map[string]*Site
	filesToKeys map[string][]string
}

// New creates an empty Graph rooted at projectRoot.
func New(projectRoot string) *Graph {
	return &Graph{
		root:        projectRoot,
		sites:       make(map[string]*Site),
		filesToKeys: make(map[string][]string),
	}
}

// Reset clears every tracked site, for process/test-boundary reuse (spec.md
// §3 Lifecycles, §4.3 Lifetime).
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sites = make(map[string]*Site)
	g.filesToKeys = make(map[string][]string)
}

// CreateKey normalizes file against the project root using forward-slash
// separators and concatenates it with binding (spec.md §4.1).
func (g *Graph) CreateKey(file, binding string) string {
	rel := file
	if g.root != "" {
		if r, err := filepath.Rel(g.root, file); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	return rel + ":" + binding
}

// AddSite registers key if it does not already exist. Re-adding the same
// key is a no-op (spec.md §4.1: "Idempotent").
func (g *Graph) AddSite(key, binding, file string, call CallNode) *Site {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sites[key]; ok {
		return s
	}
	s := newSite(key, file, binding, call)
	s.state = StatePending
	g.sites[key] = s
	g.filesToKeys[file] = append(g.filesToKeys[file], key)
	return s
}

// Get returns the site for key, if any.
func (g *Graph) Get(key string) (*Site, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sites[key]
	return s, ok
}

// AddDependency records that the site at fromKey depends on toKey. fromKey
// must already exist (spec.md §4.1: "Required only after from exists").
func (g *Graph) AddDependency(fromKey, toKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	from, ok := g.sites[fromKey]
	if !ok {
		return fmt.Errorf("graph: AddDependency: site %q does not exist", fromKey)
	}
	if _, ok := g.sites[toKey]; !ok {
		return fmt.Errorf("graph: AddDependency: site %q does not exist", toKey)
	}
	from.deps[toKey] = struct{}{}
	return nil
}

// SetResult transitions key to StateComputed and stores its result (spec.md
// §4.1).
func (g *Graph) SetResult(key string, node *ast.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sites[key]
	if !ok {
		return fmt.Errorf("graph: SetResult: site %q does not exist", key)
	}
	val, err := ast.ToValue(node)
	if err != nil {
		// Not every computed result is plain-data-shaped (e.g. it may be a
		// call expression left for a downstream transform); store the node
		// without a value-form rather than failing the whole build.
		s.result = node
		s.state = StateComputed
		return nil
	}
	s.result = node
	s.value = val
	s.hasVal = true
	s.state = StateComputed
	return nil
}

// GetResult returns the stored AST node for key, if computed.
func (g *Graph) GetResult(key string) (*ast.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sites[key]
	if !ok || s.state != StateComputed {
		return nil, false
	}
	return s.result, true
}

// SitesIn returns every site belonging to file, enabling per-file
// re-processing (spec.md §4.1).
func (g *Graph) SitesIn(file string) []*Site {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := g.filesToKeys[file]
	out := make([]*Site, 0, len(keys))
	for _, k := range keys {
		if s, ok := g.sites[k]; ok {
			out = append(out, s)
		}
	}
	return out
}

// mark is the three-color DFS state used by TopologicalSort.
type mark int

const (
	markUnvisited mark = iota
	markInProgress
	markDone
)

// TopologicalSort returns every site key in dependency order (leaves
// first). It fails with *CycleDetectedError carrying the full offending
// cycle when a back-edge is encountered (spec.md §4.1). Ties (nodes with no
// dependency relation) may be returned in any order.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	marks := make(map[string]mark, len(g.sites))
	order := make([]string, 0, len(g.sites))
	var stack []string

	var visit func(key string) error
	visit = func(key string) error {
		switch marks[key] {
		case markDone:
			return nil
		case markInProgress:
			cycle := append(append([]string{}, stack...), key)
			start := 0
			for i, k := range cycle {
				if k == key {
					start = i
					break
				}
			}
			return &CycleDetectedError{Path: append([]string{}, cycle[start:]...)}
		}

		marks[key] = markInProgress
		stack = append(stack, key)

		site, ok := g.sites[key]
		if ok {
			deps := make([]string, 0, len(site.deps))
			for d := range site.deps {
				deps = append(deps, d)
			}
			for _, d := range deps {
				if err := visit(d); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		marks[key] = markDone
		order = append(order, key)
		return nil
	}

	keys := make([]string, 0, len(g.sites))
	for k := range g.sites {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if marks[k] == markUnvisited {
			if err := visit(k); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// namePart is a small helper used by diagnostics that want just the binding
// name out of a "file:binding" key.
func namePart(key string) string {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}
