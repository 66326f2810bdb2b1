package graph

import (
	"github.com/kithinjibrian/pod/internal/ast"
)

// State is a Site's position in its undiscovered -> pending -> computed
// lifecycle (spec.md §3).
type State int

const (
	StateUndiscovered State = iota
	StatePending
	StateComputed
)

// CallNode is the minimal shape the Graph needs from whatever concrete call
// expression the Expander discovered; it is satisfied by the tree-sitter
// node wrapper the macro package uses, kept as an interface here so graph
// has no dependency on the parser.
type CallNode interface {
	Text() string
}

// Site is a single tracked macro call, keyed by file:binding (spec.md §3).
// Its node is set once at construction and never mutated; its dependency
// set and result transition exactly once, undiscovered -> pending ->
// computed.
type Site struct {
	Key     string
	File    string
	Binding string
	Call    CallNode

	state   State
	deps    map[string]struct{}
	result  *ast.Node
	value   ast.Value
	hasVal  bool
}

func newSite(key, file, binding string, call CallNode) *Site {
	return &Site{
		Key:     key,
		File:    file,
		Binding: binding,
		Call:    call,
		state:   StateUndiscovered,
		deps:    make(map[string]struct{}),
	}
}

// State reports the site's current lifecycle state.
func (s *Site) State() State { return s.state }

// Dependencies returns the set of keys this site depends on.
func (s *Site) Dependencies() []string {
	out := make([]string, 0, len(s.deps))
	for k := range s.deps {
		out = append(out, k)
	}
	return out
}

// Result returns the computed AST node and value, if any.
func (s *Site) Result() (*ast.Node, ast.Value, bool) {
	return s.result, s.value, s.hasVal
}

// Computed reports whether the site has transitioned to StateComputed.
func (s *Site) Computed() bool { return s.state == StateComputed }
