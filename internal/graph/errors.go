package graph

import "strings"

// CycleDetectedError carries the full offending cycle, in order, so
// diagnostics can name every site involved (spec.md §4.1, §7).
type CycleDetectedError struct {
	Path []string
}

func (e *CycleDetectedError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}
