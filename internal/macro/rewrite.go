package macro

import (
	"sort"
	"strings"

	"github.com/kithinjibrian/pod/internal/ast"
)

// splice is one byte range of src to replace with text (spec.md §4.2 Phase
// 5). Ranges are computed from the original, unmodified tree, so Phase 5
// applies every splice in one forward pass over the same coordinate system.
type splice struct {
	start uint32
	end   uint32
	text  string
}

// rewrite replaces every splice's byte range in src with its text. Discover
// can report an inline call nested inside a bound site's initializer; when
// two splices overlap, the one that starts first wins and the nested one is
// skipped. Walking src once in
// ascending order means only the replaced spans change — every other byte
// is copied verbatim, which is exactly what the Fast-path and
// Directive-preservation invariants require.
func rewrite(src []byte, splices []splice) string {
	sorted := append([]splice{}, splices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var b strings.Builder
	b.Grow(len(src))
	cursor := uint32(0)
	for _, s := range sorted {
		if s.start < cursor {
			continue // defensive: skip an overlapping splice rather than corrupt output
		}
		b.Write(src[cursor:s.start])
		b.WriteString(s.text)
		cursor = s.end
	}
	b.Write(src[cursor:])
	return b.String()
}

// resultText renders a computed AST node back to source text for splicing.
func resultText(n *ast.Node) string {
	return ast.Print(n)
}
