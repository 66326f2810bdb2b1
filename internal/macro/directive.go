package macro

import sitter "github.com/smacker/go-tree-sitter"

const (
	DirectivePublic      = "use public"
	DirectiveInteractive = "use interactive"
)

// Directive reports a file's opening directive marker, if any (spec.md §3
// File Directive, §6: "A file MAY begin with exactly one of... The first
// non-string-literal statement terminates the directive scan"). Only the
// file's very first statement is eligible — once it is anything other than
// one of the two recognized string literals, the file has no directive.
func Directive(program *sitter.Node, src []byte) string {
	if program == nil || program.NamedChildCount() == 0 {
		return ""
	}
	first := program.NamedChild(0)
	if first.Type() != "expression_statement" {
		return ""
	}
	if first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode.Type() != "string" {
		return ""
	}
	text := unquote(nodeText(src, strNode))
	switch text {
	case DirectivePublic, DirectiveInteractive:
		return text
	default:
		return ""
	}
}
