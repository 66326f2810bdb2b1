package macro

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// BoundSite is a macro call that is the direct initializer of a variable
// declaration (spec.md §4.2 Phase 1: "whenever a variable declaration's
// initializer is a direct call to an identifier whose text ends with $").
type BoundSite struct {
	Binding     string
	Kind        string // "const", "let", or "var"
	Call        *sitter.Node
	Callee      string
	ArgsNode    *sitter.Node
	ValueStart  uint32 // byte range of the initializer, replaced in Phase 5
	ValueEnd    uint32
}

// InlineSite is a macro call used as an expression in its own right, not
// bound to a variable (spec.md §4.2 Phase 5: "a direct call to an
// identifier ending in $ that is NOT bound to a variable").
type InlineSite struct {
	Call     *sitter.Node
	Callee   string
	ArgsNode *sitter.Node
	Start    uint32
	End      uint32
}

// Discover walks program and returns every macro call site reachable from
// it, recursing into nested scopes (spec.md §4.2 Phase 1: "Walk recursively
// into nested scopes").
func Discover(program *sitter.Node, src []byte) ([]BoundSite, []InlineSite) {
	var bound []BoundSite
	var inline []InlineSite
	claimed := make(map[uint32]bool)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "lexical_declaration":
			walkDeclaration(n, src, declKeyword(n), &bound, claimed)
		case "variable_declaration":
			walkDeclaration(n, src, "var", &bound, claimed)
		}

		if n.Type() == "call_expression" && !claimed[n.StartByte()] {
			if callee, ok := macroCallee(n, src); ok {
				inline = append(inline, InlineSite{
					Call:     n,
					Callee:   callee,
					ArgsNode: n.ChildByFieldName("arguments"),
					Start:    n.StartByte(),
					End:      n.EndByte(),
				})
			}
		}
		if n.Type() == "tagged_template_expression" && !claimed[n.StartByte()] {
			if callee, ok := macroCalleeTag(n, src); ok {
				if tmpl := taggedTemplateNode(n); tmpl != nil {
					inline = append(inline, InlineSite{
						Call:     n,
						Callee:   callee,
						ArgsNode: tmpl,
						Start:    n.StartByte(),
						End:      n.EndByte(),
					})
				}
			}
		}

		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(program)
	return bound, inline
}

func walkDeclaration(declNode *sitter.Node, src []byte, keyword string, bound *[]BoundSite, claimed map[uint32]bool) {
	count := int(declNode.NamedChildCount())
	for i := 0; i < count; i++ {
		d := declNode.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		valueNode := d.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}

		var callee string
		var argsNode *sitter.Node
		switch valueNode.Type() {
		case "call_expression":
			var ok bool
			callee, ok = macroCallee(valueNode, src)
			if !ok {
				continue
			}
			argsNode = valueNode.ChildByFieldName("arguments")
		case "tagged_template_expression":
			var ok bool
			callee, ok = macroCalleeTag(valueNode, src)
			if !ok {
				continue
			}
			argsNode = taggedTemplateNode(valueNode)
			if argsNode == nil {
				continue
			}
		default:
			continue
		}

		claimed[valueNode.StartByte()] = true
		*bound = append(*bound, BoundSite{
			Binding:    nodeText(src, nameNode),
			Kind:       keyword,
			Call:       valueNode,
			Callee:     callee,
			ArgsNode:   argsNode,
			ValueStart: valueNode.StartByte(),
			ValueEnd:   valueNode.EndByte(),
		})
	}
}

// macroCallee reports the callee's name and whether call is a direct call
// to an identifier ending in the macro sigil "$" (spec.md §6).
func macroCallee(call *sitter.Node, src []byte) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return "", false
	}
	name := nodeText(src, fn)
	if !strings.HasSuffix(name, "$") {
		return "", false
	}
	return name, true
}

// macroCalleeTag reports the tag's name and whether call is a tagged
// template invocation of an identifier ending in the macro sigil "$"
// (spec.md §6: the `` name$`...` `` form).
func macroCalleeTag(call *sitter.Node, src []byte) (string, bool) {
	tag := call.ChildByFieldName("tag")
	if tag == nil || tag.Type() != "identifier" {
		return "", false
	}
	name := nodeText(src, tag)
	if !strings.HasSuffix(name, "$") {
		return "", false
	}
	return name, true
}

// taggedTemplateNode returns the template_string node a tagged template
// expression wraps, preferring the "template" field and falling back to a
// positional scan since grammar revisions differ on whether the template is
// a named field.
func taggedTemplateNode(call *sitter.Node) *sitter.Node {
	if t := call.ChildByFieldName("template"); t != nil {
		return t
	}
	count := int(call.NamedChildCount())
	for i := count - 1; i >= 0; i-- {
		if c := call.NamedChild(i); c.Type() == "template_string" {
			return c
		}
	}
	return nil
}

// ArgList returns the macro call's argument expression nodes, in source
// order. A tagged template invocation has exactly one argument — the
// template literal itself, which argsNode already names directly, rather
// than an "arguments" node to destructure.
func ArgList(argsNode *sitter.Node) []*sitter.Node {
	if argsNode == nil {
		return nil
	}
	if argsNode.Type() == "template_string" {
		return []*sitter.Node{argsNode}
	}
	n := int(argsNode.NamedChildCount())
	out := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, argsNode.NamedChild(i))
	}
	return out
}
