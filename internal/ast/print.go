package ast

import (
	"strconv"
	"strings"
)

// Print renders n back to source text. It is used by the rewrite phase to
// turn a computed macro result (or an inline call's replacement) into the
// text spliced into the original source; it is not a general pretty-printer
// and does not reproduce any original formatting: the nodes printed here are
// built by the factory or by FromValue, never taken from parsed source.
func Print(n *Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	if n == nil {
		b.WriteString("undefined")
		return
	}
	switch n.Kind {
	case KindIdentifier:
		b.WriteString(n.Name)
	case KindString:
		b.WriteString(strconv.Quote(n.Str))
	case KindNumber:
		if n.Raw != "" {
			b.WriteString(n.Raw)
		} else {
			b.WriteString(strconv.FormatFloat(n.Num, 'g', -1, 64))
		}
	case KindBoolean:
		if n.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNull:
		b.WriteString("null")
	case KindUndefined:
		b.WriteString("undefined")
	case KindTemplate:
		b.WriteByte('`')
		for i, q := range n.Quasis {
			b.WriteString(q)
			if i < len(n.Exprs) {
				b.WriteString("${")
				writeNode(b, n.Exprs[i])
				b.WriteByte('}')
			}
		}
		b.WriteByte('`')
	case KindArray:
		b.WriteByte('[')
		for i, el := range n.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			writeNode(b, el)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteString("{ ")
		for i, p := range n.Props {
			if i > 0 {
				b.WriteString(", ")
			}
			writeProperty(b, p)
		}
		b.WriteString(" }")
	case KindSpread:
		b.WriteString("...")
		writeNode(b, n.Arg)
	case KindUnary:
		if n.Prefix {
			b.WriteString(n.Op)
			writeNode(b, n.Operand)
		} else {
			writeNode(b, n.Operand)
			b.WriteString(n.Op)
		}
	case KindBinary, KindLogical:
		writeNode(b, n.Left)
		b.WriteByte(' ')
		b.WriteString(n.Op)
		b.WriteByte(' ')
		writeNode(b, n.Right)
	case KindConditional:
		writeNode(b, n.Test)
		b.WriteString(" ? ")
		writeNode(b, n.Consequent)
		b.WriteString(" : ")
		writeNode(b, n.Alternate)
	case KindParenthesized:
		b.WriteByte('(')
		writeNode(b, n.Inner)
		b.WriteByte(')')
	case KindMember:
		writeNode(b, n.Object)
		if n.Computed {
			b.WriteByte('[')
			writeNode(b, n.Property)
			b.WriteByte(']')
		} else {
			b.WriteByte('.')
			writeNode(b, n.Property)
		}
	case KindCall:
		writeNode(b, n.Callee)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeNode(b, a)
		}
		b.WriteByte(')')
	case KindRaw:
		b.WriteString(n.Raw)
	}
}

func writeProperty(b *strings.Builder, p *Property) {
	if p.Spread {
		b.WriteString("...")
		writeNode(b, p.Value)
		return
	}
	if p.Shorthand {
		writeNode(b, p.Key)
		return
	}
	if p.Computed {
		b.WriteByte('[')
		writeNode(b, p.Key)
		b.WriteByte(']')
	} else {
		writeNode(b, p.Key)
	}
	b.WriteString(": ")
	writeNode(b, p.Value)
}
