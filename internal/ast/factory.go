package ast

import "strconv"

// Factory builds Nodes. It exists as a named type (rather than bare
// constructor functions) because the macro context hands a Factory handle to
// every invoked macro, per spec.md §4.3.
type Factory struct{}

// NewFactory returns a Factory. It carries no state; a value type would do,
// but macros receive it as *Factory so future state (e.g. a position
// allocator) can be added without changing the macro signature.
func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Identifier(name string) *Node {
	return &Node{Kind: KindIdentifier, Name: name}
}

func (f *Factory) String(s string) *Node {
	return &Node{Kind: KindString, Str: s}
}

func (f *Factory) Number(n float64) *Node {
	return &Node{Kind: KindNumber, Num: n, Raw: strconv.FormatFloat(n, 'g', -1, 64)}
}

func (f *Factory) NumberRaw(n float64, raw string) *Node {
	return &Node{Kind: KindNumber, Num: n, Raw: raw}
}

func (f *Factory) Boolean(b bool) *Node {
	return &Node{Kind: KindBoolean, Bool: b}
}

func (f *Factory) Null() *Node      { return &Node{Kind: KindNull} }
func (f *Factory) Undefined() *Node { return &Node{Kind: KindUndefined} }

func (f *Factory) Array(elements ...*Node) *Node {
	return &Node{Kind: KindArray, Elements: elements}
}

func (f *Factory) Object(props ...*Property) *Node {
	return &Node{Kind: KindObject, Props: props}
}

func (f *Factory) Property(key *Node, value *Node) *Property {
	return &Property{Key: key, Value: value}
}

func (f *Factory) ShorthandProperty(name string) *Property {
	id := f.Identifier(name)
	return &Property{Key: id, Value: id, Shorthand: true}
}

func (f *Factory) SpreadProperty(value *Node) *Property {
	return &Property{Value: value, Spread: true}
}

func (f *Factory) Spread(arg *Node) *Node {
	return &Node{Kind: KindSpread, Arg: arg}
}

func (f *Factory) Unary(op string, operand *Node, prefix bool) *Node {
	return &Node{Kind: KindUnary, Op: op, Operand: operand, Prefix: prefix}
}

func (f *Factory) Binary(op string, left, right *Node) *Node {
	return &Node{Kind: KindBinary, Op: op, Left: left, Right: right}
}

func (f *Factory) Logical(op string, left, right *Node) *Node {
	return &Node{Kind: KindLogical, Op: op, Left: left, Right: right}
}

func (f *Factory) Conditional(test, cons, alt *Node) *Node {
	return &Node{Kind: KindConditional, Test: test, Consequent: cons, Alternate: alt}
}

func (f *Factory) Paren(inner *Node) *Node {
	return &Node{Kind: KindParenthesized, Inner: inner}
}

func (f *Factory) Member(object, property *Node, computed bool) *Node {
	return &Node{Kind: KindMember, Object: object, Property: property, Computed: computed}
}

func (f *Factory) Call(callee *Node, args ...*Node) *Node {
	return &Node{Kind: KindCall, Callee: callee, Args: args}
}

func (f *Factory) Template(quasis []string, exprs []*Node) *Node {
	return &Node{Kind: KindTemplate, Quasis: quasis, Exprs: exprs}
}

// Raw wraps verbatim source text that the expander did not need to
// understand (e.g. an argument expression form outside the supported
// grammar that nonetheless needs to survive a splice unchanged).
func (f *Factory) Raw(text string) *Node {
	return &Node{Kind: KindRaw, Raw: text}
}
