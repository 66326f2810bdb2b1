package macro

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kithinjibrian/pod/internal/ast"
	"github.com/kithinjibrian/pod/internal/graph"
)

// Evaluator resolves macro-argument expressions against a FileSet and
// records the dependency edges a Graph needs for topological execution
// (spec.md §4.2 Phases 2 and 4 share the same three-layer identifier
// resolution; Evaluator is the one place that logic lives).
type Evaluator struct {
	fileSet    *FileSet
	g          *graph.Graph
	discovered map[string]discoveredFile
	siteCalls  map[string]siteCallInfo
}

type discoveredFile struct {
	bound  []BoundSite
	inline []InlineSite
}

// siteCallInfo is what Phase 4 execution needs to actually invoke a site's
// macro: which file it lives in, the callee identifier text (used to look
// up the import binding), and the raw argument list.
type siteCallInfo struct {
	file     string
	callee   string
	argsNode *sitter.Node
}

// NewEvaluator returns an Evaluator over fs and g. g is mutated as sites are
// discovered and dependencies are recorded, so callers share one Evaluator
// (and one Graph) across every file touched by a build.
func NewEvaluator(fs *FileSet, g *graph.Graph) *Evaluator {
	return &Evaluator{
		fileSet:    fs,
		g:          g,
		discovered: make(map[string]discoveredFile),
		siteCalls:  make(map[string]siteCallInfo),
	}
}

// inlineBindingName synthesizes a graph binding name for an inline macro
// call, which has no variable name of its own to key on.
func inlineBindingName(call *sitter.Node) string {
	return fmt.Sprintf("__inline_%d", call.StartByte())
}

// IsInlineKey reports whether key names a synthesized inline-call site
// rather than a real variable binding.
func IsInlineKey(key string) bool {
	idx := lastColon(key)
	if idx < 0 {
		return false
	}
	return len(key) > idx+1 && hasInlinePrefix(key[idx+1:])
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func hasInlinePrefix(s string) bool {
	const prefix = "__inline_"
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// callSiteText adapts a tree-sitter call node to graph.CallNode.
type callSiteText struct {
	node *sitter.Node
	src  []byte
}

func (c callSiteText) Text() string { return nodeText(c.src, c.node) }

// EnsureDiscovered registers file's macro call sites into the graph (if it
// has not already been discovered this run) and probes each site's
// arguments for dependencies. Cross-file const resolution (layer 3) calls
// this on the imported file before looking for the name it needs, so a
// macro site several imports away still gets pulled into the same
// topological sort (spec.md §4.2 Phase 2: "the same resolution is applied
// there").
func (e *Evaluator) EnsureDiscovered(file string) error {
	_, _, err := e.Discovered(file)
	return err
}

// Discovered returns file's macro call sites, discovering and registering
// them into the graph the first time file is seen. Cross-file const
// resolution (layer 3) calls EnsureDiscovered on the imported file before
// looking for the name it needs, so a macro site several imports away still
// gets pulled into the same topological sort (spec.md §4.2 Phase 2: "the
// same resolution is applied there"); the Expander calls Discovered
// directly on the file it is rewriting, to get back the exact site list
// Phase 5 needs.
func (e *Evaluator) Discovered(file string) ([]BoundSite, []InlineSite, error) {
	if d, ok := e.discovered[file]; ok {
		return d.bound, d.inline, nil
	}

	pf, err := e.fileSet.Load(file)
	if err != nil {
		return nil, nil, err
	}

	bound, inline := Discover(pf.Program, pf.Source)
	e.discovered[file] = discoveredFile{bound: bound, inline: inline} // set before probing: import cycles must not loop forever

	for _, site := range bound {
		key := e.g.CreateKey(file, site.Binding)
		e.g.AddSite(key, site.Binding, file, callSiteText{node: site.Call, src: pf.Source})
		e.siteCalls[key] = siteCallInfo{file: file, callee: site.Callee, argsNode: site.ArgsNode}
	}
	for _, site := range inline {
		binding := inlineBindingName(site.Call)
		key := e.g.CreateKey(file, binding)
		e.g.AddSite(key, binding, file, callSiteText{node: site.Call, src: pf.Source})
		e.siteCalls[key] = siteCallInfo{file: file, callee: site.Callee, argsNode: site.ArgsNode}
	}

	for _, site := range bound {
		key := e.g.CreateKey(file, site.Binding)
		for _, arg := range ArgList(site.ArgsNode) {
			e.Probe(file, pf.Source, arg, key)
		}
	}
	for _, site := range inline {
		key := e.g.CreateKey(file, inlineBindingName(site.Call))
		for _, arg := range ArgList(site.ArgsNode) {
			e.Probe(file, pf.Source, arg, key)
		}
	}

	return bound, inline, nil
}

// Probe walks node looking for identifiers that resolve to other macro
// sites, recording a dependency edge from siteKey to each one it finds.
// Errors are swallowed: per spec.md §4.2 Phase 2, identifier resolution
// failure during probing is non-fatal, deferred to Phase 4. Probe still
// visits every sibling subexpression after a failed branch so dependency
// discovery stays complete.
func (e *Evaluator) Probe(file string, src []byte, node *sitter.Node, siteKey string) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier":
		name := nodeText(src, node)
		if name == "undefined" {
			return
		}
		e.probeIdentifier(file, name, siteKey)
		return
	case "call_expression":
		// Not a supported argument form; nothing below it to probe.
		return
	}
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		e.Probe(file, src, node.NamedChild(i), siteKey)
	}
}

func (e *Evaluator) probeIdentifier(file, name, siteKey string) {
	pf, err := e.fileSet.Load(file)
	if err != nil {
		return
	}
	if _, bad := pf.NonConst[name]; bad {
		return
	}
	key := e.g.CreateKey(file, name)
	if _, exists := e.g.Get(key); exists {
		e.g.AddDependency(siteKey, key)
		return
	}
	if initNode, ok := pf.Consts[name]; ok {
		e.Probe(file, pf.Source, initNode, siteKey)
		return
	}
	if imp, ok := pf.Imports[name]; ok {
		if !imp.Relative {
			return
		}
		target := e.fileSet.Resolve(file, imp.Specifier)
		if err := e.EnsureDiscovered(target); err != nil {
			return
		}
		e.probeIdentifier(target, imp.OriginalName, siteKey)
	}
}

// Evaluate resolves node to a literal AST value, recursing through the
// three identifier layers and failing fatally the moment any of them
// cannot be satisfied (spec.md §4.2 Phase 4).
func (e *Evaluator) Evaluate(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	if node == nil {
		return ast.NewFactory().Undefined(), nil
	}

	switch node.Type() {
	case "identifier":
		name := nodeText(src, node)
		if name == "undefined" {
			return ast.NewFactory().Undefined(), nil
		}
		return e.resolveIdentifier(file, name, siteKey)

	case "string":
		return ast.NewFactory().String(unquote(nodeText(src, node))), nil
	case "number":
		text := nodeText(src, node)
		f, err := parseNumber(text)
		if err != nil {
			return nil, fmt.Errorf("macro: %s: invalid numeric literal %q", file, text)
		}
		return ast.NewFactory().NumberRaw(f, text), nil
	case "true":
		return ast.NewFactory().Boolean(true), nil
	case "false":
		return ast.NewFactory().Boolean(false), nil
	case "null":
		return ast.NewFactory().Null(), nil

	case "parenthesized_expression":
		inner, err := e.Evaluate(file, src, node.NamedChild(0), siteKey)
		if err != nil {
			return nil, err
		}
		return ast.NewFactory().Paren(inner), nil

	case "template_string":
		return e.evalTemplate(file, src, node, siteKey)

	case "array":
		return e.evalArray(file, src, node, siteKey)

	case "object":
		return e.evalObject(file, src, node, siteKey)

	case "spread_element":
		inner, err := e.Evaluate(file, src, node.NamedChild(0), siteKey)
		if err != nil {
			return nil, err
		}
		return ast.NewFactory().Spread(inner), nil

	case "unary_expression":
		return e.evalUnary(file, src, node, siteKey)

	case "binary_expression":
		return e.evalBinary(file, src, node, siteKey)

	case "ternary_expression":
		return e.evalConditional(file, src, node, siteKey)

	case "member_expression":
		return e.evalMember(file, src, node, siteKey, false)
	case "subscript_expression":
		return e.evalMember(file, src, node, siteKey, true)

	default:
		return nil, fmt.Errorf("macro: %s: unsupported expression form %q in macro argument", file, node.Type())
	}
}

func (e *Evaluator) resolveIdentifier(file, name, siteKey string) (*ast.Node, error) {
	pf, err := e.fileSet.Load(file)
	if err != nil {
		return nil, err
	}
	if kind, bad := pf.NonConst[name]; bad {
		return nil, &NonConstBindingError{Name: name, File: file, Kind: kind}
	}

	key := e.g.CreateKey(file, name)
	if _, exists := e.g.Get(key); exists {
		e.g.AddDependency(siteKey, key)
		result, ok := e.g.GetResult(key)
		if !ok {
			return nil, &ResolutionError{Name: name, File: file}
		}
		return result, nil
	}

	if initNode, ok := pf.Consts[name]; ok {
		return e.Evaluate(file, pf.Source, initNode, siteKey)
	}

	if imp, ok := pf.Imports[name]; ok {
		if !imp.Relative {
			return nil, &ResolutionError{Name: name, File: file, PackageImport: imp.Specifier}
		}
		target := e.fileSet.Resolve(file, imp.Specifier)
		if err := e.EnsureDiscovered(target); err != nil {
			return nil, err
		}
		return e.resolveIdentifier(target, imp.OriginalName, siteKey)
	}

	return nil, &ResolutionError{Name: name, File: file}
}

func (e *Evaluator) evalTemplate(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	var quasis []string
	var exprs []*ast.Node
	quasis = append(quasis, "")
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		c := node.NamedChild(i)
		switch c.Type() {
		case "string_fragment":
			quasis[len(quasis)-1] += nodeText(src, c)
		case "template_substitution":
			inner := c.NamedChild(0)
			val, err := e.Evaluate(file, src, inner, siteKey)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, val)
			quasis = append(quasis, "")
		}
	}
	if str, ok := foldTemplate(quasis, exprs); ok {
		return ast.NewFactory().String(str), nil
	}
	return ast.NewFactory().Template(quasis, exprs), nil
}

// foldTemplate concatenates quasis with exprs' string coercions when every
// substitution is itself compile-time-knowable, folding the whole template
// down to a plain string literal the way a binary "+" chain would — a
// template argument is otherwise unusable, since ast.ToValue has no case for
// KindTemplate and would reject it at the call site.
func foldTemplate(quasis []string, exprs []*ast.Node) (string, bool) {
	var b strings.Builder
	for i, q := range quasis {
		b.WriteString(q)
		if i < len(exprs) {
			v, err := ast.ToValue(exprs[i])
			if err != nil {
				return "", false
			}
			b.WriteString(valueToString(v))
		}
	}
	return b.String(), true
}

func (e *Evaluator) evalArray(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	count := int(node.NamedChildCount())
	elems := make([]*ast.Node, 0, count)
	for i := 0; i < count; i++ {
		c := node.NamedChild(i)
		val, err := e.Evaluate(file, src, c, siteKey)
		if err != nil {
			return nil, err
		}
		elems = append(elems, val)
	}
	return ast.NewFactory().Array(elems...), nil
}

func (e *Evaluator) evalObject(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	count := int(node.NamedChildCount())
	var props []*ast.Property
	for i := 0; i < count; i++ {
		c := node.NamedChild(i)
		switch c.Type() {
		case "pair":
			keyNode := c.ChildByFieldName("key")
			valueNode := c.ChildByFieldName("value")
			val, err := e.Evaluate(file, src, valueNode, siteKey)
			if err != nil {
				return nil, err
			}
			key := propertyKeyNode(src, keyNode)
			props = append(props, ast.NewFactory().Property(key, val))
		case "shorthand_property_identifier":
			name := nodeText(src, c)
			val, err := e.resolveIdentifier(file, name, siteKey)
			if err != nil {
				return nil, err
			}
			props = append(props, ast.NewFactory().Property(ast.NewFactory().Identifier(name), val))
		case "spread_element":
			inner, err := e.Evaluate(file, src, c.NamedChild(0), siteKey)
			if err != nil {
				return nil, err
			}
			props = append(props, ast.NewFactory().SpreadProperty(inner))
		}
	}
	return ast.NewFactory().Object(props...), nil
}

func propertyKeyNode(src []byte, keyNode *sitter.Node) *ast.Node {
	switch keyNode.Type() {
	case "string":
		return ast.NewFactory().String(unquote(nodeText(src, keyNode)))
	default:
		return ast.NewFactory().Identifier(nodeText(src, keyNode))
	}
}

func (e *Evaluator) evalUnary(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	op := nodeText(src, node.ChildByFieldName("operator"))
	operand, err := e.Evaluate(file, src, node.ChildByFieldName("argument"), siteKey)
	if err != nil {
		return nil, err
	}
	v, err := ast.ToValue(operand)
	if err != nil {
		return ast.NewFactory().Unary(op, operand, true), nil
	}
	result, ok := applyUnary(op, v)
	if !ok {
		return ast.NewFactory().Unary(op, operand, true), nil
	}
	return ast.FromValue(result), nil
}

func (e *Evaluator) evalBinary(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	op := nodeText(src, node.ChildByFieldName("operator"))
	left, err := e.Evaluate(file, src, node.ChildByFieldName("left"), siteKey)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(file, src, node.ChildByFieldName("right"), siteKey)
	if err != nil {
		return nil, err
	}
	fallback := func() *ast.Node {
		if isLogicalOp(op) {
			return ast.NewFactory().Logical(op, left, right)
		}
		return ast.NewFactory().Binary(op, left, right)
	}
	lv, lerr := ast.ToValue(left)
	rv, rerr := ast.ToValue(right)
	if lerr != nil || rerr != nil {
		return fallback(), nil
	}
	result, ok := applyBinary(op, lv, rv)
	if !ok {
		return fallback(), nil
	}
	return ast.FromValue(result), nil
}

func (e *Evaluator) evalConditional(file string, src []byte, node *sitter.Node, siteKey string) (*ast.Node, error) {
	cond, err := e.Evaluate(file, src, node.ChildByFieldName("condition"), siteKey)
	if err != nil {
		return nil, err
	}
	cv, err := ast.ToValue(cond)
	if err == nil {
		if truthy(cv) {
			return e.Evaluate(file, src, node.ChildByFieldName("consequence"), siteKey)
		}
		return e.Evaluate(file, src, node.ChildByFieldName("alternative"), siteKey)
	}
	cons, err := e.Evaluate(file, src, node.ChildByFieldName("consequence"), siteKey)
	if err != nil {
		return nil, err
	}
	alt, err := e.Evaluate(file, src, node.ChildByFieldName("alternative"), siteKey)
	if err != nil {
		return nil, err
	}
	return ast.NewFactory().Conditional(cond, cons, alt), nil
}

func (e *Evaluator) evalMember(file string, src []byte, node *sitter.Node, siteKey string, computed bool) (*ast.Node, error) {
	obj, err := e.Evaluate(file, src, node.ChildByFieldName("object"), siteKey)
	if err != nil {
		return nil, err
	}
	if computed {
		idx, err := e.Evaluate(file, src, node.ChildByFieldName("index"), siteKey)
		if err != nil {
			return nil, err
		}
		if result, ok := foldMemberAccess(obj, idx); ok {
			return result, nil
		}
		return ast.NewFactory().Member(obj, idx, true), nil
	}
	propNode := node.ChildByFieldName("property")
	name := nodeText(src, propNode)
	if result, ok := foldMemberAccess(obj, ast.NewFactory().String(name)); ok {
		return result, nil
	}
	prop := ast.NewFactory().Identifier(name)
	return ast.NewFactory().Member(obj, prop, false), nil
}

// foldMemberAccess resolves a property/element access into its literal
// result when both the object and the index are themselves
// compile-time-knowable, the same fallback shape evalBinary/evalUnary use:
// fold when possible, otherwise hand back ok=false so the caller builds an
// unresolved Member node instead.
func foldMemberAccess(obj, idx *ast.Node) (*ast.Node, bool) {
	ov, err := ast.ToValue(obj)
	if err != nil {
		return nil, false
	}
	iv, err := ast.ToValue(idx)
	if err != nil {
		return nil, false
	}
	switch ov.Kind {
	case ast.ValueMap:
		if iv.Kind != ast.ValueString {
			return nil, false
		}
		v, ok := ov.Map[iv.Str]
		if !ok {
			return ast.NewFactory().Undefined(), true
		}
		return ast.FromValue(v), true
	case ast.ValueList:
		if iv.Kind != ast.ValueNumber {
			return nil, false
		}
		i := int(iv.Num)
		if i < 0 || i >= len(ov.List) {
			return ast.NewFactory().Undefined(), true
		}
		return ast.FromValue(ov.List[i]), true
	default:
		return nil, false
	}
}
