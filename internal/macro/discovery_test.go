package macro

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func parseTS(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(typescript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree.RootNode(), []byte(src)
}

func TestDiscoverFindsBoundSite(t *testing.T) {
	program, src := parseTS(t, `const x = Double$(21);`)
	bound, inline := Discover(program, src)
	if len(bound) != 1 {
		t.Fatalf("expected 1 bound site, got %d", len(bound))
	}
	if len(inline) != 0 {
		t.Fatalf("expected 0 inline sites, got %d", len(inline))
	}
	if bound[0].Binding != "x" || bound[0].Callee != "Double$" || bound[0].Kind != "const" {
		t.Errorf("unexpected bound site: %+v", bound[0])
	}
}

func TestDiscoverFindsInlineSite(t *testing.T) {
	program, src := parseTS(t, `console.log(Greet$("world"));`)
	bound, inline := Discover(program, src)
	if len(bound) != 0 {
		t.Fatalf("expected 0 bound sites, got %d", len(bound))
	}
	if len(inline) != 1 || inline[0].Callee != "Greet$" {
		t.Fatalf("expected 1 inline site named Greet$, got %+v", inline)
	}
}

func TestDiscoverIgnoresOrdinaryCalls(t *testing.T) {
	program, src := parseTS(t, `const x = compute(21);`)
	bound, inline := Discover(program, src)
	if len(bound) != 0 || len(inline) != 0 {
		t.Errorf("expected no sites for a non-macro call, got bound=%+v inline=%+v", bound, inline)
	}
}

func TestDiscoverRecursesIntoNestedScopes(t *testing.T) {
	program, src := parseTS(t, `
function outer() {
	if (true) {
		const y = Nested$(1);
	}
}
`)
	bound, _ := Discover(program, src)
	if len(bound) != 1 || bound[0].Binding != "y" {
		t.Fatalf("expected to find the nested binding, got %+v", bound)
	}
}

func TestDirectiveRecognizesPublic(t *testing.T) {
	program, src := parseTS(t, `"use public";

const x = 1;
`)
	if got := Directive(program, src); got != DirectivePublic {
		t.Errorf("Directive = %q, want %q", got, DirectivePublic)
	}
}

func TestDirectiveAbsentByDefault(t *testing.T) {
	program, src := parseTS(t, `const x = 1;`)
	if got := Directive(program, src); got != "" {
		t.Errorf("Directive = %q, want empty", got)
	}
}

func TestDirectiveIgnoresUnrelatedLeadingString(t *testing.T) {
	program, src := parseTS(t, `"just a string";

const x = 1;
`)
	if got := Directive(program, src); got != "" {
		t.Errorf("Directive = %q, want empty for a non-directive leading string", got)
	}
}
