package macro

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kithinjibrian/pod/internal/graph"
)

const doubleMacroSource = `
package macro

func Double$(args []any, ctx map[string]any) any {
	n := args[0].(float64)
	return n * 2
}

func Identity$(args []any, ctx map[string]any) any {
	return args[0]
}
`

func writeProjectFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestExpandFastPathNoMacroCalls(t *testing.T) {
	root := t.TempDir()
	app := writeProjectFile(t, root, "app.ts", "const x = 1 + 2;\n")

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if out != "const x = 1 + 2;\n" {
		t.Errorf("fast-path output changed: %q", out)
	}
}

func TestExpandTrivialMacro(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Double$ } from "./macros.go";

const x = Double$(21);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = 42;") {
		t.Errorf("expected spliced result 42, got: %q", out)
	}
}

func TestExpandTransitiveDependency(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Double$ } from "./macros.go";

const a = Double$(5);
const b = Double$(a);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const a = 10;") || !strings.Contains(out, "const b = 20;") {
		t.Errorf("expected a=10, b=20, got: %q", out)
	}
}

func TestExpandCycleDetected(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const a = Identity$(b);
const b = Identity$(a);
`)

	x := NewExpander(root, nil)
	_, err := x.Expand(app)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	var cycleErr *graph.CycleDetectedError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *graph.CycleDetectedError, got %T: %v", err, err)
	}
}

func TestExpandRejectsPackageSpecifierCallee(t *testing.T) {
	root := t.TempDir()
	app := writeProjectFile(t, root, "app.ts", `import { Double$ } from "some-npm-package";

const x = Double$(21);
`)

	x := NewExpander(root, nil)
	_, err := x.Expand(app)
	if err == nil {
		t.Fatal("expected a resolution error for a package-specifier macro import")
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %T: %v", err, err)
	}
	if resErr.PackageImport == "" {
		t.Error("expected PackageImport to be set")
	}
}

func TestExpandTaggedTemplateBoundSite(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", "import { Identity$ } from \"./macros.go\";\n\nconst x = Identity$`hello`;\n")

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, `const x = "hello";`) {
		t.Errorf("expected the tagged template to fold and splice, got: %q", out)
	}
}

func TestExpandTaggedTemplateInlineSite(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", "import { Identity$ } from \"./macros.go\";\n\nconsole.log(Identity$`hi`);\n")

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, `console.log("hi");`) {
		t.Errorf("expected the inline tagged template call to be spliced, got: %q", out)
	}
}

func TestExpandFastPathSkipsOnlyWithNoMacroSigil(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", "import { Identity$ } from \"./macros.go\";\n\nconst x = Identity$`hello`;\n")

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if strings.Contains(out, "Identity$`hello`") {
		t.Errorf("fast-path incorrectly skipped a tagged-template-only macro call: %q", out)
	}
}

func TestExpandTemplateArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", "import { Identity$ } from \"./macros.go\";\n\nconst x = Identity$(`hello ${1 + 1}`);\n")

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, `const x = "hello 2";`) {
		t.Errorf("expected template to fold to \"hello 2\", got: %q", out)
	}
}

func TestExpandArrayArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const x = Identity$([1, 2, 3]);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = [1, 2, 3];") {
		t.Errorf("expected array literal to round-trip, got: %q", out)
	}
}

func TestExpandObjectArgumentWithSpreadAndShorthand(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const base = { a: 1 };
const c = 3;
const x = Identity$({ ...base, b: 2, c });
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	for _, want := range []string{`"a": 1`, `"b": 2`, `"c": 3`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected merged object to contain %s, got: %q", want, out)
		}
	}
}

func TestExpandUnaryArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const x = Identity$(typeof "hi");
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, `const x = "string";`) {
		t.Errorf("expected typeof to fold to \"string\", got: %q", out)
	}
}

func TestExpandBinaryArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const x = Identity$(3 + 4);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = 7;") {
		t.Errorf("expected binary expression to fold to 7, got: %q", out)
	}
}

func TestExpandTernaryArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const x = Identity$(true ? 1 : 2);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = 1;") {
		t.Errorf("expected ternary to fold to its consequence, got: %q", out)
	}
}

func TestExpandMemberArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const obj = { a: 42 };
const x = Identity$(obj.a);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = 42;") {
		t.Errorf("expected member access to fold to 42, got: %q", out)
	}
}

func TestExpandSubscriptArgument(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", doubleMacroSource)
	app := writeProjectFile(t, root, "app.ts", `import { Identity$ } from "./macros.go";

const arr = [10, 20, 30];
const x = Identity$(arr[1]);
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(out, "const x = 20;") {
		t.Errorf("expected subscript access to fold to 20, got: %q", out)
	}
}

func TestExpandInlineMacroFailureIsNonFatal(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "macros.go", `
package macro

func Fail$(args []any, ctx map[string]any) any {
	errFn := ctx["error"].(func(string))
	errFn("deliberate")
	return nil
}
`)
	app := writeProjectFile(t, root, "app.ts", `import { Fail$ } from "./macros.go";

console.log(Fail$());
`)

	x := NewExpander(root, nil)
	out, err := x.Expand(app)
	if err != nil {
		t.Fatalf("Expand should not fail for an inline macro error: %v", err)
	}
	if !strings.Contains(out, "Fail$()") {
		t.Errorf("expected the failed inline call to be left untouched, got: %q", out)
	}
}
