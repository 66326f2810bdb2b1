package host

import (
	"context"
	"testing"
	"time"

	"github.com/kithinjibrian/pod/internal/ast"
	"github.com/kithinjibrian/pod/internal/graph"
)

const addMacroSource = `
package macro

func Add$(args []any, ctx map[string]any) any {
	a := args[0].(float64)
	b := args[1].(float64)
	return a + b
}
`

const errMacroSource = `
package macro

func Bad$(args []any, ctx map[string]any) any {
	errFn := ctx["error"].(func(string))
	errFn("deliberate failure")
	return nil
}
`

func runtimeWithSource(src string) *Runtime {
	r := NewRuntime()
	r.readFile = func(path string) ([]byte, error) {
		return []byte(src), nil
	}
	return r
}

func TestLoadRejectsNonMacroName(t *testing.T) {
	r := runtimeWithSource(addMacroSource)
	if _, err := r.Load("/proj/macros.go", "add"); err == nil {
		t.Fatal("expected NotFoundError for a name not ending in $")
	}
}

func TestLoadAndInvoke(t *testing.T) {
	r := runtimeWithSource(addMacroSource)
	fn, err := r.Load("/proj/macros.go", "Add$")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx := context.Background()
	store := NewStore()
	factory := ast.NewFactory()
	callSite := factory.Call(factory.Identifier("Add$"), factory.Number(1), factory.Number(2))
	hostCtx := BuildContext("/proj/a.ts", callSite, graph.New("/proj"), store)
	val, err := Invoke(ctx, "Add$", fn, []any{1.0, 2.0}, hostCtx)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if val.(float64) != 3 {
		t.Errorf("Add$(1,2) = %v, want 3", val)
	}
}

func TestInvokeRecoversMacroError(t *testing.T) {
	r := runtimeWithSource(errMacroSource)
	fn, err := r.Load("/proj/macros.go", "Bad$")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	store := NewStore()
	factory := ast.NewFactory()
	callSite := factory.Call(factory.Identifier("Bad$"))
	hostCtx := BuildContext("/proj/a.ts", callSite, graph.New("/proj"), store)
	_, err = Invoke(context.Background(), "Bad$", fn, nil, hostCtx)
	if err == nil {
		t.Fatal("expected an execution error")
	}
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected *ExecutionError, got %T", err)
	}
	if execErr.Macro != "Bad$" {
		t.Errorf("Macro = %q, want Bad$", execErr.Macro)
	}
}

// TestInvokeTimesOut exercises the documented best-effort interrupt: the
// spun-up macro goroutine is not actually killed (yaegi is not
// preemptible), only abandoned once the context deadline passes.
func TestInvokeTimesOut(t *testing.T) {
	r := NewRuntime()
	r.readFile = func(path string) ([]byte, error) {
		return []byte(`
package macro

func Spin$(args []any, ctx map[string]any) any {
	for {
	}
}
`), nil
	}
	fn, err := r.Load("/proj/macros.go", "Spin$")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Invoke(ctx, "Spin$", fn, nil, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestValidateImportsRejectsOS(t *testing.T) {
	src := `
package macro

import (
	"os"
	"strings"
)

func F$(args []any, ctx map[string]any) any { return nil }
`
	if err := validateImports(src); err == nil {
		t.Fatal("expected forbidden-import error for os")
	}
}
