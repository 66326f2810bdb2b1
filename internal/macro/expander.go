package macro

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kithinjibrian/pod/internal/ast"
	"github.com/kithinjibrian/pod/internal/graph"
	"github.com/kithinjibrian/pod/internal/host"
)

// Expander ties the FileSet, Graph, and Host Runtime together into the
// five-phase pipeline spec.md §4.2 describes. One Expander is meant to live
// for an entire build: its Graph and Runtime caches persist across every
// file it expands, so a macro pulled in as a cross-file dependency of file
// A is not recomputed when file B later imports the same binding.
type Expander struct {
	fileSet *FileSet
	graph   *graph.Graph
	eval    *Evaluator
	runtime *host.Runtime
	store   *host.Store
	log     *zap.SugaredLogger
}

// NewExpander returns an Expander rooted at projectRoot.
func NewExpander(projectRoot string, log *zap.SugaredLogger) *Expander {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	fs := NewFileSet(projectRoot)
	g := graph.New(projectRoot)
	return &Expander{
		fileSet: fs,
		graph:   g,
		eval:    NewEvaluator(fs, g),
		runtime: host.NewRuntime(),
		store:   host.NewStore(),
		log:     log,
	}
}

// Expand runs all five phases against filePath and returns the rewritten
// source. A file with no macro-sigil call anywhere in it is returned
// byte-identical without being parsed at all (spec.md §8 Fast-path
// invariant).
func (x *Expander) Expand(filePath string) (string, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return "", &ParseError{File: filePath, Cause: err}
	}
	src := string(raw)
	if !strings.Contains(src, "$(") && !strings.Contains(src, "$`") {
		return src, nil
	}

	bound, inline, err := x.eval.Discovered(filePath)
	if err != nil {
		return "", err
	}

	pf, err := x.fileSet.Load(filePath)
	if err != nil {
		return "", err
	}

	order, err := x.graph.TopologicalSort()
	if err != nil {
		return "", err
	}

	for _, key := range order {
		site, ok := x.graph.Get(key)
		if !ok || site.Computed() {
			continue
		}
		if err := x.computeSite(key); err != nil {
			if IsInlineKey(key) {
				// spec.md §9 Open Question: an inline macro call's failure is
				// non-fatal — the call is left untouched in the output.
				x.log.Warnw("inline macro call failed, leaving call site unexpanded", "site", key, "error", err)
				continue
			}
			return "", err
		}
	}

	var splices []splice
	for _, bs := range bound {
		key := x.graph.CreateKey(filePath, bs.Binding)
		node, ok := x.graph.GetResult(key)
		if !ok {
			return "", fmt.Errorf("macro: %s: site %s did not compute a result", filePath, key)
		}
		splices = append(splices, splice{start: bs.ValueStart, end: bs.ValueEnd, text: resultText(node)})
	}
	for _, is := range inline {
		key := x.graph.CreateKey(filePath, inlineBindingName(is.Call))
		node, ok := x.graph.GetResult(key)
		if !ok {
			continue // failed inline call, left as-is
		}
		splices = append(splices, splice{start: is.Start, end: is.End, text: resultText(node)})
	}

	return rewrite(pf.Source, splices), nil
}

// computeSite executes exactly one site's macro call: resolves its callee
// to a loaded macro function, evaluates its arguments to literal values,
// invokes it through the Host Runtime, and stores the result on the graph
// (spec.md §4.2 Phase 4).
func (x *Expander) computeSite(key string) error {
	info, ok := x.eval.siteCalls[key]
	if !ok {
		return fmt.Errorf("macro: internal error: no call info for site %s", key)
	}

	pf, err := x.fileSet.Load(info.file)
	if err != nil {
		return err
	}

	imp, ok := pf.Imports[info.callee]
	if !ok {
		return &ResolutionError{Name: info.callee, File: info.file}
	}
	if !imp.Relative {
		return &ResolutionError{Name: info.callee, File: info.file, PackageImport: imp.Specifier}
	}
	specifier := x.fileSet.Resolve(info.file, imp.Specifier)

	fn, err := x.runtime.Load(specifier, imp.OriginalName)
	if err != nil {
		return err
	}

	argNodes := ArgList(info.argsNode)
	goArgs := make([]any, 0, len(argNodes))
	callArgs := make([]*ast.Node, 0, len(argNodes))
	for _, a := range argNodes {
		val, err := x.eval.Evaluate(info.file, pf.Source, a, key)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, val)
		v, err := ast.ToValue(val)
		if err != nil {
			return fmt.Errorf("macro: %s: argument to %s is not a compile-time-knowable value: %w", info.file, info.callee, err)
		}
		goArgs = append(goArgs, ast.ToGo(v))
	}

	factory := ast.NewFactory()
	callSite := factory.Call(factory.Identifier(info.callee), callArgs...)
	hostCtx := host.BuildContext(info.file, callSite, x.graph, x.store)
	result, err := host.Invoke(context.Background(), info.callee, fn, goArgs, hostCtx)
	if err != nil {
		return err
	}

	v, err := ast.FromGo(result)
	if err != nil {
		return &MacroReturnError{Macro: info.callee, Cause: err}
	}
	return x.graph.SetResult(key, ast.FromValue(v))
}
