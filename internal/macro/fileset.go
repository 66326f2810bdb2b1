package macro

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

// ImportBinding records one name imported into a file, enough to drive
// layer-3 identifier resolution (spec.md §4.2 Phase 2).
type ImportBinding struct {
	LocalName    string
	OriginalName string // the name as exported by the source module (differs from LocalName on `import { x as y }`)
	Specifier    string
	Relative     bool
}

// ParsedFile is the cached result of parsing one source file: its tree, and
// the top-level declarations the cross-file resolver needs.
type ParsedFile struct {
	Path    string
	Source  []byte
	Tree    *sitter.Tree
	Program *sitter.Node

	// Consts maps a top-level const binding name to its initializer node.
	Consts map[string]*sitter.Node
	// NonConst maps a top-level let/var binding name to its declaration
	// keyword ("let" or "var"), so resolution can report NonConstBindingError.
	NonConst map[string]string
	Imports  map[string]ImportBinding
}

// FileSet parses and caches source files by absolute path, so cross-file
// identifier resolution (spec.md §4.2 Phase 2, layer 3) only reads and
// parses each file once per Expander run.
type FileSet struct {
	projectRoot string
	readFile    func(path string) ([]byte, error)
	files       map[string]*ParsedFile
}

// NewFileSet returns an empty FileSet rooted at projectRoot.
func NewFileSet(projectRoot string) *FileSet {
	return &FileSet{
		projectRoot: projectRoot,
		readFile:    os.ReadFile,
		files:       make(map[string]*ParsedFile),
	}
}

func languageFor(path string) *sitter.Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".tsx", ".jsx":
		return tsx.GetLanguage()
	case ".ts":
		return typescript.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Resolve turns an import specifier used inside fromFile into an absolute
// path, the way Node-style relative resolution does: relative specifiers
// are joined against fromFile's directory and the path as written is tried
// first; when it has no extension, ".ts", ".tsx", ".js" and ".jsx" suffixes
// follow, then the directory's "index.ts" and "index.tsx". If none exists,
// the path as written is returned.
func (fs *FileSet) Resolve(fromFile, specifier string) string {
	dir := filepath.Dir(fromFile)
	base := filepath.Join(dir, specifier)
	candidates := []string{base}
	if filepath.Ext(base) == "" {
		candidates = append(candidates,
			base+".ts", base+".tsx", base+".js", base+".jsx",
			filepath.Join(base, "index.ts"), filepath.Join(base, "index.tsx"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}

// Load parses path if it has not been seen yet and returns its cached
// ParsedFile.
func (fs *FileSet) Load(path string) (*ParsedFile, error) {
	if pf, ok := fs.files[path]; ok {
		return pf, nil
	}

	src, err := fs.readFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Cause: err}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(languageFor(path))
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, &ParseError{File: path, Cause: err}
	}

	program := tree.RootNode()
	pf := &ParsedFile{
		Path:     path,
		Source:   src,
		Tree:     tree,
		Program:  program,
		Consts:   make(map[string]*sitter.Node),
		NonConst: make(map[string]string),
		Imports:  make(map[string]ImportBinding),
	}
	scanTopLevel(program, src, pf)
	fs.files[path] = pf
	return pf, nil
}

// scanTopLevel records every top-level import binding and variable
// declaration directly under program (not recursing into nested scopes —
// cross-file resolution only ever needs another file's top-level bindings).
func scanTopLevel(program *sitter.Node, src []byte, pf *ParsedFile) {
	n := int(program.NamedChildCount())
	for i := 0; i < n; i++ {
		child := program.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			recordImports(child, src, pf)
		case "lexical_declaration":
			recordDeclarations(child, src, pf, declKeyword(child))
		case "variable_declaration":
			recordDeclarations(child, src, pf, "var")
		case "export_statement":
			inner := child.NamedChild(0)
			if inner != nil {
				switch inner.Type() {
				case "lexical_declaration":
					recordDeclarations(inner, src, pf, declKeyword(inner))
				case "variable_declaration":
					recordDeclarations(inner, src, pf, "var")
				}
			}
		}
	}
}

func declKeyword(declNode *sitter.Node) string {
	if declNode.ChildCount() == 0 {
		return "let"
	}
	return declNode.Child(0).Type()
}

func recordDeclarations(declNode *sitter.Node, src []byte, pf *ParsedFile, keyword string) {
	count := int(declNode.NamedChildCount())
	for i := 0; i < count; i++ {
		d := declNode.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nodeText(src, nameNode)
		valueNode := d.ChildByFieldName("value")
		if keyword == "const" {
			pf.Consts[name] = valueNode
		} else {
			pf.NonConst[name] = keyword
		}
	}
}

func recordImports(importNode *sitter.Node, src []byte, pf *ParsedFile) {
	var specifierNode *sitter.Node
	count := int(importNode.NamedChildCount())
	for i := 0; i < count; i++ {
		c := importNode.NamedChild(i)
		if c.Type() == "string" {
			specifierNode = c
		}
	}
	if specifierNode == nil {
		return
	}
	specifier := unquote(nodeText(src, specifierNode))
	relative := strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/")

	for i := 0; i < count; i++ {
		c := importNode.NamedChild(i)
		if c.Type() != "import_clause" {
			continue
		}
		collectImportSpecifiers(c, src, specifier, relative, pf)
	}
}

func collectImportSpecifiers(clause *sitter.Node, src []byte, specifier string, relative bool, pf *ParsedFile) {
	count := int(clause.NamedChildCount())
	for i := 0; i < count; i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			// default import: `import Name from "spec"`; the module's
			// exported name for a default import is conventionally "default".
			name := nodeText(src, c)
			pf.Imports[name] = ImportBinding{LocalName: name, OriginalName: "default", Specifier: specifier, Relative: relative}
		case "named_imports":
			specCount := int(c.NamedChildCount())
			for j := 0; j < specCount; j++ {
				spec := c.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				aliasNode := spec.ChildByFieldName("alias")
				local := aliasNode
				if local == nil {
					local = nameNode
				}
				if nameNode == nil || local == nil {
					continue
				}
				localName := nodeText(src, local)
				originalName := nodeText(src, nameNode)
				pf.Imports[localName] = ImportBinding{LocalName: localName, OriginalName: originalName, Specifier: specifier, Relative: relative}
			}
		case "namespace_import":
			// `import * as ns from "spec"` — macros are always imported by
			// name, so a namespace binding has nothing the resolver can
			// match against; deliberately not recorded.
		}
	}
}

func nodeText(src []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
