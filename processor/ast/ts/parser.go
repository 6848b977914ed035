// Package ts parses component and demo sources (TypeScript, TSX, JavaScript)
// with tree-sitter and runs the static analyses over the resulting tree:
// exported symbol extraction, import classification and self-import stripping.
package ts

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rorkai/21st-sub000/processor/ast"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Dialect names registered with ast.DefaultRegistry.
const (
	DialectTSX        = "tsx"
	DialectTypeScript = "typescript"
	DialectJavaScript = "javascript"
)

func init() {
	ast.DefaultRegistry.Register(DialectTSX, []string{".tsx", ".jsx"}, tsx.GetLanguage)
	ast.DefaultRegistry.Register(DialectTypeScript, []string{".ts", ".mts", ".cts"}, typescript.GetLanguage)
	ast.DefaultRegistry.Register(DialectJavaScript, []string{".js", ".mjs", ".cjs"}, javascript.GetLanguage)
}

// Tree is a parsed source. It is owned by the caller that produced it and
// must be closed when no longer needed; trees are never shared or reused.
type Tree struct {
	tree    *sitter.Tree
	root    *sitter.Node
	source  []byte
	dialect string
}

// Parse parses text with the TSX grammar, the superset accepted for both
// component and demo sources.
func Parse(ctx context.Context, text string) (*Tree, error) {
	return ParseAs(ctx, DialectTSX, text)
}

// ParseFile parses text using the dialect registered for the file name's
// extension, falling back to TSX.
func ParseFile(ctx context.Context, name, text string) (*Tree, error) {
	dialect, ok := ast.DefaultRegistry.DialectForFile(name)
	if !ok {
		dialect = DialectTSX
	}
	return ParseAs(ctx, dialect, text)
}

// ParseAs parses text with an explicit dialect. Malformed input still yields
// a best-effort tree; an *ast.ParseError is returned only when no tree can be
// produced at all.
func ParseAs(ctx context.Context, dialect, text string) (*Tree, error) {
	source := []byte(text)
	if err := checkSource(source); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &ast.ParseError{Reason: "parser aborted", Offset: -1, Err: err}
	}

	lang, err := ast.DefaultRegistry.Language(dialect)
	if err != nil {
		return nil, &ast.ParseError{Reason: "unknown dialect", Offset: -1, Err: err}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, &ast.ParseError{Reason: "parser aborted", Offset: -1, Err: err}
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, &ast.ParseError{Reason: "no syntax tree", Offset: -1}
	}

	return &Tree{tree: tree, root: root, source: source, dialect: dialect}, nil
}

// checkSource rejects input no amount of error recovery can make sense of.
func checkSource(source []byte) error {
	if i := bytes.IndexByte(source, 0); i >= 0 {
		return &ast.ParseError{Reason: "binary content", Offset: i}
	}
	if !utf8.Valid(source) {
		offset := 0
		for offset < len(source) {
			r, size := utf8.DecodeRune(source[offset:])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			offset += size
		}
		return &ast.ParseError{Reason: "invalid UTF-8", Offset: offset}
	}
	return nil
}

// Root returns the program node.
func (t *Tree) Root() *sitter.Node {
	return t.root
}

// Source returns the parsed text.
func (t *Tree) Source() []byte {
	return t.source
}

// Dialect returns the dialect the tree was parsed with.
func (t *Tree) Dialect() string {
	return t.dialect
}

// HasErrors reports whether error recovery was needed.
func (t *Tree) HasErrors() bool {
	return t.root.HasError()
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// text returns the source text covered by node.
func (t *Tree) text(node *sitter.Node) string {
	return node.Content(t.source)
}

// walk visits node and its descendants depth-first in source order. Returning
// false from fn skips the node's children.
func walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()
	walkCursor(cursor, fn)
}

func walkCursor(cursor *sitter.TreeCursor, fn func(*sitter.Node) bool) {
	if !fn(cursor.CurrentNode()) {
		return
	}
	if cursor.GoToFirstChild() {
		for {
			walkCursor(cursor, fn)
			if !cursor.GoToNextSibling() {
				break
			}
		}
		cursor.GoToParent()
	}
}

// nodeAt returns the smallest node whose span contains offset.
func nodeAt(root *sitter.Node, offset uint32) *sitter.Node {
	node := root
	for {
		var next *sitter.Node
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if child.StartByte() <= offset && offset < child.EndByte() {
				next = child
				break
			}
		}
		if next == nil {
			return node
		}
		node = next
	}
}

// stringValue returns the contents of a string literal node without quotes.
func (t *Tree) stringValue(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	if node.Type() != "string" {
		return ""
	}
	raw := t.text(node)
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	return strings.Trim(raw, `'"`)
}

// hasChildOfType reports whether node has a direct child of the given type.
func hasChildOfType(node *sitter.Node, nodeType string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == nodeType {
			return true
		}
	}
	return false
}
