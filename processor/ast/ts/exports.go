package ts

import (
	"bytes"
	"regexp"
	"sort"

	"github.com/rorkai/21st-sub000/processor/ast"
	sitter "github.com/smacker/go-tree-sitter"
)

// looseExportPattern matches the non-standard `export Name;` idiom, which
// tree-sitter can only represent inside an error region.
var looseExportPattern = regexp.MustCompile(`(?m)^[ \t]*export[ \t]+([A-Za-z_$][A-Za-z0-9_$]*)[ \t]*;?[ \t]*$`)

// reservedAfterExport are tokens that turn `export X` into a regular,
// grammar-recognized export form.
var reservedAfterExport = map[string]bool{
	"default": true, "function": true, "class": true, "const": true, "let": true,
	"var": true, "async": true, "type": true, "interface": true, "enum": true,
	"abstract": true, "declare": true, "namespace": true, "module": true,
	"import": true, "as": true, "from": true,
}

type exportedName struct {
	offset uint32
	name   string
	// dflt marks the binding exported as the module's default.
	dflt bool
}

// ExportShape splits a module's exports by how they are imported.
type ExportShape struct {
	// Named are the names importable with `import { Name }`.
	Named []string `json:"named"`
	// Default is the local name of the default export, empty when the module
	// has none or it is anonymous.
	Default string `json:"default,omitempty"`
}

// ExtractExportedSymbols returns the names exported by the module, in order of
// first appearance with duplicates collapsed. Recognized forms are exported
// declarations, export clauses (the exported name is recorded), named default
// exports and the loose `export Name;` idiom. Type-only exports and exports
// inside ambient modules or namespaces are skipped.
func ExtractExportedSymbols(tree *Tree) []ast.ExportedSymbol {
	var set ast.SymbolSet
	for _, f := range tree.exportedNames() {
		set.Add(f.name)
	}
	return set.Symbols()
}

// ExtractExportShape reports which exported names are named exports and
// which one is the default export.
func ExtractExportShape(tree *Tree) ExportShape {
	var (
		shape ExportShape
		named ast.SymbolSet
	)
	for _, f := range tree.exportedNames() {
		if f.dflt {
			if shape.Default == "" {
				shape.Default = f.name
			}
			continue
		}
		named.Add(f.name)
	}
	shape.Named = ast.Names(named.Symbols())
	return shape
}

func (t *Tree) exportedNames() []exportedName {
	var found []exportedName
	walk(t.Root(), func(node *sitter.Node) bool {
		if isNestedScope(node) {
			return false
		}
		if node.Type() != "export_statement" {
			return true
		}
		found = append(found, t.exportStatementNames(node)...)
		return false
	})
	found = append(found, t.looseExports()...)

	sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })
	return found
}

// isNestedScope reports whether node opens a declaration scope whose exports
// are not the module's own: `declare module`, `declare global` and
// namespaces.
func isNestedScope(node *sitter.Node) bool {
	switch node.Type() {
	case "ambient_declaration", "module", "internal_module":
		return true
	}
	return false
}

// ExtractDemoEntryName returns the canonical demo entry point: the first
// capitalized function declared with `export function`.
func ExtractDemoEntryName(tree *Tree) (string, bool) {
	var entry string
	walk(tree.Root(), func(node *sitter.Node) bool {
		if entry != "" || isNestedScope(node) {
			return false
		}
		if node.Type() != "export_statement" {
			return true
		}
		decl := node.ChildByFieldName("declaration")
		if decl == nil {
			return false
		}
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration":
			if name := decl.ChildByFieldName("name"); name != nil {
				if text := tree.text(name); ast.IsCapitalized(text) {
					entry = text
				}
			}
		}
		return false
	})
	return entry, entry != ""
}

// ExtractDemoNames lists every demo variant a demo file exports: exported
// symbols with component-style (capitalized) names.
func ExtractDemoNames(tree *Tree) []string {
	var names []string
	for _, sym := range ExtractExportedSymbols(tree) {
		if ast.IsCapitalized(sym.Name) {
			names = append(names, sym.Name)
		}
	}
	return names
}

func (t *Tree) exportStatementNames(node *sitter.Node) []exportedName {
	// export type { Foo } / export type Foo = ...
	if hasChildOfType(node, "type") {
		return nil
	}

	isDefault := hasChildOfType(node, "default")

	var names []exportedName
	add := func(n *sitter.Node) {
		if n != nil {
			names = append(names, exportedName{offset: n.StartByte(), name: t.text(n), dflt: isDefault})
		}
	}

	if decl := node.ChildByFieldName("declaration"); decl != nil {
		t.declarationNames(decl, add)
		return names
	}

	if value := node.ChildByFieldName("value"); value != nil {
		if isDefault {
			t.defaultValueName(value, add)
		}
		return names
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "export_clause":
			t.exportClauseNames(child, func(offset uint32, name string, asDefault bool) {
				names = append(names, exportedName{offset: offset, name: name, dflt: asDefault})
			})
		case "namespace_export":
			// export * as ns from "..."
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					add(id)
				}
			}
		case "identifier":
			// export = Foo, or a recovered `export Foo`
			add(child)
		}
	}
	return names
}

func (t *Tree) declarationNames(decl *sitter.Node, add func(*sitter.Node)) {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "function_signature",
		"enum_declaration":
		add(decl.ChildByFieldName("name"))

	case "internal_module":
		// export namespace Foo {}; dotted names are skipped
		if name := decl.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			add(name)
		}

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			declarator := decl.NamedChild(i)
			if declarator.Type() != "variable_declarator" {
				continue
			}
			patternNames(declarator.ChildByFieldName("name"), add)
		}

	case "ambient_declaration":
		// export declare const x: T
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			t.declarationNames(decl.NamedChild(i), add)
		}
	}
}

// patternNames collects the identifiers bound by a declarator name, which may
// be a destructuring pattern.
func patternNames(node *sitter.Node, add func(*sitter.Node)) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		add(node)
	case "pair_pattern":
		patternNames(node.ChildByFieldName("value"), add)
	case "assignment_pattern", "object_assignment_pattern":
		patternNames(node.ChildByFieldName("left"), add)
	case "object_pattern", "array_pattern", "rest_pattern":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			patternNames(node.NamedChild(i), add)
		}
	}
}

func (t *Tree) defaultValueName(value *sitter.Node, add func(*sitter.Node)) {
	switch value.Type() {
	case "identifier":
		add(value)
	case "function_expression", "function", "generator_function", "class":
		// anonymous defaults have no name and yield nothing
		add(value.ChildByFieldName("name"))
	}
}

// exportClauseNames reports the exported name of each specifier. Re-exporting
// a binding as `default` records its local name, flagged as the default.
func (t *Tree) exportClauseNames(clause *sitter.Node, emit func(offset uint32, name string, asDefault bool)) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" || hasChildOfType(spec, "type") {
			continue
		}
		name := spec.ChildByFieldName("name")
		if name == nil {
			continue
		}
		exported, asDefault := t.text(name), false
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			if aliasText := t.text(alias); aliasText != "default" {
				exported = aliasText
			} else {
				asDefault = true
			}
		}
		emit(spec.StartByte(), exported, asDefault)
	}
}

// looseExports finds `export Name;` lines that error recovery could not fold
// into an export statement.
func (t *Tree) looseExports() []exportedName {
	if !t.HasErrors() {
		return nil
	}

	var names []exportedName
	for _, m := range looseExportPattern.FindAllSubmatchIndex(t.source, -1) {
		name := string(t.source[m[2]:m[3]])
		if reservedAfterExport[name] {
			continue
		}
		keyword := bytes.Index(t.source[m[0]:m[1]], []byte("export")) + m[0]
		if !t.inErrorRegion(uint32(keyword)) {
			continue
		}
		names = append(names, exportedName{offset: uint32(keyword), name: name})
	}
	return names
}

// inErrorRegion reports whether the token at offset is a keyword or
// identifier that error recovery had to skip or patch.
func (t *Tree) inErrorRegion(offset uint32) bool {
	node := nodeAt(t.root, offset)
	switch node.Type() {
	case "export", "identifier", "ERROR":
	default:
		return false
	}
	for n := node; n != nil && n.Parent() != nil; n = n.Parent() {
		if n.Type() == "ERROR" || n.IsMissing() || n.HasError() {
			return true
		}
	}
	return false
}
