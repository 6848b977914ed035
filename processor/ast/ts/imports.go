package ts

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rorkai/21st-sub000/processor/ast"
	sitter "github.com/smacker/go-tree-sitter"
)

// ClassifierConfig holds the path conventions used to classify imports.
type ClassifierConfig struct {
	// AliasRoot marks same-bundle wiring (e.g. "@/"). Alias-rooted paths
	// that are not catalog references are ignored.
	AliasRoot string `yaml:"alias_root"`

	// DirectPrefix marks an explicit owner/slug catalog pointer,
	// e.g. "@/r/" in "@/r/shadcn/button".
	DirectPrefix string `yaml:"direct_prefix"`

	// AmbiguousPatterns are doublestar patterns for catalog paths that carry
	// a category and slug but no owner, e.g. "@/components/*/*".
	AmbiguousPatterns []string `yaml:"ambiguous_patterns"`

	// RuntimePackages are always available and never recorded.
	RuntimePackages []string `yaml:"runtime_packages"`

	// ReservedPrefixes exclude any package whose name starts with one of them.
	ReservedPrefixes []string `yaml:"reserved_prefixes"`

	// PackageAliases canonicalize an import path to a published package name.
	PackageAliases map[string]string `yaml:"package_aliases"`
}

// DefaultClassifierConfig returns the conventions used by the registry.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		AliasRoot:         "@/",
		DirectPrefix:      "@/r/",
		AmbiguousPatterns: []string{"@/components/*/*"},
		RuntimePackages:   []string{"react", "react-dom", "next"},
		ReservedPrefixes:  []string{"@next/", "@types/", "node:"},
		PackageAliases: map[string]string{
			"motion/react":        "motion",
			"motion/react-client": "motion",
		},
	}
}

// Classifier classifies the imports of a parsed source.
// A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	cfg     ClassifierConfig
	runtime map[string]bool
}

// NewClassifier creates a classifier for the given conventions.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	runtime := make(map[string]bool, len(cfg.RuntimePackages))
	for _, name := range cfg.RuntimePackages {
		runtime[name] = true
	}
	return &Classifier{cfg: cfg, runtime: runtime}
}

// Classify returns one edge per recorded import statement, re-export,
// require() or dynamic import() in source order. Relative and same-bundle
// imports and runtime packages produce no edge. Several statements may name
// the same package or slug; callers collapse them with map-based unions.
func (c *Classifier) Classify(tree *Tree) []ast.ImportEdge {
	var edges []ast.ImportEdge

	walk(tree.Root(), func(node *sitter.Node) bool {
		var (
			source *sitter.Node
			names  []string
		)

		switch node.Type() {
		case "import_statement":
			source = importSource(node)
			names = tree.importBindings(node)

		case "export_statement":
			source = node.ChildByFieldName("source")
			if source == nil {
				return true
			}
			for i := 0; i < int(node.NamedChildCount()); i++ {
				if clause := node.NamedChild(i); clause.Type() == "export_clause" {
					tree.exportClauseNames(clause, func(_ uint32, name string, _ bool) { names = append(names, name) })
				}
			}

		case "call_expression":
			source = tree.requireSource(node)
			if source == nil {
				return true
			}

		default:
			return true
		}

		path := tree.stringValue(source)
		if path == "" {
			return true
		}
		edge, ok := c.ClassifyPath(path)
		if !ok {
			return true
		}
		edge.ImportedNames = names
		edge.StartByte = node.StartByte()
		edge.EndByte = node.EndByte()
		edges = append(edges, edge)
		return node.Type() == "call_expression"
	})

	return edges
}

// ClassifyPath classifies a single module specifier. It returns false when
// the path produces no edge: relative paths, same-bundle alias paths, URLs
// and runtime packages.
func (c *Classifier) ClassifyPath(path string) (ast.ImportEdge, bool) {
	if path == "" || path == "." || path == ".." ||
		strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") ||
		strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return ast.ImportEdge{}, false
	}

	for _, pattern := range c.cfg.AmbiguousPatterns {
		if ok, _ := doublestar.Match(pattern, path); !ok {
			continue
		}
		segments := strings.Split(path, "/")
		if len(segments) < 2 ||
			!ast.IsSegment(segments[len(segments)-2]) || !ast.IsSegment(segments[len(segments)-1]) {
			continue
		}
		return ast.ImportEdge{
			SourcePath: path,
			Kind:       ast.ImportCatalogAmbiguous,
			Category:   segments[len(segments)-2],
			Slug:       segments[len(segments)-1],
		}, true
	}

	if c.cfg.DirectPrefix != "" && strings.HasPrefix(path, c.cfg.DirectPrefix) {
		owner, slug, ok := strings.Cut(strings.TrimPrefix(path, c.cfg.DirectPrefix), "/")
		if ok && ast.IsSegment(owner) && ast.IsSegment(slug) {
			return ast.ImportEdge{
				SourcePath: path,
				Kind:       ast.ImportCatalogDirect,
				Owner:      owner,
				Slug:       slug,
			}, true
		}
	}

	if c.cfg.AliasRoot != "" && strings.HasPrefix(path, c.cfg.AliasRoot) {
		return ast.ImportEdge{}, false
	}

	pkg := c.packageName(path)
	if pkg == "" || c.isRuntime(pkg) {
		return ast.ImportEdge{}, false
	}
	return ast.ImportEdge{
		SourcePath: path,
		Kind:       ast.ImportLibrary,
		Package:    pkg,
	}, true
}

// packageName canonicalizes a bare specifier to its published package name:
// aliases first, then subpaths are dropped ("pkg/sub" → "pkg",
// "@scope/pkg/sub" → "@scope/pkg").
func (c *Classifier) packageName(path string) string {
	if alias, ok := c.cfg.PackageAliases[path]; ok {
		return alias
	}

	name := path
	if strings.HasPrefix(path, "@") {
		parts := strings.SplitN(path, "/", 3)
		if len(parts) < 2 || parts[1] == "" {
			return ""
		}
		name = parts[0] + "/" + parts[1]
	} else if i := strings.Index(path, "/"); i >= 0 {
		name = path[:i]
	}

	if alias, ok := c.cfg.PackageAliases[name]; ok {
		return alias
	}
	return name
}

func (c *Classifier) isRuntime(pkg string) bool {
	if c.runtime[pkg] {
		return true
	}
	for _, prefix := range c.cfg.ReservedPrefixes {
		if strings.HasPrefix(pkg, prefix) {
			return true
		}
	}
	return false
}

// importSource returns the module specifier node of an import statement.
func importSource(node *sitter.Node) *sitter.Node {
	if source := node.ChildByFieldName("source"); source != nil {
		return source
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "string":
			return child
		case "import_require_clause", "from_clause":
			if source := child.ChildByFieldName("source"); source != nil {
				return source
			}
		}
	}
	return nil
}

// requireSource returns the string argument of require("x") or import("x").
func (t *Tree) requireSource(node *sitter.Node) *sitter.Node {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	switch fn.Type() {
	case "import":
	case "identifier":
		if t.text(fn) != "require" {
			return nil
		}
	default:
		return nil
	}
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return nil
	}
	return first
}

// importBindings returns the local names an import statement introduces.
func (t *Tree) importBindings(node *sitter.Node) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_clause":
			names = append(names, t.clauseBindings(child)...)
		case "import_require_clause":
			// import X = require("y")
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					names = append(names, t.text(id))
					break
				}
			}
		}
	}
	return names
}

func (t *Tree) clauseBindings(clause *sitter.Node) []string {
	var names []string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			// default import
			names = append(names, t.text(child))
		case "namespace_import":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					names = append(names, t.text(id))
				}
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				local := spec.ChildByFieldName("alias")
				if local == nil {
					local = spec.ChildByFieldName("name")
				}
				if local != nil {
					names = append(names, t.text(local))
				}
			}
		}
	}
	return names
}
