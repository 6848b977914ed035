// Package bundle assembles the file set and dependency list the preview
// sandbox needs to render a component demo.
package bundle

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var scaffold = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Config controls the generated layout.
type Config struct {
	// BaselineLibraries are always installed in the sandbox.
	BaselineLibraries map[string]string `yaml:"baseline_libraries"`
	EntryPath         string            `yaml:"entry_path"`
	DemoPath          string            `yaml:"demo_path"`
	// ComponentDir receives the submitted component as <slug>.tsx.
	ComponentDir string `yaml:"component_dir"`
	// Theme is the class applied to the preview root ("light" or "dark").
	Theme string `yaml:"theme"`
}

// DefaultConfig returns the standard sandbox layout.
func DefaultConfig() Config {
	return Config{
		BaselineLibraries: map[string]string{
			"react":          ast.LatestTag,
			"react-dom":      ast.LatestTag,
			"clsx":           ast.LatestTag,
			"tailwind-merge": ast.LatestTag,
		},
		EntryPath:    "/App.tsx",
		DemoPath:     "/demo.tsx",
		ComponentDir: "/components/ui",
		Theme:        "light",
	}
}

// Resolver resolves catalog dependencies; *graph.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, direct []catalog.Ref) (*graph.Graph, error)
}

// BuildInput is what a preview is built from.
type BuildInput struct {
	Self         catalog.Ref     `json:"self"`
	Component    string          `json:"component"`
	Demo         string          `json:"demo"`
	LibraryDeps  ast.LibraryDeps `json:"library_deps,omitempty"`
	Dependencies []catalog.Ref   `json:"dependencies,omitempty"`
}

// Manifest is the sandbox input.
type Manifest struct {
	ID           string             `json:"id"`
	Entry        string             `json:"entry"`
	DemoEntry    string             `json:"demo_entry"`
	Files        map[string]string  `json:"files"`
	Dependencies ast.LibraryDeps    `json:"dependencies"`
	Resolved     []string           `json:"resolved"`
	Broken       []graph.BrokenEdge `json:"broken,omitempty"`
}

// Builder builds manifests.
type Builder struct {
	resolver   Resolver
	classifier *ts.Classifier
	cfg        Config
	logger     *slog.Logger
}

// NewBuilder creates a builder.
func NewBuilder(resolver Resolver, classifier *ts.Classifier, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = ts.NewClassifier(ts.DefaultClassifierConfig())
	}
	return &Builder{resolver: resolver, classifier: classifier, cfg: cfg, logger: logger}
}

// Build resolves the dependencies of in and lays out the sandbox files.
// Errors from the resolver, including *graph.AmbiguousError, are returned
// unchanged in the chain.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*Manifest, error) {
	if in.Self.Slug == "" {
		return nil, ErrMissingSlug
	}

	component, err := ts.Parse(ctx, in.Component)
	if err != nil {
		return nil, fmt.Errorf("parse component: %w", err)
	}
	defer component.Close()
	exports := ast.Names(ts.ExtractExportedSymbols(component))
	shape := ts.ExtractExportShape(component)

	demo, err := ts.Parse(ctx, in.Demo)
	if err != nil {
		return nil, fmt.Errorf("parse demo: %w", err)
	}
	defer demo.Close()
	entry, ok := ts.ExtractDemoEntryName(demo)
	if !ok {
		return nil, ErrNoDemoEntry
	}

	g := &graph.Graph{Files: map[string]string{}, LibraryDeps: ast.LibraryDeps{}, Order: []string{}}
	if len(in.Dependencies) > 0 {
		g, err = b.resolver.Resolve(ctx, in.Dependencies)
		if err != nil {
			return nil, fmt.Errorf("resolve dependencies: %w", err)
		}
	}

	componentPath := path.Join(b.cfg.ComponentDir, in.Self.Slug+".tsx")
	files := make(map[string]string, len(g.Files)+8)
	files[componentPath] = in.Component
	files[b.cfg.DemoPath] = injectSelfImport(ts.StripTree(demo, exports).ModifiedText, shape,
		relImport(b.cfg.DemoPath, componentPath))

	if err := b.renderScaffold(files, entry); err != nil {
		return nil, err
	}

	for p, code := range g.Files {
		if _, taken := files[p]; !taken {
			files[p] = code
		}
	}
	for _, ref := range g.Resolved {
		target := catalog.FilePath(ref)
		hasDefault := b.hasDefaultExport(ctx, g.Files[target])
		for _, alias := range aliasPaths(ref) {
			if _, taken := files[alias]; taken {
				continue
			}
			files[alias] = reexport(relImport(alias, target), hasDefault)
		}
	}

	deps := ast.LibraryDeps(b.cfg.BaselineLibraries).Clone()
	deps.Merge(ast.CollectDependencies(b.classifier.Classify(component), ast.KindComponent).Libraries)
	deps.Merge(ast.CollectDependencies(b.classifier.Classify(demo), ast.KindDemo).Libraries)
	deps.Merge(in.LibraryDeps)
	deps.Merge(g.LibraryDeps)

	m := &Manifest{
		ID:           uuid.NewString(),
		Entry:        b.cfg.EntryPath,
		DemoEntry:    entry,
		Files:        files,
		Dependencies: deps,
		Resolved:     g.Order,
		Broken:       g.Broken,
	}
	b.logger.Debug("Bundle built",
		"id", m.ID,
		"component", in.Self.String(),
		"files", len(m.Files),
		"dependencies", len(m.Dependencies),
		"broken", len(m.Broken))
	return m, nil
}

func (b *Builder) renderScaffold(files map[string]string, entry string) error {
	data := struct{ Entry, Theme string }{Entry: entry, Theme: b.cfg.Theme}
	for name, target := range map[string]string{
		"App.tsx.tmpl":     b.cfg.EntryPath,
		"utils.ts.tmpl":    "/lib/utils.ts",
		"globals.css.tmpl": "/styles/globals.css",
	} {
		var buf bytes.Buffer
		if err := scaffold.ExecuteTemplate(&buf, name, data); err != nil {
			return fmt.Errorf("render %s: %w", target, err)
		}
		files[target] = buf.String()
	}
	return nil
}

// hasDefaultExport reports whether code has a default export. Unparsable code
// is treated as having none.
func (b *Builder) hasDefaultExport(ctx context.Context, code string) bool {
	tree, err := ts.Parse(ctx, code)
	if err != nil {
		b.logger.Debug("Cannot inspect dependency exports", "error", err)
		return false
	}
	defer tree.Close()
	return ts.ExtractExportShape(tree).Default != ""
}

// reexport is the body of an alias shim. `export *` does not carry the
// default export, so it is forwarded explicitly.
func reexport(from string, withDefault bool) string {
	out := fmt.Sprintf("export * from %q\n", from)
	if withDefault {
		out += fmt.Sprintf("export { default } from %q\n", from)
	}
	return out
}

// injectSelfImport prepends the import of the component's exports. The
// default export is imported under its local name unless that name is also
// a named export.
func injectSelfImport(demo string, shape ts.ExportShape, from string) string {
	var clauses []string
	if shape.Default != "" && !slices.Contains(shape.Named, shape.Default) {
		clauses = append(clauses, shape.Default)
	}
	if len(shape.Named) > 0 {
		clauses = append(clauses, "{ "+strings.Join(shape.Named, ", ")+" }")
	}
	if len(clauses) == 0 {
		return demo
	}
	return fmt.Sprintf("import %s from %q\n", strings.Join(clauses, ", "), from) + demo
}

// aliasPaths are the paths other sources use to import ref: the category
// form (@/components/<category>/<slug>) and the direct form (@/r/<owner>/<slug>).
func aliasPaths(ref catalog.Ref) []string {
	var out []string
	if ref.Category != "" {
		out = append(out, "/components/"+ref.Category+"/"+ref.Slug+".tsx")
	}
	return append(out, "/r/"+ref.Owner+"/"+ref.Slug+".tsx")
}

// relImport returns the relative module specifier importing file to from
// the file at from.
func relImport(from, to string) string {
	to = strings.TrimSuffix(to, path.Ext(to))
	rel, err := filepath.Rel(path.Dir(from), to)
	if err != nil {
		return to
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}
