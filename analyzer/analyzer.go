// Package analyzer is the entry point used by the publish workflow: it runs
// the static analyses over a submitted component and its demos and reports
// exports, dependencies and the references a human still has to resolve.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
)

// Demo is one demo source of a submission.
type Demo struct {
	// Name identifies the demo in warnings; a file name selects the dialect.
	Name string `json:"name"`
	Code string `json:"code"`
}

// Submission is the text submitted for publication.
type Submission struct {
	// Self is the identity the component will be published under. When set,
	// imports of the component from its own demos are not dependencies.
	Self catalog.Ref `json:"self"`

	ComponentName string `json:"component_name,omitempty"`
	Component     string `json:"component"`
	Demos         []Demo `json:"demos,omitempty"`

	// Known are references already resolved, e.g. from an earlier round of
	// human input. Ambiguous imports matching them are not reported again.
	Known []catalog.Ref `json:"known,omitempty"`

	// StripDemos removes self imports from the demos and reports the result.
	StripDemos bool `json:"strip_demos,omitempty"`
}

// Warning is a non-fatal problem found in one source.
type Warning struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// StrippedDemo is a demo with its self imports removed.
type StrippedDemo struct {
	Name string `json:"name"`
	ts.StripResult
}

// Report is the outcome of Analyze.
type Report struct {
	ComponentExports []string                `json:"component_exports"`
	DemoEntryName    string                  `json:"demo_entry_name,omitempty"`
	DemoNames        []string                `json:"demo_names,omitempty"`
	LibraryDeps      ast.LibraryDeps         `json:"library_deps"`
	DirectDeps       []catalog.Ref           `json:"direct_deps"`
	AmbiguousDeps    []ast.UnknownDependency `json:"ambiguous_deps"`
	StrippedDemos    []StrippedDemo          `json:"stripped_demos,omitempty"`
	Warnings         []Warning               `json:"warnings,omitempty"`
}

// Analyzer runs the analyses. It holds no per-call state and is safe for
// concurrent use.
type Analyzer struct {
	classifier *ts.Classifier
	logger     *slog.Logger
}

// New creates an analyzer with the given import conventions.
func New(cfg ts.ClassifierConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{classifier: ts.NewClassifier(cfg), logger: logger}
}

// Analyze parses the component and demos. Only a component that cannot be
// parsed at all fails the call; demo failures become warnings.
func (a *Analyzer) Analyze(ctx context.Context, sub Submission) (*Report, error) {
	componentName := sub.ComponentName
	if componentName == "" {
		componentName = "component.tsx"
	}

	tree, err := ts.ParseFile(ctx, componentName, sub.Component)
	if err != nil {
		return nil, fmt.Errorf("analyze component: %w", err)
	}
	defer tree.Close()

	report := &Report{
		ComponentExports: ast.Names(ts.ExtractExportedSymbols(tree)),
		LibraryDeps:      ast.LibraryDeps{},
		DirectDeps:       []catalog.Ref{},
		AmbiguousDeps:    []ast.UnknownDependency{},
	}
	if tree.HasErrors() {
		report.warn(componentName, "syntax errors; results are best effort")
	}
	if len(report.ComponentExports) == 0 {
		report.warn(componentName, "component exports nothing")
	}

	m := newMerger(sub.Self, sub.Known)
	m.add(ast.CollectDependencies(a.classifier.Classify(tree), ast.KindComponent))

	var demoNames ast.SymbolSet
	for i, demo := range sub.Demos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := demo.Name
		if name == "" {
			name = fmt.Sprintf("demo-%d.tsx", i+1)
		}
		a.analyzeDemo(ctx, name, demo.Code, sub.StripDemos, report, m, &demoNames)
	}
	if names := ast.Names(demoNames.Symbols()); len(names) > 0 {
		report.DemoNames = names
	}

	report.LibraryDeps, report.DirectDeps, report.AmbiguousDeps = m.finish()

	a.logger.Debug("Submission analyzed",
		"exports", len(report.ComponentExports),
		"libraries", len(report.LibraryDeps),
		"direct", len(report.DirectDeps),
		"ambiguous", len(report.AmbiguousDeps),
		"warnings", len(report.Warnings))
	return report, nil
}

func (a *Analyzer) analyzeDemo(ctx context.Context, name, code string, strip bool, report *Report, m *merger, demoNames *ast.SymbolSet) {
	tree, err := ts.ParseFile(ctx, name, code)
	if err != nil {
		a.logger.Warn("Skipping unparsable demo", "demo", name, "error", err)
		report.warn(name, err.Error())
		return
	}
	defer tree.Close()

	if tree.HasErrors() {
		report.warn(name, "syntax errors; results are best effort")
	}
	if entry, ok := ts.ExtractDemoEntryName(tree); ok && report.DemoEntryName == "" {
		report.DemoEntryName = entry
	}
	for _, demoName := range ts.ExtractDemoNames(tree) {
		demoNames.Add(demoName)
	}

	m.add(ast.CollectDependencies(a.demoEdges(name, tree, report.ComponentExports), ast.KindDemo))

	if strip {
		report.StrippedDemos = append(report.StrippedDemos, StrippedDemo{
			Name:        name,
			StripResult: ts.StripTree(tree, report.ComponentExports),
		})
	}
}

// demoEdges classifies the imports of a demo, leaving out catalog imports that
// bind the component's own exports. Those are the imports StripTree removes,
// whatever path they use.
func (a *Analyzer) demoEdges(name string, tree *ts.Tree, exports []string) []ast.ImportEdge {
	edges := a.classifier.Classify(tree)
	kept := edges[:0]
	for _, e := range edges {
		if e.Kind != ast.ImportLibrary && ts.IsSelfBinding(e.ImportedNames, exports) {
			a.logger.Debug("Ignoring self import", "demo", name, "path", e.SourcePath)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (r *Report) warn(source, message string) {
	r.Warnings = append(r.Warnings, Warning{Source: source, Message: message})
}

// Pending reports whether ambiguous dependencies remain.
func (r *Report) Pending() bool {
	return len(r.AmbiguousDeps) > 0
}

// Refs returns every catalog reference of the report, ambiguous ones as
// ownerless refs, ready to hand to the resolver.
func (r *Report) Refs() []catalog.Ref {
	refs := make([]catalog.Ref, 0, len(r.DirectDeps)+len(r.AmbiguousDeps))
	refs = append(refs, r.DirectDeps...)
	for _, u := range r.AmbiguousDeps {
		refs = append(refs, catalog.Ref{Slug: u.SlugWithOwnerMissing, Category: u.Category})
	}
	return refs
}

// Promote replaces the ambiguous dependency dep with the concrete ref.
func (r *Report) Promote(dep ast.UnknownDependency, ref catalog.Ref) error {
	if ref.IsAmbiguous() {
		return fmt.Errorf("promote %s: %w", dep.SlugWithOwnerMissing, ErrOwnerRequired)
	}
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("promote %s: %w", dep.SlugWithOwnerMissing, err)
	}

	idx := -1
	for i, u := range r.AmbiguousDeps {
		if u.SlugWithOwnerMissing == dep.SlugWithOwnerMissing && u.Category == dep.Category {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("promote %s: %w", dep.SlugWithOwnerMissing, ErrUnknownDependency)
	}
	r.AmbiguousDeps = append(r.AmbiguousDeps[:idx:idx], r.AmbiguousDeps[idx+1:]...)

	if ref.Category == "" {
		ref.Category = dep.Category
	}
	for _, d := range r.DirectDeps {
		if d.Key() == ref.Key() {
			return nil
		}
	}
	r.DirectDeps = append(r.DirectDeps, ref)
	return nil
}

// PromoteURL is Promote with the ref given as a canonical URL.
func (r *Report) PromoteURL(dep ast.UnknownDependency, canonicalURL string) error {
	ref, err := catalog.ParseCanonicalURL(canonicalURL)
	if err != nil {
		return fmt.Errorf("promote %s: %w", dep.SlugWithOwnerMissing, err)
	}
	return r.Promote(dep, ref)
}
