// Package ast holds the language-neutral model produced by static analysis of
// submitted component and demo sources: exported symbols, classified import
// edges, library dependency maps and unresolved catalog references.
package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"
)

// SourceKind distinguishes the two kinds of submitted source text.
type SourceKind string

const (
	KindComponent SourceKind = "component"
	KindDemo      SourceKind = "demo"
)

// ExportedSymbol is a name exported by a module.
type ExportedSymbol struct {
	Name string `json:"name"`
}

// ImportKind classifies an import edge.
type ImportKind string

const (
	// ImportLibrary is a bare package specifier resolved through the package registry.
	ImportLibrary ImportKind = "library"
	// ImportCatalogDirect points at a catalog entry with an explicit owner.
	ImportCatalogDirect ImportKind = "catalog_direct"
	// ImportCatalogAmbiguous points at a catalog entry whose owner is unknown.
	ImportCatalogAmbiguous ImportKind = "catalog_ambiguous"
)

// LatestTag is the only version tag the engine ever records.
const LatestTag = "latest"

// ImportEdge is one classified import (or re-export, require, dynamic import).
type ImportEdge struct {
	// SourcePath is the module specifier exactly as written, without quotes.
	SourcePath string `json:"source_path"`

	// ImportedNames are the local bindings introduced by the statement.
	ImportedNames []string `json:"imported_names,omitempty"`

	Kind ImportKind `json:"kind"`

	// Package is the canonical package name for library edges.
	Package string `json:"package,omitempty"`

	// Owner, Slug and Category identify catalog edges. Owner is empty for
	// ambiguous edges; Category is empty for direct edges.
	Owner    string `json:"owner,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Category string `json:"category,omitempty"`

	// Byte span of the statement the edge was read from.
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
}

// LibraryDeps maps a package name to its recorded version tag.
type LibraryDeps map[string]string

// Merge unions other into d; on conflicting tags the value from other wins.
func (d LibraryDeps) Merge(other LibraryDeps) {
	for name, tag := range other {
		d[name] = tag
	}
}

// Names returns the package names in sorted order.
func (d LibraryDeps) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of d.
func (d LibraryDeps) Clone() LibraryDeps {
	out := make(LibraryDeps, len(d))
	out.Merge(d)
	return out
}

// UnknownDependency is a catalog-shaped import whose owner must be supplied
// by a human before the dependency graph can be resolved.
type UnknownDependency struct {
	SlugWithOwnerMissing string `json:"slug_with_owner_missing"`
	Category             string `json:"category"`
	IsDemoDependency     bool   `json:"is_demo_dependency"`
}

// SymbolSet collects exported names with set semantics, preserving the order
// of first appearance.
type SymbolSet struct {
	seen    map[string]struct{}
	symbols []ExportedSymbol
}

// Add records name if it is a valid identifier not seen before.
func (s *SymbolSet) Add(name string) {
	if !IsIdentifier(name) {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.symbols = append(s.symbols, ExportedSymbol{Name: name})
}

// Symbols returns the collected symbols in first-seen order.
func (s *SymbolSet) Symbols() []ExportedSymbol {
	out := make([]ExportedSymbol, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Names flattens symbols into their names.
func Names(symbols []ExportedSymbol) []string {
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = sym.Name
	}
	return names
}

// IsIdentifier reports whether name has ECMAScript identifier syntax.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '$' || r == '_':
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)):
		default:
			return false
		}
	}
	return true
}

// segmentPattern is the accepted shape of a catalog owner, category or slug.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// IsSegment reports whether s can be used as a catalog owner, category or
// slug: a single path segment that is not a dot segment.
func IsSegment(s string) bool {
	return segmentPattern.MatchString(s)
}

// IsCapitalized reports whether name starts with an upper-case letter, the
// convention for component identifiers.
func IsCapitalized(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// ComputeHash computes a SHA256 hash of the given content
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8]) // First 8 bytes for brevity
}

// DirectDependency is a catalog reference whose owner is known.
type DirectDependency struct {
	Owner string `json:"owner"`
	Slug  string `json:"slug"`
}

// Dependencies is the union of the import edges read from one source.
type Dependencies struct {
	Libraries LibraryDeps         `json:"libraries"`
	Direct    []DirectDependency  `json:"direct,omitempty"`
	Ambiguous []UnknownDependency `json:"ambiguous,omitempty"`
}

// CollectDependencies collapses classified edges into a Dependencies value.
// Libraries are unioned with the "latest" tag, direct references collapse on
// owner/slug and ambiguous references on category/slug, all in first-seen
// order. Ambiguous entries are flagged as demo dependencies when kind is
// KindDemo.
func CollectDependencies(edges []ImportEdge, kind SourceKind) Dependencies {
	deps := Dependencies{Libraries: LibraryDeps{}}
	direct := make(map[DirectDependency]bool)
	ambiguous := make(map[[2]string]bool)

	for _, edge := range edges {
		switch edge.Kind {
		case ImportLibrary:
			if edge.Package != "" {
				deps.Libraries[edge.Package] = LatestTag
			}
		case ImportCatalogDirect:
			d := DirectDependency{Owner: edge.Owner, Slug: edge.Slug}
			if d.Owner == "" || d.Slug == "" || direct[d] {
				continue
			}
			direct[d] = true
			deps.Direct = append(deps.Direct, d)
		case ImportCatalogAmbiguous:
			key := [2]string{edge.Category, edge.Slug}
			if edge.Slug == "" || ambiguous[key] {
				continue
			}
			ambiguous[key] = true
			deps.Ambiguous = append(deps.Ambiguous, UnknownDependency{
				SlugWithOwnerMissing: edge.Slug,
				Category:             edge.Category,
				IsDemoDependency:     kind == KindDemo,
			})
		}
	}
	return deps
}
