// Package catalog defines the published-component catalog the resolver reads
// from: references, fetched nodes, the Lookup interface and its in-process
// implementations. Networked and persistent backends live in subpackages.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rorkai/21st-sub000/processor/ast"
)

// Ref identifies a catalog entry. A Ref with an empty Owner is ambiguous and
// cannot be fetched until a human supplies the owner.
type Ref struct {
	Owner    string `json:"owner" yaml:"owner"`
	Slug     string `json:"slug" yaml:"slug"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Key is the identity of the entry: "owner/slug". Category is not part of it.
func (r Ref) Key() string {
	return r.Owner + "/" + r.Slug
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	if r.Owner == "" {
		return "?/" + r.Slug
	}
	return r.Key()
}

// IsAmbiguous reports whether the owner is still unknown.
func (r Ref) IsAmbiguous() bool {
	return r.Owner == ""
}

// Validate checks that owner and slug are well-formed path segments.
func (r Ref) Validate() error {
	if !ast.IsSegment(r.Owner) {
		return fmt.Errorf("%w: owner %q", ErrInvalidRef, r.Owner)
	}
	if !ast.IsSegment(r.Slug) {
		return fmt.Errorf("%w: slug %q", ErrInvalidRef, r.Slug)
	}
	return nil
}

// Node is a fetched catalog entry. Nodes are treated as immutable.
type Node struct {
	Ref         Ref             `json:"ref" yaml:"ref"`
	Code        string          `json:"code" yaml:"code"`
	LibraryDeps ast.LibraryDeps `json:"library_deps,omitempty" yaml:"library_deps,omitempty"`
	CatalogRefs []Ref           `json:"catalog_refs,omitempty" yaml:"catalog_refs,omitempty"`
}

// Lookup fetches catalog entries. Implementations return an error wrapping
// ErrNotFound when the entry does not exist.
type Lookup interface {
	Fetch(ctx context.Context, ref Ref) (*Node, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, ref Ref) (*Node, error)

// Fetch calls f.
func (f LookupFunc) Fetch(ctx context.Context, ref Ref) (*Node, error) {
	return f(ctx, ref)
}

// FilePath is the bundle path a resolved entry's code is written to.
func FilePath(ref Ref) string {
	return "/components/" + ref.Owner + "/" + ref.Slug + ".tsx"
}

// ParseRef parses "owner/slug".
func ParseRef(s string) (Ref, error) {
	owner, slug, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q is not owner/slug", ErrInvalidRef, s)
	}
	ref := Ref{Owner: owner, Slug: slug}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// ParseCanonicalURL turns the canonical URL of a published entry into a Ref.
// Accepted forms are https://<host>/<owner>/<slug>, the registry form
// https://<host>/r/<owner>/<slug> and either with a trailing ".json".
func ParseCanonicalURL(raw string) (Ref, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Ref{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return Ref{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 3 && segments[0] == "r" {
		segments = segments[1:]
	}
	if len(segments) != 2 {
		return Ref{}, fmt.Errorf("%w: expected /<owner>/<slug>, got %q", ErrInvalidURL, u.Path)
	}

	ref := Ref{Owner: segments[0], Slug: strings.TrimSuffix(segments[1], ".json")}
	if err := ref.Validate(); err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return ref, nil
}
