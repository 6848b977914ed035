// Package graph resolves the transitive catalog dependencies of a component
// into a flat file set with merged library requirements, and publishes
// resolution summaries.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BrokenEdge is a dependency whose target could not be fetched.
type BrokenEdge struct {
	// From is the key of the entry declaring the dependency; empty for a
	// direct reference.
	From   string      `json:"from,omitempty"`
	To     catalog.Ref `json:"to"`
	Reason string      `json:"reason"`
	Err    error       `json:"-"`
}

// Graph is the result of a resolution.
type Graph struct {
	// Files maps bundle paths to code, one file per owner/slug.
	Files       map[string]string `json:"files"`
	LibraryDeps ast.LibraryDeps   `json:"library_deps"`
	// Order lists resolved keys breadth-first, siblings in declaration order.
	Order []string `json:"order"`
	// Resolved holds the refs of Order, with the category the catalog
	// reports when the reference did not carry one.
	Resolved []catalog.Ref `json:"resolved"`
	Broken   []BrokenEdge  `json:"broken,omitempty"`
}

// Config tunes the resolver.
type Config struct {
	// MaxConcurrency bounds parallel fetches per level. Zero means the
	// whole level is fetched at once.
	MaxConcurrency int `yaml:"max_concurrency"`

	// FetchTimeout bounds a single fetch. A fetch that times out is
	// recorded as a broken edge. Zero disables the bound.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver walks catalog dependencies. It is safe for concurrent use;
// concurrent calls share in-flight fetches of the same entry.
type Resolver struct {
	lookup  catalog.Lookup
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	flight  singleflight.Group
}

// NewResolver creates a resolver reading from lookup.
func NewResolver(lookup catalog.Lookup, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type pending struct {
	ref  catalog.Ref
	from string
	// ancestors are the keys on the path from a root to this entry.
	ancestors []string
}

type fetched struct {
	node *catalog.Node
	err  error
}

// Resolve fetches the entries reachable from direct, breadth-first.
//
// If any direct reference has no owner, Resolve returns an *AmbiguousError
// listing them and fetches nothing. Missing or failing entries are recorded
// in Graph.Broken and do not stop the walk; cancellation of ctx does.
// Self references and references back to an ancestor are dropped.
func (r *Resolver) Resolve(ctx context.Context, direct []catalog.Ref) (*Graph, error) {
	var unresolved []ast.UnknownDependency
	for _, ref := range direct {
		if ref.IsAmbiguous() {
			unresolved = append(unresolved, ast.UnknownDependency{
				SlugWithOwnerMissing: ref.Slug,
				Category:             ref.Category,
			})
		}
	}
	if len(unresolved) > 0 {
		r.metrics.resolution("ambiguous")
		return nil, &AmbiguousError{Pending: unresolved}
	}

	g := &Graph{
		Files:       make(map[string]string),
		LibraryDeps: ast.LibraryDeps{},
		Order:       []string{},
		Resolved:    []catalog.Ref{},
	}
	visited := make(map[string]bool)

	var frontier []pending
	for _, ref := range direct {
		if visited[ref.Key()] {
			continue
		}
		visited[ref.Key()] = true
		frontier = append(frontier, pending{ref: ref})
	}

	for depth := 0; len(frontier) > 0; depth++ {
		r.logger.Debug("Resolving level", "depth", depth, "entries", len(frontier))

		results, err := r.fetchLevel(ctx, frontier)
		if err != nil {
			r.metrics.resolution("aborted")
			return nil, err
		}

		var next []pending
		for i, p := range frontier {
			key := p.ref.Key()
			res := results[i]
			if res.err != nil {
				r.markBroken(g, p.from, p.ref, res.err)
				continue
			}

			g.Files[catalog.FilePath(p.ref)] = res.node.Code
			g.LibraryDeps.Merge(res.node.LibraryDeps)
			g.Order = append(g.Order, key)
			resolved := p.ref
			if resolved.Category == "" {
				resolved.Category = res.node.Ref.Category
			}
			g.Resolved = append(g.Resolved, resolved)

			ancestors := append(slices.Clone(p.ancestors), key)
			for _, child := range res.node.CatalogRefs {
				childKey := child.Key()
				switch {
				case child.IsAmbiguous():
					r.markBroken(g, key, child, &AmbiguousError{Pending: []ast.UnknownDependency{{
						SlugWithOwnerMissing: child.Slug,
						Category:             child.Category,
					}}})
				case childKey == key:
					r.logger.Debug("Dropping self reference", "ref", key)
				case slices.Contains(ancestors, childKey):
					r.logger.Debug("Dropping cyclic reference", "from", key, "to", childKey)
				case visited[childKey]:
					r.logger.Debug("Dependency already resolved", "from", key, "to", childKey)
				default:
					visited[childKey] = true
					next = append(next, pending{ref: child, from: key, ancestors: ancestors})
				}
			}
		}
		frontier = next
	}

	r.metrics.resolution("ok")
	return g, nil
}

// fetchLevel fetches one BFS level concurrently. Results are positional so
// the caller can process them in declaration order.
func (r *Resolver) fetchLevel(ctx context.Context, level []pending) ([]fetched, error) {
	results := make([]fetched, len(level))

	eg, egCtx := errgroup.WithContext(ctx)
	limit := r.cfg.MaxConcurrency
	if limit <= 0 {
		limit = len(level)
	}
	eg.SetLimit(limit)

	for i, p := range level {
		i, p := i, p
		eg.Go(func() error {
			node, err := r.fetch(egCtx, p.ref)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = fetched{node: node, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("resolve aborted: %w", err)
	}
	return results, nil
}

// fetch loads one entry, sharing the call with concurrent resolutions of the
// same key. The shared call is detached from any single caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (r *Resolver) fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	ch := r.flight.DoChan(ref.Key(), func() (any, error) {
		return r.fetchOnce(context.WithoutCancel(ctx), ref)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Node), nil
	}
}

func (r *Resolver) fetchOnce(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	node, err := r.lookup.Fetch(ctx, ref)
	switch {
	case err == nil && node == nil:
		err = fmt.Errorf("%s: %w", ref, catalog.ErrNotFound)
		r.metrics.observeFetch(OutcomeNotFound, time.Since(start))
	case err == nil:
		r.metrics.observeFetch(OutcomeFound, time.Since(start))
	case errors.Is(err, catalog.ErrNotFound):
		r.metrics.observeFetch(OutcomeNotFound, time.Since(start))
	default:
		r.metrics.observeFetch(OutcomeError, time.Since(start))
	}
	return node, err
}

func (r *Resolver) markBroken(g *Graph, from string, to catalog.Ref, err error) {
	g.Broken = append(g.Broken, BrokenEdge{From: from, To: to, Reason: err.Error(), Err: err})
	r.metrics.brokenEdge()
	r.logger.Warn("Broken dependency", "from", from, "to", to.String(), "error", err)
}
