package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
)

// ResolvedSubject is the subject resolution summaries are published on.
const ResolvedSubject = "regscan.graph.resolved"

// ResolutionEvent summarizes one completed resolution for downstream
// consumers (preview builders, audit).
type ResolutionEvent struct {
	ID          string          `json:"id"`
	Roots       []string        `json:"roots"`
	Resolved    []string        `json:"resolved"`
	Broken      []BrokenEdge    `json:"broken,omitempty"`
	LibraryDeps ast.LibraryDeps `json:"library_deps"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// NewResolutionEvent builds the event for a resolution of roots.
func NewResolutionEvent(roots []catalog.Ref, g *Graph) ResolutionEvent {
	keys := make([]string, len(roots))
	for i, r := range roots {
		keys[i] = r.Key()
	}
	return ResolutionEvent{
		ID:          ResolutionID(),
		Roots:       keys,
		Resolved:    g.Order,
		Broken:      g.Broken,
		LibraryDeps: g.LibraryDeps,
		ResolvedAt:  time.Now().UTC(),
	}
}

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// PublishResolution publishes the event on subject (ResolvedSubject when
// empty). A nil publisher skips publishing.
func PublishResolution(ctx context.Context, pub Publisher, subject string, ev ResolutionEvent) error {
	if pub == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if subject == "" {
		subject = ResolvedSubject
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal resolution event: %w", err)
	}
	if err := pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish resolution event: %w", err)
	}
	return nil
}

// ResolutionID generates a unique resolution identifier.
// Format: resolution.<uuid>
func ResolutionID() string {
	return fmt.Sprintf("resolution.%s", uuid.NewString())
}
