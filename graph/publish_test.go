package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestPublishResolution(t *testing.T) {
	g := &Graph{
		Files:       map[string]string{"/components/o/a.tsx": "x"},
		LibraryDeps: ast.LibraryDeps{"clsx": "latest"},
		Order:       []string{"o/a"},
		Broken:      []BrokenEdge{{From: "o/a", To: catalog.Ref{Owner: "o", Slug: "b"}, Reason: "not found"}},
	}
	ev := NewResolutionEvent([]catalog.Ref{{Owner: "o", Slug: "a"}}, g)
	assert.True(t, strings.HasPrefix(ev.ID, "resolution."))

	pub := &recordingPublisher{}
	require.NoError(t, PublishResolution(context.Background(), pub, "", ev))
	assert.Equal(t, ResolvedSubject, pub.subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, []any{"o/a"}, decoded["roots"])
	assert.Equal(t, []any{"o/a"}, decoded["resolved"])
	assert.NotContains(t, decoded, "files")
}

func TestPublishResolution_NilPublisherSkips(t *testing.T) {
	assert.NoError(t, PublishResolution(context.Background(), nil, "", ResolutionEvent{}))
}

func TestPublishResolution_Errors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	err := PublishResolution(context.Background(), pub, "custom.subject", ResolutionEvent{})
	require.Error(t, err)
	assert.Equal(t, "custom.subject", pub.subject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = PublishResolution(ctx, &recordingPublisher{}, "", ResolutionEvent{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolutionID_Unique(t *testing.T) {
	assert.NotEqual(t, ResolutionID(), ResolutionID())
}
