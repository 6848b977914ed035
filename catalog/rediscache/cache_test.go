package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	backend catalog.Lookup
	calls   int
}

func (c *countingLookup) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	c.calls++
	return c.backend.Fetch(ctx, ref)
}

func setupTestRedis(t *testing.T) (*Lookup, *countingLookup, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := &countingLookup{backend: catalog.NewMemory(&catalog.Node{
		Ref:         catalog.Ref{Owner: "shadcn", Slug: "button", Category: "ui"},
		Code:        "export function Button() {}",
		LibraryDeps: ast.LibraryDeps{"clsx": "latest"},
		CatalogRefs: []catalog.Ref{{Owner: "shadcn", Slug: "slot"}},
	})}

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	l := NewWithClient(client, cfg, backend, nil)
	t.Cleanup(func() { _ = l.Close() })
	return l, backend, mr
}

func TestNew_ConnectionError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "localhost:1"
	_, err := New(context.Background(), cfg, catalog.NewMemory(), nil)
	assert.Error(t, err)
}

func TestLookup_ReadThrough(t *testing.T) {
	l, backend, mr := setupTestRedis(t)
	ctx := context.Background()
	ref := catalog.Ref{Owner: "shadcn", Slug: "button"}

	first, err := l.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.True(t, mr.Exists("regscan:catalog:shadcn/button"))

	second, err := l.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, []catalog.Ref{{Owner: "shadcn", Slug: "slot"}}, second.CatalogRefs)
}

func TestLookup_TTL(t *testing.T) {
	l, backend, mr := setupTestRedis(t)
	ctx := context.Background()
	ref := catalog.Ref{Owner: "shadcn", Slug: "button"}

	_, err := l.Fetch(ctx, ref)
	require.NoError(t, err)

	mr.FastForward(11 * time.Minute)

	_, err = l.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestLookup_MissesAreNotCached(t *testing.T) {
	l, backend, mr := setupTestRedis(t)
	ctx := context.Background()
	ref := catalog.Ref{Owner: "shadcn", Slug: "missing"}

	_, err := l.Fetch(ctx, ref)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, mr.Exists("regscan:catalog:shadcn/missing"))

	_, _ = l.Fetch(ctx, ref)
	assert.Equal(t, 2, backend.calls)
}

func TestLookup_CorruptEntryFallsThrough(t *testing.T) {
	l, backend, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("regscan:catalog:shadcn/button", "{garbage"))

	node, err := l.Fetch(context.Background(), catalog.Ref{Owner: "shadcn", Slug: "button"})
	require.NoError(t, err)
	assert.Equal(t, "export function Button() {}", node.Code)
	assert.Equal(t, 1, backend.calls)
}

func TestLookup_RedisDownFallsThrough(t *testing.T) {
	l, backend, mr := setupTestRedis(t)
	mr.Close()

	node, err := l.Fetch(context.Background(), catalog.Ref{Owner: "shadcn", Slug: "button"})
	require.NoError(t, err)
	assert.Equal(t, "button", node.Ref.Slug)
	assert.Equal(t, 1, backend.calls)
}

func TestLookup_Invalidate(t *testing.T) {
	l, backend, _ := setupTestRedis(t)
	ctx := context.Background()
	ref := catalog.Ref{Owner: "shadcn", Slug: "button"}

	_, _ = l.Fetch(ctx, ref)
	require.NoError(t, l.Invalidate(ctx, ref))
	require.NoError(t, l.Invalidate(ctx))
	_, _ = l.Fetch(ctx, ref)
	assert.Equal(t, 2, backend.calls)
}
