package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV implements the subset of jetstream.KeyValue the store uses.
type fakeKV struct {
	jetstream.KeyValue
	data   map[string][]byte
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{value: v}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func (f *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	delete(f.data, key)
	return nil
}

func (f *fakeKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	if len(f.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestStore_PutFetch(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeKV())

	node := &catalog.Node{
		Ref:         catalog.Ref{Owner: "shadcn", Slug: "button", Category: "ui"},
		Code:        "export function Button() {}",
		LibraryDeps: ast.LibraryDeps{"clsx": ast.LatestTag},
		CatalogRefs: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	}
	require.NoError(t, s.Put(ctx, node))

	got, err := s.Fetch(ctx, catalog.Ref{Owner: "shadcn", Slug: "button"})
	require.NoError(t, err)
	assert.Equal(t, node, got)
}

func TestStore_FetchNotFound(t *testing.T) {
	s := New(newFakeKV())

	_, err := s.Fetch(context.Background(), catalog.Ref{Owner: "acme", Slug: "missing"})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStore_FetchBackendError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("nats: timeout")
	s := New(kv)

	_, err := s.Fetch(context.Background(), catalog.Ref{Owner: "acme", Slug: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, catalog.ErrNotFound))
}

func TestStore_FetchCorruptEntry(t *testing.T) {
	kv := newFakeKV()
	kv.data["acme/x"] = []byte("{not json")
	s := New(kv)

	_, err := s.Fetch(context.Background(), catalog.Ref{Owner: "acme", Slug: "x"})
	assert.Error(t, err)
}

func TestStore_PutRejectsInvalidRef(t *testing.T) {
	s := New(newFakeKV())

	err := s.Put(context.Background(), &catalog.Node{Ref: catalog.Ref{Slug: "button"}})
	assert.ErrorIs(t, err, catalog.ErrInvalidRef)
}

func TestStore_KeysAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeKV())

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, slug := range []string{"card", "button"} {
		require.NoError(t, s.Put(ctx, &catalog.Node{Ref: catalog.Ref{Owner: "shadcn", Slug: slug}}))
	}
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shadcn/button", "shadcn/card"}, keys)

	require.NoError(t, s.Delete(ctx, catalog.Ref{Owner: "shadcn", Slug: "card"}))
	_, err = s.Fetch(ctx, catalog.Ref{Owner: "shadcn", Slug: "card"})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
