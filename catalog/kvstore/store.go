// Package kvstore serves a catalog from a NATS JetStream key-value bucket.
// Entries are stored as JSON under the key "<owner>/<slug>".
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rorkai/21st-sub000/catalog"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "REGSCAN_CATALOG"

// Store provides catalog storage backed by NATS KV.
type Store struct {
	kv jetstream.KeyValue
}

// Open binds to bucket, creating it if it doesn't exist.
func Open(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("open catalog bucket %s: %w", bucket, err)
	}
	return New(kv), nil
}

// New wraps an existing bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Regscan component catalog",
		History:     5,
	})
}

// Fetch implements catalog.Lookup.
func (s *Store) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	entry, err := s.kv.Get(ctx, ref.Key())
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, catalog.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}

	var node catalog.Node
	if err := json.Unmarshal(entry.Value(), &node); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", ref, err)
	}
	return &node, nil
}

// Put stores node, replacing any previous revision.
func (s *Store) Put(ctx context.Context, node *catalog.Node) error {
	if err := node.Ref.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", node.Ref, err)
	}
	if _, err := s.kv.Put(ctx, node.Ref.Key(), data); err != nil {
		return fmt.Errorf("put %s: %w", node.Ref, err)
	}
	return nil
}

// Delete removes ref.
func (s *Store) Delete(ctx context.Context, ref catalog.Ref) error {
	if err := s.kv.Delete(ctx, ref.Key()); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// Keys lists stored entries as "owner/slug", sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list catalog keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}
