package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process catalog, used for tests, fixtures and as the
// snapshot behind the directory store.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewMemory creates a catalog holding nodes.
func NewMemory(nodes ...*Node) *Memory {
	m := &Memory{nodes: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		m.nodes[n.Ref.Key()] = n
	}
	return m
}

// Put adds or replaces a node.
func (m *Memory) Put(node *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.Ref.Key()] = node
}

// Delete removes the entry for ref, if any.
func (m *Memory) Delete(ref Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, ref.Key())
}

// Replace swaps the whole content of the catalog.
func (m *Memory) Replace(nodes []*Node) {
	next := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		next[n.Ref.Key()] = n
	}
	m.mu.Lock()
	m.nodes = next
	m.mu.Unlock()
}

// Fetch implements Lookup.
func (m *Memory) Fetch(ctx context.Context, ref Ref) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	node, ok := m.nodes[ref.Key()]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return node, nil
}

// Keys returns the keys of all entries, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.nodes))
	for k := range m.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}
