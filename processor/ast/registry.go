package ast

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// GrammarFactory returns the tree-sitter language for a dialect.
type GrammarFactory func() *sitter.Language

// GrammarRegistry maintains a registry of source dialects.
// Dialects are registered by name with their file extensions.
// Thread-safe for concurrent access.
type GrammarRegistry struct {
	mu       sync.RWMutex
	grammars map[string]GrammarFactory // name → factory
	extMap   map[string]string         // extension → dialect name
}

// NewGrammarRegistry creates a new empty grammar registry.
func NewGrammarRegistry() *GrammarRegistry {
	return &GrammarRegistry{
		grammars: make(map[string]GrammarFactory),
		extMap:   make(map[string]string),
	}
}

// Register adds a grammar factory for the given extensions.
// The first registration wins if there's an extension conflict.
// Extensions should include the leading dot (e.g., ".tsx", ".js").
func (r *GrammarRegistry) Register(name string, extensions []string, factory GrammarFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.grammars[name] = factory

	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = name
		}
	}
}

// Language returns the tree-sitter language registered under name.
func (r *GrammarRegistry) Language(name string) (*sitter.Language, error) {
	r.mu.RLock()
	factory, ok := r.grammars[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("dialect not registered: %s", name)
	}
	return factory(), nil
}

// DialectForFile returns the dialect registered for a file's extension.
// Returns empty string and false if no dialect is registered for it.
func (r *GrammarRegistry) DialectForFile(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.extMap[strings.ToLower(filepath.Ext(path))]
	return name, ok
}

// ListDialects returns all registered dialect names, sorted.
func (r *GrammarRegistry) ListDialects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.grammars))
	for name := range r.grammars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDialect returns true if a dialect with the given name is registered.
func (r *GrammarRegistry) HasDialect(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.grammars[name]
	return ok
}

// DefaultRegistry is the global grammar registry.
// Dialect packages register themselves via init() functions.
var DefaultRegistry = NewGrammarRegistry()
