package dirstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rorkai/21st-sub000/catalog"
)

// DefaultPattern selects manifest files below the root.
const DefaultPattern = "**/*.{yaml,yml}"

// Config configures a directory store.
type Config struct {
	// Root is the catalog directory.
	Root string

	// Pattern is a doublestar pattern, relative to Root, selecting manifests.
	Pattern string

	// DebounceDelay is how long to collect changes before reloading.
	DebounceDelay time.Duration

	Logger *slog.Logger
}

// ReloadEvent describes one completed reload.
type ReloadEvent struct {
	Added   []string
	Updated []string
	Removed []string
	// Errors holds per-manifest failures; those manifests were skipped.
	Errors []error
}

// Empty reports whether the reload changed nothing.
func (e ReloadEvent) Empty() bool {
	return len(e.Added) == 0 && len(e.Updated) == 0 && len(e.Removed) == 0 && len(e.Errors) == 0
}

// Store is a catalog.Lookup backed by a manifest directory.
type Store struct {
	cfg    Config
	logger *slog.Logger
	nodes  *catalog.Memory

	reloadMu sync.Mutex
	hashes   map[string]string // key → content hash

	watcher   *fsnotify.Watcher
	pendingMu sync.Mutex
	pending   bool

	events chan ReloadEvent
}

// Open loads every manifest under cfg.Root.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("stat catalog root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog root is not a directory: %s", cfg.Root)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid manifest pattern %q", cfg.Pattern)
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		nodes:  catalog.NewMemory(),
		hashes: make(map[string]string),
		events: make(chan ReloadEvent, 16),
	}

	ev, err := s.Reload(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Catalog directory loaded",
		"root", cfg.Root,
		"entries", s.nodes.Len(),
		"errors", len(ev.Errors))
	return s, nil
}

// Fetch implements catalog.Lookup.
func (s *Store) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	return s.nodes.Fetch(ctx, ref)
}

// Keys lists the loaded entries.
func (s *Store) Keys() []string {
	return s.nodes.Keys()
}

// Events returns the channel of reloads triggered by the watcher.
func (s *Store) Events() <-chan ReloadEvent {
	return s.events
}

// Reload rescans the directory and swaps in the new content. A manifest that
// fails to load is reported in the event and left out; the rest still load.
func (s *Store) Reload(ctx context.Context) (ReloadEvent, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	matches, err := doublestar.Glob(os.DirFS(s.cfg.Root), s.cfg.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return ReloadEvent{}, fmt.Errorf("scan catalog root: %w", err)
	}
	sort.Strings(matches)

	var (
		ev     ReloadEvent
		nodes  []*catalog.Node
		hashes = make(map[string]string, len(matches))
	)
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return ReloadEvent{}, err
		}
		if hidden(rel) {
			continue
		}

		node, hash, err := LoadManifest(filepath.Join(s.cfg.Root, filepath.FromSlash(rel)))
		if err != nil {
			s.logger.Warn("Skipping catalog manifest", "path", rel, "error", err)
			ev.Errors = append(ev.Errors, err)
			continue
		}
		key := node.Ref.Key()
		if _, dup := hashes[key]; dup {
			err := fmt.Errorf("manifest %s: duplicate entry %s", rel, key)
			s.logger.Warn("Skipping catalog manifest", "path", rel, "error", err)
			ev.Errors = append(ev.Errors, err)
			continue
		}
		hashes[key] = hash
		nodes = append(nodes, node)

		old, existed := s.hashes[key]
		switch {
		case !existed:
			ev.Added = append(ev.Added, key)
		case old != hash:
			ev.Updated = append(ev.Updated, key)
		}
	}
	for key := range s.hashes {
		if _, ok := hashes[key]; !ok {
			ev.Removed = append(ev.Removed, key)
		}
	}
	sort.Strings(ev.Removed)

	s.nodes.Replace(nodes)
	s.hashes = hashes
	return ev, nil
}

// Watch starts watching the directory. Changes are debounced and trigger a
// reload; each non-empty reload is sent on Events. Watching stops when ctx
// is done or Close is called.
func (s *Store) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = fsw

	if err := s.addWatchesRecursive(s.cfg.Root); err != nil {
		_ = fsw.Close()
		return err
	}

	go s.processEvents(ctx)

	s.logger.Info("Catalog watcher started",
		"root", s.cfg.Root,
		"debounce", s.cfg.DebounceDelay)
	return nil
}

// Close stops the watcher, if running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Store) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			s.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (s *Store) processEvents(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Catalog watcher error", "error", err)

		case <-ticker.C:
			s.flushPending(ctx)
		}
	}
}

func (s *Store) handleFSEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if err := s.addWatchesRecursive(event.Name); err != nil {
					s.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			s.markPending()
			return
		}
	}
	if event.Op == fsnotify.Chmod {
		return
	}
	s.logger.Debug("Catalog change detected", "path", event.Name, "op", event.Op.String())
	s.markPending()
}

func (s *Store) markPending() {
	s.pendingMu.Lock()
	s.pending = true
	s.pendingMu.Unlock()
}

func (s *Store) flushPending(ctx context.Context) {
	s.pendingMu.Lock()
	if !s.pending {
		s.pendingMu.Unlock()
		return
	}
	s.pending = false
	s.pendingMu.Unlock()

	ev, err := s.Reload(ctx)
	if err != nil {
		s.logger.Error("Catalog reload failed", "error", err)
		return
	}
	if ev.Empty() {
		return
	}
	s.logger.Info("Catalog reloaded",
		"added", len(ev.Added),
		"updated", len(ev.Updated),
		"removed", len(ev.Removed),
		"errors", len(ev.Errors))

	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Reload event channel full, dropping event")
	}
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
