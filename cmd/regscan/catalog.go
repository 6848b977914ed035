package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/catalog/dirstore"
	"github.com/rorkai/21st-sub000/catalog/kvstore"
	"github.com/rorkai/21st-sub000/catalog/natsbus"
	"github.com/rorkai/21st-sub000/catalog/rediscache"
	"github.com/rorkai/21st-sub000/catalog/sqlstore"
	"github.com/rorkai/21st-sub000/config"
)

// catalogStack is the configured lookup chain: backend, then the optional
// Redis layer, then the optional in-process LRU.
type catalogStack struct {
	lookup catalog.Lookup

	backend catalog.Lookup
	dir     *dirstore.Store
	redis   *rediscache.Lookup
	lru     *catalog.CachedLookup
	nc      *nats.Conn

	closers []io.Closer
}

func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalogStack, error) {
	c := cfg.Catalog
	s := &catalogStack{}

	if c.NATS.URL != "" && (c.Backend == config.BackendNATS || c.Backend == config.BackendKV || c.NATS.Serve || c.NATS.PublishResolutions) {
		nc, err := natsbus.Connect(c.NATS.URL, appName)
		if err != nil {
			return nil, err
		}
		s.nc = nc
		logger.Info("Connected to NATS", "url", c.NATS.URL)
	}

	switch c.Backend {
	case config.BackendMemory:
		s.backend = catalog.NewMemory()
	case config.BackendDir:
		store, err := dirstore.Open(ctx, dirstore.Config{Root: c.Dir, Logger: logger})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open catalog directory: %w", err)
		}
		s.dir = store
		s.backend = store
		s.closers = append(s.closers, store)
	case config.BackendSQL:
		store, err := sqlstore.Open(ctx, c.DSN, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open catalog database: %w", err)
		}
		s.backend = store
		s.closers = append(s.closers, store)
	case config.BackendNATS:
		s.backend = natsbus.NewClient(s.nc, c.NATS.Subject, c.NATS.Timeout)
	case config.BackendKV:
		js, err := jetstream.New(s.nc)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create jetstream context: %w", err)
		}
		store, err := kvstore.Open(ctx, js, c.NATS.Bucket)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.backend = store
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", c.Backend)
	}
	s.lookup = s.backend

	if c.Redis.Addr != "" {
		rc, err := rediscache.New(ctx, rediscache.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
			TTL:      c.Redis.TTL,
		}, s.lookup, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rc
		s.lookup = rc
		s.closers = append(s.closers, rc)
	}

	if c.Cache.Size > 0 {
		s.lru = catalog.NewCachedLookup(s.lookup, c.Cache.Size, c.Cache.TTL)
		s.lookup = s.lru
	}

	logger.Debug("Catalog ready",
		"backend", c.Backend,
		"redis", s.redis != nil,
		"lru", s.lru != nil)
	return s, nil
}

// invalidate drops cached copies of the given keys.
func (s *catalogStack) invalidate(ctx context.Context, keys []string, logger *slog.Logger) {
	refs := make([]catalog.Ref, 0, len(keys))
	for _, key := range keys {
		ref, err := catalog.ParseRef(key)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return
	}
	if s.lru != nil {
		s.lru.Invalidate(refs...)
	}
	if s.redis != nil {
		if err := s.redis.Invalidate(ctx, refs...); err != nil {
			logger.Warn("Failed to invalidate redis cache", "error", err)
		}
	}
}

// Close releases every backend in reverse order.
func (s *catalogStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
