// Package config provides configuration loading and management for regscan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
	BackendSQL    = "sql"
	BackendNATS   = "nats"
	BackendKV     = "kv"
)

// Config represents the complete regscan configuration
type Config struct {
	Classifier ts.ClassifierConfig `yaml:"classifier"`
	Resolver   graph.Config        `yaml:"resolver"`
	Catalog    CatalogConfig       `yaml:"catalog"`
	Bundle     bundle.Config       `yaml:"bundle"`
	Server     ServerConfig        `yaml:"server"`
}

// CatalogConfig selects and tunes the catalog backend
type CatalogConfig struct {
	// Backend is one of memory, dir, sql, nats or kv
	Backend string `yaml:"backend"`
	// Dir is the manifest directory for the dir backend
	Dir string `yaml:"dir"`
	// Watch reloads the dir backend on file changes
	Watch bool `yaml:"watch"`
	// DSN is the Postgres connection string for the sql backend
	DSN   string      `yaml:"dsn"`
	NATS  NATSConfig  `yaml:"nats"`
	Cache CacheConfig `yaml:"cache"`
	Redis RedisConfig `yaml:"redis"`
}

// NATSConfig configures the catalog request/reply bus
type NATSConfig struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
	// Serve answers catalog requests from the local backend
	Serve bool   `yaml:"serve"`
	Queue string `yaml:"queue"`
	// Bucket is the JetStream key-value bucket for the kv backend
	Bucket string `yaml:"bucket"`
	// PublishResolutions emits an event after every resolution
	PublishResolutions bool `yaml:"publish_resolutions"`
}

// CacheConfig configures the in-process LRU (size 0 disables it)
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// RedisConfig configures the shared cache (empty addr disables it)
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Classifier: ts.DefaultClassifierConfig(),
		Resolver: graph.Config{
			MaxConcurrency: 8,
			FetchTimeout:   10 * time.Second,
		},
		Catalog: CatalogConfig{
			Backend: BackendMemory,
			NATS: NATSConfig{
				Subject: "regscan.catalog.fetch",
				Timeout: 5 * time.Second,
				Queue:   "regscan",
				Bucket:  "REGSCAN_CATALOG",
			},
			Cache: CacheConfig{
				Size: 1024,
				TTL:  5 * time.Minute,
			},
			Redis: RedisConfig{
				Prefix: "regscan:catalog:",
				TTL:    10 * time.Minute,
			},
		},
		Bundle: bundle.DefaultConfig(),
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 4 << 20,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Classifier.DirectPrefix == "" {
		return fmt.Errorf("classifier.direct_prefix is required")
	}
	for _, p := range c.Classifier.AmbiguousPatterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("classifier.ambiguous_patterns: invalid pattern %q", p)
		}
	}
	if c.Resolver.MaxConcurrency < 0 {
		return fmt.Errorf("resolver.max_concurrency must not be negative")
	}
	if c.Resolver.FetchTimeout < 0 {
		return fmt.Errorf("resolver.fetch_timeout must not be negative")
	}

	switch c.Catalog.Backend {
	case BackendMemory:
	case BackendDir:
		if c.Catalog.Dir == "" {
			return fmt.Errorf("catalog.dir is required for the dir backend")
		}
	case BackendSQL:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn is required for the sql backend")
		}
	case BackendNATS, BackendKV:
		if c.Catalog.NATS.URL == "" {
			return fmt.Errorf("catalog.nats.url is required for the %s backend", c.Catalog.Backend)
		}
	default:
		return fmt.Errorf("catalog.backend %q is not one of memory, dir, sql, nats, kv", c.Catalog.Backend)
	}
	if c.Catalog.NATS.Serve && c.Catalog.NATS.URL == "" {
		return fmt.Errorf("catalog.nats.url is required to serve catalog requests")
	}
	if c.Catalog.Cache.Size < 0 {
		return fmt.Errorf("catalog.cache.size must not be negative")
	}

	if !strings.HasPrefix(c.Bundle.EntryPath, "/") {
		return fmt.Errorf("bundle.entry_path must be absolute")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. ${VAR} and
// ${VAR:-default} references are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Classifier
	oc := other.Classifier
	if oc.AliasRoot != "" {
		c.Classifier.AliasRoot = oc.AliasRoot
	}
	if oc.DirectPrefix != "" {
		c.Classifier.DirectPrefix = oc.DirectPrefix
	}
	if len(oc.AmbiguousPatterns) > 0 {
		c.Classifier.AmbiguousPatterns = oc.AmbiguousPatterns
	}
	if len(oc.RuntimePackages) > 0 {
		c.Classifier.RuntimePackages = oc.RuntimePackages
	}
	if len(oc.ReservedPrefixes) > 0 {
		c.Classifier.ReservedPrefixes = oc.ReservedPrefixes
	}
	if len(oc.PackageAliases) > 0 {
		c.Classifier.PackageAliases = oc.PackageAliases
	}

	// Resolver
	if other.Resolver.MaxConcurrency != 0 {
		c.Resolver.MaxConcurrency = other.Resolver.MaxConcurrency
	}
	if other.Resolver.FetchTimeout != 0 {
		c.Resolver.FetchTimeout = other.Resolver.FetchTimeout
	}

	c.Catalog.merge(other.Catalog)

	// Bundle
	if len(other.Bundle.BaselineLibraries) > 0 {
		c.Bundle.BaselineLibraries = other.Bundle.BaselineLibraries
	}
	if other.Bundle.EntryPath != "" {
		c.Bundle.EntryPath = other.Bundle.EntryPath
	}
	if other.Bundle.DemoPath != "" {
		c.Bundle.DemoPath = other.Bundle.DemoPath
	}
	if other.Bundle.ComponentDir != "" {
		c.Bundle.ComponentDir = other.Bundle.ComponentDir
	}
	if other.Bundle.Theme != "" {
		c.Bundle.Theme = other.Bundle.Theme
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxBodyBytes != 0 {
		c.Server.MaxBodyBytes = other.Server.MaxBodyBytes
	}
}

func (c *CatalogConfig) merge(o CatalogConfig) {
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.Dir != "" {
		c.Dir = o.Dir
	}
	if o.Watch {
		c.Watch = true
	}
	if o.DSN != "" {
		c.DSN = o.DSN
	}

	if o.NATS.URL != "" {
		c.NATS.URL = o.NATS.URL
	}
	if o.NATS.Subject != "" {
		c.NATS.Subject = o.NATS.Subject
	}
	if o.NATS.Timeout != 0 {
		c.NATS.Timeout = o.NATS.Timeout
	}
	if o.NATS.Serve {
		c.NATS.Serve = true
	}
	if o.NATS.Queue != "" {
		c.NATS.Queue = o.NATS.Queue
	}
	if o.NATS.Bucket != "" {
		c.NATS.Bucket = o.NATS.Bucket
	}
	if o.NATS.PublishResolutions {
		c.NATS.PublishResolutions = true
	}

	if o.Cache.Size != 0 {
		c.Cache.Size = o.Cache.Size
	}
	if o.Cache.TTL != 0 {
		c.Cache.TTL = o.Cache.TTL
	}

	if o.Redis.Addr != "" {
		c.Redis.Addr = o.Redis.Addr
	}
	if o.Redis.Password != "" {
		c.Redis.Password = o.Redis.Password
	}
	if o.Redis.DB != 0 {
		c.Redis.DB = o.Redis.DB
	}
	if o.Redis.Prefix != "" {
		c.Redis.Prefix = o.Redis.Prefix
	}
	if o.Redis.TTL != 0 {
		c.Redis.TTL = o.Redis.TTL
	}
}

// ExpandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
