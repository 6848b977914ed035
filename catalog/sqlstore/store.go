// Package sqlstore serves the catalog from a PostgreSQL table through
// database/sql and the pgx driver.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
)

// Schema creates the components table.
const Schema = `CREATE TABLE IF NOT EXISTS components (
	owner        TEXT NOT NULL,
	slug         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	code         TEXT NOT NULL,
	library_deps JSONB NOT NULL DEFAULT '{}'::jsonb,
	catalog_refs JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, slug)
)`

const (
	fetchQuery = `SELECT category, code, library_deps, catalog_refs FROM components WHERE owner = $1 AND slug = $2`

	upsertQuery = `INSERT INTO components (owner, slug, category, code, library_deps, catalog_refs, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (owner, slug) DO UPDATE SET
	category = EXCLUDED.category,
	code = EXCLUDED.code,
	library_deps = EXCLUDED.library_deps,
	catalog_refs = EXCLUDED.catalog_refs,
	updated_at = now()`

	deleteQuery = `DELETE FROM components WHERE owner = $1 AND slug = $2`

	listQuery = `SELECT owner, slug FROM components ORDER BY owner, slug`
)

// Store is a catalog.Lookup backed by SQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Open connects to PostgreSQL with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, logger), nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Fetch implements catalog.Lookup.
func (s *Store) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	var (
		category string
		code     string
		depsJSON []byte
		refsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, fetchQuery, ref.Owner, ref.Slug).Scan(&category, &code, &depsJSON, &refsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}

	node := &catalog.Node{
		Ref:         catalog.Ref{Owner: ref.Owner, Slug: ref.Slug, Category: category},
		Code:        code,
		LibraryDeps: ast.LibraryDeps{},
	}
	if len(depsJSON) > 0 {
		if err := json.Unmarshal(depsJSON, &node.LibraryDeps); err != nil {
			return nil, fmt.Errorf("decode library deps of %s: %w", ref, err)
		}
	}
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &node.CatalogRefs); err != nil {
			return nil, fmt.Errorf("decode catalog refs of %s: %w", ref, err)
		}
	}
	return node, nil
}

// Put inserts or replaces an entry.
func (s *Store) Put(ctx context.Context, node *catalog.Node) error {
	if err := node.Ref.Validate(); err != nil {
		return err
	}
	deps := node.LibraryDeps
	if deps == nil {
		deps = ast.LibraryDeps{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("encode library deps: %w", err)
	}
	refs := node.CatalogRefs
	if refs == nil {
		refs = []catalog.Ref{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode catalog refs: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, upsertQuery,
		node.Ref.Owner, node.Ref.Slug, node.Ref.Category, node.Code, depsJSON, refsJSON); err != nil {
		return fmt.Errorf("upsert %s: %w", node.Ref, err)
	}
	s.logger.Debug("Stored catalog entry", "ref", node.Ref.Key())
	return nil
}

// Delete removes an entry. Deleting a missing entry returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, ref catalog.Ref) error {
	res, err := s.db.ExecContext(ctx, deleteQuery, ref.Owner, ref.Slug)
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", ref, catalog.ErrNotFound)
	}
	return nil
}

// List returns the keys of all entries in owner/slug order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var ref catalog.Ref
		if err := rows.Scan(&ref.Owner, &ref.Slug); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		keys = append(keys, ref.Key())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return keys, nil
}
