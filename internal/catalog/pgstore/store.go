// Package pgstore persiste el catálogo en PostgreSQL, una fila por entidad en
// catalog_entities con el documento JSON en una columna jsonb.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS catalog_entities (
	id         TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	workspace  TEXT        NOT NULL DEFAULT '',
	name       TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS catalog_entities_name_idx ON catalog_entities (kind, workspace, name);
`

// Config del pool.
type Config struct {
	DSN      string
	MaxConns int
}

// Store es un memory.Persister sobre pgxpool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open crea el pool, verifica la conexión y asegura el schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping failed: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema crea la tabla si no existe. Es idempotente.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// Close cierra el pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Put hace upsert de la entidad.
func (s *Store) Put(ctx context.Context, e catalog.Entity) error {
	if err := catalog.Validate(e); err != nil {
		return err
	}
	data, err := catalog.Marshal(e)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO catalog_entities (id, kind, workspace, name, data, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (kind, id) DO UPDATE
SET workspace = EXCLUDED.workspace, name = EXCLUDED.name, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, q, e.GetID(), string(e.Kind()), e.GetWorkspace(), e.GetName(), data, s.now().UTC())
	if err != nil {
		return fmt.Errorf("pgstore: upsert %s %s: %w", e.Kind(), e.GetID(), err)
	}
	return nil
}

// Delete borra la fila. Una fila inexistente no es error.
func (s *Store) Delete(ctx context.Context, e catalog.Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", catalog.ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM catalog_entities WHERE kind = $1 AND id = $2`, string(e.Kind()), e.GetID())
	if err != nil {
		return fmt.Errorf("pgstore: delete %s %s: %w", e.Kind(), e.GetID(), err)
	}
	return nil
}

// LoadAll lee todas las filas, workspaces primero.
func (s *Store) LoadAll(ctx context.Context) ([]catalog.Entity, error) {
	const q = `
SELECT kind, data FROM catalog_entities
ORDER BY CASE kind WHEN 'workspace' THEN 0 WHEN 'service' THEN 1 ELSE 2 END, workspace, name`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	defer rows.Close()

	var out []catalog.Entity
	for rows.Next() {
		var (
			kind string
			data []byte
		)
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		e, err := catalog.Unmarshal(catalog.Kind(kind), data)
		if err != nil {
			return nil, fmt.Errorf("pgstore: row %s: %w", kind, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	return out, nil
}

// Truncate vacía la tabla. Lo usan los tests de integración.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE catalog_entities`)
	if err != nil {
		return fmt.Errorf("pgstore: truncate: %w", err)
	}
	return nil
}

// Count devuelve la cantidad de filas de un kind.
func (s *Store) Count(ctx context.Context, kind catalog.Kind) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM catalog_entities WHERE kind = $1`, string(kind)).Scan(&n)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("pgstore: count: %w", err)
	}
	return n, nil
}
