// Package postgres implements the database side of the repository layer:
// descriptor-driven list queries and the entity write paths, over a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dlist "github.com/jcailloux/relais-sub002"
)

// Config describes how an entity type maps onto its table.
type Config[E any] struct {
	// Table is the backing table name.
	Table string
	// Columns is the select list, in the order Scan expects.
	Columns []string
	// IDColumn is the primary-key column; it doubles as the sort
	// tiebreaker for cursor pagination. Empty selects "id".
	IDColumn string
	// Scan maps one row onto an entity.
	Scan func(row pgx.CollectableRow) (E, error)
	// Values maps an entity onto its column values for INSERT and UPDATE.
	Values func(e E) map[string]any
}

func (c Config[E]) withDefaults() Config[E] {
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	return c
}

// Store executes the repository's database operations for one entity type.
// It implements [dlist.Source].
type Store[E any] struct {
	pool *pgxpool.Pool
	desc dlist.Descriptor[E]
	cfg  Config[E]
}

// NewStore creates a Store for the descriptor's entity type.
func NewStore[E any](pool *pgxpool.Pool, desc dlist.Descriptor[E], cfg Config[E]) (*Store[E], error) {
	cfg = cfg.withDefaults()
	switch {
	case cfg.Table == "":
		return nil, errors.New("postgres: Config.Table must be set")
	case len(cfg.Columns) == 0:
		return nil, errors.New("postgres: Config.Columns must be set")
	case cfg.Scan == nil:
		return nil, errors.New("postgres: Config.Scan must be set")
	case cfg.Values == nil:
		return nil, errors.New("postgres: Config.Values must be set")
	}
	return &Store[E]{pool: pool, desc: desc, cfg: cfg}, nil
}

// SelectPage returns one page of entities for q, over-fetched by one row;
// the caller trims to q.Limit and uses the extra row to mark the page
// complete.
func (s *Store[E]) SelectPage(ctx context.Context, q dlist.Query) ([]E, error) {
	sql, err := buildListQuery(s.desc, s.cfg, q)
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing list query: %w", err)
	}
	return pgx.CollectRows(rows, s.cfg.Scan)
}

// GetByID returns the entity identified by id, reporting found=false for a
// clean not-found.
func (s *Store[E]) GetByID(ctx context.Context, id string) (e E, found bool, err error) {
	sql, err := buildGetQuery(s.cfg, id)
	if err != nil {
		return e, false, err
	}
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return e, false, err
	}
	e, err = pgx.CollectOneRow(rows, s.cfg.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	return e, true, nil
}

// Insert writes e as a new row.
func (s *Store[E]) Insert(ctx context.Context, e E) error {
	sql, _, err := goqu.Dialect("postgres").
		Insert(s.cfg.Table).
		Rows(goqu.Record(s.cfg.Values(e))).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sql)
	return err
}

// Update replaces the row identified by id with e's values, returning the
// previous entity so the caller can compute old sort values.
func (s *Store[E]) Update(ctx context.Context, id string, e E) (old E, found bool, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		old, found, err = s.getForUpdate(ctx, tx, id)
		if err != nil || !found {
			return err
		}
		sql, _, err := goqu.Dialect("postgres").
			Update(s.cfg.Table).
			Set(goqu.Record(s.cfg.Values(e))).
			Where(goqu.C(s.cfg.IDColumn).Eq(id)).
			ToSQL()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql)
		return err
	})
	return old, found, err
}

// Patch applies a partial column update to the row identified by id,
// returning both the previous and resulting entity.
func (s *Store[E]) Patch(ctx context.Context, id string, fields map[string]any) (old, cur E, found bool, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		old, found, err = s.getForUpdate(ctx, tx, id)
		if err != nil || !found {
			return err
		}
		sql, _, err := goqu.Dialect("postgres").
			Update(s.cfg.Table).
			Set(goqu.Record(fields)).
			Where(goqu.C(s.cfg.IDColumn).Eq(id)).
			ToSQL()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			return err
		}
		cur, found, err = s.getForUpdate(ctx, tx, id)
		return err
	})
	return old, cur, found, err
}

// Delete removes the row identified by id, returning the previous entity.
func (s *Store[E]) Delete(ctx context.Context, id string) (old E, found bool, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		old, found, err = s.getForUpdate(ctx, tx, id)
		if err != nil || !found {
			return err
		}
		sql, _, err := goqu.Dialect("postgres").
			Delete(s.cfg.Table).
			Where(goqu.C(s.cfg.IDColumn).Eq(id)).
			ToSQL()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql)
		return err
	})
	return old, found, err
}

// getForUpdate reads the current row for id inside tx with a row lock, so
// the old/new pair a write path reports is consistent with the write.
func (s *Store[E]) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (e E, found bool, err error) {
	sql, err := buildGetQuery(s.cfg, id)
	if err != nil {
		return e, false, err
	}
	rows, err := tx.Query(ctx, sql+" FOR UPDATE")
	if err != nil {
		return e, false, err
	}
	e, err = pgx.CollectOneRow(rows, s.cfg.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	return e, true, nil
}
