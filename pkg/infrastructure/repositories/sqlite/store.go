package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// querier is the part of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store is a repositories.Store backed by SQLite.
type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

// NewStore wraps an open database. Use Open to get one with the schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Verify interface compliance
var _ repositories.Store = (*Store)(nil)

// WithinTx runs fn inside a database transaction, committing only if fn returns nil.
// Calls on a transaction-bound store join the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Parts returns the part repository view.
func (s *Store) Parts() repositories.PartRepository { return &PartRepository{q: s.q} }

// BOM returns the BOM repository view.
func (s *Store) BOM() repositories.BOMRepository { return &BOMRepository{q: s.q} }

// Validations returns the validation state repository view.
func (s *Store) Validations() repositories.ValidationRepository {
	return &ValidationRepository{q: s.q}
}

// Stock returns the stock repository view.
func (s *Store) Stock() repositories.StockRepository { return &StockRepository{q: s.q} }

// Builds returns the build repository view.
func (s *Store) Builds() repositories.BuildRepository { return &BuildRepository{q: s.q} }

// Allocations returns the allocation repository view.
func (s *Store) Allocations() repositories.AllocationRepository {
	return &AllocationRepository{q: s.q}
}

func notFound(kind, id string) error {
	return &entities.NotFoundError{Kind: kind, ID: id}
}

func encodeList[T any](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func decodeList[T any](raw string) ([]T, error) {
	var values []T
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func checkAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s update: %w", kind, err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// Times are stored as RFC 3339 text in UTC.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", s.String, err)
	}
	return &t, nil
}
