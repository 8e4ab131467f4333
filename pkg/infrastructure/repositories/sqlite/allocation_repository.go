package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// AllocationRepository stores build line allocations in SQLite
type AllocationRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.AllocationRepository = (*AllocationRepository)(nil)

const allocationColumns = `id, build, output, bom_line, stock_item, quantity, created_at`

func scanAllocation(row scanner) (*entities.BuildLineAllocation, error) {
	var (
		a       entities.BuildLineAllocation
		created sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Build, &a.Output, &a.BOMLine, &a.StockItem, &a.Quantity, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	if t != nil {
		a.CreatedAt = *t
	}
	return &a, nil
}

// GetAllocation returns an allocation by id
func (r *AllocationRepository) GetAllocation(ctx context.Context, id entities.AllocationID) (*entities.BuildLineAllocation, error) {
	a, err := scanAllocation(r.q.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM build_allocations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("allocation", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting allocation: %w", err)
	}
	return a, nil
}

// GetAllocationsForOutput returns an output's allocations in creation order
func (r *AllocationRepository) GetAllocationsForOutput(ctx context.Context, output entities.BuildOutputID) ([]*entities.BuildLineAllocation, error) {
	return r.list(ctx, `SELECT `+allocationColumns+` FROM build_allocations WHERE output = ? ORDER BY rowid`, output)
}

// GetAllocationsForStock returns every allocation reserving the given stock item
func (r *AllocationRepository) GetAllocationsForStock(ctx context.Context, item entities.StockItemID) ([]*entities.BuildLineAllocation, error) {
	return r.list(ctx, `SELECT `+allocationColumns+` FROM build_allocations WHERE stock_item = ? ORDER BY rowid`, item)
}

func (r *AllocationRepository) list(ctx context.Context, query string, args ...any) ([]*entities.BuildLineAllocation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*entities.BuildLineAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// SaveAllocation records a new allocation
func (r *AllocationRepository) SaveAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error {
	if allocation.ID == "" {
		allocation.ID = entities.NewAllocationID()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO build_allocations (`+allocationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		allocation.ID, allocation.Build, allocation.Output, allocation.BOMLine, allocation.StockItem,
		allocation.Quantity, formatTime(&allocation.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving allocation: %w", err)
	}
	return nil
}

// UpdateAllocation replaces an existing allocation
func (r *AllocationRepository) UpdateAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE build_allocations SET bom_line = ?, stock_item = ?, quantity = ? WHERE id = ?`,
		allocation.BOMLine, allocation.StockItem, allocation.Quantity, allocation.ID,
	)
	if err != nil {
		return fmt.Errorf("updating allocation: %w", err)
	}
	return checkAffected(result, "allocation", string(allocation.ID))
}

// DeleteAllocation removes an allocation
func (r *AllocationRepository) DeleteAllocation(ctx context.Context, id entities.AllocationID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM build_allocations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting allocation: %w", err)
	}
	return checkAffected(result, "allocation", string(id))
}
