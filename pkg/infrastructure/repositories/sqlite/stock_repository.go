package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// StockRepository stores stock items in SQLite
type StockRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.StockRepository = (*StockRepository)(nil)

const stockColumns = `id, part, quantity, serial, batch, location, status, expiry_date, receipt_date, consumed_by`

func scanStockItem(row scanner) (*entities.StockItem, error) {
	var (
		item    entities.StockItem
		status  string
		expiry  sql.NullString
		receipt sql.NullString
	)
	if err := row.Scan(&item.ID, &item.Part, &item.Quantity, &item.Serial, &item.Batch,
		&item.Location, &status, &expiry, &receipt, &item.ConsumedBy); err != nil {
		return nil, err
	}

	var err error
	if item.Status, err = entities.ParseStockStatus(status); err != nil {
		return nil, err
	}
	if item.ExpiryDate, err = parseTime(expiry); err != nil {
		return nil, err
	}
	received, err := parseTime(receipt)
	if err != nil {
		return nil, err
	}
	if received != nil {
		item.ReceiptDate = *received
	}
	return &item, nil
}

// GetStockItem returns a stock item by id
func (r *StockRepository) GetStockItem(ctx context.Context, id entities.StockItemID) (*entities.StockItem, error) {
	item, err := scanStockItem(r.q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("stock item", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting stock item: %w", err)
	}
	return item, nil
}

// GetStockForPart returns all stock of a part in insertion order
func (r *StockRepository) GetStockForPart(ctx context.Context, part entities.PartNumber) ([]*entities.StockItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+stockColumns+` FROM stock_items WHERE part = ? ORDER BY rowid`, part)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	defer rows.Close()

	var items []*entities.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stock item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetSerials returns the serials in use for a part, or across all parts when part is empty
func (r *StockRepository) GetSerials(ctx context.Context, part entities.PartNumber) ([]string, error) {
	query := `SELECT serial FROM stock_items WHERE serial <> ''`
	var args []any
	if part != "" {
		query += ` AND part = ?`
		args = append(args, part)
	}

	rows, err := r.q.QueryContext(ctx, query+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing serials: %w", err)
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning serial: %w", err)
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

// SaveStockItem adds a stock item. A serial already used by the same part is rejected.
func (r *StockRepository) SaveStockItem(ctx context.Context, item *entities.StockItem) error {
	if item.ID == "" {
		item.ID = entities.NewStockItemID()
	}
	if item.Serial != "" {
		var exists bool
		err := r.q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM stock_items WHERE part = ? AND serial = ?)`,
			item.Part, item.Serial,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking serial: %w", err)
		}
		if exists {
			return &entities.DuplicateIdentifierError{Values: []string{item.Serial}}
		}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stock_items (`+stockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Part, item.Quantity, item.Serial, item.Batch, item.Location,
		item.Status.String(), formatTime(item.ExpiryDate), formatTime(&item.ReceiptDate), item.ConsumedBy,
	)
	if err != nil {
		return fmt.Errorf("saving stock item: %w", err)
	}
	return nil
}

// UpdateStockItem replaces an existing stock item
func (r *StockRepository) UpdateStockItem(ctx context.Context, item *entities.StockItem) error {
	existing, err := r.GetStockItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if existing.Part != item.Part {
		return fmt.Errorf("stock item %s cannot change part", item.ID)
	}

	_, err = r.q.ExecContext(ctx,
		`UPDATE stock_items SET quantity = ?, serial = ?, batch = ?, location = ?, status = ?,
		     expiry_date = ?, receipt_date = ?, consumed_by = ?
		 WHERE id = ?`,
		item.Quantity, item.Serial, item.Batch, item.Location, item.Status.String(),
		formatTime(item.ExpiryDate), formatTime(&item.ReceiptDate), item.ConsumedBy, item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating stock item: %w", err)
	}
	return nil
}
