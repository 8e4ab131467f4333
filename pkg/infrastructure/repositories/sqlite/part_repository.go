package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// PartRepository stores part master data in SQLite
type PartRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.PartRepository = (*PartRepository)(nil)

const partColumns = `part_number, description, is_template, variant_of, assembly, trackable, default_expiry_days`

func scanPart(row scanner) (*entities.Part, error) {
	var p entities.Part
	if err := row.Scan(&p.PartNumber, &p.Description, &p.IsTemplate, &p.VariantOf,
		&p.Assembly, &p.Trackable, &p.DefaultExpiryDays); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPart returns part master data for a part number
func (r *PartRepository) GetPart(ctx context.Context, partNumber entities.PartNumber) (*entities.Part, error) {
	p, err := scanPart(r.q.QueryRowContext(ctx,
		`SELECT `+partColumns+` FROM parts WHERE part_number = ?`, partNumber))
	if err == sql.ErrNoRows {
		return nil, notFound("part", string(partNumber))
	}
	if err != nil {
		return nil, fmt.Errorf("getting part: %w", err)
	}
	return p, nil
}

// GetAllParts returns all parts in insertion order
func (r *PartRepository) GetAllParts(ctx context.Context) ([]*entities.Part, error) {
	return r.list(ctx, `SELECT `+partColumns+` FROM parts ORDER BY rowid`)
}

// GetVariants returns the direct variants of a template part
func (r *PartRepository) GetVariants(ctx context.Context, partNumber entities.PartNumber) ([]*entities.Part, error) {
	return r.list(ctx, `SELECT `+partColumns+` FROM parts WHERE variant_of = ? ORDER BY rowid`, partNumber)
}

func (r *PartRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Part, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing parts: %w", err)
	}
	defer rows.Close()

	var parts []*entities.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// SavePart inserts or replaces a part, keeping its original position
func (r *PartRepository) SavePart(ctx context.Context, part *entities.Part) error {
	if part == nil || part.PartNumber == "" {
		return fmt.Errorf("part number cannot be empty")
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO parts (`+partColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(part_number) DO UPDATE SET
		     description = excluded.description,
		     is_template = excluded.is_template,
		     variant_of = excluded.variant_of,
		     assembly = excluded.assembly,
		     trackable = excluded.trackable,
		     default_expiry_days = excluded.default_expiry_days`,
		part.PartNumber, part.Description, part.IsTemplate, part.VariantOf,
		part.Assembly, part.Trackable, part.DefaultExpiryDays,
	)
	if err != nil {
		return fmt.Errorf("saving part: %w", err)
	}
	return nil
}
