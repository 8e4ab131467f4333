package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// BOMRepository stores BOM lines in SQLite
type BOMRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.BOMRepository = (*BOMRepository)(nil)

const bomColumns = `id, assembly, sub_part, quantity, reference, overage, consumable, inherited, optional, note, substitutes`

func scanBOMLine(row scanner) (*entities.BOMLine, error) {
	var (
		l           entities.BOMLine
		overage     string
		substitutes string
	)
	if err := row.Scan(&l.ID, &l.Assembly, &l.SubPart, &l.Quantity, &l.Reference, &overage,
		&l.Consumable, &l.Inherited, &l.Optional, &l.Note, &substitutes); err != nil {
		return nil, err
	}

	var err error
	if l.Overage, err = entities.ParseOverage(overage); err != nil {
		return nil, err
	}
	if l.Substitutes, err = decodeList[entities.PartNumber](substitutes); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetBOMLines returns all BOM lines owned by an assembly in insertion order
func (r *BOMRepository) GetBOMLines(ctx context.Context, assembly entities.PartNumber) ([]*entities.BOMLine, error) {
	lines, err := r.list(ctx, `SELECT `+bomColumns+` FROM bom_lines WHERE assembly = ? ORDER BY rowid`, assembly)
	if lines == nil && err == nil {
		lines = []*entities.BOMLine{}
	}
	return lines, err
}

// GetBOMLine returns a single BOM line
func (r *BOMRepository) GetBOMLine(ctx context.Context, id entities.BOMLineID) (*entities.BOMLine, error) {
	l, err := scanBOMLine(r.q.QueryRowContext(ctx, `SELECT `+bomColumns+` FROM bom_lines WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("BOM line", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting BOM line: %w", err)
	}
	return l, nil
}

// GetAllBOMLines returns all BOM lines in insertion order
func (r *BOMRepository) GetAllBOMLines(ctx context.Context) ([]*entities.BOMLine, error) {
	return r.list(ctx, `SELECT `+bomColumns+` FROM bom_lines ORDER BY rowid`)
}

func (r *BOMRepository) list(ctx context.Context, query string, args ...any) ([]*entities.BOMLine, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing BOM lines: %w", err)
	}
	defer rows.Close()

	var lines []*entities.BOMLine
	for rows.Next() {
		l, err := scanBOMLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning BOM line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SaveBOMLine adds a BOM line to the repository
func (r *BOMRepository) SaveBOMLine(ctx context.Context, line *entities.BOMLine) error {
	if line.ID == "" {
		line.ID = entities.NewBOMLineID()
	}
	substitutes, err := encodeList(line.Substitutes)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO bom_lines (`+bomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.Assembly, line.SubPart, line.Quantity, line.Reference, line.Overage.String(),
		line.Consumable, line.Inherited, line.Optional, line.Note, substitutes,
	)
	if err != nil {
		return fmt.Errorf("saving BOM line: %w", err)
	}
	return nil
}

// UpdateBOMLine replaces an existing BOM line, keeping its position
func (r *BOMRepository) UpdateBOMLine(ctx context.Context, line *entities.BOMLine) error {
	existing, err := r.GetBOMLine(ctx, line.ID)
	if err != nil {
		return err
	}
	if existing.Assembly != line.Assembly {
		return fmt.Errorf("BOM line %s cannot move from %s to %s", line.ID, existing.Assembly, line.Assembly)
	}

	substitutes, err := encodeList(line.Substitutes)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`UPDATE bom_lines SET sub_part = ?, quantity = ?, reference = ?, overage = ?, consumable = ?,
		     inherited = ?, optional = ?, note = ?, substitutes = ?
		 WHERE id = ?`,
		line.SubPart, line.Quantity, line.Reference, line.Overage.String(), line.Consumable,
		line.Inherited, line.Optional, line.Note, substitutes, line.ID,
	)
	if err != nil {
		return fmt.Errorf("updating BOM line: %w", err)
	}
	return nil
}

// DeleteBOMLine removes a BOM line
func (r *BOMRepository) DeleteBOMLine(ctx context.Context, id entities.BOMLineID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM bom_lines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting BOM line: %w", err)
	}
	return checkAffected(result, "BOM line", string(id))
}

// ValidationRepository stores BOM validation state in SQLite
type ValidationRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.ValidationRepository = (*ValidationRepository)(nil)

// GetValidation returns the stored state, or an unvalidated record if none exists
func (r *ValidationRepository) GetValidation(ctx context.Context, assembly entities.PartNumber) (*entities.BOMValidation, error) {
	v := entities.BOMValidation{Assembly: assembly}
	var validatedAt sql.NullString
	err := r.q.QueryRowContext(ctx,
		`SELECT validated, checksum, validated_at FROM bom_validations WHERE assembly = ?`, assembly,
	).Scan(&v.Validated, &v.Checksum, &validatedAt)
	if err == sql.ErrNoRows {
		return &v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting validation: %w", err)
	}
	if t, err := parseTime(validatedAt); err != nil {
		return nil, err
	} else if t != nil {
		v.ValidatedAt = *t
	}
	return &v, nil
}

// SaveValidation stores the validation state of an assembly
func (r *ValidationRepository) SaveValidation(ctx context.Context, validation *entities.BOMValidation) error {
	var validatedAt *time.Time
	if !validation.ValidatedAt.IsZero() {
		validatedAt = &validation.ValidatedAt
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO bom_validations (assembly, validated, checksum, validated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(assembly) DO UPDATE SET
		     validated = excluded.validated,
		     checksum = excluded.checksum,
		     validated_at = excluded.validated_at`,
		validation.Assembly, validation.Validated, validation.Checksum, formatTime(validatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving validation: %w", err)
	}
	return nil
}
