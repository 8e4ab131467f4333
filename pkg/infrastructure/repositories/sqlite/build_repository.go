package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// BuildRepository stores build orders and outputs in SQLite
type BuildRepository struct {
	q querier
}

// Verify interface compliance
var _ repositories.BuildRepository = (*BuildRepository)(nil)

// GetBuild returns a build order by id
func (r *BuildRepository) GetBuild(ctx context.Context, id entities.BuildOrderID) (*entities.BuildOrder, error) {
	var (
		b       entities.BuildOrder
		created sql.NullString
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, part, quantity, completed, status, created_at FROM builds WHERE id = ?`, id,
	).Scan(&b.ID, &b.Part, &b.Quantity, &b.Completed, &b.Status, &created)
	if err == sql.ErrNoRows {
		return nil, notFound("build order", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting build order: %w", err)
	}

	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	if t != nil {
		b.CreatedAt = *t
	}
	return &b, nil
}

// SaveBuild adds a build order
func (r *BuildRepository) SaveBuild(ctx context.Context, build *entities.BuildOrder) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO builds (id, part, quantity, completed, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		build.ID, build.Part, build.Quantity, build.Completed, int(build.Status), formatTime(&build.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving build order: %w", err)
	}
	return nil
}

// UpdateBuild replaces an existing build order
func (r *BuildRepository) UpdateBuild(ctx context.Context, build *entities.BuildOrder) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE builds SET part = ?, quantity = ?, completed = ?, status = ? WHERE id = ?`,
		build.Part, build.Quantity, build.Completed, int(build.Status), build.ID,
	)
	if err != nil {
		return fmt.Errorf("updating build order: %w", err)
	}
	return checkAffected(result, "build order", string(build.ID))
}

const outputColumns = `id, build, quantity, state, serial_pattern, batch, location, produced_stock, completed_at`

func scanOutput(row scanner) (*entities.BuildOutput, error) {
	var (
		o         entities.BuildOutput
		produced  string
		completed sql.NullString
	)
	if err := row.Scan(&o.ID, &o.Build, &o.Quantity, &o.State, &o.SerialPattern, &o.Batch,
		&o.Location, &produced, &completed); err != nil {
		return nil, err
	}

	var err error
	if o.ProducedStock, err = decodeList[entities.StockItemID](produced); err != nil {
		return nil, err
	}
	if o.CompletedAt, err = parseTime(completed); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOutput returns a build output by id
func (r *BuildRepository) GetOutput(ctx context.Context, id entities.BuildOutputID) (*entities.BuildOutput, error) {
	o, err := scanOutput(r.q.QueryRowContext(ctx, `SELECT `+outputColumns+` FROM build_outputs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("build output", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("getting build output: %w", err)
	}
	return o, nil
}

// GetOutputs returns the outputs of a build order in creation order
func (r *BuildRepository) GetOutputs(ctx context.Context, build entities.BuildOrderID) ([]*entities.BuildOutput, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM build_outputs WHERE build = ? ORDER BY rowid`, build)
	if err != nil {
		return nil, fmt.Errorf("listing build outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*entities.BuildOutput
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning build output: %w", err)
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// SaveOutput adds a build output to an existing build order
func (r *BuildRepository) SaveOutput(ctx context.Context, output *entities.BuildOutput) error {
	if _, err := r.GetBuild(ctx, output.Build); err != nil {
		return err
	}
	produced, err := encodeList(output.ProducedStock)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO build_outputs (`+outputColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		output.ID, output.Build, output.Quantity, int(output.State), output.SerialPattern,
		output.Batch, output.Location, produced, formatTime(output.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("saving build output: %w", err)
	}
	return nil
}

// UpdateOutput replaces an existing build output
func (r *BuildRepository) UpdateOutput(ctx context.Context, output *entities.BuildOutput) error {
	produced, err := encodeList(output.ProducedStock)
	if err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx,
		`UPDATE build_outputs SET quantity = ?, state = ?, serial_pattern = ?, batch = ?, location = ?,
		     produced_stock = ?, completed_at = ?
		 WHERE id = ?`,
		output.Quantity, int(output.State), output.SerialPattern, output.Batch, output.Location,
		produced, formatTime(output.CompletedAt), output.ID,
	)
	if err != nil {
		return fmt.Errorf("updating build output: %w", err)
	}
	return checkAffected(result, "build output", string(output.ID))
}
