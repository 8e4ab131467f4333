package memory

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// BOMRepository provides in-memory BOM storage indexed by assembly
type BOMRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.BOMRepository = (*BOMRepository)(nil)

// GetBOMLines returns all BOM lines owned by an assembly in insertion order
func (r *BOMRepository) GetBOMLines(ctx context.Context, assembly entities.PartNumber) ([]*entities.BOMLine, error) {
	lines := []*entities.BOMLine{}
	r.store.read(func(st *state) {
		for _, id := range st.bomIndexes[assembly] {
			lines = append(lines, st.bomLines[id].Clone())
		}
	})
	return lines, nil
}

// GetBOMLine returns a single BOM line
func (r *BOMRepository) GetBOMLine(ctx context.Context, id entities.BOMLineID) (*entities.BOMLine, error) {
	var line *entities.BOMLine
	r.store.read(func(st *state) {
		if l, ok := st.bomLines[id]; ok {
			line = l.Clone()
		}
	})
	if line == nil {
		return nil, notFound("BOM line", string(id))
	}
	return line, nil
}

// GetAllBOMLines returns all BOM lines grouped by assembly
func (r *BOMRepository) GetAllBOMLines(ctx context.Context) ([]*entities.BOMLine, error) {
	var lines []*entities.BOMLine
	r.store.read(func(st *state) {
		for _, pn := range st.partOrder {
			for _, id := range st.bomIndexes[pn] {
				lines = append(lines, st.bomLines[id].Clone())
			}
		}
	})
	return lines, nil
}

// SaveBOMLine adds a BOM line to the repository
func (r *BOMRepository) SaveBOMLine(ctx context.Context, line *entities.BOMLine) error {
	if line.ID == "" {
		line.ID = entities.NewBOMLineID()
	}
	return r.store.write(bomTable, func(st *state) error {
		if _, exists := st.bomLines[line.ID]; exists {
			return fmt.Errorf("BOM line already exists: %s", line.ID)
		}
		st.bomLines[line.ID] = line.Clone()
		st.bomIndexes[line.Assembly] = append(st.bomIndexes[line.Assembly], line.ID)
		return nil
	})
}

// UpdateBOMLine replaces an existing BOM line, keeping its position
func (r *BOMRepository) UpdateBOMLine(ctx context.Context, line *entities.BOMLine) error {
	return r.store.write(bomTable, func(st *state) error {
		existing, ok := st.bomLines[line.ID]
		if !ok {
			return notFound("BOM line", string(line.ID))
		}
		if existing.Assembly != line.Assembly {
			return fmt.Errorf("BOM line %s cannot move from %s to %s", line.ID, existing.Assembly, line.Assembly)
		}
		st.bomLines[line.ID] = line.Clone()
		return nil
	})
}

// DeleteBOMLine removes a BOM line
func (r *BOMRepository) DeleteBOMLine(ctx context.Context, id entities.BOMLineID) error {
	return r.store.write(bomTable, func(st *state) error {
		line, ok := st.bomLines[id]
		if !ok {
			return notFound("BOM line", string(id))
		}
		delete(st.bomLines, id)
		st.bomIndexes[line.Assembly] = removeID(st.bomIndexes[line.Assembly], id)
		return nil
	})
}

// ValidationRepository provides in-memory BOM validation state
type ValidationRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.ValidationRepository = (*ValidationRepository)(nil)

// GetValidation returns the stored state, or an unvalidated record if none exists
func (r *ValidationRepository) GetValidation(ctx context.Context, assembly entities.PartNumber) (*entities.BOMValidation, error) {
	v := entities.BOMValidation{Assembly: assembly}
	r.store.read(func(st *state) {
		if stored, ok := st.validations[assembly]; ok {
			v = stored
		}
	})
	return &v, nil
}

// SaveValidation stores the validation state of an assembly
func (r *ValidationRepository) SaveValidation(ctx context.Context, validation *entities.BOMValidation) error {
	return r.store.write(validationsTable, func(st *state) error {
		st.validations[validation.Assembly] = *validation
		return nil
	})
}

func removeID[T comparable](ids []T, id T) []T {
	out := ids[:0:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
