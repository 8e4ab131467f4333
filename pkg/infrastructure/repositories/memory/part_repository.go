package memory

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// PartRepository provides in-memory part storage
type PartRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.PartRepository = (*PartRepository)(nil)

// GetPart returns part master data for a part number
func (r *PartRepository) GetPart(ctx context.Context, partNumber entities.PartNumber) (*entities.Part, error) {
	var part *entities.Part
	r.store.read(func(st *state) {
		if p, ok := st.parts[partNumber]; ok {
			part = &p
		}
	})
	if part == nil {
		return nil, notFound("part", string(partNumber))
	}
	return part, nil
}

// GetAllParts returns all parts in insertion order
func (r *PartRepository) GetAllParts(ctx context.Context) ([]*entities.Part, error) {
	var parts []*entities.Part
	r.store.read(func(st *state) {
		for _, pn := range st.partOrder {
			p := st.parts[pn]
			parts = append(parts, &p)
		}
	})
	return parts, nil
}

// GetVariants returns the direct variants of a template part
func (r *PartRepository) GetVariants(ctx context.Context, partNumber entities.PartNumber) ([]*entities.Part, error) {
	var variants []*entities.Part
	r.store.read(func(st *state) {
		for _, pn := range st.partOrder {
			p := st.parts[pn]
			if p.VariantOf == partNumber {
				variants = append(variants, &p)
			}
		}
	})
	return variants, nil
}

// SavePart inserts or replaces a part
func (r *PartRepository) SavePart(ctx context.Context, part *entities.Part) error {
	if part == nil || part.PartNumber == "" {
		return fmt.Errorf("part number cannot be empty")
	}
	return r.store.write(partsTable, func(st *state) error {
		if _, exists := st.parts[part.PartNumber]; !exists {
			st.partOrder = append(st.partOrder, part.PartNumber)
		}
		st.parts[part.PartNumber] = *part
		return nil
	})
}
