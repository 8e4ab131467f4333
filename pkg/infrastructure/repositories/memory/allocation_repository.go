package memory

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// AllocationRepository provides in-memory storage for build line allocations
type AllocationRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.AllocationRepository = (*AllocationRepository)(nil)

// GetAllocation returns an allocation by id
func (r *AllocationRepository) GetAllocation(ctx context.Context, id entities.AllocationID) (*entities.BuildLineAllocation, error) {
	var alloc *entities.BuildLineAllocation
	r.store.read(func(st *state) {
		if a, ok := st.allocations[id]; ok {
			alloc = &a
		}
	})
	if alloc == nil {
		return nil, notFound("allocation", string(id))
	}
	return alloc, nil
}

// GetAllocationsForOutput returns an output's allocations in creation order
func (r *AllocationRepository) GetAllocationsForOutput(ctx context.Context, output entities.BuildOutputID) ([]*entities.BuildLineAllocation, error) {
	return r.filter(func(a entities.BuildLineAllocation) bool { return a.Output == output }), nil
}

// GetAllocationsForStock returns every allocation reserving the given stock item
func (r *AllocationRepository) GetAllocationsForStock(ctx context.Context, item entities.StockItemID) ([]*entities.BuildLineAllocation, error) {
	return r.filter(func(a entities.BuildLineAllocation) bool { return a.StockItem == item }), nil
}

func (r *AllocationRepository) filter(keep func(entities.BuildLineAllocation) bool) []*entities.BuildLineAllocation {
	var allocs []*entities.BuildLineAllocation
	r.store.read(func(st *state) {
		for _, id := range st.allocOrder {
			a := st.allocations[id]
			if keep(a) {
				allocs = append(allocs, &a)
			}
		}
	})
	return allocs
}

// SaveAllocation records a new allocation
func (r *AllocationRepository) SaveAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error {
	if allocation.ID == "" {
		allocation.ID = entities.NewAllocationID()
	}
	return r.store.write(allocationsTable, func(st *state) error {
		if _, exists := st.allocations[allocation.ID]; exists {
			return fmt.Errorf("allocation already exists: %s", allocation.ID)
		}
		st.allocations[allocation.ID] = *allocation
		st.allocOrder = append(st.allocOrder, allocation.ID)
		return nil
	})
}

// UpdateAllocation replaces an existing allocation
func (r *AllocationRepository) UpdateAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error {
	return r.store.write(allocationsTable, func(st *state) error {
		if _, ok := st.allocations[allocation.ID]; !ok {
			return notFound("allocation", string(allocation.ID))
		}
		st.allocations[allocation.ID] = *allocation
		return nil
	})
}

// DeleteAllocation removes an allocation
func (r *AllocationRepository) DeleteAllocation(ctx context.Context, id entities.AllocationID) error {
	return r.store.write(allocationsTable, func(st *state) error {
		if _, ok := st.allocations[id]; !ok {
			return notFound("allocation", string(id))
		}
		delete(st.allocations, id)
		st.allocOrder = removeID(st.allocOrder, id)
		return nil
	})
}
