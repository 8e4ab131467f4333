package memory

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// StockRepository provides in-memory stock storage
type StockRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.StockRepository = (*StockRepository)(nil)

// GetStockItem returns a stock item by id
func (r *StockRepository) GetStockItem(ctx context.Context, id entities.StockItemID) (*entities.StockItem, error) {
	var item *entities.StockItem
	r.store.read(func(st *state) {
		if it, ok := st.stock[id]; ok {
			item = it.Clone()
		}
	})
	if item == nil {
		return nil, notFound("stock item", string(id))
	}
	return item, nil
}

// GetStockForPart returns all stock of a part in insertion order
func (r *StockRepository) GetStockForPart(ctx context.Context, part entities.PartNumber) ([]*entities.StockItem, error) {
	var items []*entities.StockItem
	r.store.read(func(st *state) {
		for _, id := range st.stockIndexes[part] {
			items = append(items, st.stock[id].Clone())
		}
	})
	return items, nil
}

// GetSerials returns the serials in use for a part, or across all parts when part is empty
func (r *StockRepository) GetSerials(ctx context.Context, part entities.PartNumber) ([]string, error) {
	var serials []string
	r.store.read(func(st *state) {
		for pn, ids := range st.stockIndexes {
			if part != "" && pn != part {
				continue
			}
			for _, id := range ids {
				if s := st.stock[id].Serial; s != "" {
					serials = append(serials, s)
				}
			}
		}
	})
	return serials, nil
}

// SaveStockItem adds a stock item
func (r *StockRepository) SaveStockItem(ctx context.Context, item *entities.StockItem) error {
	if item.ID == "" {
		item.ID = entities.NewStockItemID()
	}
	return r.store.write(stockTable, func(st *state) error {
		if _, exists := st.stock[item.ID]; exists {
			return fmt.Errorf("stock item already exists: %s", item.ID)
		}
		if item.Serial != "" {
			for _, id := range st.stockIndexes[item.Part] {
				if st.stock[id].Serial == item.Serial {
					return &entities.DuplicateIdentifierError{Values: []string{item.Serial}}
				}
			}
		}
		st.stock[item.ID] = item.Clone()
		st.stockIndexes[item.Part] = append(st.stockIndexes[item.Part], item.ID)
		return nil
	})
}

// UpdateStockItem replaces an existing stock item
func (r *StockRepository) UpdateStockItem(ctx context.Context, item *entities.StockItem) error {
	return r.store.write(stockTable, func(st *state) error {
		existing, ok := st.stock[item.ID]
		if !ok {
			return notFound("stock item", string(item.ID))
		}
		if existing.Part != item.Part {
			return fmt.Errorf("stock item %s cannot change part", item.ID)
		}
		st.stock[item.ID] = item.Clone()
		return nil
	})
}
