package repositories

import (
	"context"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// StockRepository provides access to stock items
type StockRepository interface {
	GetStockItem(ctx context.Context, id entities.StockItemID) (*entities.StockItem, error)
	// GetStockForPart returns the part's stock items in insertion order, any status
	GetStockForPart(ctx context.Context, part entities.PartNumber) ([]*entities.StockItem, error)
	// GetSerials returns every serial in use for the part, or for all parts when part is empty
	GetSerials(ctx context.Context, part entities.PartNumber) ([]string, error)
	SaveStockItem(ctx context.Context, item *entities.StockItem) error
	UpdateStockItem(ctx context.Context, item *entities.StockItem) error
}
