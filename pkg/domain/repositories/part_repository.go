package repositories

import (
	"context"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// PartRepository provides access to part master data
type PartRepository interface {
	GetPart(ctx context.Context, partNumber entities.PartNumber) (*entities.Part, error)
	GetAllParts(ctx context.Context) ([]*entities.Part, error)
	// GetVariants returns the direct variants of a template part
	GetVariants(ctx context.Context, partNumber entities.PartNumber) ([]*entities.Part, error)
	SavePart(ctx context.Context, part *entities.Part) error
}
