package repositories

import (
	"context"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// BOMRepository provides access to Bill of Materials data
type BOMRepository interface {
	// GetBOMLines returns an assembly's own lines in insertion order
	GetBOMLines(ctx context.Context, assembly entities.PartNumber) ([]*entities.BOMLine, error)
	GetBOMLine(ctx context.Context, id entities.BOMLineID) (*entities.BOMLine, error)
	GetAllBOMLines(ctx context.Context) ([]*entities.BOMLine, error)
	SaveBOMLine(ctx context.Context, line *entities.BOMLine) error
	UpdateBOMLine(ctx context.Context, line *entities.BOMLine) error
	DeleteBOMLine(ctx context.Context, id entities.BOMLineID) error
}

// ValidationRepository stores per-assembly BOM validation state
type ValidationRepository interface {
	GetValidation(ctx context.Context, assembly entities.PartNumber) (*entities.BOMValidation, error)
	SaveValidation(ctx context.Context, validation *entities.BOMValidation) error
}
