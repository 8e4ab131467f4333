package repositories

import (
	"context"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// BuildRepository provides access to build orders and their outputs
type BuildRepository interface {
	GetBuild(ctx context.Context, id entities.BuildOrderID) (*entities.BuildOrder, error)
	SaveBuild(ctx context.Context, build *entities.BuildOrder) error
	UpdateBuild(ctx context.Context, build *entities.BuildOrder) error
	GetOutput(ctx context.Context, id entities.BuildOutputID) (*entities.BuildOutput, error)
	GetOutputs(ctx context.Context, build entities.BuildOrderID) ([]*entities.BuildOutput, error)
	SaveOutput(ctx context.Context, output *entities.BuildOutput) error
	UpdateOutput(ctx context.Context, output *entities.BuildOutput) error
}

// AllocationRepository provides access to stock reservations against build lines
type AllocationRepository interface {
	GetAllocation(ctx context.Context, id entities.AllocationID) (*entities.BuildLineAllocation, error)
	GetAllocationsForOutput(ctx context.Context, output entities.BuildOutputID) ([]*entities.BuildLineAllocation, error)
	GetAllocationsForStock(ctx context.Context, item entities.StockItemID) ([]*entities.BuildLineAllocation, error)
	SaveAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error
	UpdateAllocation(ctx context.Context, allocation *entities.BuildLineAllocation) error
	DeleteAllocation(ctx context.Context, id entities.AllocationID) error
}
