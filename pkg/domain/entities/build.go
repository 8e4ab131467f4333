package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildOrderID identifies a build order
type BuildOrderID string

// BuildOutputID identifies a build output
type BuildOutputID string

// AllocationID identifies a build line allocation
type AllocationID string

// NewBuildOutputID returns a fresh random build output identifier
func NewBuildOutputID() BuildOutputID {
	return BuildOutputID(uuid.NewString())
}

// NewAllocationID returns a fresh random allocation identifier
func NewAllocationID() AllocationID {
	return AllocationID(uuid.NewString())
}

// BuildStatus represents the status of a build order
type BuildStatus int

const (
	BuildPending BuildStatus = iota
	BuildProduction
	BuildComplete
	BuildCancelled
)

// String method for BuildStatus enum
func (s BuildStatus) String() string {
	switch s {
	case BuildPending:
		return "Pending"
	case BuildProduction:
		return "Production"
	case BuildComplete:
		return "Complete"
	case BuildCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// BuildOrder represents an order to build a quantity of an assembly
type BuildOrder struct {
	ID        BuildOrderID
	Part      PartNumber
	Quantity  decimal.Decimal
	Completed decimal.Decimal
	Status    BuildStatus
	CreatedAt time.Time
}

// NewBuildOrder creates a validated BuildOrder
func NewBuildOrder(id BuildOrderID, part PartNumber, quantity decimal.Decimal) (*BuildOrder, error) {
	if id == "" {
		return nil, fmt.Errorf("build order id cannot be empty")
	}
	if string(part) == "" {
		return nil, fmt.Errorf("part number cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	return &BuildOrder{
		ID:        id,
		Part:      part,
		Quantity:  quantity,
		Completed: decimal.Zero,
		Status:    BuildPending,
		CreatedAt: time.Now(),
	}, nil
}

// OutputState is the allocation state of a single build output
type OutputState int

const (
	Unallocated OutputState = iota
	PartiallyAllocated
	FullyAllocated
	Completed
	Cancelled
)

// String method for OutputState enum
func (s OutputState) String() string {
	switch s {
	case Unallocated:
		return "Unallocated"
	case PartiallyAllocated:
		return "PartiallyAllocated"
	case FullyAllocated:
		return "FullyAllocated"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transitions are possible
func (s OutputState) IsTerminal() bool {
	return s == Completed || s == Cancelled
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s OutputState) CanTransitionTo(next OutputState) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case Unallocated, PartiallyAllocated, FullyAllocated, Cancelled:
		return true
	case Completed:
		return s == FullyAllocated
	default:
		return false
	}
}

// BuildOutput is one in-progress unit (or serialized batch) of a build order
type BuildOutput struct {
	ID            BuildOutputID
	Build         BuildOrderID
	Quantity      decimal.Decimal
	State         OutputState
	SerialPattern string
	Batch         string
	Location      string
	ProducedStock []StockItemID
	CompletedAt   *time.Time
}

// NewBuildOutput creates a validated BuildOutput
func NewBuildOutput(build BuildOrderID, quantity decimal.Decimal) (*BuildOutput, error) {
	if build == "" {
		return nil, fmt.Errorf("build order id cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	return &BuildOutput{
		ID:       NewBuildOutputID(),
		Build:    build,
		Quantity: quantity,
		State:    Unallocated,
	}, nil
}

// Clone returns a copy of the output
func (o *BuildOutput) Clone() *BuildOutput {
	c := *o
	c.ProducedStock = append([]StockItemID(nil), o.ProducedStock...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// BuildLineAllocation reserves stock for one BOM line of one build output
type BuildLineAllocation struct {
	ID        AllocationID
	Build     BuildOrderID
	Output    BuildOutputID
	BOMLine   BOMLineID
	StockItem StockItemID
	Quantity  decimal.Decimal
	CreatedAt time.Time
}
