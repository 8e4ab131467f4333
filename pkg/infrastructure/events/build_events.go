package events

import (
	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

const (
	BOMLineCreatedEvent        = "bom.line.created"
	BOMLineUpdatedEvent        = "bom.line.updated"
	BOMLineDeletedEvent        = "bom.line.deleted"
	BOMSubstitutesUpdatedEvent = "bom.substitutes.updated"
	BOMValidatedEvent          = "bom.validated"

	PartVariantOfUpdatedEvent = "part.variant_of.updated"

	IdentifiersAssignedEvent = "identifiers.assigned"

	StockAllocatedEvent   = "stock.allocated"
	StockDeAllocatedEvent = "stock.deallocated"

	OutputCompletedEvent = "output.completed"
	OutputCancelledEvent = "output.cancelled"
)

// StructuralEvents are the event types that invalidate a validated BOM
var StructuralEvents = []string{
	BOMLineCreatedEvent,
	BOMLineUpdatedEvent,
	BOMLineDeletedEvent,
	BOMSubstitutesUpdatedEvent,
	PartVariantOfUpdatedEvent,
}

type BOMLineCreated struct {
	BOMLine entities.BOMLine `json:"bom_line"`
}

type BOMLineUpdated struct {
	OldBOMLine entities.BOMLine `json:"old_bom_line"`
	NewBOMLine entities.BOMLine `json:"new_bom_line"`
}

type BOMLineDeleted struct {
	BOMLine entities.BOMLine `json:"bom_line"`
}

type BOMSubstitutesUpdated struct {
	BOMLine        entities.BOMLine      `json:"bom_line"`
	OldSubstitutes []entities.PartNumber `json:"old_substitutes"`
}

type BOMValidated struct {
	Validation entities.BOMValidation `json:"validation"`
}

type PartVariantOfUpdated struct {
	Part         entities.PartNumber `json:"part"`
	OldVariantOf entities.PartNumber `json:"old_variant_of"`
	NewVariantOf entities.PartNumber `json:"new_variant_of"`
}

type IdentifiersAssigned struct {
	Scope       string   `json:"scope"`
	Pattern     string   `json:"pattern"`
	Identifiers []string `json:"identifiers"`
}

type StockAllocated struct {
	Allocation entities.BuildLineAllocation `json:"allocation"`
}

type StockDeAllocated struct {
	Allocation entities.BuildLineAllocation `json:"allocation"`
	Reason     string                       `json:"reason"`
}

type OutputCompleted struct {
	Output        entities.BuildOutput   `json:"output"`
	ConsumedStock []entities.StockItemID `json:"consumed_stock"`
	Consumed      decimal.Decimal        `json:"consumed"`
}

type OutputCancelled struct {
	Output   entities.BuildOutput `json:"output"`
	Released int                  `json:"released"`
}

// AffectedAssembly returns the assembly whose resolved BOM a structural event touches,
// and whether variants below it are affected too
func AffectedAssembly(event Event) (entities.PartNumber, bool, bool) {
	switch data := event.Data().(type) {
	case BOMLineCreated:
		return data.BOMLine.Assembly, data.BOMLine.Inherited, true
	case BOMLineUpdated:
		return data.NewBOMLine.Assembly, data.OldBOMLine.Inherited || data.NewBOMLine.Inherited, true
	case BOMLineDeleted:
		return data.BOMLine.Assembly, data.BOMLine.Inherited, true
	case BOMSubstitutesUpdated:
		return data.BOMLine.Assembly, data.BOMLine.Inherited, true
	case PartVariantOfUpdated:
		return data.Part, true, true
	default:
		return "", false, false
	}
}

func NewBOMLineCreatedEvent(line entities.BOMLine) Event {
	return NewEvent(BOMLineCreatedEvent, string(line.Assembly), BOMLineCreated{BOMLine: line})
}

func NewBOMLineUpdatedEvent(oldLine, newLine entities.BOMLine) Event {
	return NewEvent(BOMLineUpdatedEvent, string(newLine.Assembly), BOMLineUpdated{
		OldBOMLine: oldLine,
		NewBOMLine: newLine,
	})
}

func NewBOMLineDeletedEvent(line entities.BOMLine) Event {
	return NewEvent(BOMLineDeletedEvent, string(line.Assembly), BOMLineDeleted{BOMLine: line})
}

func NewBOMSubstitutesUpdatedEvent(line entities.BOMLine, old []entities.PartNumber) Event {
	return NewEvent(BOMSubstitutesUpdatedEvent, string(line.Assembly), BOMSubstitutesUpdated{
		BOMLine:        line,
		OldSubstitutes: old,
	})
}

func NewBOMValidatedEvent(validation entities.BOMValidation) Event {
	return NewEvent(BOMValidatedEvent, string(validation.Assembly), BOMValidated{Validation: validation})
}

func NewPartVariantOfUpdatedEvent(part, oldParent, newParent entities.PartNumber) Event {
	return NewEvent(PartVariantOfUpdatedEvent, string(part), PartVariantOfUpdated{
		Part:         part,
		OldVariantOf: oldParent,
		NewVariantOf: newParent,
	})
}

func NewIdentifiersAssignedEvent(scope, pattern string, ids []string) Event {
	return NewEvent(IdentifiersAssignedEvent, scope, IdentifiersAssigned{
		Scope:       scope,
		Pattern:     pattern,
		Identifiers: ids,
	})
}

func NewStockAllocatedEvent(allocation entities.BuildLineAllocation) Event {
	return NewEvent(StockAllocatedEvent, string(allocation.Build), StockAllocated{Allocation: allocation})
}

func NewStockDeAllocatedEvent(allocation entities.BuildLineAllocation, reason string) Event {
	return NewEvent(StockDeAllocatedEvent, string(allocation.Build), StockDeAllocated{
		Allocation: allocation,
		Reason:     reason,
	})
}

func NewOutputCompletedEvent(output entities.BuildOutput, consumed []entities.StockItemID, total decimal.Decimal) Event {
	return NewEvent(OutputCompletedEvent, string(output.Build), OutputCompleted{
		Output:        output,
		ConsumedStock: consumed,
		Consumed:      total,
	})
}

func NewOutputCancelledEvent(output entities.BuildOutput, released int) Event {
	return NewEvent(OutputCancelledEvent, string(output.Build), OutputCancelled{
		Output:   output,
		Released: released,
	})
}
