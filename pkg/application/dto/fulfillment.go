package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
)

// ResolvedLine is the external form of one effective BOM line
type ResolvedLine struct {
	ID          entities.BOMLineID    `json:"id" yaml:"id"`
	SubPart     entities.PartNumber   `json:"sub_part_id" yaml:"sub_part_id"`
	Quantity    decimal.Decimal       `json:"quantity" yaml:"quantity"`
	Reference   string                `json:"reference" yaml:"reference"`
	Overage     string                `json:"overage" yaml:"overage"`
	Consumable  bool                  `json:"consumable" yaml:"consumable"`
	Inherited   bool                  `json:"inherited" yaml:"inherited"`
	Optional    bool                  `json:"optional" yaml:"optional"`
	Substitutes []entities.PartNumber `json:"substitutes" yaml:"substitutes"`
	Note        string                `json:"note" yaml:"note"`
	Source      entities.PartNumber   `json:"source" yaml:"source"`
}

// NewResolvedLines converts resolver output, keeping its order
func NewResolvedLines(lines []services.ResolvedLine) []ResolvedLine {
	out := make([]ResolvedLine, 0, len(lines))
	for _, rl := range lines {
		l := rl.Line
		substitutes := append([]entities.PartNumber{}, l.Substitutes...)
		out = append(out, ResolvedLine{
			ID:          l.ID,
			SubPart:     l.SubPart,
			Quantity:    l.Quantity,
			Reference:   l.Reference,
			Overage:     l.Overage.String(),
			Consumable:  l.Consumable,
			Inherited:   l.Inherited,
			Optional:    l.Optional,
			Substitutes: substitutes,
			Note:        l.Note,
			Source:      rl.Source,
		})
	}
	return out
}

// LineAvailability reports unreserved stock for one resolved line
type LineAvailability struct {
	SubPart     entities.PartNumber                     `json:"sub_part_id"`
	SubPartQty  decimal.Decimal                         `json:"sub_part_quantity"`
	Substitutes map[entities.PartNumber]decimal.Decimal `json:"substitutes"`
	Total       decimal.Decimal                         `json:"total"`
}

// NewLineAvailability converts a calculator report
func NewLineAvailability(la *services.LineAvailability) LineAvailability {
	return LineAvailability{
		SubPart:     la.Line.Line.SubPart,
		SubPartQty:  la.SubPartStock,
		Substitutes: la.SubstituteStock,
		Total:       la.Total,
	}
}

// AutoAllocateResult is the outcome of greedy allocation for one output.
// Unsatisfied is empty when every considered line is covered.
type AutoAllocateResult struct {
	Output      entities.BuildOutputID          `json:"output_id"`
	State       entities.OutputState            `json:"state"`
	Allocations []*entities.BuildLineAllocation `json:"allocations"`
	Unsatisfied []entities.LineShortfall        `json:"unsatisfied"`
}

// CompletionResult describes the stock movements of a completed output
type CompletionResult struct {
	Output           *entities.BuildOutput  `json:"output"`
	ConsumedStock    []entities.StockItemID `json:"consumed_stock"`
	ConsumedQuantity decimal.Decimal        `json:"consumed_quantity"`
	ProducedStock    []*entities.StockItem  `json:"produced_stock"`
	Serials          []string               `json:"serials,omitempty"`
}

// EventRecord is one entry of the audit trail
type EventRecord struct {
	Position  int       `json:"position" yaml:"position"`
	Type      string    `json:"type" yaml:"type"`
	Stream    string    `json:"stream" yaml:"stream"`
	Version   int       `json:"version" yaml:"version"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewEventRecords converts events read from global position from on
func NewEventRecords(evts []events.Event, from int) []EventRecord {
	out := make([]EventRecord, len(evts))
	for i, e := range evts {
		out[i] = EventRecord{
			Position:  from + i,
			Type:      e.Type(),
			Stream:    e.StreamID(),
			Version:   e.Version(),
			Timestamp: e.Timestamp(),
		}
	}
	return out
}
