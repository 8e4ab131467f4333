package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// StockCandidate is a stock item together with the quantity not yet reserved by any build
type StockCandidate struct {
	Item       *entities.StockItem
	Unreserved decimal.Decimal
}

// AvailabilityCalculator computes unreserved stock from stock records and build allocations
type AvailabilityCalculator struct {
	stock       repositories.StockRepository
	allocations repositories.AllocationRepository
}

// NewAvailabilityCalculator creates a calculator over the given repositories
func NewAvailabilityCalculator(stock repositories.StockRepository, allocations repositories.AllocationRepository) *AvailabilityCalculator {
	return &AvailabilityCalculator{
		stock:       stock,
		allocations: allocations,
	}
}

// Unreserved returns how much of a stock item is not yet allocated
func (c *AvailabilityCalculator) Unreserved(ctx context.Context, item *entities.StockItem) (decimal.Decimal, error) {
	if !item.IsAvailable() {
		return decimal.Zero, nil
	}
	allocs, err := c.allocations.GetAllocationsForStock(ctx, item.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading allocations for stock %s: %w", item.ID, err)
	}
	reserved := decimal.Zero
	for _, a := range allocs {
		reserved = reserved.Add(a.Quantity)
	}
	free := item.Quantity.Sub(reserved)
	if free.IsNegative() {
		return decimal.Zero, nil
	}
	return free, nil
}

// Candidates returns the available stock items of a part in insertion order with their unreserved quantity.
// An empty location matches every location.
func (c *AvailabilityCalculator) Candidates(ctx context.Context, part entities.PartNumber, location string) ([]StockCandidate, error) {
	items, err := c.stock.GetStockForPart(ctx, part)
	if err != nil {
		return nil, fmt.Errorf("loading stock for %s: %w", part, err)
	}

	var out []StockCandidate
	for _, item := range items {
		if !item.IsAvailable() {
			continue
		}
		if location != "" && item.Location != location {
			continue
		}
		free, err := c.Unreserved(ctx, item)
		if err != nil {
			return nil, err
		}
		if free.IsPositive() {
			out = append(out, StockCandidate{Item: item, Unreserved: free})
		}
	}
	return out, nil
}

// PartAvailable returns the total unreserved quantity of a part
func (c *AvailabilityCalculator) PartAvailable(ctx context.Context, part entities.PartNumber) (decimal.Decimal, error) {
	candidates, err := c.Candidates(ctx, part, "")
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, cand := range candidates {
		total = total.Add(cand.Unreserved)
	}
	return total, nil
}

// LineAvailability reports stock that could satisfy one resolved BOM line
type LineAvailability struct {
	Line            ResolvedLine
	SubPartStock    decimal.Decimal
	SubstituteStock map[entities.PartNumber]decimal.Decimal
	Total           decimal.Decimal
}

// LineAvailability sums unreserved stock of the line's sub part and all of its substitutes.
// It is a report only and reserves nothing.
func (c *AvailabilityCalculator) LineAvailability(ctx context.Context, line ResolvedLine) (*LineAvailability, error) {
	main, err := c.PartAvailable(ctx, line.Line.SubPart)
	if err != nil {
		return nil, err
	}

	result := &LineAvailability{
		Line:            line,
		SubPartStock:    main,
		SubstituteStock: make(map[entities.PartNumber]decimal.Decimal, len(line.Line.Substitutes)),
		Total:           main,
	}
	for _, sub := range line.Line.Substitutes {
		qty, err := c.PartAvailable(ctx, sub)
		if err != nil {
			return nil, err
		}
		result.SubstituteStock[sub] = qty
		result.Total = result.Total.Add(qty)
	}
	return result, nil
}
