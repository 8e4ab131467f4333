package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockItemID identifies a stock record
type StockItemID string

// NewStockItemID returns a fresh random stock item identifier
func NewStockItemID() StockItemID {
	return StockItemID(uuid.NewString())
}

// StockStatus represents the status of a stock item
type StockStatus int

const (
	Available StockStatus = iota
	Quarantine
	Consumed
)

// String method for StockStatus enum
func (s StockStatus) String() string {
	switch s {
	case Available:
		return "Available"
	case Quarantine:
		return "Quarantine"
	case Consumed:
		return "Consumed"
	default:
		return "Unknown"
	}
}

// ParseStockStatus converts the textual form back into a StockStatus
func ParseStockStatus(s string) (StockStatus, error) {
	switch s {
	case "", "Available":
		return Available, nil
	case "Quarantine":
		return Quarantine, nil
	case "Consumed":
		return Consumed, nil
	default:
		return Available, fmt.Errorf("unknown stock status: %s", s)
	}
}

// StockItem represents a quantity of one part at a location, optionally serialized or batch-coded
type StockItem struct {
	ID          StockItemID
	Part        PartNumber
	Quantity    decimal.Decimal
	Serial      string
	Batch       string
	Location    string
	Status      StockStatus
	ExpiryDate  *time.Time
	ReceiptDate time.Time
	ConsumedBy  BuildOrderID
}

// NewStockItem creates a validated StockItem
func NewStockItem(part PartNumber, quantity decimal.Decimal, location string) (*StockItem, error) {
	if string(part) == "" {
		return nil, fmt.Errorf("part number cannot be empty")
	}
	if quantity.IsNegative() {
		return nil, fmt.Errorf("quantity cannot be negative, got %s", quantity)
	}

	return &StockItem{
		ID:          NewStockItemID(),
		Part:        part,
		Quantity:    quantity,
		Location:    location,
		Status:      Available,
		ReceiptDate: time.Now(),
	}, nil
}

// IsSerialized reports whether the item carries a serial identifier
func (s *StockItem) IsSerialized() bool {
	return s.Serial != ""
}

// IsAvailable reports whether the item may be reserved by a build
func (s *StockItem) IsAvailable() bool {
	return s.Status == Available && s.Quantity.IsPositive()
}

// Clone returns a copy of the stock item
func (s *StockItem) Clone() *StockItem {
	c := *s
	if s.ExpiryDate != nil {
		exp := *s.ExpiryDate
		c.ExpiryDate = &exp
	}
	return &c
}
