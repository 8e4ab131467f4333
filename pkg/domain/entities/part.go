package entities

import "fmt"

// PartNumber represents a unique part identifier
type PartNumber string

// Part represents a catalogue part and its position in the template/variant tree
type Part struct {
	PartNumber        PartNumber
	Description       string
	IsTemplate        bool
	VariantOf         PartNumber // empty = not a variant
	Assembly          bool
	Trackable         bool
	DefaultExpiryDays int
}

// NewPart creates a validated Part
func NewPart(partNumber PartNumber, description string, variantOf PartNumber) (*Part, error) {
	if string(partNumber) == "" {
		return nil, fmt.Errorf("part number cannot be empty")
	}
	if variantOf == partNumber {
		return nil, fmt.Errorf("part cannot be a variant of itself: %s", partNumber)
	}

	return &Part{
		PartNumber:  partNumber,
		Description: description,
		VariantOf:   variantOf,
	}, nil
}

// IsVariant reports whether the part has a template parent
func (p *Part) IsVariant() bool {
	return p.VariantOf != ""
}
