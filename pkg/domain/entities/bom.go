package entities

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BOMLineID identifies a BOM line
type BOMLineID string

// NewBOMLineID returns a fresh random BOM line identifier
func NewBOMLineID() BOMLineID {
	return BOMLineID(uuid.NewString())
}

// OverageKind distinguishes absolute overage from percentage overage
type OverageKind int

const (
	AbsoluteOverage OverageKind = iota
	PercentageOverage
)

// String method for OverageKind enum
func (k OverageKind) String() string {
	switch k {
	case AbsoluteOverage:
		return "Absolute"
	case PercentageOverage:
		return "Percentage"
	default:
		return "Unknown"
	}
}

// Overage is the extra allowance above the nominal required quantity
type Overage struct {
	Kind  OverageKind
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ParseOverage parses "2", "0.5" or "12.5%"; an empty string means no overage
func ParseOverage(s string) (Overage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Overage{}, nil
	}

	kind := AbsoluteOverage
	if strings.HasSuffix(s, "%") {
		kind = PercentageOverage
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return Overage{}, fmt.Errorf("invalid overage %q: %w", s, err)
	}
	if value.IsNegative() {
		return Overage{}, fmt.Errorf("overage cannot be negative, got %s", value)
	}
	if kind == PercentageOverage && value.GreaterThan(hundred) {
		return Overage{}, fmt.Errorf("overage percentage cannot exceed 100, got %s", value)
	}

	return Overage{Kind: kind, Value: value}, nil
}

// Resolve returns the absolute overage for the given required quantity
func (o Overage) Resolve(required decimal.Decimal) decimal.Decimal {
	if o.Kind == PercentageOverage {
		return required.Mul(o.Value).Div(hundred)
	}
	return o.Value
}

// String renders the overage in its textual form
func (o Overage) String() string {
	if o.Value.IsZero() {
		return ""
	}
	if o.Kind == PercentageOverage {
		return o.Value.String() + "%"
	}
	return o.Value.String()
}

// BOMLine represents a single line in a Bill of Materials
type BOMLine struct {
	ID          BOMLineID
	Assembly    PartNumber
	SubPart     PartNumber
	Quantity    decimal.Decimal
	Reference   string
	Overage     Overage
	Consumable  bool
	Inherited   bool
	Optional    bool
	Note        string
	Substitutes []PartNumber
}

// NewBOMLine creates a validated BOMLine
func NewBOMLine(assembly, subPart PartNumber, quantity decimal.Decimal) (*BOMLine, error) {
	if string(assembly) == "" {
		return nil, fmt.Errorf("assembly part number cannot be empty")
	}
	if string(subPart) == "" {
		return nil, fmt.Errorf("sub part number cannot be empty")
	}
	if assembly == subPart {
		return nil, fmt.Errorf("assembly and sub part cannot be the same: %s", assembly)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	return &BOMLine{
		ID:       NewBOMLineID(),
		Assembly: assembly,
		SubPart:  subPart,
		Quantity: quantity,
	}, nil
}

// Validate checks the line-level invariants that NewBOMLine enforces plus the substitute set
func (l *BOMLine) Validate() error {
	if l.Assembly == "" || l.SubPart == "" {
		return fmt.Errorf("BOM line %s must name both assembly and sub part", l.ID)
	}
	if l.Assembly == l.SubPart {
		return fmt.Errorf("assembly and sub part cannot be the same: %s", l.Assembly)
	}
	if !l.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", l.Quantity)
	}
	seen := make(map[PartNumber]bool, len(l.Substitutes))
	for _, sub := range l.Substitutes {
		if sub == l.SubPart {
			return fmt.Errorf("substitute %s duplicates the line's sub part", sub)
		}
		if sub == l.Assembly {
			return fmt.Errorf("substitute %s cannot be the assembly itself", sub)
		}
		if seen[sub] {
			return fmt.Errorf("substitute %s listed twice", sub)
		}
		seen[sub] = true
	}
	return nil
}

// AcceptsPart reports whether stock of the given part may satisfy this line
func (l *BOMLine) AcceptsPart(pn PartNumber) bool {
	if pn == l.SubPart {
		return true
	}
	for _, sub := range l.Substitutes {
		if sub == pn {
			return true
		}
	}
	return false
}

// RequiredFor returns the nominal quantity needed to build the given number of units
func (l *BOMLine) RequiredFor(units decimal.Decimal) decimal.Decimal {
	return l.Quantity.Mul(units)
}

// CeilingFor returns the most that may be allocated for the given number of units
func (l *BOMLine) CeilingFor(units decimal.Decimal) decimal.Decimal {
	required := l.RequiredFor(units)
	return required.Add(l.Overage.Resolve(required))
}

// Clone returns a deep copy of the line
func (l *BOMLine) Clone() *BOMLine {
	c := *l
	c.Substitutes = append([]PartNumber(nil), l.Substitutes...)
	return &c
}
