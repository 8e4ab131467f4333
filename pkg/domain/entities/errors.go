package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the fulfillment core. Typed errors below match these via errors.Is.
var (
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrQuantityMismatch    = errors.New("identifier quantity mismatch")
	ErrInvalidPattern      = errors.New("invalid identifier pattern")
	ErrConsumableLine      = errors.New("consumable BOM line cannot be allocated")
	ErrInvalidSubstitute   = errors.New("stock part is not valid for BOM line")
	ErrOverAllocation      = errors.New("allocation exceeds line ceiling")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrStaleValidation     = errors.New("BOM validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrSerialSplit         = errors.New("serialized stock must be allocated as a whole unit")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrNotFound            = errors.New("not found")
	ErrInternalDefect      = errors.New("internal defect")
)

// IsRecoverable reports whether err is a user-facing failure rather than an internal defect
func IsRecoverable(err error) bool {
	return err != nil && !errors.Is(err, ErrInternalDefect)
}

// NotFoundError reports a missing record of the named kind
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicateIdentifierError lists every identifier that collided with the uniqueness scope
type DuplicateIdentifierError struct {
	Values []string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate identifiers: %s", strings.Join(e.Values, ", "))
}

func (e *DuplicateIdentifierError) Is(target error) bool {
	return target == ErrDuplicateIdentifier
}

// QuantityMismatchError reports a pattern that expanded to the wrong number of identifiers
// Exceeded is set when expansion stopped early because Got already passed Expected.
type QuantityMismatchError struct {
	Expected int
	Got      int
	Exceeded bool
}

func (e *QuantityMismatchError) Error() string {
	if e.Exceeded {
		return fmt.Sprintf("pattern expands to more than %d identifiers", e.Expected)
	}
	return fmt.Sprintf("pattern expands to %d identifiers, expected %d", e.Got, e.Expected)
}

func (e *QuantityMismatchError) Is(target error) bool {
	return target == ErrQuantityMismatch
}

// CycleError reports a revisited part during an ancestor or BOM walk.
// Defect is set when the cycle was found at read time, where write-time checks should have prevented it.
type CycleError struct {
	Path   []PartNumber
	Defect bool
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, pn := range e.Path {
		parts[i] = string(pn)
	}
	msg := fmt.Sprintf("cycle detected: %s", strings.Join(parts, " -> "))
	if e.Defect {
		msg = "internal defect: " + msg
	}
	return msg
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected || (e.Defect && target == ErrInternalDefect)
}

// DuplicateLinesError lists sub parts that appear more than once in a resolved BOM
type DuplicateLinesError struct {
	Assembly PartNumber
	SubParts []PartNumber
}

func (e *DuplicateLinesError) Error() string {
	parts := make([]string, len(e.SubParts))
	for i, pn := range e.SubParts {
		parts[i] = string(pn)
	}
	return fmt.Sprintf("BOM for %s has duplicate sub parts: %s", e.Assembly, strings.Join(parts, ", "))
}

func (e *DuplicateLinesError) Is(target error) bool {
	return target == ErrStaleValidation
}

// OverAllocationError carries the quantities that broke the line ceiling
type OverAllocationError struct {
	Line      BOMLineID
	Allocated decimal.Decimal
	Requested decimal.Decimal
	Ceiling   decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("line %s: allocated %s + requested %s exceeds ceiling %s",
		e.Line, e.Allocated, e.Requested, e.Ceiling)
}

func (e *OverAllocationError) Is(target error) bool {
	return target == ErrOverAllocation
}

// LineShortfall is one BOM line that is not covered by its allocations
type LineShortfall struct {
	Line      BOMLineID
	SubPart   PartNumber
	Required  decimal.Decimal
	Allocated decimal.Decimal
}

// Missing returns the quantity still needed
func (s LineShortfall) Missing() decimal.Decimal {
	return s.Required.Sub(s.Allocated)
}

// InsufficientStockError reports every line that blocks completion of an output
type InsufficientStockError struct {
	Output BuildOutputID
	Lines  []LineShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("%s (%s of %s)", l.SubPart, l.Allocated, l.Required)
	}
	return fmt.Sprintf("output %s has unallocated lines: %s", e.Output, strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
