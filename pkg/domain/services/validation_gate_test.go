package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	testhelpers "github.com/vsinha/buildcore/pkg/infrastructure/testing"
)

func newGate(data *testhelpers.EngineTestData) *ValidationGate {
	return NewValidationGate(newResolver(data.Store, NearestAncestorWins), data.Store.Validations(), nil)
}

func mustBeValidated(t *testing.T, gate *ValidationGate, part entities.PartNumber, want bool) {
	t.Helper()
	got, err := gate.IsValidated(context.Background(), part)
	if err != nil {
		t.Fatalf("IsValidated(%s) failed: %v", part, err)
	}
	if got != want {
		t.Errorf("IsValidated(%s) = %v, want %v", part, got, want)
	}
}

func TestValidationGate_ValidateThenEdit(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	gate := newGate(data)
	ctx := context.Background()

	mustBeValidated(t, gate, testhelpers.EngineV1HP, false)

	validation, err := gate.Validate(ctx, testhelpers.EngineV1HP)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !validation.Validated || validation.Checksum == "" {
		t.Errorf("Expected validated record with checksum, got %+v", validation)
	}
	mustBeValidated(t, gate, testhelpers.EngineV1HP, true)

	testhelpers.MustAddLine(data.Store, testhelpers.EngineV1HP, testhelpers.Nozzle, decimal.NewFromInt(1), nil)
	mustBeValidated(t, gate, testhelpers.EngineV1HP, false)
}

func TestValidationGate_AncestorEditClearsDescendant(t *testing.T) {
	tests := []struct {
		name string
		edit func(line *entities.BOMLine)
	}{
		{"quantity", func(l *entities.BOMLine) { l.Quantity = decimal.NewFromInt(8) }},
		{"substitutes", func(l *entities.BOMLine) { l.Substitutes = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testhelpers.BuildEngineTestData()
			gate := newGate(data)
			ctx := context.Background()

			if _, err := gate.Validate(ctx, testhelpers.EngineV1HP); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}

			line, err := data.Store.BOM().GetBOMLine(ctx, data.GasketLine)
			if err != nil {
				t.Fatalf("GetBOMLine failed: %v", err)
			}
			tt.edit(line)
			if err := data.Store.BOM().UpdateBOMLine(ctx, line); err != nil {
				t.Fatalf("UpdateBOMLine failed: %v", err)
			}

			mustBeValidated(t, gate, testhelpers.EngineV1HP, false)
		})
	}
}

func TestValidationGate_NoteEditMakesValidationStale(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	gate := newGate(data)
	ctx := context.Background()

	if _, err := gate.Validate(ctx, testhelpers.EngineV1HP); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	line, _ := data.Store.BOM().GetBOMLine(ctx, data.TurbopumpLine)
	line.Note = "torque to sheet 4"
	if err := data.Store.BOM().UpdateBOMLine(ctx, line); err != nil {
		t.Fatalf("UpdateBOMLine failed: %v", err)
	}

	// no event was published; the checksum alone catches the edit
	mustBeValidated(t, gate, testhelpers.EngineV1HP, false)
}

func TestValidationGate_DuplicatesRejected(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	testhelpers.MustAddLine(data.Store, testhelpers.EngineV1HP, testhelpers.Igniter, decimal.NewFromInt(1), nil)
	gate := newGate(data)

	_, err := gate.Validate(context.Background(), testhelpers.EngineV1HP)
	if !errors.Is(err, entities.ErrStaleValidation) {
		t.Fatalf("Expected ErrStaleValidation, got %v", err)
	}
	var dup *entities.DuplicateLinesError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateLinesError, got %T", err)
	}
	if !equalParts(dup.SubParts, []entities.PartNumber{testhelpers.Igniter}) {
		t.Errorf("Expected duplicate report [IGNITER], got %v", dup.SubParts)
	}
	mustBeValidated(t, gate, testhelpers.EngineV1HP, false)
}

func TestValidationGate_InvalidateDescendants(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	gate := newGate(data)
	ctx := context.Background()

	for _, pn := range []entities.PartNumber{testhelpers.EngineTemplate, testhelpers.EngineV1, testhelpers.EngineV1HP} {
		if _, err := gate.Validate(ctx, pn); err != nil {
			t.Fatalf("Validate(%s) failed: %v", pn, err)
		}
	}

	if err := gate.Invalidate(ctx, testhelpers.EngineV1, false); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	mustBeValidated(t, gate, testhelpers.EngineTemplate, true)
	mustBeValidated(t, gate, testhelpers.EngineV1, false)
	mustBeValidated(t, gate, testhelpers.EngineV1HP, true)

	if err := gate.Invalidate(ctx, testhelpers.EngineTemplate, true); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	for _, pn := range []entities.PartNumber{testhelpers.EngineTemplate, testhelpers.EngineV1, testhelpers.EngineV1HP} {
		mustBeValidated(t, gate, pn, false)
	}
}

func TestChecksum_IgnoresSubstituteOrder(t *testing.T) {
	a := &entities.BOMLine{SubPart: "X", Quantity: decimal.NewFromInt(1), Substitutes: []entities.PartNumber{"S1", "S2"}}
	b := &entities.BOMLine{SubPart: "X", Quantity: decimal.NewFromInt(1), Substitutes: []entities.PartNumber{"S2", "S1"}}
	c := &entities.BOMLine{SubPart: "X", Quantity: decimal.NewFromInt(2), Substitutes: []entities.PartNumber{"S1", "S2"}}

	if Checksum([]ResolvedLine{{Line: a}}) != Checksum([]ResolvedLine{{Line: b}}) {
		t.Error("Substitute order should not change the checksum")
	}
	if Checksum([]ResolvedLine{{Line: a}}) == Checksum([]ResolvedLine{{Line: c}}) {
		t.Error("Quantity change should change the checksum")
	}
}
