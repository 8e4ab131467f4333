package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	testhelpers "github.com/vsinha/buildcore/pkg/infrastructure/testing"
)

func newValidator(data *testhelpers.EngineTestData) *BOMValidator {
	return NewBOMValidator(data.Store.Parts(), newResolver(data.Store, NearestAncestorWins))
}

func TestBOMValidator_CheckVariantOf(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	validator := newValidator(data)

	tests := []struct {
		name      string
		part      entities.PartNumber
		parent    entities.PartNumber
		wantCycle bool
	}{
		{"no_parent", testhelpers.Nozzle, "", false},
		{"fresh_parent", testhelpers.Nozzle, testhelpers.EngineTemplate, false},
		{"self", testhelpers.EngineV1, testhelpers.EngineV1, true},
		{"direct_cycle", testhelpers.EngineTemplate, testhelpers.EngineV1, true},
		{"indirect_cycle", testhelpers.EngineTemplate, testhelpers.EngineV1HP, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.CheckVariantOf(context.Background(), tt.part, tt.parent)
			if tt.wantCycle {
				if !errors.Is(err, entities.ErrCycleDetected) {
					t.Errorf("Expected ErrCycleDetected, got %v", err)
				}
				if errors.Is(err, entities.ErrInternalDefect) {
					t.Error("Write-time cycle must not be reported as an internal defect")
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestBOMValidator_CheckBOMLine(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	ctx := context.Background()

	// MANIFOLD already contains the high pressure engine
	if err := data.Store.Parts().SavePart(ctx, &entities.Part{PartNumber: "MANIFOLD", Assembly: true}); err != nil {
		t.Fatalf("SavePart failed: %v", err)
	}
	testhelpers.MustAddLine(data.Store, "MANIFOLD", testhelpers.EngineV1HP, decimal.NewFromInt(1), nil)

	validator := newValidator(data)

	tests := []struct {
		name      string
		assembly  entities.PartNumber
		subPart   entities.PartNumber
		inherited bool
		subs      []entities.PartNumber
		wantErr   error
	}{
		{"plain_line", testhelpers.EngineV1HP, testhelpers.Nozzle, false, nil, nil},
		{"recursive_through_sub_part", testhelpers.Turbopump, testhelpers.EngineV1HP, false, nil, entities.ErrCycleDetected},
		{"recursive_through_substitute", testhelpers.Gasket, testhelpers.Nozzle, false, []entities.PartNumber{testhelpers.EngineV1HP}, entities.ErrCycleDetected},
		{"own_line_does_not_reach_variants", testhelpers.EngineTemplate, "MANIFOLD", false, nil, nil},
		{"inherited_line_reaches_variants", testhelpers.EngineTemplate, "MANIFOLD", true, nil, entities.ErrCycleDetected},
		{"unknown_sub_part", testhelpers.EngineV1HP, "NOPE", false, nil, entities.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := entities.NewBOMLine(tt.assembly, tt.subPart, decimal.NewFromInt(1))
			if err != nil {
				t.Fatalf("NewBOMLine failed: %v", err)
			}
			line.Inherited = tt.inherited
			line.Substitutes = tt.subs

			err = validator.CheckBOMLine(ctx, line)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBOMValidator_ValidateBOM(t *testing.T) {
	line := func(assembly, sub entities.PartNumber) *entities.BOMLine {
		l, err := entities.NewBOMLine(assembly, sub, decimal.NewFromInt(1))
		if err != nil {
			t.Fatalf("NewBOMLine failed: %v", err)
		}
		return l
	}
	validator := NewBOMValidator(nil, nil)

	t.Run("acyclic", func(t *testing.T) {
		result := validator.ValidateBOM([]*entities.BOMLine{line("A", "B"), line("B", "C"), line("A", "C")})
		if result.HasCycles {
			t.Errorf("Expected no cycles, got %v", result.CyclePaths)
		}
		if len(result.Errors) != 0 {
			t.Errorf("Expected no errors, got %v", result.Errors)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		result := validator.ValidateBOM([]*entities.BOMLine{line("A", "B"), line("B", "C"), line("C", "A")})
		if !result.HasCycles {
			t.Fatal("Expected cycle to be detected")
		}
		if len(result.CyclePaths[0]) != 4 {
			t.Errorf("Expected cycle path of 4 nodes, got %v", result.CyclePaths[0])
		}
	})

	t.Run("duplicates", func(t *testing.T) {
		result := validator.ValidateBOM([]*entities.BOMLine{line("A", "B"), line("A", "B")})
		if len(result.DuplicateLines) != 2 {
			t.Errorf("Expected duplicate pair, got %d lines", len(result.DuplicateLines))
		}
	})
}

func TestDuplicateSubParts(t *testing.T) {
	mk := func(sub entities.PartNumber) ResolvedLine {
		return ResolvedLine{Line: &entities.BOMLine{SubPart: sub}}
	}
	lines := []ResolvedLine{mk("A"), mk("B"), mk("A"), mk("C"), mk("A"), mk("B")}

	got := DuplicateSubParts(lines)
	if !equalParts(got, []entities.PartNumber{"A", "B"}) {
		t.Errorf("DuplicateSubParts = %v, want [A B]", got)
	}
	if DuplicateSubParts(lines[:2]) != nil {
		t.Error("Expected no duplicates for distinct sub parts")
	}
}
