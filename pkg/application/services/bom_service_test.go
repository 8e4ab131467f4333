package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
	testhelpers "github.com/vsinha/buildcore/pkg/infrastructure/testing"
)

func newEditor(t *testing.T, data *testhelpers.EngineTestData) (*BOMService, *services.ValidationGate, *events.InMemoryEventStore) {
	t.Helper()
	eventStore := events.NewInMemoryEventStore(nil)
	resolver := services.NewBOMResolver(data.Store.Parts(), data.Store.BOM(), services.NearestAncestorWins)
	gate := services.NewValidationGate(resolver, data.Store.Validations(), nil)
	if err := eventStore.Subscribe(events.StructuralEvents, NewValidationInvalidator(gate, nil)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return NewBOMService(data.Store, services.NearestAncestorWins, eventStore, nil), gate, eventStore
}

func TestBOMService_SavePart(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	editor, _, eventStore := newEditor(t, data)
	ctx := context.Background()

	tests := []struct {
		name    string
		part    *entities.Part
		wantErr error
	}{
		{
			name:    "variant of itself",
			part:    &entities.Part{PartNumber: testhelpers.EngineV1, Assembly: true, VariantOf: testhelpers.EngineV1},
			wantErr: entities.ErrCycleDetected,
		},
		{
			name:    "template below its own variant",
			part:    &entities.Part{PartNumber: testhelpers.EngineTemplate, Assembly: true, IsTemplate: true, VariantOf: testhelpers.EngineV1HP},
			wantErr: entities.ErrCycleDetected,
		},
		{
			name:    "unknown parent",
			part:    &entities.Part{PartNumber: "ENGINE_V2", Assembly: true, VariantOf: "ENGINE_X"},
			wantErr: entities.ErrNotFound,
		},
		{
			name: "new variant",
			part: &entities.Part{PartNumber: "ENGINE_V2", Assembly: true, VariantOf: testhelpers.EngineTemplate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := editor.SavePart(ctx, tt.part)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SavePart failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// rejected saves leave the chain alone
	template, _ := data.Store.Parts().GetPart(ctx, testhelpers.EngineTemplate)
	if template.VariantOf != "" {
		t.Errorf("Expected ENGINE to stay a root template, got variant of %s", template.VariantOf)
	}

	types := eventTypes(t, eventStore, "ENGINE_V2")
	if len(types) != 1 || types[0] != events.PartVariantOfUpdatedEvent {
		t.Errorf("Expected one %s event, got %v", events.PartVariantOfUpdatedEvent, types)
	}

	// saving without a parent change is not structural
	v2, _ := data.Store.Parts().GetPart(ctx, "ENGINE_V2")
	v2.Description = "Engine V2"
	if err := editor.SavePart(ctx, v2); err != nil {
		t.Fatalf("SavePart failed: %v", err)
	}
	if n := len(eventTypes(t, eventStore, "ENGINE_V2")); n != 1 {
		t.Errorf("Expected no new event for a description change, got %d events", n)
	}
}

func TestBOMService_AddLine(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	editor, _, _ := newEditor(t, data)
	ctx := context.Background()

	tests := []struct {
		name     string
		assembly entities.PartNumber
		subPart  entities.PartNumber
		subs     []entities.PartNumber
		wantErr  error
	}{
		{
			name:     "assembly inside its own tree",
			assembly: testhelpers.Injector,
			subPart:  testhelpers.EngineV1HP,
			wantErr:  entities.ErrCycleDetected,
		},
		{
			name:     "substitute closes a loop",
			assembly: testhelpers.Igniter,
			subPart:  testhelpers.Nozzle,
			subs:     []entities.PartNumber{testhelpers.EngineV1HP},
			wantErr:  entities.ErrCycleDetected,
		},
		{
			name:     "unknown sub part",
			assembly: testhelpers.EngineV1,
			subPart:  "VALVE",
			wantErr:  entities.ErrNotFound,
		},
		{
			name:     "plain line",
			assembly: testhelpers.EngineV1,
			subPart:  testhelpers.Nozzle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := entities.NewBOMLine(tt.assembly, tt.subPart, decimal.NewFromInt(1))
			if err != nil {
				t.Fatalf("NewBOMLine failed: %v", err)
			}
			line.Substitutes = tt.subs

			err = editor.AddLine(ctx, line)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("AddLine failed: %v", err)
				}
				if _, err := data.Store.BOM().GetBOMLine(ctx, line.ID); err != nil {
					t.Errorf("Expected line to be stored: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if _, err := data.Store.BOM().GetBOMLine(ctx, line.ID); !errors.Is(err, entities.ErrNotFound) {
				t.Errorf("Expected rejected line not to be stored, got %v", err)
			}
		})
	}
}

func TestBOMService_UpdateLineCannotMove(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	editor, _, _ := newEditor(t, data)
	ctx := context.Background()

	line, _ := data.Store.BOM().GetBOMLine(ctx, data.InjectorLine)
	line.Assembly = testhelpers.EngineTemplate
	if err := editor.UpdateLine(ctx, line); err == nil {
		t.Error("Expected moving a line to another assembly to fail")
	}
}

func TestBOMService_EditsClearValidation(t *testing.T) {
	tests := []struct {
		name          string
		edit          func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error
		wantValidated bool
	}{
		{
			name: "inherited line added to the template",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := entities.NewBOMLine(testhelpers.EngineTemplate, testhelpers.Igniter, decimal.NewFromInt(1))
				line.Inherited = true
				return editor.AddLine(ctx, line)
			},
		},
		{
			name: "ancestor quantity edited",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := data.Store.BOM().GetBOMLine(ctx, data.GasketLine)
				line.Quantity = decimal.NewFromInt(6)
				return editor.UpdateLine(ctx, line)
			},
		},
		{
			name: "own line made required",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := data.Store.BOM().GetBOMLine(ctx, data.IgniterLine)
				line.Optional = false
				return editor.UpdateLine(ctx, line)
			},
		},
		{
			name: "ancestor substitutes replaced",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				return editor.SetSubstitutes(ctx, data.GasketLine, nil)
			},
		},
		{
			name: "ancestor line deleted",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				return editor.DeleteLine(ctx, data.TurbopumpLine)
			},
		},
		{
			name: "variant moved up the chain",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				part, _ := data.Store.Parts().GetPart(ctx, testhelpers.EngineV1HP)
				part.VariantOf = testhelpers.EngineTemplate
				return editor.SavePart(ctx, part)
			},
		},
		{
			name: "ancestor note and reference edited",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := data.Store.BOM().GetBOMLine(ctx, data.TurbopumpLine)
				line.Note = "torque to sheet 4"
				line.Reference = "TP1-A"
				return editor.UpdateLine(ctx, line)
			},
		},
		{
			name: "own reference edited",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := data.Store.BOM().GetBOMLine(ctx, data.IgniterLine)
				line.Reference = "IG2"
				return editor.UpdateLine(ctx, line)
			},
		},
		{
			name: "line saved unchanged",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := data.Store.BOM().GetBOMLine(ctx, data.IgniterLine)
				return editor.UpdateLine(ctx, line)
			},
			wantValidated: true,
		},
		{
			name: "own line of an unrelated part added",
			edit: func(ctx context.Context, editor *BOMService, data *testhelpers.EngineTestData) error {
				line, _ := entities.NewBOMLine(testhelpers.Turbopump, testhelpers.Gasket, decimal.NewFromInt(2))
				return editor.AddLine(ctx, line)
			},
			wantValidated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testhelpers.BuildEngineTestData()
			editor, gate, _ := newEditor(t, data)
			ctx := context.Background()

			if _, err := gate.Validate(ctx, testhelpers.EngineV1HP); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if err := tt.edit(ctx, editor, data); err != nil {
				t.Fatalf("edit failed: %v", err)
			}

			got, err := gate.IsValidated(ctx, testhelpers.EngineV1HP)
			if err != nil {
				t.Fatalf("IsValidated failed: %v", err)
			}
			if got != tt.wantValidated {
				t.Errorf("IsValidated = %v, want %v", got, tt.wantValidated)
			}
		})
	}
}

func TestValidationInvalidator_IgnoresOtherEvents(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	_, gate, eventStore := newEditor(t, data)
	ctx := context.Background()

	if _, err := gate.Validate(ctx, testhelpers.EngineV1HP); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	h := NewValidationInvalidator(gate, nil)
	if h.CanHandle(events.StockAllocatedEvent) {
		t.Error("Expected allocation events to be ignored")
	}
	if !h.CanHandle(events.BOMLineDeletedEvent) {
		t.Error("Expected line deletion to be handled")
	}

	alloc := entities.BuildLineAllocation{ID: "A1", Build: "B1"}
	if err := eventStore.AppendEvent("B1", events.NewStockAllocatedEvent(alloc)); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	ok, _ := gate.IsValidated(ctx, testhelpers.EngineV1HP)
	if !ok {
		t.Error("Expected validation to survive an allocation event")
	}
}
