package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewTestDB(t))
}

func TestOpen_EnforcesForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("reading foreign_keys pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}

	_, err := db.Exec(`INSERT INTO build_outputs (id, build, quantity) VALUES ('OUT-1', 'NO-SUCH-BUILD', '1')`)
	if err == nil {
		t.Error("Expected an output referencing a missing build to be rejected")
	}

	if err := Migrate(db); err != nil {
		t.Errorf("Expected Migrate to be idempotent, got %v", err)
	}
}

func TestStore_WithinTxCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx repositories.Store) error {
		return tx.Parts().SavePart(ctx, &entities.Part{PartNumber: "ENGINE", Assembly: true})
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	got, err := store.Parts().GetPart(ctx, "ENGINE")
	if err != nil {
		t.Fatalf("Expected committed part to be visible: %v", err)
	}
	if !got.Assembly {
		t.Error("Expected assembly flag to round-trip")
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, _ := entities.NewStockItem("BOLT", decimal.NewFromInt(10), "A1")
	if err := store.Stock().SaveStockItem(ctx, item); err != nil {
		t.Fatalf("SaveStockItem failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx repositories.Store) error {
		line, _ := entities.NewBOMLine("ENGINE", "BOLT", decimal.NewFromInt(2))
		if err := tx.BOM().SaveBOMLine(ctx, line); err != nil {
			return err
		}
		changed, err := tx.Stock().GetStockItem(ctx, item.ID)
		if err != nil {
			return err
		}
		changed.Quantity = decimal.Zero
		changed.Status = entities.Consumed
		if err := tx.Stock().UpdateStockItem(ctx, changed); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	lines, _ := store.BOM().GetBOMLines(ctx, "ENGINE")
	if len(lines) != 0 {
		t.Errorf("Expected BOM line to be rolled back, got %d lines", len(lines))
	}
	got, _ := store.Stock().GetStockItem(ctx, item.ID)
	if !got.Quantity.Equal(decimal.NewFromInt(10)) || got.Status != entities.Available {
		t.Errorf("Expected stock to be untouched, got %s %s", got.Quantity, got.Status)
	}
}

func TestStore_NestedWithinTxJoinsOuter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx repositories.Store) error {
		return tx.WithinTx(ctx, func(inner repositories.Store) error {
			return inner.Parts().SavePart(ctx, &entities.Part{PartNumber: "ENGINE"})
		})
	})
	if err != nil {
		t.Fatalf("Nested WithinTx failed: %v", err)
	}
	if _, err := store.Parts().GetPart(ctx, "ENGINE"); err != nil {
		t.Errorf("Expected nested write to commit with the outer transaction: %v", err)
	}
}

func TestPartRepository_UpsertKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []entities.Part{
		{PartNumber: "ENGINE", IsTemplate: true},
		{PartNumber: "ENGINE_V1", VariantOf: "ENGINE"},
		{PartNumber: "ENGINE_V2", VariantOf: "ENGINE"},
	} {
		if err := store.Parts().SavePart(ctx, &p); err != nil {
			t.Fatalf("SavePart(%s) failed: %v", p.PartNumber, err)
		}
	}
	if err := store.Parts().SavePart(ctx, &entities.Part{PartNumber: "ENGINE", Description: "updated", IsTemplate: true}); err != nil {
		t.Fatalf("SavePart update failed: %v", err)
	}

	parts, err := store.Parts().GetAllParts(ctx)
	if err != nil {
		t.Fatalf("GetAllParts failed: %v", err)
	}
	if len(parts) != 3 || parts[0].PartNumber != "ENGINE" || parts[0].Description != "updated" {
		t.Errorf("Expected ENGINE first with updated description, got %+v", parts[0])
	}

	variants, _ := store.Parts().GetVariants(ctx, "ENGINE")
	if len(variants) != 2 || variants[0].PartNumber != "ENGINE_V1" {
		t.Errorf("Expected two variants in insertion order, got %v", variants)
	}

	if _, err := store.Parts().GetPart(ctx, "MISSING"); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBOMRepository_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	overage, _ := entities.ParseOverage("12.5%")
	line, _ := entities.NewBOMLine("ENGINE", "GASKET", decimal.RequireFromString("0.25"))
	line.Overage = overage
	line.Inherited = true
	line.Reference = "G1"
	line.Substitutes = []entities.PartNumber{"GASKET_ALT", "GASKET_OLD"}
	if err := store.BOM().SaveBOMLine(ctx, line); err != nil {
		t.Fatalf("SaveBOMLine failed: %v", err)
	}

	got, err := store.BOM().GetBOMLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("GetBOMLine failed: %v", err)
	}
	if !got.Quantity.Equal(line.Quantity) || got.Overage.String() != "12.5%" || !got.Inherited || got.Reference != "G1" {
		t.Errorf("Line did not round-trip: %+v", got)
	}
	if len(got.Substitutes) != 2 || got.Substitutes[1] != "GASKET_OLD" {
		t.Errorf("Expected substitutes to round-trip, got %v", got.Substitutes)
	}

	got.Assembly = "OTHER"
	if err := store.BOM().UpdateBOMLine(ctx, got); err == nil {
		t.Error("Expected moving a line to another assembly to fail")
	}
}

func TestBOMRepository_InsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []entities.BOMLineID
	for _, sub := range []entities.PartNumber{"C", "A", "B"} {
		line, _ := entities.NewBOMLine("ENGINE", sub, decimal.NewFromInt(1))
		if err := store.BOM().SaveBOMLine(ctx, line); err != nil {
			t.Fatalf("SaveBOMLine failed: %v", err)
		}
		ids = append(ids, line.ID)
	}

	if err := store.BOM().DeleteBOMLine(ctx, ids[1]); err != nil {
		t.Fatalf("DeleteBOMLine failed: %v", err)
	}
	if err := store.BOM().DeleteBOMLine(ctx, ids[1]); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("Expected second delete to report ErrNotFound, got %v", err)
	}

	lines, err := store.BOM().GetBOMLines(ctx, "ENGINE")
	if err != nil {
		t.Fatalf("GetBOMLines failed: %v", err)
	}
	if len(lines) != 2 || lines[0].SubPart != "C" || lines[1].SubPart != "B" {
		t.Errorf("Expected [C B] after deleting A, got %v", lines)
	}
}

func TestStockRepository_SerialsAndExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	save := func(part entities.PartNumber, serial string) error {
		item, _ := entities.NewStockItem(part, decimal.NewFromInt(1), "")
		item.Serial = serial
		item.ExpiryDate = &expiry
		return store.Stock().SaveStockItem(ctx, item)
	}

	if err := save("ENGINE", "100"); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := save("ENGINE", "100"); !errors.Is(err, entities.ErrDuplicateIdentifier) {
		t.Errorf("Expected ErrDuplicateIdentifier, got %v", err)
	}
	if err := save("PUMP", "100"); err != nil {
		t.Errorf("Same serial on another part should be accepted, got %v", err)
	}

	all, _ := store.Stock().GetSerials(ctx, "")
	if len(all) != 2 {
		t.Errorf("Expected 2 serials across parts, got %v", all)
	}
	engine, _ := store.Stock().GetSerials(ctx, "ENGINE")
	if len(engine) != 1 || engine[0] != "100" {
		t.Errorf("Expected [100] for ENGINE, got %v", engine)
	}

	items, _ := store.Stock().GetStockForPart(ctx, "ENGINE")
	if len(items) != 1 || items[0].ExpiryDate == nil || !items[0].ExpiryDate.Equal(expiry) {
		t.Errorf("Expected expiry date to round-trip, got %+v", items)
	}
}

func TestBuildRepository_Outputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	output, _ := entities.NewBuildOutput("BO-1", decimal.NewFromInt(1))
	if err := store.Builds().SaveOutput(ctx, output); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("Expected output without build to fail with ErrNotFound, got %v", err)
	}

	build, _ := entities.NewBuildOrder("BO-1", "ENGINE", decimal.NewFromInt(2))
	if err := store.Builds().SaveBuild(ctx, build); err != nil {
		t.Fatalf("SaveBuild failed: %v", err)
	}
	if err := store.Builds().SaveOutput(ctx, output); err != nil {
		t.Fatalf("SaveOutput failed: %v", err)
	}

	now := time.Now().UTC()
	output.State = entities.Completed
	output.ProducedStock = []entities.StockItemID{"S1", "S2"}
	output.CompletedAt = &now
	if err := store.Builds().UpdateOutput(ctx, output); err != nil {
		t.Fatalf("UpdateOutput failed: %v", err)
	}

	outputs, err := store.Builds().GetOutputs(ctx, "BO-1")
	if err != nil {
		t.Fatalf("GetOutputs failed: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("Expected 1 output, got %d", len(outputs))
	}
	got := outputs[0]
	if got.State != entities.Completed || len(got.ProducedStock) != 2 || got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("Output did not round-trip: %+v", got)
	}

	build.Completed = decimal.NewFromInt(1)
	build.Status = entities.BuildProduction
	if err := store.Builds().UpdateBuild(ctx, build); err != nil {
		t.Fatalf("UpdateBuild failed: %v", err)
	}
	again, _ := store.Builds().GetBuild(ctx, "BO-1")
	if !again.Completed.Equal(decimal.NewFromInt(1)) || again.Status != entities.BuildProduction {
		t.Errorf("Build did not round-trip: %+v", again)
	}
}

func TestAllocationRepository_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alloc := &entities.BuildLineAllocation{
		Build:     "BO-1",
		Output:    "OUT-1",
		BOMLine:   "LINE-1",
		StockItem: "STOCK-1",
		Quantity:  decimal.RequireFromString("1.5"),
		CreatedAt: time.Now(),
	}
	if err := store.Allocations().SaveAllocation(ctx, alloc); err != nil {
		t.Fatalf("SaveAllocation failed: %v", err)
	}
	if alloc.ID == "" {
		t.Fatal("Expected SaveAllocation to assign an id")
	}

	alloc.Quantity = decimal.NewFromInt(2)
	if err := store.Allocations().UpdateAllocation(ctx, alloc); err != nil {
		t.Fatalf("UpdateAllocation failed: %v", err)
	}

	byStock, _ := store.Allocations().GetAllocationsForStock(ctx, "STOCK-1")
	if len(byStock) != 1 || !byStock[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected updated allocation by stock, got %v", byStock)
	}

	if err := store.Allocations().DeleteAllocation(ctx, alloc.ID); err != nil {
		t.Fatalf("DeleteAllocation failed: %v", err)
	}
	byOutput, _ := store.Allocations().GetAllocationsForOutput(ctx, "OUT-1")
	if len(byOutput) != 0 {
		t.Errorf("Expected no allocations after delete, got %d", len(byOutput))
	}
}

func TestValidationRepository_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.Validations().GetValidation(ctx, "ENGINE")
	if err != nil {
		t.Fatalf("GetValidation failed: %v", err)
	}
	if v.Validated {
		t.Error("Expected unknown assembly to be unvalidated")
	}

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Validations().SaveValidation(ctx, &entities.BOMValidation{
		Assembly: "ENGINE", Validated: true, Checksum: "abc", ValidatedAt: at,
	}); err != nil {
		t.Fatalf("SaveValidation failed: %v", err)
	}
	if err := store.Validations().SaveValidation(ctx, &entities.BOMValidation{
		Assembly: "ENGINE", Validated: false, Checksum: "abc", ValidatedAt: at,
	}); err != nil {
		t.Fatalf("SaveValidation overwrite failed: %v", err)
	}

	v, _ = store.Validations().GetValidation(ctx, "ENGINE")
	if v.Validated || v.Checksum != "abc" || !v.ValidatedAt.Equal(at) {
		t.Errorf("Expected overwritten validation, got %+v", v)
	}
}
