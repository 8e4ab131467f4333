package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	"github.com/vsinha/buildcore/pkg/infrastructure/locking"
	testhelpers "github.com/vsinha/buildcore/pkg/infrastructure/testing"
)

var oneUnit = decimal.NewFromInt(1)

func newSequencer(data *testhelpers.EngineTestData, global bool) *IdentifierSequencer {
	return NewIdentifierSequencer(data.Store, locking.NewMemoryLocker(), NewIntegerStrategy(), global, nil)
}

func TestIdentifierSequencer_Generate(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	for _, serial := range []string{"1", "2", "3"} {
		testhelpers.MustAddSerial(data.Store, testhelpers.Turbopump, serial)
	}
	seq := newSequencer(data, false)
	scope := seq.ScopeFor(testhelpers.Turbopump)
	ctx := context.Background()

	next, err := seq.NextAvailable(ctx, scope)
	if err != nil {
		t.Fatalf("NextAvailable failed: %v", err)
	}
	if next != "4" {
		t.Errorf("NextAvailable = %s, want 4", next)
	}

	got, err := seq.Generate(ctx, scope, "~,~", 2)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"4", "5"}) {
		t.Errorf("Generate = %v, want [4 5]", got)
	}

	// preview only: nothing was recorded
	again, err := seq.Generate(ctx, scope, "~", 1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if again[0] != "4" {
		t.Errorf("Expected preview not to consume identifiers, got %v", again)
	}
}

func TestIdentifierSequencer_CollisionsReportedTogether(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	for _, serial := range []string{"1", "2", "3"} {
		testhelpers.MustAddSerial(data.Store, testhelpers.Turbopump, serial)
	}
	seq := newSequencer(data, false)

	_, err := seq.Generate(context.Background(), seq.ScopeFor(testhelpers.Turbopump), "2-4", 3)
	var dup *entities.DuplicateIdentifierError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateIdentifierError, got %v", err)
	}
	if !reflect.DeepEqual(dup.Values, []string{"2", "3"}) {
		t.Errorf("Expected collisions [2 3], got %v", dup.Values)
	}
}

func TestIdentifierSequencer_Scope(t *testing.T) {
	tests := []struct {
		name    string
		global  bool
		wantErr bool
	}{
		{"per_part_scope_allows_reuse", false, false},
		{"global_scope_rejects_reuse", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testhelpers.BuildEngineTestData()
			testhelpers.MustAddSerial(data.Store, testhelpers.Gasket, "7")
			seq := newSequencer(data, tt.global)

			_, err := seq.Generate(context.Background(), seq.ScopeFor(testhelpers.Turbopump), "7", 1)
			if tt.wantErr && !errors.Is(err, entities.ErrDuplicateIdentifier) {
				t.Errorf("Expected ErrDuplicateIdentifier, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestIdentifierSequencer_AssignRollsBack(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	seq := newSequencer(data, false)
	ctx := context.Background()
	scope := seq.ScopeFor(testhelpers.Turbopump)

	boom := errors.New("label printer offline")
	_, err := seq.Assign(ctx, scope, "1-3", 3, func(tx repositories.Store, ids []string) error {
		for _, id := range ids {
			item, _ := entities.NewStockItem(testhelpers.Turbopump, oneUnit, "")
			item.Serial = id
			if err := tx.Stock().SaveStockItem(ctx, item); err != nil {
				return err
			}
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	serials, err := data.Store.Stock().GetSerials(ctx, testhelpers.Turbopump)
	if err != nil {
		t.Fatalf("GetSerials failed: %v", err)
	}
	if len(serials) != 0 {
		t.Errorf("Expected failed assignment to leave no serials, got %v", serials)
	}
}

func TestIdentifierSequencer_Batch(t *testing.T) {
	tests := []struct {
		name    string
		global  bool
		serial  string
		wantErr error
	}{
		{name: "free serial", serial: "9"},
		{name: "taken in scope", serial: "5", wantErr: entities.ErrDuplicateIdentifier},
		{name: "other part per part scope", serial: "7"},
		{name: "other part global scope", global: true, serial: "7", wantErr: entities.ErrDuplicateIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testhelpers.BuildEngineTestData()
			testhelpers.MustAddSerial(data.Store, testhelpers.Turbopump, "5")
			testhelpers.MustAddSerial(data.Store, testhelpers.Igniter, "7")
			seq := newSequencer(data, tt.global)
			ctx := context.Background()

			err := seq.Batch(ctx, []entities.PartNumber{testhelpers.Turbopump}, func(tx repositories.Store, batch *SerialBatch) error {
				if _, err := batch.Mint(ctx, SerializedStockRequest{Part: testhelpers.Turbopump, Pattern: "~", Quantity: 1}); err != nil {
					return err
				}
				return batch.Claim(ctx, testhelpers.Turbopump, tt.serial)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Batch error = %v, want %v", err, tt.wantErr)
			}

			serials, _ := data.Store.Stock().GetSerials(ctx, testhelpers.Turbopump)
			want := 1
			if tt.wantErr == nil {
				want = 2
			}
			if len(serials) != want {
				t.Errorf("Expected %d turbopump serials after the batch, got %v", want, serials)
			}
		})
	}
}

func TestIdentifierSequencer_BatchRejectsUnlockedScope(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	seq := newSequencer(data, false)
	ctx := context.Background()

	err := seq.Batch(ctx, []entities.PartNumber{testhelpers.Turbopump}, func(tx repositories.Store, batch *SerialBatch) error {
		return batch.Claim(ctx, testhelpers.Igniter, "1")
	})
	if err == nil {
		t.Error("Expected a claim outside the locked scopes to fail")
	}
}

func TestIdentifierSequencer_CreateSerializedStock(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	testhelpers.MustAddSerial(data.Store, testhelpers.Turbopump, "5")
	seq := newSequencer(data, false)
	ctx := context.Background()

	items, err := seq.CreateSerializedStock(ctx, SerializedStockRequest{
		Part:     testhelpers.Turbopump,
		Pattern:  "~+2",
		Quantity: 3,
		Location: "BAY-1",
	})
	if err != nil {
		t.Fatalf("CreateSerializedStock failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"6", "7", "8"} {
		if items[i].Serial != want {
			t.Errorf("Item %d serial = %s, want %s", i, items[i].Serial, want)
		}
		if !items[i].Quantity.Equal(oneUnit) || items[i].Location != "BAY-1" {
			t.Errorf("Item %d should be one unit at BAY-1, got %s at %s", i, items[i].Quantity, items[i].Location)
		}
	}

	// all or nothing: 4 is free but 5 is taken
	_, err = seq.CreateSerializedStock(ctx, SerializedStockRequest{Part: testhelpers.Turbopump, Pattern: "4-5", Quantity: 2})
	if !errors.Is(err, entities.ErrDuplicateIdentifier) {
		t.Fatalf("Expected ErrDuplicateIdentifier, got %v", err)
	}
	serials, _ := data.Store.Stock().GetSerials(ctx, testhelpers.Turbopump)
	if len(serials) != 4 {
		t.Errorf("Expected 4 serials after rejected request, got %v", serials)
	}
}

func TestIdentifierSequencer_ConcurrentAssignNeverDuplicates(t *testing.T) {
	data := testhelpers.BuildEngineTestData()
	seq := newSequencer(data, false)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := seq.CreateSerializedStock(ctx, SerializedStockRequest{
				Part:     testhelpers.Turbopump,
				Pattern:  "~",
				Quantity: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CreateSerializedStock failed: %v", err)
		}
	}

	serials, err := data.Store.Stock().GetSerials(ctx, testhelpers.Turbopump)
	if err != nil {
		t.Fatalf("GetSerials failed: %v", err)
	}
	sort.Slice(serials, func(i, j int) bool {
		return NewIntegerStrategy().Compare(serials[i], serials[j]) < 0
	})
	for i, s := range serials {
		if want := fmt.Sprint(i + 1); s != want {
			t.Fatalf("Expected serials 1..%d without gaps or repeats, got %v", workers, serials)
		}
	}
	if len(serials) != workers {
		t.Errorf("Expected %d serials, got %d", workers, len(serials))
	}
}
