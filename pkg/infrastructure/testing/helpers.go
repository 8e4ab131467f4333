package testing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/infrastructure/repositories/memory"
)

// Part numbers used by the engine test scenario
const (
	EngineTemplate entities.PartNumber = "ENGINE"
	EngineV1       entities.PartNumber = "ENGINE_V1"
	EngineV1HP     entities.PartNumber = "ENGINE_V1_HP"

	Turbopump entities.PartNumber = "TURBOPUMP"
	Injector  entities.PartNumber = "INJECTOR"
	Nozzle    entities.PartNumber = "NOZZLE"
	Gasket    entities.PartNumber = "GASKET"
	GasketAlt entities.PartNumber = "GASKET_ALT"
	Sealant   entities.PartNumber = "SEALANT"
	Igniter   entities.PartNumber = "IGNITER"
)

// EngineTestData holds the store and the line ids of the engine scenario
type EngineTestData struct {
	Store *memory.Store

	TurbopumpLine entities.BOMLineID // ENGINE, inherited
	SealantLine   entities.BOMLineID // ENGINE, inherited, consumable
	GasketLine    entities.BOMLineID // ENGINE, inherited, 25% overage, GASKET_ALT substitute
	NozzleLine    entities.BOMLineID // ENGINE, not inherited
	InjectorLine  entities.BOMLineID // ENGINE_V1, inherited
	IgniterLine   entities.BOMLineID // ENGINE_V1_HP, own, optional
}

// BuildEngineTestData builds a three-level template chain:
//
//	ENGINE (template) <- ENGINE_V1 <- ENGINE_V1_HP
//
// ENGINE_V1_HP resolves to IGNITER, INJECTOR, TURBOPUMP, SEALANT, GASKET.
func BuildEngineTestData() *EngineTestData {
	ctx := context.Background()
	store := memory.NewStore()

	parts := []*entities.Part{
		{PartNumber: EngineTemplate, Description: "Engine Template", IsTemplate: true, Assembly: true},
		{PartNumber: EngineV1, Description: "Engine V1", IsTemplate: true, Assembly: true, VariantOf: EngineTemplate},
		{PartNumber: EngineV1HP, Description: "Engine V1 High Pressure", Assembly: true, Trackable: true, VariantOf: EngineV1, DefaultExpiryDays: 365},
		{PartNumber: Turbopump, Description: "Turbopump Assembly", Trackable: true},
		{PartNumber: Injector, Description: "Injector Plate"},
		{PartNumber: Nozzle, Description: "Nozzle Extension"},
		{PartNumber: Gasket, Description: "Gasket"},
		{PartNumber: GasketAlt, Description: "Gasket, alternate supplier"},
		{PartNumber: Sealant, Description: "Sealant, per tube"},
		{PartNumber: Igniter, Description: "Igniter"},
	}
	for _, p := range parts {
		if err := store.Parts().SavePart(ctx, p); err != nil {
			panic(err)
		}
	}

	data := &EngineTestData{Store: store}
	data.TurbopumpLine = MustAddLine(store, EngineTemplate, Turbopump, decimal.NewFromInt(1), func(l *entities.BOMLine) {
		l.Inherited = true
		l.Reference = "TP1"
	})
	data.SealantLine = MustAddLine(store, EngineTemplate, Sealant, decimal.NewFromFloat(0.5), func(l *entities.BOMLine) {
		l.Inherited = true
		l.Consumable = true
	})
	data.GasketLine = MustAddLine(store, EngineTemplate, Gasket, decimal.NewFromInt(4), func(l *entities.BOMLine) {
		l.Inherited = true
		l.Overage = entities.Overage{Kind: entities.PercentageOverage, Value: decimal.NewFromInt(25)}
		l.Substitutes = []entities.PartNumber{GasketAlt}
	})
	data.NozzleLine = MustAddLine(store, EngineTemplate, Nozzle, decimal.NewFromInt(1), nil)
	data.InjectorLine = MustAddLine(store, EngineV1, Injector, decimal.NewFromInt(1), func(l *entities.BOMLine) {
		l.Inherited = true
	})
	data.IgniterLine = MustAddLine(store, EngineV1HP, Igniter, decimal.NewFromInt(2), func(l *entities.BOMLine) {
		l.Optional = true
	})

	return data
}

// MustAddLine saves a BOM line, letting opts adjust it first
func MustAddLine(store *memory.Store, assembly, subPart entities.PartNumber, qty decimal.Decimal, opts func(*entities.BOMLine)) entities.BOMLineID {
	line, err := entities.NewBOMLine(assembly, subPart, qty)
	if err != nil {
		panic(err)
	}
	if opts != nil {
		opts(line)
	}
	if err := store.BOM().SaveBOMLine(context.Background(), line); err != nil {
		panic(err)
	}
	return line.ID
}

// MustAddStock saves an available stock item
func MustAddStock(store *memory.Store, part entities.PartNumber, qty decimal.Decimal, location string) *entities.StockItem {
	item, err := entities.NewStockItem(part, qty, location)
	if err != nil {
		panic(err)
	}
	if err := store.Stock().SaveStockItem(context.Background(), item); err != nil {
		panic(err)
	}
	return item
}

// MustAddSerial saves a single serialized unit
func MustAddSerial(store *memory.Store, part entities.PartNumber, serial string) *entities.StockItem {
	item, err := entities.NewStockItem(part, decimal.NewFromInt(1), "")
	if err != nil {
		panic(err)
	}
	item.Serial = serial
	if err := store.Stock().SaveStockItem(context.Background(), item); err != nil {
		panic(err)
	}
	return item
}

// MustAddExpiringStock saves an available stock item that expires after the given number of days
func MustAddExpiringStock(store *memory.Store, part entities.PartNumber, qty decimal.Decimal, days int) *entities.StockItem {
	item, err := entities.NewStockItem(part, qty, "")
	if err != nil {
		panic(err)
	}
	expiry := time.Now().AddDate(0, 0, days)
	item.ExpiryDate = &expiry
	if err := store.Stock().SaveStockItem(context.Background(), item); err != nil {
		panic(err)
	}
	return item
}

// MustAddBuild saves a build order with one output covering the whole quantity
func MustAddBuild(store *memory.Store, id entities.BuildOrderID, part entities.PartNumber, qty decimal.Decimal) (*entities.BuildOrder, *entities.BuildOutput) {
	ctx := context.Background()
	build, err := entities.NewBuildOrder(id, part, qty)
	if err != nil {
		panic(err)
	}
	if err := store.Builds().SaveBuild(ctx, build); err != nil {
		panic(err)
	}
	output, err := entities.NewBuildOutput(id, qty)
	if err != nil {
		panic(err)
	}
	if err := store.Builds().SaveOutput(ctx, output); err != nil {
		panic(err)
	}
	return build, output
}
