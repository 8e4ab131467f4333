package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// state holds every record; index slices keep insertion order per owner
type state struct {
	parts       map[entities.PartNumber]entities.Part
	partOrder   []entities.PartNumber
	bomLines    map[entities.BOMLineID]*entities.BOMLine
	bomIndexes  map[entities.PartNumber][]entities.BOMLineID
	validations map[entities.PartNumber]entities.BOMValidation

	stock        map[entities.StockItemID]*entities.StockItem
	stockIndexes map[entities.PartNumber][]entities.StockItemID

	builds        map[entities.BuildOrderID]entities.BuildOrder
	outputs       map[entities.BuildOutputID]*entities.BuildOutput
	outputIndexes map[entities.BuildOrderID][]entities.BuildOutputID

	allocations map[entities.AllocationID]entities.BuildLineAllocation
	allocOrder  []entities.AllocationID

	// shared marks tables a transaction has not written yet
	shared table
}

func newState() *state {
	return &state{
		parts:         make(map[entities.PartNumber]entities.Part),
		bomLines:      make(map[entities.BOMLineID]*entities.BOMLine),
		bomIndexes:    make(map[entities.PartNumber][]entities.BOMLineID),
		validations:   make(map[entities.PartNumber]entities.BOMValidation),
		stock:         make(map[entities.StockItemID]*entities.StockItem),
		stockIndexes:  make(map[entities.PartNumber][]entities.StockItemID),
		builds:        make(map[entities.BuildOrderID]entities.BuildOrder),
		outputs:       make(map[entities.BuildOutputID]*entities.BuildOutput),
		outputIndexes: make(map[entities.BuildOrderID][]entities.BuildOutputID),
		allocations:   make(map[entities.AllocationID]entities.BuildLineAllocation),
	}
}

// table names a group of maps and index slices that are copied together
type table uint8

const (
	partsTable table = 1 << iota
	bomTable
	validationsTable
	stockTable
	buildsTable
	outputsTable
	allocationsTable

	allTables = partsTable | bomTable | validationsTable | stockTable | buildsTable | outputsTable | allocationsTable
)

// snapshot returns a transaction view that shares every table with s until the
// table is first written. Stored values are replaced on write, never mutated, so
// a shallow map copy is enough; index slices are copied because append may reuse
// their backing arrays.
func (s *state) snapshot() *state {
	c := *s
	c.shared = allTables
	return &c
}

// own copies the given tables if they are still shared with the live state
func (s *state) own(tables table) {
	pending := tables & s.shared
	if pending == 0 {
		return
	}
	s.shared &^= pending

	if pending&partsTable != 0 {
		s.parts = maps.Clone(s.parts)
		s.partOrder = slices.Clone(s.partOrder)
	}
	if pending&bomTable != 0 {
		s.bomLines = maps.Clone(s.bomLines)
		s.bomIndexes = cloneIndex(s.bomIndexes)
	}
	if pending&validationsTable != 0 {
		s.validations = maps.Clone(s.validations)
	}
	if pending&stockTable != 0 {
		s.stock = maps.Clone(s.stock)
		s.stockIndexes = cloneIndex(s.stockIndexes)
	}
	if pending&buildsTable != 0 {
		s.builds = maps.Clone(s.builds)
	}
	if pending&outputsTable != 0 {
		s.outputs = maps.Clone(s.outputs)
		s.outputIndexes = cloneIndex(s.outputIndexes)
	}
	if pending&allocationsTable != 0 {
		s.allocations = maps.Clone(s.allocations)
		s.allocOrder = slices.Clone(s.allocOrder)
	}
}

func cloneIndex[K comparable, V any](index map[K][]V) map[K][]V {
	c := make(map[K][]V, len(index))
	for k, ids := range index {
		c[k] = slices.Clone(ids)
	}
	return c
}

type root struct {
	mu sync.RWMutex
	st *state
}

// Store is an in-memory repositories.Store. Transactions are serialized by a
// single write lock and run against a view that copies each table on first write
// and replaces the live state on commit.
type Store struct {
	root *root
	tx   *state
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{root: &root{st: newState()}}
}

// Verify interface compliance
var _ repositories.Store = (*Store)(nil)

func (s *Store) read(fn func(st *state)) {
	if s.tx != nil {
		fn(s.tx)
		return
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	fn(s.root.st)
}

func (s *Store) write(tables table, fn func(st *state) error) error {
	if s.tx != nil {
		s.tx.own(tables)
		return fn(s.tx)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.st)
}

// WithinTx runs fn against a copy-on-write view of the state and publishes it only if fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	work := s.root.st.snapshot()
	if err := fn(&Store{root: s.root, tx: work}); err != nil {
		return err
	}
	work.shared = 0
	s.root.st = work
	return nil
}

// Parts returns the part repository view
func (s *Store) Parts() repositories.PartRepository { return &PartRepository{store: s} }

// BOM returns the BOM repository view
func (s *Store) BOM() repositories.BOMRepository { return &BOMRepository{store: s} }

// Validations returns the validation state repository view
func (s *Store) Validations() repositories.ValidationRepository {
	return &ValidationRepository{store: s}
}

// Stock returns the stock repository view
func (s *Store) Stock() repositories.StockRepository { return &StockRepository{store: s} }

// Builds returns the build repository view
func (s *Store) Builds() repositories.BuildRepository { return &BuildRepository{store: s} }

// Allocations returns the allocation repository view
func (s *Store) Allocations() repositories.AllocationRepository {
	return &AllocationRepository{store: s}
}

func notFound(kind, id string) error {
	return &entities.NotFoundError{Kind: kind, ID: id}
}
