package repositories

import "context"

// Store bundles the repositories behind one unit of work
type Store interface {
	Parts() PartRepository
	BOM() BOMRepository
	Validations() ValidationRepository
	Stock() StockRepository
	Builds() BuildRepository
	Allocations() AllocationRepository

	// WithinTx runs fn against a serialized transaction. Every mutation fn makes
	// through tx is applied if fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
