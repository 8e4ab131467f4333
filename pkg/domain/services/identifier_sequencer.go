package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// ScopeLocker serializes work on a named key across goroutines, or processes for shared backends
type ScopeLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Scope is the uniqueness domain for identifiers: one part, or every part when Global is set
type Scope struct {
	Part   entities.PartNumber
	Global bool
}

// Key names the lock guarding the scope
func (s Scope) Key() string {
	if s.Global {
		return "identifier:*"
	}
	return "identifier:" + string(s.Part)
}

// partFilter is the part to query serials for; empty means all parts
func (s Scope) partFilter() entities.PartNumber {
	if s.Global {
		return ""
	}
	return s.Part
}

func (s Scope) String() string {
	if s.Global {
		return "global"
	}
	return string(s.Part)
}

// IdentifierSequencer turns patterns into unique identifiers and commits them atomically
type IdentifierSequencer struct {
	store        repositories.Store
	locker       ScopeLocker
	strategy     IdentifierStrategy
	globalUnique bool
	logger       *zap.Logger
}

// NewIdentifierSequencer creates a sequencer. globalUnique widens every scope to all parts.
func NewIdentifierSequencer(
	store repositories.Store,
	locker ScopeLocker,
	strategy IdentifierStrategy,
	globalUnique bool,
	logger *zap.Logger,
) *IdentifierSequencer {
	if strategy == nil {
		strategy = NewIntegerStrategy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentifierSequencer{
		store:        store,
		locker:       locker,
		strategy:     strategy,
		globalUnique: globalUnique,
		logger:       logger,
	}
}

// Strategy returns the identifier strategy in use
func (s *IdentifierSequencer) Strategy() IdentifierStrategy {
	return s.strategy
}

// ScopeFor returns the uniqueness scope that applies to a part
func (s *IdentifierSequencer) ScopeFor(part entities.PartNumber) Scope {
	return Scope{Part: part, Global: s.globalUnique}
}

// NextAvailable returns the identifier after the latest one in use for the scope.
// The answer is advisory: only Assign holds it stable.
func (s *IdentifierSequencer) NextAvailable(ctx context.Context, scope Scope) (string, error) {
	return s.nextIn(ctx, s.store, scope)
}

func (s *IdentifierSequencer) nextIn(ctx context.Context, store repositories.Store, scope Scope) (string, error) {
	existing, err := store.Stock().GetSerials(ctx, scope.partFilter())
	if err != nil {
		return "", fmt.Errorf("loading identifiers for scope %s: %w", scope, err)
	}
	return NextAvailable(s.strategy, existing)
}

// Generate expands a pattern under the scope lock and checks it against identifiers in use.
// Nothing is recorded, so the result is a preview.
func (s *IdentifierSequencer) Generate(ctx context.Context, scope Scope, pattern string, quantity int) ([]string, error) {
	unlock, err := s.locker.Lock(ctx, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("locking scope %s: %w", scope, err)
	}
	defer unlock()

	return s.expandIn(ctx, s.store, scope, pattern, quantity)
}

// Assign expands a pattern and hands the identifiers to fn inside one transaction while
// the scope lock is held. If fn fails nothing it wrote is kept.
func (s *IdentifierSequencer) Assign(
	ctx context.Context,
	scope Scope,
	pattern string,
	quantity int,
	fn func(tx repositories.Store, ids []string) error,
) ([]string, error) {
	unlock, err := s.locker.Lock(ctx, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("locking scope %s: %w", scope, err)
	}
	defer unlock()

	var ids []string
	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		expanded, err := s.expandIn(ctx, tx, scope, pattern, quantity)
		if err != nil {
			return err
		}
		if err := fn(tx, expanded); err != nil {
			return err
		}
		ids = expanded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("identifiers assigned",
		zap.String("scope", scope.String()),
		zap.String("pattern", pattern),
		zap.Int("count", len(ids)))
	return ids, nil
}

func (s *IdentifierSequencer) expandIn(ctx context.Context, store repositories.Store, scope Scope, pattern string, quantity int) ([]string, error) {
	existing, err := store.Stock().GetSerials(ctx, scope.partFilter())
	if err != nil {
		return nil, fmt.Errorf("loading identifiers for scope %s: %w", scope, err)
	}
	next, err := NextAvailable(s.strategy, existing)
	if err != nil {
		return nil, fmt.Errorf("computing next identifier for scope %s: %w", scope, err)
	}

	ids, err := ExpandPattern(pattern, quantity, next, s.strategy)
	if err != nil {
		return nil, err
	}

	inUse := make(map[string]bool, len(existing))
	for _, id := range existing {
		inUse[id] = true
	}
	var collisions []string
	for _, id := range ids {
		if inUse[id] {
			collisions = append(collisions, id)
		}
	}
	if len(collisions) > 0 {
		return nil, &entities.DuplicateIdentifierError{Values: collisions}
	}
	return ids, nil
}

// SerializedStockRequest describes stock to mint with one serial per unit
type SerializedStockRequest struct {
	Part       entities.PartNumber
	Pattern    string
	Quantity   int
	Location   string
	Batch      string
	ExpiryDate *time.Time
}

// CreateSerializedStock creates one single-unit stock item per generated serial, all or nothing
func (s *IdentifierSequencer) CreateSerializedStock(ctx context.Context, req SerializedStockRequest) ([]*entities.StockItem, error) {
	if _, err := s.store.Parts().GetPart(ctx, req.Part); err != nil {
		return nil, err
	}

	var items []*entities.StockItem
	_, err := s.Assign(ctx, s.ScopeFor(req.Part), req.Pattern, req.Quantity, func(tx repositories.Store, ids []string) error {
		var err error
		items, err = saveSerialized(ctx, tx, req, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func saveSerialized(ctx context.Context, tx repositories.Store, req SerializedStockRequest, ids []string) ([]*entities.StockItem, error) {
	items := make([]*entities.StockItem, 0, len(ids))
	for _, id := range ids {
		item, err := entities.NewStockItem(req.Part, decimal.NewFromInt(1), req.Location)
		if err != nil {
			return nil, err
		}
		item.Serial = id
		item.Batch = req.Batch
		if req.ExpiryDate != nil {
			exp := *req.ExpiryDate
			item.ExpiryDate = &exp
		}
		if err := tx.Stock().SaveStockItem(ctx, item); err != nil {
			return nil, fmt.Errorf("saving serial %s: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// SerialBatch claims and mints identifiers inside the transaction of a Batch.
// Every check sees what the batch has written so far.
type SerialBatch struct {
	seq    *IdentifierSequencer
	tx     repositories.Store
	locked map[string]bool
	minted int
}

// Batch locks the identifier scopes of parts in key order and runs fn in one store
// transaction. Nothing fn wrote is kept when it fails.
func (s *IdentifierSequencer) Batch(
	ctx context.Context,
	parts []entities.PartNumber,
	fn func(tx repositories.Store, batch *SerialBatch) error,
) error {
	keys := make([]string, 0, len(parts))
	locked := make(map[string]bool, len(parts))
	for _, part := range parts {
		key := s.ScopeFor(part).Key()
		if !locked[key] {
			locked[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		unlock, err := s.locker.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("locking %s: %w", key, err)
		}
		defer unlock()
	}

	batch := &SerialBatch{seq: s, locked: locked}
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		batch.tx = tx
		return fn(tx, batch)
	})
	if err != nil {
		return err
	}

	s.logger.Info("identifier batch committed",
		zap.Strings("scopes", keys),
		zap.Int("minted", batch.minted))
	return nil
}

func (b *SerialBatch) scope(part entities.PartNumber) (Scope, error) {
	scope := b.seq.ScopeFor(part)
	if !b.locked[scope.Key()] {
		return scope, fmt.Errorf("scope %s was not locked by this batch", scope)
	}
	return scope, nil
}

// Claim checks that a literal serial is free in the scope of part.
// The caller saves the stock item carrying it inside the same transaction.
func (b *SerialBatch) Claim(ctx context.Context, part entities.PartNumber, serial string) error {
	if !b.seq.strategy.Valid(serial) {
		return fmt.Errorf("%w: invalid identifier %q", entities.ErrInvalidPattern, serial)
	}
	scope, err := b.scope(part)
	if err != nil {
		return err
	}
	existing, err := b.tx.Stock().GetSerials(ctx, scope.partFilter())
	if err != nil {
		return fmt.Errorf("loading identifiers for scope %s: %w", scope, err)
	}
	for _, id := range existing {
		if id == serial {
			return &entities.DuplicateIdentifierError{Values: []string{serial}}
		}
	}
	return nil
}

// Mint expands req.Pattern against the scope of req.Part and saves one stock item per identifier
func (b *SerialBatch) Mint(ctx context.Context, req SerializedStockRequest) ([]*entities.StockItem, error) {
	scope, err := b.scope(req.Part)
	if err != nil {
		return nil, err
	}
	if _, err := b.tx.Parts().GetPart(ctx, req.Part); err != nil {
		return nil, err
	}
	ids, err := b.seq.expandIn(ctx, b.tx, scope, req.Pattern, req.Quantity)
	if err != nil {
		return nil, err
	}
	items, err := saveSerialized(ctx, b.tx, req, ids)
	if err != nil {
		return nil, err
	}
	b.minted += len(items)
	return items, nil
}
