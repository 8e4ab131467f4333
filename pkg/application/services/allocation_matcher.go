package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/application/dto"
	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
)

// AllocateRequest reserves a quantity of one stock item against one BOM line of one build output
type AllocateRequest struct {
	Build     entities.BuildOrderID
	Output    entities.BuildOutputID
	BOMLine   entities.BOMLineID
	StockItem entities.StockItemID
	Quantity  decimal.Decimal
}

// AutoAllocateOptions narrows greedy allocation
type AutoAllocateOptions struct {
	IncludeOptional  bool
	AllowSubstitutes bool
	// Location restricts candidate stock; empty matches every location
	Location string
}

// AllocationMatcher reserves stock against build outputs and turns reservations into consumption.
// Every mutation holds the build lock and runs in one store transaction.
type AllocationMatcher struct {
	store     repositories.Store
	locker    services.ScopeLocker
	sequencer *services.IdentifierSequencer
	policy    services.InheritancePolicy
	events    events.EventStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewAllocationMatcher creates a matcher. The sequencer must share the matcher's store.
// eventStore may be nil.
func NewAllocationMatcher(
	store repositories.Store,
	locker services.ScopeLocker,
	sequencer *services.IdentifierSequencer,
	policy services.InheritancePolicy,
	eventStore events.EventStore,
	logger *zap.Logger,
) *AllocationMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationMatcher{
		store:     store,
		locker:    locker,
		sequencer: sequencer,
		policy:    policy,
		events:    eventStore,
		logger:    logger,
		now:       time.Now,
	}
}

func buildLockKey(id entities.BuildOrderID) string {
	return "build:" + string(id)
}

func (m *AllocationMatcher) lockBuild(ctx context.Context, id entities.BuildOrderID) (func(), error) {
	unlock, err := m.locker.Lock(ctx, buildLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("locking build %s: %w", id, err)
	}
	return unlock, nil
}

// Allocate reserves stock for a line. Source stock is not deducted until the output completes.
func (m *AllocationMatcher) Allocate(ctx context.Context, req AllocateRequest) (*entities.BuildLineAllocation, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("allocation quantity must be positive, got %s", req.Quantity)
	}

	unlock, err := m.lockBuild(ctx, req.Build)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var alloc *entities.BuildLineAllocation
	err = m.store.WithinTx(ctx, func(tx repositories.Store) error {
		s, err := m.load(ctx, tx, req.Output)
		if err != nil {
			return err
		}
		if s.build.ID != req.Build {
			return &entities.NotFoundError{Kind: "build output", ID: string(req.Build) + "/" + string(req.Output)}
		}
		if err := s.requireOpen(); err != nil {
			return err
		}

		line, ok := s.line(req.BOMLine)
		if !ok {
			return fmt.Errorf("line %s is not in the BOM of %s: %w", req.BOMLine, s.build.Part, entities.ErrNotFound)
		}
		if line.Consumable {
			return fmt.Errorf("%w: line %s (%s)", entities.ErrConsumableLine, line.ID, line.SubPart)
		}

		item, err := tx.Stock().GetStockItem(ctx, req.StockItem)
		if err != nil {
			return err
		}
		if !line.AcceptsPart(item.Part) {
			return fmt.Errorf("%w: %s is neither %s nor one of its substitutes", entities.ErrInvalidSubstitute, item.Part, line.SubPart)
		}
		if item.Status != entities.Available {
			return fmt.Errorf("%w: stock item %s is %s", entities.ErrInsufficientStock, item.ID, item.Status)
		}
		if item.IsSerialized() && !req.Quantity.Equal(item.Quantity) {
			return fmt.Errorf("%w: stock item %s (serial %s)", entities.ErrSerialSplit, item.ID, item.Serial)
		}

		free, err := services.NewAvailabilityCalculator(tx.Stock(), tx.Allocations()).Unreserved(ctx, item)
		if err != nil {
			return err
		}
		if req.Quantity.GreaterThan(free) {
			return fmt.Errorf("%w: stock item %s has %s unreserved, requested %s",
				entities.ErrInsufficientStock, item.ID, free, req.Quantity)
		}

		ceiling := line.CeilingFor(s.output.Quantity)
		already := s.allocatedTo(line.ID)
		if already.Add(req.Quantity).GreaterThan(ceiling) {
			return &entities.OverAllocationError{
				Line:      line.ID,
				Allocated: already,
				Requested: req.Quantity,
				Ceiling:   ceiling,
			}
		}

		alloc, err = s.reserve(ctx, line.ID, item.ID, req.Quantity, m.now())
		if err != nil {
			return err
		}
		if err := s.saveState(ctx); err != nil {
			return err
		}
		return s.markInProduction(ctx)
	})
	if err != nil {
		return nil, err
	}

	m.publish(string(req.Build), events.NewStockAllocatedEvent(*alloc))
	m.logger.Info("stock allocated",
		zap.String("build", string(req.Build)),
		zap.String("output", string(req.Output)),
		zap.String("line", string(req.BOMLine)),
		zap.String("stock_item", string(req.StockItem)),
		zap.String("quantity", req.Quantity.String()))
	return alloc, nil
}

// Unallocate removes a reservation. Source stock was never touched, so nothing is restored.
func (m *AllocationMatcher) Unallocate(ctx context.Context, id entities.AllocationID) error {
	existing, err := m.store.Allocations().GetAllocation(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := m.lockBuild(ctx, existing.Build)
	if err != nil {
		return err
	}
	defer unlock()

	var removed *entities.BuildLineAllocation
	err = m.store.WithinTx(ctx, func(tx repositories.Store) error {
		alloc, err := tx.Allocations().GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		s, err := m.load(ctx, tx, alloc.Output)
		if err != nil {
			return err
		}
		if err := s.requireOpen(); err != nil {
			return err
		}
		if err := tx.Allocations().DeleteAllocation(ctx, id); err != nil {
			return fmt.Errorf("deleting allocation: %w", err)
		}
		s.drop(id)
		removed = alloc
		return s.saveState(ctx)
	})
	if err != nil {
		return err
	}

	m.publish(string(removed.Build), events.NewStockDeAllocatedEvent(*removed, "unallocated"))
	m.logger.Info("stock unallocated",
		zap.String("build", string(removed.Build)),
		zap.String("allocation", string(id)))
	return nil
}

// CompleteOutput consumes every reservation of an output and creates the finished stock.
// Trackable parts receive serials from the output's pattern, or the next free serials when it has none.
// Nothing changes unless every required line is covered.
func (m *AllocationMatcher) CompleteOutput(ctx context.Context, outputID entities.BuildOutputID) (*dto.CompletionResult, error) {
	output, err := m.store.Builds().GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}
	build, err := m.store.Builds().GetBuild(ctx, output.Build)
	if err != nil {
		return nil, err
	}
	part, err := m.store.Parts().GetPart(ctx, build.Part)
	if err != nil {
		return nil, err
	}

	unlock, err := m.lockBuild(ctx, build.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *dto.CompletionResult
	complete := func(tx repositories.Store, serials []string) error {
		r, err := m.complete(ctx, tx, outputID, part, serials)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	if part.Trackable {
		pattern, count, err := serialRequest(output)
		if err != nil {
			return nil, err
		}
		if _, err := m.sequencer.Assign(ctx, m.sequencer.ScopeFor(part.PartNumber), pattern, count, complete); err != nil {
			return nil, err
		}
	} else {
		err := m.store.WithinTx(ctx, func(tx repositories.Store) error {
			return complete(tx, nil)
		})
		if err != nil {
			return nil, err
		}
	}

	m.publish(string(build.ID), events.NewOutputCompletedEvent(*result.Output, result.ConsumedStock, result.ConsumedQuantity))
	if len(result.Serials) > 0 {
		scope := m.sequencer.ScopeFor(part.PartNumber)
		m.publish(string(part.PartNumber), events.NewIdentifiersAssignedEvent(scope.String(), output.SerialPattern, result.Serials))
	}
	m.logger.Info("output completed",
		zap.String("build", string(build.ID)),
		zap.String("output", string(outputID)),
		zap.Int("consumed_records", len(result.ConsumedStock)),
		zap.Int("produced_records", len(result.ProducedStock)))
	return result, nil
}

// serialRequest returns the pattern and count for a trackable output
func serialRequest(output *entities.BuildOutput) (string, int, error) {
	if !output.Quantity.IsInteger() {
		return "", 0, fmt.Errorf("%w: trackable output %s has fractional quantity %s",
			entities.ErrInvalidState, output.ID, output.Quantity)
	}
	count := int(output.Quantity.IntPart())
	pattern := strings.TrimSpace(output.SerialPattern)
	if pattern == "" {
		pattern = strings.TrimSuffix(strings.Repeat("~,", count), ",")
	}
	return pattern, count, nil
}

func (m *AllocationMatcher) complete(
	ctx context.Context,
	tx repositories.Store,
	outputID entities.BuildOutputID,
	part *entities.Part,
	serials []string,
) (*dto.CompletionResult, error) {
	s, err := m.load(ctx, tx, outputID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if missing := s.shortfalls(false); len(missing) > 0 {
		return nil, &entities.InsufficientStockError{Output: outputID, Lines: missing}
	}
	s.output.State = entities.FullyAllocated

	now := m.now()
	consumed, total, err := s.consume(ctx)
	if err != nil {
		return nil, err
	}
	produced, err := s.produce(ctx, part, serials, now)
	if err != nil {
		return nil, err
	}

	s.output.State = entities.Completed
	s.output.CompletedAt = &now
	s.output.ProducedStock = s.output.ProducedStock[:0]
	for _, item := range produced {
		s.output.ProducedStock = append(s.output.ProducedStock, item.ID)
	}
	if err := tx.Builds().UpdateOutput(ctx, s.output); err != nil {
		return nil, fmt.Errorf("updating output %s: %w", outputID, err)
	}

	s.build.Completed = s.build.Completed.Add(s.output.Quantity)
	if s.build.Completed.GreaterThanOrEqual(s.build.Quantity) {
		s.build.Status = entities.BuildComplete
	} else {
		s.build.Status = entities.BuildProduction
	}
	if err := tx.Builds().UpdateBuild(ctx, s.build); err != nil {
		return nil, fmt.Errorf("updating build %s: %w", s.build.ID, err)
	}

	return &dto.CompletionResult{
		Output:           s.output,
		ConsumedStock:    consumed,
		ConsumedQuantity: total,
		ProducedStock:    produced,
		Serials:          serials,
	}, nil
}

// AutoAllocate greedily reserves stock for every uncovered line of an output.
// Allocations made are kept even when some lines stay short; those lines are returned
// in the result and in an InsufficientStockError.
func (m *AllocationMatcher) AutoAllocate(ctx context.Context, outputID entities.BuildOutputID, opts AutoAllocateOptions) (*dto.AutoAllocateResult, error) {
	output, err := m.store.Builds().GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}

	unlock, err := m.lockBuild(ctx, output.Build)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *dto.AutoAllocateResult
	err = m.store.WithinTx(ctx, func(tx repositories.Store) error {
		s, err := m.load(ctx, tx, outputID)
		if err != nil {
			return err
		}
		if err := s.requireOpen(); err != nil {
			return err
		}

		r := &dto.AutoAllocateResult{Output: outputID}
		calc := services.NewAvailabilityCalculator(tx.Stock(), tx.Allocations())
		now := m.now()
		for _, rl := range s.lines {
			line := rl.Line
			if line.Consumable || (line.Optional && !opts.IncludeOptional) {
				continue
			}
			made, err := s.fill(ctx, calc, line, opts, now)
			if err != nil {
				return err
			}
			r.Allocations = append(r.Allocations, made...)
		}

		if err := s.saveState(ctx); err != nil {
			return err
		}
		if len(r.Allocations) > 0 {
			if err := s.markInProduction(ctx); err != nil {
				return err
			}
		}
		r.State = s.output.State
		r.Unsatisfied = s.shortfalls(opts.IncludeOptional)
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range result.Allocations {
		m.publish(string(a.Build), events.NewStockAllocatedEvent(*a))
	}
	m.logger.Info("auto allocation finished",
		zap.String("output", string(outputID)),
		zap.Int("allocations", len(result.Allocations)),
		zap.Int("unsatisfied", len(result.Unsatisfied)))

	if len(result.Unsatisfied) > 0 {
		return result, &entities.InsufficientStockError{Output: outputID, Lines: result.Unsatisfied}
	}
	return result, nil
}

// CancelOutput releases every reservation of an output and moves it to Cancelled
func (m *AllocationMatcher) CancelOutput(ctx context.Context, outputID entities.BuildOutputID) error {
	output, err := m.store.Builds().GetOutput(ctx, outputID)
	if err != nil {
		return err
	}

	unlock, err := m.lockBuild(ctx, output.Build)
	if err != nil {
		return err
	}
	defer unlock()

	var (
		cancelled *entities.BuildOutput
		released  int
	)
	err = m.store.WithinTx(ctx, func(tx repositories.Store) error {
		s, err := m.load(ctx, tx, outputID)
		if err != nil {
			return err
		}
		if err := s.requireOpen(); err != nil {
			return err
		}
		for _, a := range s.allocs {
			if err := tx.Allocations().DeleteAllocation(ctx, a.ID); err != nil {
				return fmt.Errorf("deleting allocation: %w", err)
			}
		}
		released = len(s.allocs)
		s.allocs = nil

		s.output.State = entities.Cancelled
		if err := tx.Builds().UpdateOutput(ctx, s.output); err != nil {
			return fmt.Errorf("updating output %s: %w", outputID, err)
		}
		cancelled = s.output
		return nil
	})
	if err != nil {
		return err
	}

	m.publish(string(cancelled.Build), events.NewOutputCancelledEvent(*cancelled, released))
	m.logger.Info("output cancelled",
		zap.String("output", string(outputID)),
		zap.Int("released", released))
	return nil
}

// Shortfalls reports the required lines an output still lacks stock for
func (m *AllocationMatcher) Shortfalls(ctx context.Context, outputID entities.BuildOutputID) ([]entities.LineShortfall, error) {
	s, err := m.load(ctx, m.store, outputID)
	if err != nil {
		return nil, err
	}
	return s.shortfalls(false), nil
}

func (m *AllocationMatcher) publish(stream string, event events.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.AppendEvent(stream, event); err != nil {
		m.logger.Warn("failed to publish event",
			zap.String("type", event.Type()),
			zap.Error(err))
	}
}

func (m *AllocationMatcher) load(ctx context.Context, tx repositories.Store, outputID entities.BuildOutputID) (*outputScope, error) {
	output, err := tx.Builds().GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}
	build, err := tx.Builds().GetBuild(ctx, output.Build)
	if err != nil {
		return nil, err
	}
	lines, err := services.NewBOMResolver(tx.Parts(), tx.BOM(), m.policy).Resolve(ctx, build.Part)
	if err != nil {
		return nil, fmt.Errorf("resolving BOM for %s: %w", build.Part, err)
	}
	allocs, err := tx.Allocations().GetAllocationsForOutput(ctx, outputID)
	if err != nil {
		return nil, fmt.Errorf("loading allocations for output %s: %w", outputID, err)
	}

	return &outputScope{
		tx:     tx,
		build:  build,
		output: output,
		lines:  lines,
		allocs: allocs,
	}, nil
}

// outputScope is what one output mutation reads, loaded inside its transaction
type outputScope struct {
	tx     repositories.Store
	build  *entities.BuildOrder
	output *entities.BuildOutput
	lines  []services.ResolvedLine
	allocs []*entities.BuildLineAllocation
}

func (s *outputScope) line(id entities.BOMLineID) (*entities.BOMLine, bool) {
	for _, rl := range s.lines {
		if rl.Line.ID == id {
			return rl.Line, true
		}
	}
	return nil, false
}

func (s *outputScope) allocatedTo(id entities.BOMLineID) decimal.Decimal {
	total := decimal.Zero
	for _, a := range s.allocs {
		if a.BOMLine == id {
			total = total.Add(a.Quantity)
		}
	}
	return total
}

func (s *outputScope) drop(id entities.AllocationID) {
	kept := s.allocs[:0]
	for _, a := range s.allocs {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.allocs = kept
}

func (s *outputScope) requireOpen() error {
	if s.output.State.IsTerminal() {
		return fmt.Errorf("%w: output %s is %s", entities.ErrInvalidState, s.output.ID, s.output.State)
	}
	return nil
}

// shortfalls lists non-consumable lines whose allocations fall short of the requirement.
// Optional lines count only when includeOptional is set.
func (s *outputScope) shortfalls(includeOptional bool) []entities.LineShortfall {
	var missing []entities.LineShortfall
	for _, rl := range s.lines {
		line := rl.Line
		if line.Consumable || (line.Optional && !includeOptional) {
			continue
		}
		required := line.RequiredFor(s.output.Quantity)
		allocated := s.allocatedTo(line.ID)
		if allocated.LessThan(required) {
			missing = append(missing, entities.LineShortfall{
				Line:      line.ID,
				SubPart:   line.SubPart,
				Required:  required,
				Allocated: allocated,
			})
		}
	}
	return missing
}

func (s *outputScope) nextState() entities.OutputState {
	switch {
	case len(s.shortfalls(false)) == 0:
		return entities.FullyAllocated
	case len(s.allocs) > 0:
		return entities.PartiallyAllocated
	default:
		return entities.Unallocated
	}
}

func (s *outputScope) saveState(ctx context.Context) error {
	next := s.nextState()
	if next == s.output.State {
		return nil
	}
	if !s.output.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: output %s cannot move from %s to %s", entities.ErrInvalidState, s.output.ID, s.output.State, next)
	}
	s.output.State = next
	if err := s.tx.Builds().UpdateOutput(ctx, s.output); err != nil {
		return fmt.Errorf("updating output %s: %w", s.output.ID, err)
	}
	return nil
}

func (s *outputScope) markInProduction(ctx context.Context) error {
	if s.build.Status != entities.BuildPending {
		return nil
	}
	s.build.Status = entities.BuildProduction
	if err := s.tx.Builds().UpdateBuild(ctx, s.build); err != nil {
		return fmt.Errorf("updating build %s: %w", s.build.ID, err)
	}
	return nil
}

func (s *outputScope) reserve(
	ctx context.Context,
	line entities.BOMLineID,
	item entities.StockItemID,
	quantity decimal.Decimal,
	now time.Time,
) (*entities.BuildLineAllocation, error) {
	alloc := &entities.BuildLineAllocation{
		ID:        entities.NewAllocationID(),
		Build:     s.build.ID,
		Output:    s.output.ID,
		BOMLine:   line,
		StockItem: item,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := s.tx.Allocations().SaveAllocation(ctx, alloc); err != nil {
		return nil, fmt.Errorf("saving allocation: %w", err)
	}
	s.allocs = append(s.allocs, alloc)
	return alloc, nil
}

// fill reserves candidate stock for one line until its requirement is met or stock runs out.
// The primary part is tried first, then substitutes in declared order.
func (s *outputScope) fill(
	ctx context.Context,
	calc *services.AvailabilityCalculator,
	line *entities.BOMLine,
	opts AutoAllocateOptions,
	now time.Time,
) ([]*entities.BuildLineAllocation, error) {
	required := line.RequiredFor(s.output.Quantity)
	ceiling := line.CeilingFor(s.output.Quantity)

	parts := []entities.PartNumber{line.SubPart}
	if opts.AllowSubstitutes {
		parts = append(parts, line.Substitutes...)
	}

	var made []*entities.BuildLineAllocation
	for _, pn := range parts {
		if !s.allocatedTo(line.ID).LessThan(required) {
			break
		}
		candidates, err := calc.Candidates(ctx, pn, opts.Location)
		if err != nil {
			return nil, err
		}
		sortByExpiry(candidates)

		for _, c := range candidates {
			allocated := s.allocatedTo(line.ID)
			needed := required.Sub(allocated)
			if !needed.IsPositive() {
				break
			}

			take := decimal.Min(needed, c.Unreserved)
			if c.Item.IsSerialized() {
				// serialized units go whole to one line, within its ceiling
				if !c.Unreserved.Equal(c.Item.Quantity) || allocated.Add(c.Item.Quantity).GreaterThan(ceiling) {
					continue
				}
				take = c.Item.Quantity
			}

			alloc, err := s.reserve(ctx, line.ID, c.Item.ID, take, now)
			if err != nil {
				return nil, err
			}
			made = append(made, alloc)
		}
	}
	return made, nil
}

// sortByExpiry orders candidates by earliest expiry; items without expiry keep their order at the end
func sortByExpiry(candidates []services.StockCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := candidates[i].Item.ExpiryDate, candidates[j].Item.ExpiryDate
		if ei == nil {
			return false
		}
		if ej == nil {
			return true
		}
		return ei.Before(*ej)
	})
}

// consume deducts every reservation from its source stock and removes the reservations.
// A partly used item is split: the used quantity moves to a new Consumed record.
func (s *outputScope) consume(ctx context.Context) ([]entities.StockItemID, decimal.Decimal, error) {
	var consumed []entities.StockItemID
	total := decimal.Zero
	for _, a := range s.allocs {
		item, err := s.tx.Stock().GetStockItem(ctx, a.StockItem)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if item.Status != entities.Available || a.Quantity.GreaterThan(item.Quantity) {
			return nil, decimal.Zero, fmt.Errorf("%w: stock item %s cannot supply %s", entities.ErrInsufficientStock, item.ID, a.Quantity)
		}

		if a.Quantity.Equal(item.Quantity) {
			item.Status = entities.Consumed
			item.ConsumedBy = s.build.ID
			if err := s.tx.Stock().UpdateStockItem(ctx, item); err != nil {
				return nil, decimal.Zero, fmt.Errorf("consuming stock item %s: %w", item.ID, err)
			}
			consumed = append(consumed, item.ID)
		} else {
			used := item.Clone()
			used.ID = entities.NewStockItemID()
			used.Serial = ""
			used.Quantity = a.Quantity
			used.Status = entities.Consumed
			used.ConsumedBy = s.build.ID

			item.Quantity = item.Quantity.Sub(a.Quantity)
			if err := s.tx.Stock().UpdateStockItem(ctx, item); err != nil {
				return nil, decimal.Zero, fmt.Errorf("splitting stock item %s: %w", item.ID, err)
			}
			if err := s.tx.Stock().SaveStockItem(ctx, used); err != nil {
				return nil, decimal.Zero, fmt.Errorf("saving consumed split of %s: %w", item.ID, err)
			}
			consumed = append(consumed, used.ID)
		}

		total = total.Add(a.Quantity)

		if err := s.tx.Allocations().DeleteAllocation(ctx, a.ID); err != nil {
			return nil, decimal.Zero, fmt.Errorf("deleting allocation: %w", err)
		}
	}
	s.allocs = nil
	return consumed, total, nil
}

// produce creates the finished stock: one record per serial, or one record for the whole output
func (s *outputScope) produce(ctx context.Context, part *entities.Part, serials []string, now time.Time) ([]*entities.StockItem, error) {
	var expiry *time.Time
	if part.DefaultExpiryDays > 0 {
		e := now.AddDate(0, 0, part.DefaultExpiryDays)
		expiry = &e
	}

	create := func(quantity decimal.Decimal, serial string) (*entities.StockItem, error) {
		item, err := entities.NewStockItem(part.PartNumber, quantity, s.output.Location)
		if err != nil {
			return nil, err
		}
		item.Serial = serial
		item.Batch = s.output.Batch
		item.ReceiptDate = now
		if expiry != nil {
			e := *expiry
			item.ExpiryDate = &e
		}
		if err := s.tx.Stock().SaveStockItem(ctx, item); err != nil {
			return nil, fmt.Errorf("saving finished stock of %s: %w", part.PartNumber, err)
		}
		return item, nil
	}

	if len(serials) == 0 {
		item, err := create(s.output.Quantity, "")
		if err != nil {
			return nil, err
		}
		return []*entities.StockItem{item}, nil
	}

	produced := make([]*entities.StockItem, 0, len(serials))
	one := decimal.NewFromInt(1)
	for _, serial := range serials {
		item, err := create(one, serial)
		if err != nil {
			return nil, err
		}
		produced = append(produced, item)
	}
	return produced, nil
}
