package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/application/dto"
	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
	"github.com/vsinha/buildcore/pkg/infrastructure/locking"
)

// Verify interface compliance
var (
	_ services.ScopeLocker = (*locking.MemoryLocker)(nil)
	_ services.ScopeLocker = (*locking.RedisLocker)(nil)
)

// BuildServiceConfig selects the pluggable behaviour of the fulfillment core
type BuildServiceConfig struct {
	Policy       services.InheritancePolicy
	Strategy     services.IdentifierStrategy
	GlobalUnique bool
}

// OutputOptions describes a new build output
type OutputOptions struct {
	SerialPattern string
	Batch         string
	Location      string
}

// BuildService is the entry point of the build fulfillment core. It wires the
// resolver, sequencer, matcher and validation gate over one store and locker.
type BuildService struct {
	store       repositories.Store
	locker      services.ScopeLocker
	resolver    *services.BOMResolver
	sequencer   *services.IdentifierSequencer
	gate        *services.ValidationGate
	matcher     *AllocationMatcher
	editor      *BOMService
	events      events.EventStore
	invalidator *ValidationInvalidator
	logger      *zap.Logger
}

// NewBuildService wires the components. When eventStore is nil an in-memory one is created
// so that BOM edits still clear validation.
func NewBuildService(
	store repositories.Store,
	locker services.ScopeLocker,
	cfg BuildServiceConfig,
	eventStore events.EventStore,
	logger *zap.Logger,
) (*BuildService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = locking.NewMemoryLocker()
	}
	if eventStore == nil {
		eventStore = events.NewInMemoryEventStore(logger)
	}

	resolver := services.NewBOMResolver(store.Parts(), store.BOM(), cfg.Policy)
	sequencer := services.NewIdentifierSequencer(store, locker, cfg.Strategy, cfg.GlobalUnique, logger)
	gate := services.NewValidationGate(resolver, store.Validations(), logger)

	invalidator := NewValidationInvalidator(gate, logger)
	if err := eventStore.Subscribe(events.StructuralEvents, invalidator); err != nil {
		return nil, fmt.Errorf("subscribing validation gate: %w", err)
	}

	return &BuildService{
		store:       store,
		locker:      locker,
		resolver:    resolver,
		sequencer:   sequencer,
		gate:        gate,
		matcher:     NewAllocationMatcher(store, locker, sequencer, cfg.Policy, eventStore, logger),
		editor:      NewBOMService(store, cfg.Policy, eventStore, logger),
		events:      eventStore,
		invalidator: invalidator,
		logger:      logger,
	}, nil
}

// Close detaches the service from its event store, which may outlive it
func (s *BuildService) Close() error {
	if err := s.events.Unsubscribe(s.invalidator); err != nil {
		return fmt.Errorf("unsubscribing validation gate: %w", err)
	}
	return nil
}

// Editor returns the BOM editing service
func (s *BuildService) Editor() *BOMService {
	return s.editor
}

// Sequencer returns the identifier sequencer
func (s *BuildService) Sequencer() *services.IdentifierSequencer {
	return s.sequencer
}

// Events returns the event store the service publishes to
func (s *BuildService) Events() events.EventStore {
	return s.events
}

// AuditTrail returns the events recorded from global position from on, and the position to read from next
func (s *BuildService) AuditTrail(from int) ([]dto.EventRecord, int, error) {
	evts, err := s.events.ReadAllEvents(from)
	if err != nil {
		return nil, from, fmt.Errorf("reading events: %w", err)
	}
	if from < 0 {
		from = 0
	}
	return dto.NewEventRecords(evts, from), from + len(evts), nil
}

// ResolveBOM returns the effective BOM of a part
func (s *BuildService) ResolveBOM(ctx context.Context, part entities.PartNumber) ([]dto.ResolvedLine, error) {
	lines, err := s.resolver.Resolve(ctx, part)
	if err != nil {
		return nil, err
	}
	return dto.NewResolvedLines(lines), nil
}

// Availability reports unreserved stock per resolved line of a part
func (s *BuildService) Availability(ctx context.Context, part entities.PartNumber) ([]dto.LineAvailability, error) {
	lines, err := s.resolver.Resolve(ctx, part)
	if err != nil {
		return nil, err
	}

	calc := services.NewAvailabilityCalculator(s.store.Stock(), s.store.Allocations())
	out := make([]dto.LineAvailability, 0, len(lines))
	for _, line := range lines {
		la, err := calc.LineAvailability(ctx, line)
		if err != nil {
			return nil, err
		}
		out = append(out, dto.NewLineAvailability(la))
	}
	return out, nil
}

// GenerateIdentifiers expands a pattern in the part's uniqueness scope without recording anything
func (s *BuildService) GenerateIdentifiers(ctx context.Context, part entities.PartNumber, pattern string, quantity int) ([]string, error) {
	return s.sequencer.Generate(ctx, s.sequencer.ScopeFor(part), pattern, quantity)
}

// NextIdentifier returns the next free identifier in the part's uniqueness scope
func (s *BuildService) NextIdentifier(ctx context.Context, part entities.PartNumber) (string, error) {
	return s.sequencer.NextAvailable(ctx, s.sequencer.ScopeFor(part))
}

// CreateSerializedStock mints one stock item per identifier of the pattern
func (s *BuildService) CreateSerializedStock(ctx context.Context, req services.SerializedStockRequest) ([]*entities.StockItem, error) {
	items, err := s.sequencer.CreateSerializedStock(ctx, req)
	if err != nil {
		return nil, err
	}

	serials := make([]string, len(items))
	for i, item := range items {
		serials[i] = item.Serial
	}
	s.publish(string(req.Part), events.NewIdentifiersAssignedEvent(s.sequencer.ScopeFor(req.Part).String(), req.Pattern, serials))
	return items, nil
}

// CreateBuild opens a build order for an assembly
func (s *BuildService) CreateBuild(ctx context.Context, id entities.BuildOrderID, part entities.PartNumber, quantity decimal.Decimal) (*entities.BuildOrder, error) {
	build, err := entities.NewBuildOrder(id, part, quantity)
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		p, err := tx.Parts().GetPart(ctx, part)
		if err != nil {
			return err
		}
		if !p.Assembly {
			return fmt.Errorf("part %s is not an assembly", part)
		}
		return tx.Builds().SaveBuild(ctx, build)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("build created",
		zap.String("build", string(id)),
		zap.String("part", string(part)),
		zap.String("quantity", quantity.String()))
	return build, nil
}

// AddOutput adds an output to a build. Open outputs may not exceed the build quantity.
func (s *BuildService) AddOutput(ctx context.Context, build entities.BuildOrderID, quantity decimal.Decimal, opts OutputOptions) (*entities.BuildOutput, error) {
	output, err := entities.NewBuildOutput(build, quantity)
	if err != nil {
		return nil, err
	}
	output.SerialPattern = opts.SerialPattern
	output.Batch = opts.Batch
	output.Location = opts.Location

	unlock, err := s.locker.Lock(ctx, buildLockKey(build))
	if err != nil {
		return nil, fmt.Errorf("locking build %s: %w", build, err)
	}
	defer unlock()

	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		b, err := tx.Builds().GetBuild(ctx, build)
		if err != nil {
			return err
		}
		if b.Status == entities.BuildComplete || b.Status == entities.BuildCancelled {
			return fmt.Errorf("%w: build %s is %s", entities.ErrInvalidState, build, b.Status)
		}

		outputs, err := tx.Builds().GetOutputs(ctx, build)
		if err != nil {
			return err
		}
		planned := quantity
		for _, o := range outputs {
			if o.State != entities.Cancelled {
				planned = planned.Add(o.Quantity)
			}
		}
		if planned.GreaterThan(b.Quantity) {
			return fmt.Errorf("outputs of build %s would total %s, build quantity is %s", build, planned, b.Quantity)
		}
		return tx.Builds().SaveOutput(ctx, output)
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// Allocate reserves stock for a build line and returns the allocation id
func (s *BuildService) Allocate(
	ctx context.Context,
	build entities.BuildOrderID,
	output entities.BuildOutputID,
	line entities.BOMLineID,
	item entities.StockItemID,
	quantity decimal.Decimal,
) (entities.AllocationID, error) {
	alloc, err := s.matcher.Allocate(ctx, AllocateRequest{
		Build:     build,
		Output:    output,
		BOMLine:   line,
		StockItem: item,
		Quantity:  quantity,
	})
	if err != nil {
		return "", err
	}
	return alloc.ID, nil
}

// Unallocate removes a reservation
func (s *BuildService) Unallocate(ctx context.Context, id entities.AllocationID) error {
	return s.matcher.Unallocate(ctx, id)
}

// CompleteOutput consumes the output's reservations and creates its finished stock
func (s *BuildService) CompleteOutput(ctx context.Context, output entities.BuildOutputID) (*dto.CompletionResult, error) {
	return s.matcher.CompleteOutput(ctx, output)
}

// CancelOutput releases the output's reservations and cancels it
func (s *BuildService) CancelOutput(ctx context.Context, output entities.BuildOutputID) error {
	return s.matcher.CancelOutput(ctx, output)
}

// AutoAllocate greedily reserves stock for the output's uncovered lines
func (s *BuildService) AutoAllocate(ctx context.Context, output entities.BuildOutputID, opts AutoAllocateOptions) (*dto.AutoAllocateResult, error) {
	return s.matcher.AutoAllocate(ctx, output, opts)
}

// Shortfalls reports the required lines an output still lacks stock for
func (s *BuildService) Shortfalls(ctx context.Context, output entities.BuildOutputID) ([]entities.LineShortfall, error) {
	return s.matcher.Shortfalls(ctx, output)
}

// ValidateBOM reports whether the part's resolved BOM is validated and unchanged since
func (s *BuildService) ValidateBOM(ctx context.Context, part entities.PartNumber) (bool, error) {
	return s.gate.IsValidated(ctx, part)
}

// Validate checks the part's resolved BOM for duplicate sub parts and marks it validated
func (s *BuildService) Validate(ctx context.Context, part entities.PartNumber) (*entities.BOMValidation, error) {
	validation, err := s.gate.Validate(ctx, part)
	if err != nil {
		return nil, err
	}
	s.publish(string(part), events.NewBOMValidatedEvent(*validation))
	return validation, nil
}

func (s *BuildService) publish(stream string, event events.Event) {
	if err := s.events.AppendEvent(stream, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", event.Type()),
			zap.Error(err))
	}
}
