package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
)

// BOMService edits parts and BOM lines, enforcing write-time structure rules
// and publishing the structural events that clear BOM validation
type BOMService struct {
	store  repositories.Store
	policy services.InheritancePolicy
	events events.EventStore
	logger *zap.Logger
}

// NewBOMService creates an editor over the store. eventStore may be nil.
func NewBOMService(store repositories.Store, policy services.InheritancePolicy, eventStore events.EventStore, logger *zap.Logger) *BOMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BOMService{
		store:  store,
		policy: policy,
		events: eventStore,
		logger: logger,
	}
}

func (s *BOMService) validator(tx repositories.Store) *services.BOMValidator {
	return services.NewBOMValidator(tx.Parts(), services.NewBOMResolver(tx.Parts(), tx.BOM(), s.policy))
}

// SavePart creates or updates a part. A variant_of change that would close a loop is rejected.
func (s *BOMService) SavePart(ctx context.Context, part *entities.Part) error {
	if part.VariantOf == part.PartNumber {
		return &entities.CycleError{Path: []entities.PartNumber{part.PartNumber, part.PartNumber}}
	}

	var (
		oldParent entities.PartNumber
		changed   bool
	)
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		existing, err := tx.Parts().GetPart(ctx, part.PartNumber)
		switch {
		case err == nil:
			oldParent = existing.VariantOf
			changed = oldParent != part.VariantOf
		case errors.Is(err, entities.ErrNotFound):
			changed = part.VariantOf != ""
		default:
			return err
		}

		if changed {
			if err := s.validator(tx).CheckVariantOf(ctx, part.PartNumber, part.VariantOf); err != nil {
				return err
			}
		}
		return tx.Parts().SavePart(ctx, part)
	})
	if err != nil {
		return err
	}

	if changed {
		s.publish(string(part.PartNumber), events.NewPartVariantOfUpdatedEvent(part.PartNumber, oldParent, part.VariantOf))
	}
	return nil
}

// AddLine validates and stores a new BOM line
func (s *BOMService) AddLine(ctx context.Context, line *entities.BOMLine) error {
	if line.ID == "" {
		line.ID = entities.NewBOMLineID()
	}
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		if err := s.validator(tx).CheckBOMLine(ctx, line); err != nil {
			return err
		}
		return tx.BOM().SaveBOMLine(ctx, line)
	})
	if err != nil {
		return err
	}

	s.publish(string(line.Assembly), events.NewBOMLineCreatedEvent(*line.Clone()))
	s.logger.Debug("BOM line added",
		zap.String("assembly", string(line.Assembly)),
		zap.String("sub_part", string(line.SubPart)))
	return nil
}

// UpdateLine replaces a BOM line. A line cannot move to another assembly.
// Any changed field clears validation of the assembly.
func (s *BOMService) UpdateLine(ctx context.Context, line *entities.BOMLine) error {
	var old *entities.BOMLine
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		existing, err := tx.BOM().GetBOMLine(ctx, line.ID)
		if err != nil {
			return err
		}
		if existing.Assembly != line.Assembly {
			return fmt.Errorf("BOM line %s cannot move from %s to %s", line.ID, existing.Assembly, line.Assembly)
		}
		if err := s.validator(tx).CheckBOMLine(ctx, line); err != nil {
			return err
		}
		old = existing
		return tx.BOM().UpdateBOMLine(ctx, line)
	})
	if err != nil {
		return err
	}

	if lineChanged(old, line) {
		s.publish(string(line.Assembly), events.NewBOMLineUpdatedEvent(*old, *line.Clone()))
	}
	return nil
}

// lineChanged reports whether an edit touches any field of the line
func lineChanged(old, updated *entities.BOMLine) bool {
	return old.SubPart != updated.SubPart ||
		old.Reference != updated.Reference ||
		old.Note != updated.Note ||
		!old.Quantity.Equal(updated.Quantity) ||
		old.Overage.String() != updated.Overage.String() ||
		old.Consumable != updated.Consumable ||
		old.Inherited != updated.Inherited ||
		old.Optional != updated.Optional ||
		!slices.Equal(old.Substitutes, updated.Substitutes)
}

// SetSubstitutes replaces the substitute set of a BOM line
func (s *BOMService) SetSubstitutes(ctx context.Context, id entities.BOMLineID, substitutes []entities.PartNumber) error {
	var (
		updated *entities.BOMLine
		old     []entities.PartNumber
	)
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		line, err := tx.BOM().GetBOMLine(ctx, id)
		if err != nil {
			return err
		}
		old = line.Substitutes
		line.Substitutes = slices.Clone(substitutes)
		if err := s.validator(tx).CheckBOMLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return tx.BOM().UpdateBOMLine(ctx, line)
	})
	if err != nil {
		return err
	}

	s.publish(string(updated.Assembly), events.NewBOMSubstitutesUpdatedEvent(*updated, old))
	return nil
}

// DeleteLine removes a BOM line
func (s *BOMService) DeleteLine(ctx context.Context, id entities.BOMLineID) error {
	var deleted *entities.BOMLine
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		line, err := tx.BOM().GetBOMLine(ctx, id)
		if err != nil {
			return err
		}
		deleted = line
		return tx.BOM().DeleteBOMLine(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publish(string(deleted.Assembly), events.NewBOMLineDeletedEvent(*deleted))
	return nil
}

func (s *BOMService) publish(stream string, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.AppendEvent(stream, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", event.Type()),
			zap.Error(err))
	}
}

// ValidationInvalidator clears BOM validation when a structural event arrives
type ValidationInvalidator struct {
	gate   *services.ValidationGate
	logger *zap.Logger
}

// NewValidationInvalidator creates an event handler for the gate
func NewValidationInvalidator(gate *services.ValidationGate, logger *zap.Logger) *ValidationInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationInvalidator{gate: gate, logger: logger}
}

// Verify interface compliance
var _ events.EventHandler = (*ValidationInvalidator)(nil)

// CanHandle reports whether the event type is structural
func (h *ValidationInvalidator) CanHandle(eventType string) bool {
	return slices.Contains(events.StructuralEvents, eventType)
}

// Handle clears the affected assembly and, for inherited changes, every variant below it
func (h *ValidationInvalidator) Handle(event events.Event) error {
	part, descendants, ok := events.AffectedAssembly(event)
	if !ok {
		return nil
	}
	if err := h.gate.Invalidate(context.Background(), part, descendants); err != nil {
		return fmt.Errorf("invalidating BOM of %s: %w", part, err)
	}
	h.logger.Debug("BOM edit cleared validation",
		zap.String("event", event.Type()),
		zap.String("part", string(part)),
		zap.Bool("descendants", descendants))
	return nil
}
