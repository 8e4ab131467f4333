package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// ValidationGate tracks whether an assembly's resolved BOM was validated since its last edit
type ValidationGate struct {
	resolver    *BOMResolver
	validations repositories.ValidationRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewValidationGate creates a gate over the resolver and validation storage
func NewValidationGate(resolver *BOMResolver, validations repositories.ValidationRepository, logger *zap.Logger) *ValidationGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationGate{
		resolver:    resolver,
		validations: validations,
		logger:      logger,
		now:         time.Now,
	}
}

// Checksum hashes every field of every resolved line in order, so any line edit changes it.
// Substitute order is ignored.
func Checksum(lines []ResolvedLine) string {
	h := sha256.New()
	for _, rl := range lines {
		subs := make([]string, len(rl.Line.Substitutes))
		for i, s := range rl.Line.Substitutes {
			subs[i] = string(s)
		}
		sort.Strings(subs)
		l := rl.Line
		fmt.Fprintf(h, "%s|%s|%s|%t|%t|%t|%q|%q|%s\n",
			l.SubPart, l.Quantity.String(), l.Overage.String(),
			l.Consumable, l.Inherited, l.Optional,
			l.Reference, l.Note, strings.Join(subs, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CurrentChecksum resolves the part and returns the checksum of its effective BOM
func (g *ValidationGate) CurrentChecksum(ctx context.Context, part entities.PartNumber) (string, error) {
	lines, err := g.resolver.Resolve(ctx, part)
	if err != nil {
		return "", err
	}
	return Checksum(lines), nil
}

// Validate marks the part's BOM as validated if its resolved set has no duplicate sub parts
func (g *ValidationGate) Validate(ctx context.Context, part entities.PartNumber) (*entities.BOMValidation, error) {
	lines, err := g.resolver.Resolve(ctx, part)
	if err != nil {
		return nil, err
	}

	if duplicates := DuplicateSubParts(lines); len(duplicates) > 0 {
		if err := g.store(ctx, part, false, ""); err != nil {
			return nil, err
		}
		return nil, &entities.DuplicateLinesError{Assembly: part, SubParts: duplicates}
	}

	validation := &entities.BOMValidation{
		Assembly:    part,
		Validated:   true,
		Checksum:    Checksum(lines),
		ValidatedAt: g.now(),
	}
	if err := g.validations.SaveValidation(ctx, validation); err != nil {
		return nil, fmt.Errorf("saving validation for %s: %w", part, err)
	}

	g.logger.Info("BOM validated",
		zap.String("part", string(part)),
		zap.Int("lines", len(lines)),
		zap.String("checksum", validation.Checksum))
	return validation, nil
}

// IsValidated reports whether the flag is set and the stored checksum still matches the resolved BOM
func (g *ValidationGate) IsValidated(ctx context.Context, part entities.PartNumber) (bool, error) {
	validation, err := g.validations.GetValidation(ctx, part)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !validation.Validated {
		return false, nil
	}

	current, err := g.CurrentChecksum(ctx, part)
	if err != nil {
		return false, err
	}
	return current == validation.Checksum, nil
}

// Invalidate clears the validated flag of a part and, when requested, of every variant below it
func (g *ValidationGate) Invalidate(ctx context.Context, part entities.PartNumber, includeDescendants bool) error {
	targets := []entities.PartNumber{part}
	if includeDescendants {
		descendants, err := g.resolver.Descendants(ctx, part)
		if err != nil {
			return err
		}
		targets = append(targets, descendants...)
	}

	for _, pn := range targets {
		if err := g.store(ctx, pn, false, ""); err != nil {
			return err
		}
	}

	g.logger.Debug("BOM validation cleared",
		zap.String("part", string(part)),
		zap.Int("parts", len(targets)))
	return nil
}

func (g *ValidationGate) store(ctx context.Context, part entities.PartNumber, validated bool, checksum string) error {
	err := g.validations.SaveValidation(ctx, &entities.BOMValidation{
		Assembly:  part,
		Validated: validated,
		Checksum:  checksum,
	})
	if err != nil {
		return fmt.Errorf("saving validation for %s: %w", part, err)
	}
	return nil
}
