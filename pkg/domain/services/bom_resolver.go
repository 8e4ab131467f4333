package services

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// MaxVariantDepth bounds every walk up the variant_of chain
const MaxVariantDepth = 64

// InheritancePolicy decides which ancestor wins when several ancestor levels
// define an inherited line for the same sub part
type InheritancePolicy int

const (
	NearestAncestorWins InheritancePolicy = iota
	FarthestAncestorWins
)

// String method for InheritancePolicy enum
func (p InheritancePolicy) String() string {
	switch p {
	case NearestAncestorWins:
		return "nearest"
	case FarthestAncestorWins:
		return "farthest"
	default:
		return "unknown"
	}
}

// ParseInheritancePolicy converts a config value into an InheritancePolicy
func ParseInheritancePolicy(s string) (InheritancePolicy, error) {
	switch s {
	case "", "nearest":
		return NearestAncestorWins, nil
	case "farthest":
		return FarthestAncestorWins, nil
	default:
		return NearestAncestorWins, fmt.Errorf("unknown inheritance policy: %s", s)
	}
}

// ResolvedLine is one effective BOM line of a part
type ResolvedLine struct {
	Line *entities.BOMLine
	// Source is the part that owns the line; Depth is 0 for own lines, 1 for the direct template, and so on
	Source entities.PartNumber
	Depth  int
}

// FromAncestor reports whether the line was inherited rather than defined on the part itself
func (r ResolvedLine) FromAncestor() bool {
	return r.Depth > 0
}

// BOMResolver computes effective BOMs across the template/variant chain.
// It never writes; every call re-derives the result from the repositories.
type BOMResolver struct {
	parts  repositories.PartRepository
	bom    repositories.BOMRepository
	policy InheritancePolicy
}

// NewBOMResolver creates a resolver over the given repositories
func NewBOMResolver(parts repositories.PartRepository, bom repositories.BOMRepository, policy InheritancePolicy) *BOMResolver {
	return &BOMResolver{
		parts:  parts,
		bom:    bom,
		policy: policy,
	}
}

// Policy returns the tie-break policy in use
func (r *BOMResolver) Policy() InheritancePolicy {
	return r.policy
}

// Ancestors returns the variant_of chain above a part, nearest first.
// A revisited part means write-time validation was bypassed and is reported as an internal defect.
func (r *BOMResolver) Ancestors(ctx context.Context, pn entities.PartNumber) ([]*entities.Part, error) {
	part, err := r.parts.GetPart(ctx, pn)
	if err != nil {
		return nil, err
	}

	visited := map[entities.PartNumber]bool{pn: true}
	path := []entities.PartNumber{pn}
	var ancestors []*entities.Part

	for next := part.VariantOf; next != ""; {
		path = append(path, next)
		if visited[next] || len(ancestors) >= MaxVariantDepth {
			return nil, &entities.CycleError{Path: path, Defect: true}
		}
		visited[next] = true

		ancestor, err := r.parts.GetPart(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("walking ancestors of %s: %w", pn, err)
		}
		ancestors = append(ancestors, ancestor)
		next = ancestor.VariantOf
	}

	return ancestors, nil
}

// Resolve returns the effective BOM of a part: its own lines in insertion order,
// followed by inherited ancestor lines nearest ancestor first. Own lines shadow
// inherited lines with the same sub part; ancestor ties follow the policy.
func (r *BOMResolver) Resolve(ctx context.Context, pn entities.PartNumber) ([]ResolvedLine, error) {
	ancestors, err := r.Ancestors(ctx, pn)
	if err != nil {
		return nil, err
	}

	own, err := r.bom.GetBOMLines(ctx, pn)
	if err != nil {
		return nil, fmt.Errorf("loading BOM for %s: %w", pn, err)
	}

	resolved := make([]ResolvedLine, 0, len(own))
	claimed := make(map[entities.PartNumber]bool, len(own))
	for _, line := range own {
		resolved = append(resolved, ResolvedLine{Line: line, Source: pn})
		claimed[line.SubPart] = true
	}

	levels := make([][]*entities.BOMLine, len(ancestors))
	for i, ancestor := range ancestors {
		lines, err := r.bom.GetBOMLines(ctx, ancestor.PartNumber)
		if err != nil {
			return nil, fmt.Errorf("loading BOM for ancestor %s: %w", ancestor.PartNumber, err)
		}
		for _, line := range lines {
			if line.Inherited {
				levels[i] = append(levels[i], line)
			}
		}
	}

	winner := r.pickWinningLevels(levels, claimed)
	for i, lines := range levels {
		for _, line := range lines {
			if winner[line.SubPart] == i {
				resolved = append(resolved, ResolvedLine{
					Line:   line,
					Source: ancestors[i].PartNumber,
					Depth:  i + 1,
				})
			}
		}
	}

	return resolved, nil
}

// pickWinningLevels maps each inherited sub part to the ancestor level whose lines are kept.
// Lines at the same level are never shadowed by each other.
func (r *BOMResolver) pickWinningLevels(levels [][]*entities.BOMLine, claimed map[entities.PartNumber]bool) map[entities.PartNumber]int {
	winner := make(map[entities.PartNumber]int)
	claim := func(i int) {
		for _, line := range levels[i] {
			if claimed[line.SubPart] {
				continue
			}
			if _, taken := winner[line.SubPart]; !taken {
				winner[line.SubPart] = i
			}
		}
	}

	if r.policy == FarthestAncestorWins {
		for i := len(levels) - 1; i >= 0; i-- {
			claim(i)
		}
	} else {
		for i := range levels {
			claim(i)
		}
	}

	// own lines shadow every level
	for pn := range claimed {
		winner[pn] = -1
	}
	return winner
}

// Descendants returns every variant below a part, breadth first
func (r *BOMResolver) Descendants(ctx context.Context, pn entities.PartNumber) ([]entities.PartNumber, error) {
	visited := map[entities.PartNumber]bool{pn: true}
	queue := []entities.PartNumber{pn}
	var out []entities.PartNumber

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		variants, err := r.parts.GetVariants(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("loading variants of %s: %w", current, err)
		}
		for _, v := range variants {
			if visited[v.PartNumber] {
				return nil, &entities.CycleError{Path: []entities.PartNumber{current, v.PartNumber}, Defect: true}
			}
			visited[v.PartNumber] = true
			out = append(out, v.PartNumber)
			queue = append(queue, v.PartNumber)
		}
	}

	return out, nil
}
