package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// BOMValidator enforces structural integrity of parts and BOM lines at write time
type BOMValidator struct {
	parts    repositories.PartRepository
	resolver *BOMResolver
}

// NewBOMValidator creates a new BOM validator
func NewBOMValidator(parts repositories.PartRepository, resolver *BOMResolver) *BOMValidator {
	return &BOMValidator{
		parts:    parts,
		resolver: resolver,
	}
}

// ValidationResult contains the results of whole-graph BOM validation
type ValidationResult struct {
	HasCycles      bool
	CyclePaths     [][]entities.PartNumber
	DuplicateLines []entities.BOMLine
	Errors         []string
}

// CheckVariantOf rejects setting part.VariantOf = parent when parent already descends from part
func (v *BOMValidator) CheckVariantOf(ctx context.Context, part, parent entities.PartNumber) error {
	if parent == "" {
		return nil
	}
	if parent == part {
		return &entities.CycleError{Path: []entities.PartNumber{part, part}}
	}

	path := []entities.PartNumber{part, parent}
	visited := map[entities.PartNumber]bool{part: true}
	for current := parent; current != ""; {
		if visited[current] {
			return &entities.CycleError{Path: path}
		}
		if len(path) > MaxVariantDepth {
			return fmt.Errorf("variant chain above %s exceeds depth %d", part, MaxVariantDepth)
		}
		visited[current] = true

		p, err := v.parts.GetPart(ctx, current)
		if err != nil {
			return fmt.Errorf("checking variant chain of %s: %w", part, err)
		}
		current = p.VariantOf
		if current != "" {
			path = append(path, current)
		}
	}
	return nil
}

// CheckBOMLine rejects a line that references its own assembly, names unknown
// parts, or would make the assembly appear inside its own BOM tree
func (v *BOMValidator) CheckBOMLine(ctx context.Context, line *entities.BOMLine) error {
	if err := line.Validate(); err != nil {
		return err
	}

	for _, pn := range append([]entities.PartNumber{line.Assembly, line.SubPart}, line.Substitutes...) {
		if _, err := v.parts.GetPart(ctx, pn); err != nil {
			return fmt.Errorf("BOM line %s: %w", line.ID, err)
		}
	}

	// inherited lines also land in every variant below the assembly
	targets := map[entities.PartNumber]bool{line.Assembly: true}
	if line.Inherited {
		descendants, err := v.resolver.Descendants(ctx, line.Assembly)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			targets[d] = true
		}
	}

	for _, pn := range append([]entities.PartNumber{line.SubPart}, line.Substitutes...) {
		path, err := v.findInTree(ctx, pn, targets)
		if err != nil {
			return err
		}
		if path != nil {
			return &entities.CycleError{Path: append([]entities.PartNumber{line.Assembly}, path...)}
		}
	}
	return nil
}

// findInTree walks the resolved BOM tree below root and returns the path to any target, or nil
func (v *BOMValidator) findInTree(ctx context.Context, root entities.PartNumber, targets map[entities.PartNumber]bool) ([]entities.PartNumber, error) {
	visited := make(map[entities.PartNumber]bool)
	var walk func(pn entities.PartNumber, path []entities.PartNumber) ([]entities.PartNumber, error)
	walk = func(pn entities.PartNumber, path []entities.PartNumber) ([]entities.PartNumber, error) {
		path = append(path, pn)
		if targets[pn] {
			return path, nil
		}
		if visited[pn] {
			return nil, nil
		}
		visited[pn] = true

		lines, err := v.resolver.Resolve(ctx, pn)
		if err != nil {
			var notFound *entities.NotFoundError
			if errors.As(err, &notFound) {
				return nil, nil
			}
			return nil, err
		}
		for _, rl := range lines {
			children := append([]entities.PartNumber{rl.Line.SubPart}, rl.Line.Substitutes...)
			for _, child := range children {
				found, err := walk(child, path)
				if err != nil || found != nil {
					return found, err
				}
			}
		}
		return nil, nil
	}
	return walk(root, nil)
}

// DuplicateSubParts returns the sub parts that occur more than once in a resolved BOM, in first-seen order
func DuplicateSubParts(lines []ResolvedLine) []entities.PartNumber {
	seen := make(map[entities.PartNumber]int, len(lines))
	var duplicates []entities.PartNumber
	for _, rl := range lines {
		seen[rl.Line.SubPart]++
		if seen[rl.Line.SubPart] == 2 {
			duplicates = append(duplicates, rl.Line.SubPart)
		}
	}
	return duplicates
}

// ValidateBOM performs whole-graph validation on a set of BOM lines, as used for bulk imports
func (v *BOMValidator) ValidateBOM(bomLines []*entities.BOMLine) *ValidationResult {
	result := &ValidationResult{
		CyclePaths:     make([][]entities.PartNumber, 0),
		DuplicateLines: make([]entities.BOMLine, 0),
		Errors:         make([]string, 0),
	}

	adjacencyMap := buildAdjacencyMap(bomLines)

	cycles := detectCycles(adjacencyMap)
	result.HasCycles = len(cycles) > 0
	result.CyclePaths = cycles

	result.DuplicateLines = detectDuplicateLines(bomLines)

	for _, cycle := range result.CyclePaths {
		result.Errors = append(result.Errors, fmt.Sprintf("BOM cycle detected: %v", cycle))
	}
	if len(result.DuplicateLines) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("Found %d duplicate BOM lines", len(result.DuplicateLines)))
	}

	return result
}

// buildAdjacencyMap creates a map of assembly -> sub part (and substitute) relationships
func buildAdjacencyMap(bomLines []*entities.BOMLine) map[entities.PartNumber][]entities.PartNumber {
	adjacencyMap := make(map[entities.PartNumber][]entities.PartNumber)

	for _, line := range bomLines {
		children := adjacencyMap[line.Assembly]
		for _, child := range append([]entities.PartNumber{line.SubPart}, line.Substitutes...) {
			found := false
			for _, existing := range children {
				if existing == child {
					found = true
					break
				}
			}
			if !found {
				children = append(children, child)
			}
		}
		adjacencyMap[line.Assembly] = children
	}

	return adjacencyMap
}

// detectCycles uses DFS to find cycles in the BOM structure
func detectCycles(adjacencyMap map[entities.PartNumber][]entities.PartNumber) [][]entities.PartNumber {
	visited := make(map[entities.PartNumber]bool)
	recursionStack := make(map[entities.PartNumber]bool)
	cycles := make([][]entities.PartNumber, 0)

	for parent := range adjacencyMap {
		if !visited[parent] {
			dfsDetectCycle(parent, adjacencyMap, visited, recursionStack, nil, &cycles)
		}
	}

	return cycles
}

func dfsDetectCycle(
	current entities.PartNumber,
	adjacencyMap map[entities.PartNumber][]entities.PartNumber,
	visited map[entities.PartNumber]bool,
	recursionStack map[entities.PartNumber]bool,
	path []entities.PartNumber,
	cycles *[][]entities.PartNumber,
) {
	visited[current] = true
	recursionStack[current] = true
	path = append(path, current)

	for _, child := range adjacencyMap[current] {
		if !visited[child] {
			dfsDetectCycle(child, adjacencyMap, visited, recursionStack, path, cycles)
		} else if recursionStack[child] {
			for i, part := range path {
				if part == child {
					cycle := append([]entities.PartNumber{}, path[i:]...)
					cycle = append(cycle, child)
					*cycles = append(*cycles, cycle)
					break
				}
			}
		}
	}

	recursionStack[current] = false
}

// detectDuplicateLines finds lines of the same assembly that repeat a sub part
func detectDuplicateLines(bomLines []*entities.BOMLine) []entities.BOMLine {
	seen := make(map[string]*entities.BOMLine)
	duplicates := make([]entities.BOMLine, 0)

	for _, line := range bomLines {
		key := fmt.Sprintf("%s|%s", line.Assembly, line.SubPart)
		if existing, exists := seen[key]; exists {
			duplicates = append(duplicates, *line, *existing)
		} else {
			seen[key] = line
		}
	}

	return duplicates
}
