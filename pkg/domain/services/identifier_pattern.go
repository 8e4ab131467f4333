package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// ExpandPattern turns a serial pattern into exactly quantity identifiers.
//
// A pattern is a comma-separated list of groups, expanded left to right:
//
//	800        literal identifier
//	~          the next available identifier (each use advances it)
//	10-15      inclusive range
//	10+3       10 and the three identifiers after it
//	10+        10 and as many following identifiers as are still needed
//
// next is the next available identifier for the scope being filled.
func ExpandPattern(pattern string, quantity int, next string, strategy IdentifierStrategy) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", entities.ErrInvalidPattern)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", entities.ErrInvalidPattern, quantity)
	}

	for strings.Contains(pattern, "~") {
		if next == "" {
			return nil, fmt.Errorf("%w: no next identifier available for ~", entities.ErrInvalidPattern)
		}
		pattern = strings.Replace(pattern, "~", next, 1)
		advanced, err := strategy.Increment(next)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entities.ErrInvalidPattern, err)
		}
		next = advanced
	}

	e := &expander{strategy: strategy, quantity: quantity, seen: make(map[string]bool)}
	for _, group := range strings.Split(pattern, ",") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		if err := e.expandGroup(group); err != nil {
			return nil, err
		}
		if len(e.out) > quantity {
			return nil, &entities.QuantityMismatchError{Expected: quantity, Got: len(e.out), Exceeded: true}
		}
	}

	if len(e.duplicates) > 0 {
		return nil, &entities.DuplicateIdentifierError{Values: e.duplicates}
	}
	if len(e.out) != quantity {
		return nil, &entities.QuantityMismatchError{Expected: quantity, Got: len(e.out)}
	}
	return e.out, nil
}

type expander struct {
	strategy   IdentifierStrategy
	quantity   int
	out        []string
	seen       map[string]bool
	duplicates []string
}

func (e *expander) add(id string) {
	if e.seen[id] {
		e.duplicates = append(e.duplicates, id)
		return
	}
	e.seen[id] = true
	e.out = append(e.out, id)
}

func (e *expander) expandGroup(group string) error {
	if a, b, ok := e.splitHyphenRange(group); ok {
		return e.hyphenRange(group, a, b)
	}
	if a, n, ok := splitRange(group, "+"); ok && e.strategy.Sequential(a) {
		return e.plusRange(group, a, n)
	}
	if !e.strategy.Valid(group) {
		return fmt.Errorf("%w: invalid identifier %q", entities.ErrInvalidPattern, group)
	}
	e.add(group)
	return nil
}

func (e *expander) hyphenRange(group, a, b string) error {
	if e.strategy.Compare(a, b) > 0 {
		return fmt.Errorf("%w: descending range %q", entities.ErrInvalidPattern, group)
	}
	current := a
	for {
		e.add(current)
		if current == b || e.strategy.Compare(current, b) >= 0 {
			return nil
		}
		if len(e.out) > e.quantity {
			// the range alone overshoots; the caller reports the mismatch
			return nil
		}
		advanced, err := e.strategy.Increment(current)
		if err != nil {
			return fmt.Errorf("%w: %v", entities.ErrInvalidPattern, err)
		}
		current = advanced
	}
}

func (e *expander) plusRange(group, a, countText string) error {
	var count int
	if countText == "" {
		count = e.quantity - len(e.out) - 1
		if count < 0 {
			count = 0
		}
	} else {
		n, err := strconv.Atoi(countText)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid count in %q", entities.ErrInvalidPattern, group)
		}
		count = n
	}

	current := a
	for i := 0; ; i++ {
		e.add(current)
		if i == count || len(e.out) > e.quantity {
			return nil
		}
		advanced, err := e.strategy.Increment(current)
		if err != nil {
			return fmt.Errorf("%w: %v", entities.ErrInvalidPattern, err)
		}
		current = advanced
	}
}

// splitHyphenRange finds the hyphen separating two sequential identifiers; prefixes may contain hyphens
func (e *expander) splitHyphenRange(group string) (string, string, bool) {
	for i := strings.Index(group, "-"); i >= 0; {
		a := strings.TrimSpace(group[:i])
		b := strings.TrimSpace(group[i+1:])
		if a != "" && e.strategy.Sequential(a) && e.strategy.Sequential(b) {
			return a, b, true
		}
		next := strings.Index(group[i+1:], "-")
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", "", false
}

// splitRange splits "a <op> b" on the only occurrence of op, trimming whitespace around both sides
func splitRange(group, op string) (string, string, bool) {
	if strings.Count(group, op) != 1 {
		return "", "", false
	}
	parts := strings.SplitN(group, op, 2)
	a := strings.TrimSpace(parts[0])
	b := strings.TrimSpace(parts[1])
	if a == "" {
		return "", "", false
	}
	return a, b, true
}
