package services

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// IdentifierStrategy is the pluggable notion of what a serial looks like and how it advances
type IdentifierStrategy interface {
	// Valid reports whether token may be used as an identifier at all
	Valid(token string) bool
	// Sequential reports whether token takes part in the ordered sequence (ranges, next-available)
	Sequential(token string) bool
	// Increment returns the identifier that follows a sequential id
	Increment(id string) (string, error)
	// Compare orders two sequential identifiers: -1, 0 or 1
	Compare(a, b string) int
	// First is the identifier used when none exist yet
	First() string
}

// validToken accepts any non-empty token free of pattern syntax
func validToken(token string) bool {
	if token == "" {
		return false
	}
	return !strings.ContainsAny(token, ",~ \t\r\n")
}

// Latest returns the greatest sequential identifier according to the strategy
func Latest(strategy IdentifierStrategy, ids []string) (string, bool) {
	latest, found := "", false
	for _, id := range ids {
		if !strategy.Sequential(id) {
			continue
		}
		if !found || strategy.Compare(id, latest) > 0 {
			latest, found = id, true
		}
	}
	return latest, found
}

// NextAvailable returns the identifier after the latest existing one, or First when none are sequential
func NextAvailable(strategy IdentifierStrategy, existing []string) (string, error) {
	latest, ok := Latest(strategy, existing)
	if !ok {
		return strategy.First(), nil
	}
	return strategy.Increment(latest)
}

// IntegerStrategy accepts any literal token and sequences the ones that are non-negative integers
type IntegerStrategy struct{}

// NewIntegerStrategy returns the default identifier strategy
func NewIntegerStrategy() *IntegerStrategy {
	return &IntegerStrategy{}
}

func (IntegerStrategy) parse(token string) (*big.Int, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(token, 10)
	return n, ok
}

// Valid accepts any token free of pattern syntax
func (IntegerStrategy) Valid(token string) bool {
	return validToken(token)
}

// Sequential reports whether token is a plain non-negative integer
func (s IntegerStrategy) Sequential(token string) bool {
	_, ok := s.parse(token)
	return ok
}

// Increment adds one
func (s IntegerStrategy) Increment(id string) (string, error) {
	n, ok := s.parse(id)
	if !ok {
		return "", fmt.Errorf("cannot increment non-integer identifier %q", id)
	}
	return n.Add(n, big.NewInt(1)).String(), nil
}

// Compare orders by numeric value
func (s IntegerStrategy) Compare(a, b string) int {
	na, _ := s.parse(a)
	nb, _ := s.parse(b)
	if na == nil || nb == nil {
		return strings.Compare(a, b)
	}
	return na.Cmp(nb)
}

// First returns "1"
func (IntegerStrategy) First() string {
	return "1"
}

// PrefixedStrategy handles serials such as SN001 or SN-001: a non-numeric prefix and a zero-padded number
type PrefixedStrategy struct {
	prefix        string
	width         int
	serialPattern *regexp.Regexp
}

// NewPrefixedStrategy creates a strategy whose first identifier is prefix followed by width digits
func NewPrefixedStrategy(prefix string, width int) *PrefixedStrategy {
	if width < 1 {
		width = 1
	}
	return &PrefixedStrategy{
		prefix:        prefix,
		width:         width,
		serialPattern: regexp.MustCompile(`^(\D*)(\d+)$`),
	}
}

// parseSerial extracts the prefix and numeric portion from a serial number
func (s *PrefixedStrategy) parseSerial(serial string) (string, string, bool) {
	matches := s.serialPattern.FindStringSubmatch(strings.TrimSpace(serial))
	if len(matches) != 3 {
		return "", "", false
	}
	return matches[1], matches[2], true
}

// Valid accepts any token free of pattern syntax
func (s *PrefixedStrategy) Valid(token string) bool {
	return validToken(token)
}

// Sequential reports whether token is the strategy's prefix followed by digits
func (s *PrefixedStrategy) Sequential(token string) bool {
	prefix, _, ok := s.parseSerial(token)
	return ok && (s.prefix == "" || prefix == s.prefix)
}

// Increment advances the numeric part and keeps its zero padding. The number may be any length.
func (s *PrefixedStrategy) Increment(id string) (string, error) {
	prefix, digits, ok := s.parseSerial(id)
	if !ok {
		return "", fmt.Errorf("invalid serial format: %s", id)
	}
	n, _ := new(big.Int).SetString(digits, 10)
	next := n.Add(n, big.NewInt(1)).String()
	if len(next) < len(digits) {
		next = strings.Repeat("0", len(digits)-len(next)) + next
	}
	return prefix + next, nil
}

// Compare orders by prefix, then numerically
func (s *PrefixedStrategy) Compare(a, b string) int {
	if a == b {
		return 0
	}
	prefixA, digitsA, okA := s.parseSerial(a)
	prefixB, digitsB, okB := s.parseSerial(b)
	if !okA || !okB {
		return strings.Compare(a, b)
	}
	if prefixA != prefixB {
		return strings.Compare(prefixA, prefixB)
	}
	numA, _ := new(big.Int).SetString(digitsA, 10)
	numB, _ := new(big.Int).SetString(digitsB, 10)
	return numA.Cmp(numB)
}

// First returns the prefix followed by a padded 1
func (s *PrefixedStrategy) First() string {
	return s.prefix + fmt.Sprintf("%0*d", s.width, 1)
}
