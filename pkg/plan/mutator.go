package plan

import (
	"strconv"
	"strings"
)

// Payload is one mutation value with its family tag.
type Payload struct {
	Kind  MutationKind
	Value string
}

// MutationPayloads returns the fixed, deterministic payload set for
// one targetable parameter. Order matters only for report stability.
func MutationPayloads(victimID string) []Payload {
	payloads := []Payload{
		{MutationSQLi, "' OR 1=1--"},
		{MutationSQLi, `"; DROP TABLE`},
		{MutationXSS, "<script>alert(1)</script>"},
		{MutationBoundary, "0"},
		{MutationBoundary, "-1"},
		{MutationBoundary, ""},
		{MutationBoundary, "null"},
		{MutationBoundary, "999999999999"},
		{MutationBoundary, "admin"},
	}
	for _, adjacent := range AdjacentIDs(victimID, 1) {
		payloads = append(payloads, Payload{MutationAdjacent, adjacent})
	}
	return payloads
}

// AdjacentIDs derives neighbors of an identifier by shifting its
// trailing number: "user_123" yields "user_122" and "user_124". The
// prefix and any leading-zero padding are preserved. Identifiers
// without a numeric suffix yield nothing.
func AdjacentIDs(id string, radius int) []string {
	base, digits, ok := splitNumericSuffix(id)
	if !ok {
		return nil
	}
	number, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}

	padded := len(digits) > 1 && strings.HasPrefix(digits, "0")

	var out []string
	for offset := -radius; offset <= radius; offset++ {
		if offset == 0 {
			continue
		}
		next := number + int64(offset)
		if next < 0 {
			continue
		}
		formatted := strconv.FormatInt(next, 10)
		if padded && len(formatted) < len(digits) {
			formatted = strings.Repeat("0", len(digits)-len(formatted)) + formatted
		}
		out = append(out, base+formatted)
	}
	return out
}

// splitNumericSuffix cuts an id into its prefix and trailing digit
// run: "user_123" → ("user_", "123").
func splitNumericSuffix(id string) (base, digits string, ok bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return "", "", false
	}
	return id[:i], id[i:], true
}
