// Package risk scores parameters for BOLA exposure. The score is
// deterministic from the parameter and its endpoint's method: weighted
// name lexicons plus location, method, type, and required-ness
// signals, summed and clamped to [0, 100].
package risk

import (
	"fmt"
	"strings"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/regexcache"
	"github.com/doppelscan/doppel/pkg/spec"
)

// Score is a parameter's BOLA risk with the provenance of every
// non-zero contribution.
type Score struct {
	Value   int      `json:"value"`
	Reasons []string `json:"reasons,omitempty"`
}

// Targetable reports whether the parameter clears the attack
// planner's threshold.
func (s Score) Targetable() bool {
	return s.Value >= defaults.RiskThreshold
}

// Name lexicons. High tokens mark ownership-bearing identifiers,
// medium tokens personal data, negative tokens pagination and search
// noise not worth sending traffic at.
var (
	highTokens = map[string]bool{
		"id": true, "uuid": true, "guid": true, "user": true,
		"account": true, "customer": true, "payment": true, "order": true,
		"invoice": true, "transaction": true, "card": true, "ssn": true,
	}
	mediumTokens = map[string]bool{
		"email": true, "phone": true, "name": true, "address": true,
		"session": true, "token": true, "key": true,
	}
	negativeTokens = map[string]bool{
		"page": true, "limit": true, "offset": true, "size": true,
		"per_page": true, "cursor": true, "sort": true, "order_by": true,
		"filter": true, "q": true, "query": true,
	}
)

const (
	weightHigh     = 40
	weightMedium   = 20
	weightNegative = -30
)

// ScoreParameter computes the deterministic risk score for one
// parameter in the context of its endpoint's method.
func ScoreParameter(p spec.Parameter, method spec.Method) Score {
	var score Score
	add := func(points int, reason string) {
		if points == 0 {
			return
		}
		score.Value += points
		score.Reasons = append(score.Reasons, fmt.Sprintf("%s%+d", reason, points))
	}

	// Name signal: strongest token class wins per category, each
	// category fires at most once.
	tokens := Tokenize(p.Name)
	var high, medium, negative bool
	for _, tok := range tokens {
		switch {
		case highTokens[tok]:
			high = true
		case mediumTokens[tok]:
			medium = true
		case negativeTokens[tok]:
			negative = true
		}
	}
	// Compound negative tokens keep their underscore form.
	joined := strings.ToLower(p.Name)
	if negativeTokens[joined] {
		negative = true
	}
	if high {
		add(weightHigh, "name:high")
	}
	if medium {
		add(weightMedium, "name:medium")
	}
	if negative {
		add(weightNegative, "name:negative")
	}

	// Location signal.
	switch p.In {
	case spec.LocationPath:
		add(25, "in:path")
	case spec.LocationBody:
		add(15, "in:body")
	case spec.LocationQuery:
		add(10, "in:query")
	case spec.LocationHeader:
		add(5, "in:header")
	}

	// Method signal: per-object reads and deletes carry the classic
	// BOLA shape.
	switch method {
	case spec.MethodGet, spec.MethodDelete:
		add(10, "method:"+strings.ToLower(string(method)))
	case spec.MethodPut, spec.MethodPatch:
		add(5, "method:"+strings.ToLower(string(method)))
	}

	// Type signal.
	switch {
	case p.Type == spec.TypeInteger:
		add(10, "type:integer")
	case p.Type == spec.TypeString && looksLikeUUID(p):
		add(10, "type:uuid")
	case p.Type == spec.TypeArray || p.Type == spec.TypeObject:
		add(-5, "type:"+string(p.Type))
	}

	if p.Required {
		add(5, "required")
	}

	if score.Value < 0 {
		score.Value = 0
	}
	if score.Value > 100 {
		score.Value = 100
	}
	return score
}

// ScoreEndpoint scores every parameter of an endpoint, keyed by
// location-qualified name.
func ScoreEndpoint(ep spec.Endpoint) map[string]Score {
	scores := make(map[string]Score, len(ep.Parameters))
	for _, p := range ep.Parameters {
		scores[Key(p)] = ScoreParameter(p, ep.Method)
	}
	return scores
}

// Key is the scoring map key for a parameter: location-qualified so
// same-named parameters in different locations stay distinct.
func Key(p spec.Parameter) string {
	return string(p.In) + ":" + p.Name
}

// MaxScore returns the highest parameter score of an endpoint.
func MaxScore(scores map[string]Score) int {
	max := 0
	for _, s := range scores {
		if s.Value > max {
			max = s.Value
		}
	}
	return max
}

// uuidPattern matches the canonical 8-4-4-4-12 UUID shape.
const uuidPattern = `(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`

// looksLikeUUID reports whether a string parameter is UUID-shaped,
// judged from its name or its example value.
func looksLikeUUID(p spec.Parameter) bool {
	lower := strings.ToLower(p.Name)
	if strings.Contains(lower, "uuid") || strings.Contains(lower, "guid") {
		return true
	}
	if s, ok := p.Example.(string); ok {
		return regexcache.MustGet(uuidPattern).MatchString(s)
	}
	return false
}

// Tokenize splits a parameter name on camelCase, snake_case,
// kebab-case, and dotted-path boundaries, lowercasing every token.
// Array markers ("items[0]") are stripped.
func Tokenize(name string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		// Pure array indices carry no name signal.
		if strings.TrimLeft(tok, "0123456789") == "" {
			return
		}
		tokens = append(tokens, strings.ToLower(tok))
	}

	for i, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '[' || r == ']':
			flush()
		case r >= 'A' && r <= 'Z':
			// camelCase boundary: lowercase (or digit) before uppercase.
			if i > 0 {
				prev := rune(name[i-1])
				if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}
