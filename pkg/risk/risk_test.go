package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doppelscan/doppel/pkg/spec"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"userId", []string{"user", "id"}},
		{"user_id", []string{"user", "id"}},
		{"user-id", []string{"user", "id"}},
		{"user.address.zip", []string{"user", "address", "zip"}},
		{"items[0].sku", []string{"items", "sku"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.name), "name %q", tt.name)
	}
}

func TestScoreOwnershipParameter(t *testing.T) {
	p := spec.Parameter{Name: "userId", In: spec.LocationPath, Required: true, Type: spec.TypeInteger}
	s := ScoreParameter(p, spec.MethodGet)

	// high name +40, path +25, GET +10, integer +10, required +5.
	assert.Equal(t, 90, s.Value)
	assert.True(t, s.Targetable())
	assert.NotEmpty(t, s.Reasons, "provenance must record contributions")
}

func TestScorePaginationNoiseSuppressed(t *testing.T) {
	for _, name := range []string{"page", "limit", "offset", "per_page", "cursor"} {
		p := spec.Parameter{Name: name, In: spec.LocationQuery, Type: spec.TypeInteger}
		s := ScoreParameter(p, spec.MethodGet)
		assert.False(t, s.Targetable(), "%s must stay below the threshold (got %d)", name, s.Value)
	}
}

func TestScoreClampsToRange(t *testing.T) {
	p := spec.Parameter{Name: "sort", In: spec.LocationQuery, Type: spec.TypeObject}
	s := ScoreParameter(p, spec.MethodPost)
	assert.GreaterOrEqual(t, s.Value, 0)

	p = spec.Parameter{Name: "userAccountPaymentCardId", In: spec.LocationPath, Required: true, Type: spec.TypeInteger}
	s = ScoreParameter(p, spec.MethodDelete)
	assert.LessOrEqual(t, s.Value, 100)
}

func TestScoreDeterministic(t *testing.T) {
	p := spec.Parameter{Name: "accountId", In: spec.LocationBody, Type: spec.TypeString}
	a := ScoreParameter(p, spec.MethodPut)
	b := ScoreParameter(p, spec.MethodPut)
	assert.Equal(t, a, b)
}

func TestUUIDTypeSignal(t *testing.T) {
	plain := spec.Parameter{Name: "ref", In: spec.LocationQuery, Type: spec.TypeString}
	uuid := spec.Parameter{
		Name:    "ref",
		In:      spec.LocationQuery,
		Type:    spec.TypeString,
		Example: "550e8400-e29b-41d4-a716-446655440000",
	}
	assert.Equal(t, ScoreParameter(plain, spec.MethodGet).Value+10, ScoreParameter(uuid, spec.MethodGet).Value)
}

func TestScoreEndpointKeysByLocation(t *testing.T) {
	ep := spec.Endpoint{
		Method: spec.MethodGet,
		Path:   "/users/{id}",
		Parameters: []spec.Parameter{
			{Name: "id", In: spec.LocationPath, Required: true, Type: spec.TypeString},
			{Name: "id", In: spec.LocationQuery, Type: spec.TypeString},
		},
	}
	scores := ScoreEndpoint(ep)
	assert.Len(t, scores, 2)
	assert.Greater(t, scores["path:id"].Value, scores["query:id"].Value)
}
