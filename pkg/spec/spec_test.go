package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDStable(t *testing.T) {
	a := NewID(MethodGet, "/users/{id}", "api.yaml")
	b := NewID(MethodGet, "/users/{id}", "api.yaml")
	assert.Equal(t, a, b, "same inputs must hash identically")
	assert.Len(t, a, 16)

	c := NewID(MethodPost, "/users/{id}", "api.yaml")
	assert.NotEqual(t, a, c, "method must feed the hash")
}

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod("get")
	require.True(t, ok)
	assert.Equal(t, MethodGet, m)

	_, ok = ParseMethod("TRACE")
	assert.False(t, ok)
}

func TestPlaceholderNames(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/users/{id}", []string{"id"}},
		{"/users/:id", []string{"id"}},
		{"/users/{userId}/orders/{orderId}", []string{"userId", "orderId"}},
		{"http://api.example.com/users/:id", []string{"id"}},
		{"{{baseUrl}}/users/:id", []string{"id"}},
		{"/events", nil},
		{"/a/{x}/b/:y", []string{"x", "y"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlaceholderNames(tt.path), "path %q", tt.path)
	}
}

func TestValidate(t *testing.T) {
	ep := Endpoint{
		Method: MethodGet,
		Path:   "/users/{id}",
		Parameters: []Parameter{
			{Name: "id", In: LocationPath, Required: true, Type: TypeString},
		},
	}
	require.NoError(t, ep.Validate())

	// Placeholder without a covering path parameter.
	ep.Parameters = nil
	assert.Error(t, ep.Validate())

	// Duplicate name within one location.
	ep = Endpoint{
		Method: MethodGet,
		Path:   "/events",
		Parameters: []Parameter{
			{Name: "page", In: LocationQuery},
			{Name: "page", In: LocationQuery},
		},
	}
	assert.Error(t, ep.Validate())

	// Same name in different locations is fine.
	ep.Parameters[1].In = LocationHeader
	assert.NoError(t, ep.Validate())
}
