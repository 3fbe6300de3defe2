package postman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doppelscan/doppel/pkg/spec"
)

const sampleCollection = `{
  "info": {
    "name": "Users API",
    "schema": "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"
  },
  "item": [
    {
      "name": "Accounts",
      "item": [
        {
          "name": "Get account",
          "request": {
            "method": "GET",
            "url": {
              "raw": "https://api.example.com/accounts/:accountId?expand=true",
              "host": ["api", "example", "com"],
              "path": ["accounts", ":accountId"],
              "query": [{"key": "expand", "value": "true"}],
              "variable": [{"key": "accountId", "value": "42"}]
            },
            "header": [{"key": "X-Tenant", "value": "acme"}]
          }
        }
      ]
    },
    {
      "name": "Create user",
      "request": {
        "method": "POST",
        "url": "https://api.example.com/users",
        "body": {
          "mode": "raw",
          "raw": "{\"profile\": {\"userId\": \"u_1\", \"email\": \"a@b.c\"}, \"tags\": [\"x\"]}"
        }
      }
    }
  ]
}`

func TestParseCollection(t *testing.T) {
	endpoints, err := ParseBytes([]byte(sampleCollection), "users.postman.json")
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	// Tree DFS order: folder contents before later siblings.
	first := endpoints[0]
	assert.Equal(t, spec.MethodGet, first.Method)
	assert.Equal(t, "/accounts/:accountId", first.Path)
	assert.Equal(t, spec.FormatPostman, first.Source)

	byKey := make(map[string]spec.Parameter)
	for _, p := range first.Parameters {
		byKey[string(p.In)+":"+p.Name] = p
	}
	require.Contains(t, byKey, "path:accountId")
	assert.True(t, byKey["path:accountId"].Required)
	assert.Equal(t, spec.TypeInteger, byKey["path:accountId"].Type)
	require.Contains(t, byKey, "query:expand")
	require.Contains(t, byKey, "header:X-Tenant")
}

func TestRawJSONBodyLeaves(t *testing.T) {
	endpoints, err := ParseBytes([]byte(sampleCollection), "users.postman.json")
	require.NoError(t, err)

	second := endpoints[1]
	assert.Equal(t, spec.MethodPost, second.Method)
	assert.NotEmpty(t, second.ExampleBody)

	var names []string
	for _, p := range second.Parameters {
		if p.In == spec.LocationBody {
			names = append(names, p.Name)
		}
	}
	assert.Equal(t, []string{"profile.email", "profile.userId", "tags[0]"}, names)
}

func TestNotPostman(t *testing.T) {
	_, err := ParseBytes([]byte(`{"openapi": "3.0.0"}`), "api.json")
	var pe *spec.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestStringURLForm(t *testing.T) {
	collection := `{
  "info": {"name": "C", "schema": "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"},
  "item": [
    {"name": "r", "request": {"method": "DELETE", "url": "{{baseUrl}}/orders/:orderId"}}
  ]
}`
	endpoints, err := ParseBytes([]byte(collection), "c.json")
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, "{{baseUrl}}/orders/:orderId", endpoints[0].Path)

	// The undeclared :orderId placeholder still gets a path parameter.
	var hasPathParam bool
	for _, p := range endpoints[0].Parameters {
		if p.In == spec.LocationPath && p.Name == "orderId" {
			hasPathParam = true
		}
	}
	assert.True(t, hasPathParam)
}

func TestFormDataBody(t *testing.T) {
	collection := `{
  "info": {"name": "C", "schema": "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"},
  "item": [
    {"name": "r", "request": {
      "method": "POST",
      "url": "https://x.test/upload",
      "body": {"mode": "formdata", "formdata": [
        {"key": "ownerId", "value": "7"},
        {"key": "disabled", "value": "x", "disabled": true}
      ]}
    }}
  ]
}`
	endpoints, err := ParseBytes([]byte(collection), "c.json")
	require.NoError(t, err)

	var bodyParams []spec.Parameter
	for _, p := range endpoints[0].Parameters {
		if p.In == spec.LocationBody {
			bodyParams = append(bodyParams, p)
		}
	}
	require.Len(t, bodyParams, 1, "disabled fields are dropped")
	assert.Equal(t, "ownerId", bodyParams[0].Name)
}
