package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestExtractUserIDFromSub(t *testing.T) {
	id, ok := ExtractUserID(token(`{"sub":"user_42"}`))
	require.True(t, ok)
	assert.Equal(t, "user_42", id)
}

func TestClaimPrecedence(t *testing.T) {
	id, ok := ExtractUserID(token(`{"sub":"s","userId":"u"}`))
	require.True(t, ok)
	assert.Equal(t, "u", id, "userId outranks sub")
}

func TestNumericClaim(t *testing.T) {
	id, ok := ExtractUserID(token(`{"user_id":42}`))
	require.True(t, ok)
	assert.Equal(t, "42", id)
}

func TestOpaqueToken(t *testing.T) {
	_, ok := ExtractUserID("not-a-jwt")
	assert.False(t, ok)

	_, ok = ExtractUserID("a.b")
	assert.False(t, ok)

	_, ok = ExtractUserID("a.!!!.c")
	assert.False(t, ok)
}

func TestNoRecognizedClaim(t *testing.T) {
	_, ok := ExtractUserID(token(`{"role":"admin"}`))
	assert.False(t, ok)
}

func TestBearerHeader(t *testing.T) {
	assert.Equal(t, "Bearer tok", BearerHeader("tok"))
}
