package iohelper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBodyNilReader(t *testing.T) {
	body, truncated, err := ReadBody(nil, 1024)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.False(t, truncated)
}

func TestReadBodyUnderLimit(t *testing.T) {
	body, truncated, err := ReadBody(strings.NewReader("small"), 1024)
	require.NoError(t, err)
	assert.Equal(t, "small", string(body))
	assert.False(t, truncated)
}

func TestReadBodyTruncates(t *testing.T) {
	data := strings.Repeat("x", 1000)
	body, truncated, err := ReadBody(strings.NewReader(data), 100)
	require.NoError(t, err)
	assert.Len(t, body, 100)
	assert.True(t, truncated, "oversized bodies must be flagged")
}

func TestReadBodyExactLimit(t *testing.T) {
	data := strings.Repeat("x", 100)
	body, truncated, err := ReadBody(strings.NewReader(data), 100)
	require.NoError(t, err)
	assert.Len(t, body, 100)
	assert.False(t, truncated, "a body exactly at the limit is not truncated")
}

func TestDrainAndCloseNil(t *testing.T) {
	assert.NoError(t, DrainAndClose(nil))
}
