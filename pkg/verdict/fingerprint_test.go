package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintSortedLeafPaths(t *testing.T) {
	fp := Fingerprint([]byte(`{"b": 1, "a": {"c": "x"}}`))
	assert.Equal(t, []string{"a.c", "b"}, fp)
}

func TestFingerprintCollapsesArrayIndices(t *testing.T) {
	two := Fingerprint([]byte(`{"users": [{"id": 1}, {"id": 2}]}`))
	twenty := Fingerprint([]byte(`{"users": [{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4}]}`))
	assert.Equal(t, two, twenty, "list length must not change the structural shape")
	assert.Equal(t, []string{"users[].id"}, two)
}

func TestFingerprintNonJSON(t *testing.T) {
	assert.Empty(t, Fingerprint([]byte("<html>hello</html>")))
	assert.Empty(t, Fingerprint([]byte("")))
	assert.Empty(t, Fingerprint([]byte("plain text")))
}

func TestJSONLeavesValues(t *testing.T) {
	leaves, err := JSONLeaves([]byte(`{"id": "u_1", "active": true, "n": 3, "nothing": null}`))
	require.NoError(t, err)

	byPath := make(map[string]string)
	for _, l := range leaves {
		byPath[l.Path] = l.Value
	}
	assert.Equal(t, "u_1", byPath["id"])
	assert.Equal(t, "true", byPath["active"])
	assert.Equal(t, "3", byPath["n"])
	assert.Equal(t, "", byPath["nothing"])
}

func TestOwnsIdentity(t *testing.T) {
	leaves, err := JSONLeaves([]byte(`{"id": "u_1", "bio": "u_2"}`))
	require.NoError(t, err)

	assert.True(t, ownsIdentity(leaves, "u_1"))
	assert.False(t, ownsIdentity(leaves, "u_2"), "non-identity fields do not confer ownership")
	assert.False(t, ownsIdentity(leaves, ""))
}

func TestLooksBinary(t *testing.T) {
	assert.True(t, looksBinary([]byte("data\x00binary")))
	assert.False(t, looksBinary([]byte("normal text")))
	assert.False(t, looksBinary(nil))
	assert.True(t, looksBinary([]byte{0x01, 0x02, 0x03, 0x04, 0x05}))
}
