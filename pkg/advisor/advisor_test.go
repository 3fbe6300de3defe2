package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaStub(t *testing.T, answer string, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}
		require.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.NotEmpty(t, req.Model)

		json.NewEncoder(w).Encode(map[string]string{"response": answer})
	}))
}

func TestPositiveAnswer(t *testing.T) {
	server := ollamaStub(t, `{"contains_pii": true, "kinds": ["email", "ssn"]}`, nil)
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	contains, kinds, err := c.AnalyzeBody(context.Background(), []byte(`{"email":"a@b.c"}`))
	require.NoError(t, err)
	assert.True(t, contains)
	assert.Equal(t, []string{"email", "ssn"}, kinds)
}

func TestNegativeAnswer(t *testing.T) {
	server := ollamaStub(t, `{"contains_pii": false}`, nil)
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	contains, _, err := c.AnalyzeBody(context.Background(), []byte(`{"n":1}`))
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestChattyModelAnswer(t *testing.T) {
	server := ollamaStub(t, "Sure! Here is my analysis: {\"contains_pii\": true, \"kinds\": [\"phone\"]} Hope that helps.", nil)
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	contains, kinds, err := c.AnalyzeBody(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, contains)
	assert.Equal(t, []string{"phone"}, kinds)
}

func TestNon2xxIsBenign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	contains, _, err := c.AnalyzeBody(context.Background(), []byte(`{"ssn":"x"}`))
	require.NoError(t, err)
	assert.False(t, contains, "advisor failures must degrade to no-PII")
}

func TestUnreachableIsBenign(t *testing.T) {
	c := New("http://127.0.0.1:1", "llama2", nil)
	contains, _, err := c.AnalyzeBody(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestGarbageAnswerIsBenign(t *testing.T) {
	server := ollamaStub(t, "YES", nil)
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	contains, _, err := c.AnalyzeBody(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestCaching(t *testing.T) {
	var calls int64
	server := ollamaStub(t, `{"contains_pii": true, "kinds": ["email"]}`, &calls)
	defer server.Close()

	c := New(server.URL, "llama2", server.Client())
	body := []byte(`{"email":"a@b.c"}`)

	_, _, err := c.AnalyzeBody(context.Background(), body)
	require.NoError(t, err)
	_, _, err = c.AnalyzeBody(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "identical bodies answer from cache")
}
