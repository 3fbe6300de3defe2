// Package advisor consults a local Ollama model about PII in response
// bodies. The advisor is strictly advisory: it can downgrade a
// candidate vulnerable verdict, never upgrade one, and every failure
// mode degrades to a benign "no PII" answer.
package advisor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/httpclient"
	"github.com/doppelscan/doppel/pkg/iohelper"
)

// Analysis is the advisor's answer for one body.
type Analysis struct {
	ContainsPII bool     `json:"contains_pii"`
	Kinds       []string `json:"kinds,omitempty"`
}

// Client talks to the Ollama generate endpoint.
type Client struct {
	baseURL string
	model   string
	http    *http.Client

	mu    sync.Mutex
	cache map[[32]byte]Analysis
}

// maxCacheEntries bounds the per-run analysis cache.
const maxCacheEntries = 1000

// New creates an advisor client. Empty arguments fall back to the
// defaults (127.0.0.1 Ollama, llama2).
func New(baseURL, model string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaults.OllamaURL
	}
	if model == "" {
		model = defaults.OllamaModel
	}
	if client == nil {
		client = httpclient.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http:    client,
		cache:   make(map[[32]byte]Analysis),
	}
}

// AnalyzeBody implements verdict.Advisor. Identical bodies are
// answered from cache; transport or parse trouble yields a benign
// negative so the scan never stalls on the advisor.
func (c *Client) AnalyzeBody(ctx context.Context, body []byte) (bool, []string, error) {
	key := sha256.Sum256(body)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached.ContainsPII, cached.Kinds, nil
	}
	c.mu.Unlock()

	analysis := c.analyze(ctx, body)

	c.mu.Lock()
	if len(c.cache) >= maxCacheEntries {
		c.cache = make(map[[32]byte]Analysis)
	}
	c.cache[key] = analysis
	c.mu.Unlock()

	return analysis.ContainsPII, analysis.Kinds, nil
}

// generateRequest is the Ollama /api/generate payload.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// analyze performs one uncached advisor call.
func (c *Client) analyze(ctx context.Context, body []byte) Analysis {
	// The JSON under analysis is fenced so hostile response content
	// cannot rewrite the instructions.
	prompt := fmt.Sprintf(
		"You are a PII detection system. Analyze the JSON below for personally "+
			"identifiable information (names, email addresses, phone numbers, SSNs, "+
			"card numbers, physical addresses, dates of birth).\n"+
			"Respond with ONLY a JSON object of the form "+
			"{\"contains_pii\": true|false, \"kinds\": [\"...\"]} and nothing else.\n\n"+
			"```json\n%s\n```\n", body)

	payload, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return Analysis{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return Analysis{}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("pii advisor unreachable", slog.String("error", err.Error()))
		return Analysis{}
	}
	defer iohelper.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("pii advisor returned non-2xx", slog.Int("status", resp.StatusCode))
		return Analysis{}
	}

	data, _, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return Analysis{}
	}

	var gen generateResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		return Analysis{}
	}
	return parseAnswer(gen.Response)
}

// parseAnswer extracts the {contains_pii, kinds} object from the
// model's free-form response text.
func parseAnswer(text string) Analysis {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Analysis{}
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return Analysis{}
	}
	return analysis
}
