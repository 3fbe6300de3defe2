// Package defaults provides canonical default values for the entire
// codebase. Reference these constants instead of scattering magic
// numbers through config structs.
package defaults

import "time"

// Version is the current Doppel version.
const Version = "1.2.0"

// UserAgent identifies the scanner in outbound requests.
const UserAgent = "doppel/" + Version

// Concurrency is the global in-flight request cap (--concurrency).
const Concurrency = 50

// Timeouts for the shared HTTP client.
const (
	// RequestTimeout covers connect + TLS + send + response.
	RequestTimeout = 30 * time.Second

	// DialTimeout shortens failure against unreachable hosts.
	DialTimeout = 10 * time.Second

	// TLSHandshakeTimeout bounds the TLS handshake alone.
	TLSHandshakeTimeout = 10 * time.Second

	// IdleConnTimeout is how long idle pooled connections are kept.
	IdleConnTimeout = 90 * time.Second
)

// Connection pool sizing.
const (
	MaxIdleConns    = 100
	MaxConnsPerHost = 25
)

// MaxBodyBytes caps response body reads. Larger bodies are truncated
// and the record flagged.
const MaxBodyBytes int64 = 1024 * 1024

// MaxSpecBytes caps the size of a single spec document. Anything
// larger fails the parse as a security violation.
const MaxSpecBytes int64 = 50 * 1024 * 1024

// RiskThreshold is the minimum parameter risk score that makes a
// parameter targetable by the attack planner.
const RiskThreshold = 50

// FindingsBuffer is the capacity of the bounded findings channel
// between the execution engine and report writers.
const FindingsBuffer = 256

// OllamaURL is the default base URL for the local PII advisor.
const OllamaURL = "http://127.0.0.1:11434"

// OllamaModel is the default model used for PII analysis.
const OllamaModel = "llama2"

// LogEnv is the environment variable controlling log verbosity.
const LogEnv = "DOPPEL_LOG"
