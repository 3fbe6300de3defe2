// Package httpclient provides a shared, pooled HTTP client factory.
// All outbound scanning traffic goes through one client so connection
// reuse works across the whole test matrix.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/doppelscan/doppel/pkg/defaults"
)

// Config holds HTTP client construction options.
type Config struct {
	// Timeout is the total request timeout (default 30s).
	Timeout time.Duration

	// DialTimeout bounds connection establishment (default 10s).
	DialTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification. Scanners
	// routinely target staging hosts with self-signed certs.
	InsecureSkipVerify bool

	// MaxIdleConns is the idle connection pool size across all hosts.
	MaxIdleConns int

	// MaxConnsPerHost caps connections per host.
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay pooled.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns defaults tuned for scanning workloads.
func DefaultConfig() Config {
	return Config{
		Timeout:            defaults.RequestTimeout,
		DialTimeout:        defaults.DialTimeout,
		InsecureSkipVerify: true,
		MaxIdleConns:       defaults.MaxIdleConns,
		MaxConnsPerHost:    defaults.MaxConnsPerHost,
		IdleConnTimeout:    defaults.IdleConnTimeout,
	}
}

var (
	defaultClient *http.Client
	defaultOnce   sync.Once
)

// Default returns the shared, pre-configured HTTP client. It pools
// connections, never follows redirects (a redirect on a swapped id is
// itself a signal), and enforces the default timeouts.
func Default() *http.Client {
	defaultOnce.Do(func() {
		defaultClient = New(DefaultConfig())
	})
	return defaultClient
}

// New creates an HTTP client with the given configuration. Zero values
// fall back to defaults.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.RequestTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = defaults.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = defaults.IdleConnTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   defaults.TLSHandshakeTimeout,

		DialContext: dialer.DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are observable responses, not something to chase.
			return http.ErrUseLastResponse
		},
	}
}

// WithTimeout returns DefaultConfig with only the timeout changed.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	return cfg
}
