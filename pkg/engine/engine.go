// Package engine executes test plans against a live server. A single
// shared HTTP client carries all traffic; a global semaphore caps
// in-flight requests; each endpoint's baseline strictly
// happens-before its attack cases.
package engine

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/httpclient"
	"github.com/doppelscan/doppel/pkg/iohelper"
	"github.com/doppelscan/doppel/pkg/plan"
	"github.com/doppelscan/doppel/pkg/risk"
	"github.com/doppelscan/doppel/pkg/verdict"
)

// Config tunes the execution engine.
type Config struct {
	// Concurrency caps in-flight requests across all endpoints.
	Concurrency int

	// Timeout is the per-request total timeout.
	Timeout time.Duration

	// RateLimit is max requests per second, 0 for unlimited.
	RateLimit int

	// Client overrides the shared HTTP client (tests).
	Client *http.Client
}

// Stats tracks execution counters.
type Stats struct {
	Dispatched int64
	Completed  int64
	Errors     int64
	Dropped    int64
	StartTime  time.Time
}

// RPS returns the completed-request rate since start.
func (s *Stats) RPS() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.Completed)) / elapsed
}

// Engine dispatches test cases and streams findings.
type Engine struct {
	cfg     Config
	client  *http.Client
	judge   *verdict.Engine
	limiter *rate.Limiter

	// Stats is safe to read concurrently via atomics.
	Stats Stats
}

// New creates an engine. Zero config fields fall back to defaults.
func New(cfg Config, judge *verdict.Engine) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.RequestTimeout
	}
	client := cfg.Client
	if client == nil {
		client = httpclient.New(httpclient.WithTimeout(cfg.Timeout))
	}

	e := &Engine{cfg: cfg, client: client, judge: judge}
	if cfg.RateLimit > 0 {
		burst := cfg.RateLimit / 5
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e
}

// Run executes every plan and emits findings on out, closing it when
// done. Findings arrive in completion order; callers needing a
// deterministic order sort by (endpoint id, case index). Cancellation
// stops new dispatches; in-flight requests finish or time out, and
// undispatched cases are dropped without a finding.
func (e *Engine) Run(ctx context.Context, plans []plan.Plan, out chan<- verdict.Finding) {
	e.Stats = Stats{StartTime: time.Now()}

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, p := range plans {
		if p.SkipReason != "" {
			continue
		}
		select {
		case <-ctx.Done():
			atomic.AddInt64(&e.Stats.Dropped, int64(len(p.Attacks)))
			continue
		default:
		}

		wg.Add(1)
		go func(p plan.Plan) {
			defer wg.Done()
			e.runEndpoint(ctx, p, sem, out)
		}(p)
	}

	wg.Wait()
	close(out)
}

// runEndpoint sends the baseline to completion, then fans out the
// attack cases. A failed baseline short-circuits every pending case to
// an uncertain finding without touching the network.
func (e *Engine) runEndpoint(ctx context.Context, p plan.Plan, sem chan struct{}, out chan<- verdict.Finding) {
	baseline, err := e.execute(ctx, p.Baseline, sem)
	if baseline == nil && err == nil {
		// Cancelled before the baseline went out: the whole endpoint
		// is dropped without findings.
		atomic.AddInt64(&e.Stats.Dropped, int64(len(p.Attacks)))
		return
	}
	if err != nil || baseline.StatusCode < 200 || baseline.StatusCode >= 300 {
		if err != nil {
			slog.Debug("baseline failed",
				slog.String("endpoint", p.Endpoint.ID),
				slog.String("error", err.Error()))
		}
		for _, tc := range p.Attacks {
			out <- e.baselineFailed(p, tc, baseline, err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, tc := range p.Attacks {
		if tc.SkipReason != "" {
			out <- e.skipped(p, tc, baseline)
			continue
		}

		select {
		case <-ctx.Done():
			atomic.AddInt64(&e.Stats.Dropped, 1)
			continue
		default:
		}

		wg.Add(1)
		go func(tc plan.TestCase) {
			defer wg.Done()

			response, err := e.execute(ctx, tc, sem)
			if err != nil {
				atomic.AddInt64(&e.Stats.Errors, 1)
				out <- e.transportError(p, tc, baseline, err)
				return
			}
			if response == nil {
				// Cancelled before dispatch: dropped, no finding.
				atomic.AddInt64(&e.Stats.Dropped, 1)
				return
			}
			out <- e.judge.Judge(ctx, tc, e.score(p, tc), baseline, response)
		}(tc)
	}
	wg.Wait()
}

// execute sends one request under the semaphore. A nil record with nil
// error means the context was cancelled before dispatch.
func (e *Engine) execute(ctx context.Context, tc plan.TestCase, sem chan struct{}) (*verdict.ResponseRecord, error) {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil
	}
	defer func() { <-sem }()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil
		}
	}

	var bodyReader *bytes.Reader
	if len(tc.Body) > 0 {
		bodyReader = bytes.NewReader(tc.Body)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, string(tc.Method), tc.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaults.UserAgent)
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}

	atomic.AddInt64(&e.Stats.Dispatched, 1)
	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		atomic.AddInt64(&e.Stats.Completed, 1)
		return nil, err
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, truncated, err := iohelper.ReadBodyDefault(resp.Body)
	atomic.AddInt64(&e.Stats.Completed, 1)
	if err != nil {
		return nil, err
	}

	return &verdict.ResponseRecord{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
		Duration:    time.Since(start),
		Fingerprint: verdict.Fingerprint(body),
	}, nil
}

func (e *Engine) score(p plan.Plan, tc plan.TestCase) risk.Score {
	return p.Scores[string(tc.ParamIn)+":"+tc.Param]
}

func (e *Engine) baselineFailed(p plan.Plan, tc plan.TestCase, baseline *verdict.ResponseRecord, err error) verdict.Finding {
	f := verdict.Finding{
		EndpointID: tc.EndpointID,
		CaseIndex:  tc.Index,
		Case:       tc,
		Baseline:   baseline,
		Verdict:    verdict.Uncertain,
		Reason:     "baseline-failed",
		RiskScore:  e.score(p, tc),
	}
	if err != nil {
		f.Err = err.Error()
	}
	f.Severity = verdict.Severity(f.RiskScore, f.Verdict)
	return f
}

func (e *Engine) skipped(p plan.Plan, tc plan.TestCase, baseline *verdict.ResponseRecord) verdict.Finding {
	f := verdict.Finding{
		EndpointID: tc.EndpointID,
		CaseIndex:  tc.Index,
		Case:       tc,
		Baseline:   baseline,
		Verdict:    verdict.Uncertain,
		Reason:     tc.SkipReason,
		RiskScore:  e.score(p, tc),
	}
	f.Severity = verdict.Severity(f.RiskScore, f.Verdict)
	return f
}

func (e *Engine) transportError(p plan.Plan, tc plan.TestCase, baseline *verdict.ResponseRecord, err error) verdict.Finding {
	return verdict.Finding{
		EndpointID: tc.EndpointID,
		CaseIndex:  tc.Index,
		Case:       tc,
		Baseline:   baseline,
		Verdict:    verdict.Error,
		Reason:     "request failed",
		Err:        err.Error(),
		RiskScore:  e.score(p, tc),
	}
}
