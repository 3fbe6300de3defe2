// Package report serializes findings to the supported report formats.
// Writers buffer findings and render on Close, sorted by (endpoint id,
// case index) so repeated scans of the same target diff cleanly.
package report

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doppelscan/doppel/pkg/verdict"
)

// Writer receives findings as they complete and renders on Close.
type Writer interface {
	Write(f *verdict.Finding) error
	Close() error
}

// Filename builds the canonical report file name:
// doppel_report_<UTC timestamp>.<ext>. Millisecond precision keeps
// sequential invocations from colliding.
func Filename(ext string) string {
	ts := time.Now().UTC().Format("20060102_150405.000")
	return fmt.Sprintf("doppel_report_%s.%s", ts, ext)
}

// buffer is the shared accumulate-then-render core of the file
// writers.
type buffer struct {
	mu       sync.Mutex
	findings []*verdict.Finding
}

func (b *buffer) Write(f *verdict.Finding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findings = append(b.findings, f)
	return nil
}

// sorted returns the findings ordered by (endpoint id, case index).
func (b *buffer) sorted() []*verdict.Finding {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*verdict.Finding, len(b.findings))
	copy(out, b.findings)
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndpointID != out[j].EndpointID {
			return out[i].EndpointID < out[j].EndpointID
		}
		return out[i].CaseIndex < out[j].CaseIndex
	})
	return out
}

// Summary aggregates verdict counts across a scan.
type Summary struct {
	Total      int
	Vulnerable int
	Secure     int
	Uncertain  int
	Errors     int
}

// Add counts one finding.
func (s *Summary) Add(f *verdict.Finding) {
	s.Total++
	switch f.Verdict {
	case verdict.Vulnerable:
		s.Vulnerable++
	case verdict.Secure:
		s.Secure++
	case verdict.Uncertain:
		s.Uncertain++
	case verdict.Error:
		s.Errors++
	}
}

// Summarize builds a summary from a finding list.
func Summarize(findings []*verdict.Finding) Summary {
	var s Summary
	for _, f := range findings {
		s.Add(f)
	}
	return s
}

// caseLabel renders a test case's class for report rows.
func caseLabel(f *verdict.Finding) string {
	if f.Case.Mutation != "" {
		return fmt.Sprintf("%s(%s)", f.Case.Class, f.Case.Mutation)
	}
	return string(f.Case.Class)
}

// statusOf is the attack response status, 0 when the request never
// completed.
func statusOf(f *verdict.Finding) int {
	if f.Response == nil {
		return 0
	}
	return f.Response.StatusCode
}
