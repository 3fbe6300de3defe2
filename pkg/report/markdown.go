package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/verdict"
)

// MarkdownWriter renders the default human-readable report.
type MarkdownWriter struct {
	buffer
	path string

	// Skipped endpoints (no targetable parameters, HEAD/OPTIONS) are
	// listed so the report accounts for the whole spec.
	skipped []SkippedEndpoint
}

// SkippedEndpoint records an endpoint that produced no test cases.
type SkippedEndpoint struct {
	Method string
	Path   string
	Reason string
}

// NewMarkdownWriter creates a Markdown report writer targeting path.
func NewMarkdownWriter(path string) *MarkdownWriter {
	return &MarkdownWriter{path: path}
}

// Path returns the report file path.
func (w *MarkdownWriter) Path() string { return w.path }

// AddSkipped records an endpoint that was parsed but never attacked.
func (w *MarkdownWriter) AddSkipped(method, path, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipped = append(w.skipped, SkippedEndpoint{Method: method, Path: path, Reason: reason})
}

var verdictEmoji = map[verdict.Verdict]string{
	verdict.Vulnerable: "🔴",
	verdict.Secure:     "🟢",
	verdict.Uncertain:  "🟡",
	verdict.Error:      "⚠️",
}

func (w *MarkdownWriter) Close() (retErr error) {
	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create markdown report: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	findings := w.sorted()
	summary := Summarize(findings)

	var sb strings.Builder
	sb.WriteString("# Doppel BOLA Scan Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s · doppel %s\n\n",
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), defaults.Version))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total cases | %d |\n", summary.Total))
	sb.WriteString(fmt.Sprintf("| 🔴 Vulnerable | %d |\n", summary.Vulnerable))
	sb.WriteString(fmt.Sprintf("| 🟢 Secure | %d |\n", summary.Secure))
	sb.WriteString(fmt.Sprintf("| 🟡 Uncertain | %d |\n", summary.Uncertain))
	sb.WriteString(fmt.Sprintf("| ⚠️ Errors | %d |\n\n", summary.Errors))

	sb.WriteString("## Findings\n\n")
	if len(findings) == 0 {
		sb.WriteString("No test cases were executed.\n\n")
	} else {
		sb.WriteString("| Verdict | Method | URL | Case | Parameter | Injected | Status | Severity | Reason |\n")
		sb.WriteString("|---------|--------|-----|------|-----------|----------|--------|----------|--------|\n")
		for _, f := range findings {
			sb.WriteString(fmt.Sprintf("| %s %s | %s | %s | %s | %s | %s | %d | %.1f | %s |\n",
				verdictEmoji[f.Verdict], f.Verdict,
				f.Case.Method,
				escapeCell(f.Case.URL),
				caseLabel(f),
				escapeCell(f.Case.Param),
				escapeCell(f.Case.Injected),
				statusOf(f),
				f.Severity,
				escapeCell(f.Reason),
			))
		}
		sb.WriteString("\n")
	}

	// Evidence detail for confirmed findings only.
	var vulnerable []*verdict.Finding
	for _, f := range findings {
		if f.Verdict == verdict.Vulnerable {
			vulnerable = append(vulnerable, f)
		}
	}
	if len(vulnerable) > 0 {
		sb.WriteString("## Evidence\n\n")
		for _, f := range vulnerable {
			sb.WriteString(fmt.Sprintf("### %s %s — `%s`\n\n", f.Case.Method, escapeCell(f.Case.URL), f.Case.Param))
			for _, ev := range f.Evidence {
				sb.WriteString(fmt.Sprintf("- `%s`\n", ev))
			}
			sb.WriteString("\n")
		}
	}

	w.mu.Lock()
	skipped := w.skipped
	w.mu.Unlock()
	if len(skipped) > 0 {
		sb.WriteString("## Skipped endpoints\n\n")
		for _, s := range skipped {
			sb.WriteString(fmt.Sprintf("- **%s** %s — skipped: %s\n", s.Method, escapeCell(s.Path), s.Reason))
		}
		sb.WriteString("\n")
	}

	_, err = file.WriteString(sb.String())
	return err
}

// escapeCell keeps pipes and newlines from breaking the table layout.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
