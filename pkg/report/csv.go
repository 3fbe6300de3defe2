package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// csvHeader is the fixed column layout.
var csvHeader = []string{
	"endpoint_id", "method", "url", "case", "parameter", "location",
	"injected", "verdict", "reason", "severity", "risk_score",
	"status_code", "latency_ms", "evidence",
}

// CSVWriter renders findings as CSV with formula-injection hardening.
type CSVWriter struct {
	buffer
	path string
}

// NewCSVWriter creates a CSV report writer targeting path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

func (w *CSVWriter) Close() (retErr error) {
	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	cw := csv.NewWriter(file)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}

	for _, f := range w.sorted() {
		latency := int64(0)
		if f.Response != nil {
			latency = f.Response.Duration.Milliseconds()
		}
		record := []string{
			f.EndpointID,
			string(f.Case.Method),
			f.Case.URL,
			caseLabel(f),
			f.Case.Param,
			string(f.Case.ParamIn),
			f.Case.Injected,
			string(f.Verdict),
			f.Reason,
			fmt.Sprintf("%.1f", f.Severity),
			fmt.Sprintf("%d", f.RiskScore.Value),
			fmt.Sprintf("%d", statusOf(f)),
			fmt.Sprintf("%d", latency),
			strings.Join(f.Evidence, "; "),
		}
		for i, field := range record {
			record[i] = SanitizeCell(field)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SanitizeCell defeats spreadsheet formula injection: any cell whose
// first character is '=', '+', '-', '@', or a tab gets a single-quote
// prefix. Quoting of commas, quotes, and newlines is left to
// encoding/csv.
func SanitizeCell(field string) string {
	if field == "" {
		return field
	}
	switch field[0] {
	case '=', '+', '-', '@', '\t':
		return "'" + field
	}
	return field
}
