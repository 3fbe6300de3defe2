package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doppelscan/doppel/pkg/plan"
	"github.com/doppelscan/doppel/pkg/risk"
	"github.com/doppelscan/doppel/pkg/verdict"
)

func sampleFinding(endpointID string, index int, v verdict.Verdict) *verdict.Finding {
	return &verdict.Finding{
		EndpointID: endpointID,
		CaseIndex:  index,
		Case: plan.TestCase{
			EndpointID: endpointID,
			Index:      index,
			Method:     "GET",
			URL:        "http://t/users/u_victim",
			Class:      plan.ClassSwap,
			Param:      "id",
			ParamIn:    "path",
			Injected:   "u_victim",
		},
		Response:  &verdict.ResponseRecord{StatusCode: 200},
		Verdict:   v,
		Reason:    "structural match with sensitive data",
		Severity:  80,
		RiskScore: risk.Score{Value: 80},
		Evidence:  []string{"id=u_victim"},
	}
}

func TestFilenameShape(t *testing.T) {
	name := Filename("csv")
	assert.True(t, strings.HasPrefix(name, "doppel_report_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
	// Millisecond precision keeps sequential runs from colliding.
	assert.Regexp(t, `^doppel_report_\d{8}_\d{6}\.\d{3}\.csv$`, name)
	assert.NotEqual(t, name, Filename("md"))
}

func TestCSVInjectionGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewCSVWriter(path)

	hostile := sampleFinding("ep1", 1, verdict.Vulnerable)
	hostile.Case.Injected = "=HYPERLINK(\"http://evil\")"
	hostile.Case.Param = "+cmd"
	hostile.Reason = "@sum"
	require.NoError(t, w.Write(hostile))
	require.NoError(t, w.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)

	for _, row := range rows[1:] {
		for _, cell := range row {
			if cell == "" {
				continue
			}
			switch cell[0] {
			case '=', '+', '@', '\t':
				t.Errorf("cell starts with formula character: %q", cell)
			case '-':
				t.Errorf("cell starts with formula character: %q", cell)
			}
		}
	}
}

func TestCSVSortedByEndpointAndIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewCSVWriter(path)

	require.NoError(t, w.Write(sampleFinding("ep2", 1, verdict.Secure)))
	require.NoError(t, w.Write(sampleFinding("ep1", 2, verdict.Secure)))
	require.NoError(t, w.Write(sampleFinding("ep1", 1, verdict.Secure)))
	require.NoError(t, w.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ep1", rows[1][0])
	assert.Equal(t, "ep1", rows[2][0])
	assert.Equal(t, "ep2", rows[3][0])
}

func TestSanitizeCell(t *testing.T) {
	assert.Equal(t, "'=1+1", SanitizeCell("=1+1"))
	assert.Equal(t, "'+x", SanitizeCell("+x"))
	assert.Equal(t, "'-x", SanitizeCell("-x"))
	assert.Equal(t, "'@x", SanitizeCell("@x"))
	assert.Equal(t, "'\tx", SanitizeCell("\tx"))
	assert.Equal(t, "plain", SanitizeCell("plain"))
	assert.Equal(t, "", SanitizeCell(""))
}

func TestMarkdownReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	w := NewMarkdownWriter(path)
	w.AddSkipped("GET", "/events", "no targetable parameters")

	require.NoError(t, w.Write(sampleFinding("ep1", 1, verdict.Vulnerable)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "# Doppel BOLA Scan Report")
	assert.Contains(t, content, "VULNERABLE")
	assert.Contains(t, content, "skipped: no targetable parameters")
	assert.Contains(t, content, "id=u_victim")
}

func TestSARIFReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sarif")
	w := NewSARIFWriter(path)

	require.NoError(t, w.Write(sampleFinding("ep1", 1, verdict.Vulnerable)))
	require.NoError(t, w.Write(sampleFinding("ep2", 1, verdict.Secure)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2.1.0", doc["version"])

	runs := doc["runs"].([]any)
	require.Len(t, runs, 1)
	results := runs[0].(map[string]any)["results"].([]any)
	require.Len(t, results, 1, "secure findings are not SARIF results")

	result := results[0].(map[string]any)
	assert.Equal(t, "error", result["level"])
}

func TestPDFReportWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdf")
	w := NewPDFWriter(path)

	require.NoError(t, w.Write(sampleFinding("ep1", 1, verdict.Vulnerable)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"), "output must be a PDF document")
}

func TestSummarize(t *testing.T) {
	findings := []*verdict.Finding{
		sampleFinding("ep1", 1, verdict.Vulnerable),
		sampleFinding("ep1", 2, verdict.Secure),
		sampleFinding("ep1", 3, verdict.Uncertain),
		sampleFinding("ep1", 4, verdict.Error),
	}
	s := Summarize(findings)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Vulnerable)
	assert.Equal(t, 1, s.Secure)
	assert.Equal(t, 1, s.Uncertain)
	assert.Equal(t, 1, s.Errors)
}
