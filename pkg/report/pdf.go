package report

import (
	"fmt"
	"time"

	gofpdf "github.com/go-pdf/fpdf"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/verdict"
)

// PDFWriter renders a printable scan report.
type PDFWriter struct {
	buffer
	path string
}

// NewPDFWriter creates a PDF report writer targeting path.
func NewPDFWriter(path string) *PDFWriter {
	return &PDFWriter{path: path}
}

var pdfVerdictColors = map[verdict.Verdict][]int{
	verdict.Vulnerable: {220, 38, 38},
	verdict.Secure:     {22, 163, 74},
	verdict.Uncertain:  {202, 138, 4},
	verdict.Error:      {107, 114, 128},
}

func (w *PDFWriter) Close() error {
	findings := w.sorted()
	summary := Summarize(findings)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Doppel BOLA Scan Report", false)
	pdf.AddPage()

	// Title block.
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(30, 41, 59)
	pdf.Cell(0, 12, "Doppel BOLA Scan Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s  ·  doppel %s",
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), defaults.Version))
	pdf.Ln(12)

	// Summary table.
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(30, 41, 59)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(10)

	summaryRows := []struct {
		label string
		count int
		color []int
	}{
		{"Vulnerable", summary.Vulnerable, pdfVerdictColors[verdict.Vulnerable]},
		{"Secure", summary.Secure, pdfVerdictColors[verdict.Secure]},
		{"Uncertain", summary.Uncertain, pdfVerdictColors[verdict.Uncertain]},
		{"Errors", summary.Errors, pdfVerdictColors[verdict.Error]},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range summaryRows {
		pdf.SetTextColor(row.color[0], row.color[1], row.color[2])
		pdf.CellFormat(40, 7, row.label, "1", 0, "L", false, 0, "")
		pdf.SetTextColor(30, 41, 59)
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", row.count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(8)

	// Findings table.
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	headers := []struct {
		label string
		width float64
	}{
		{"Verdict", 24}, {"Method", 16}, {"URL", 70},
		{"Parameter", 28}, {"Status", 14}, {"Severity", 16}, {"Reason", 22},
	}
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, f := range findings {
		color := pdfVerdictColors[f.Verdict]
		pdf.SetTextColor(color[0], color[1], color[2])
		pdf.CellFormat(24, 6, string(f.Verdict), "1", 0, "L", false, 0, "")

		pdf.SetTextColor(30, 41, 59)
		pdf.CellFormat(16, 6, string(f.Case.Method), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, truncate(f.Case.URL, 52), "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, truncate(f.Case.Param, 20), "1", 0, "L", false, 0, "")
		pdf.CellFormat(14, 6, fmt.Sprintf("%d", statusOf(f)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(16, 6, fmt.Sprintf("%.1f", f.Severity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(22, 6, truncate(f.Reason, 16), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.OutputFileAndClose(w.path)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
