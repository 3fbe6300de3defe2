// Package ui renders scanner output to the terminal: banner, per-case
// result lines, and the final summary. Styling degrades to plain text
// when stdout is not a terminal.
package ui

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/report"
	"github.com/doppelscan/doppel/pkg/verdict"
)

// Color palette following common security tool conventions.
var (
	primary = lipgloss.Color("#7D56F4")
	muted   = lipgloss.Color("#6B7280")

	vulnerableColor = lipgloss.Color("#FF3838")
	secureColor     = lipgloss.Color("#00D26A")
	uncertainColor  = lipgloss.Color("#FFD93D")
	errorColor      = lipgloss.Color("#FFB800")
)

var (
	bannerStyle = lipgloss.NewStyle().Foreground(primary).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)

	verdictStyles = map[verdict.Verdict]lipgloss.Style{
		verdict.Vulnerable: lipgloss.NewStyle().Foreground(vulnerableColor).Bold(true),
		verdict.Secure:     lipgloss.NewStyle().Foreground(secureColor),
		verdict.Uncertain:  lipgloss.NewStyle().Foreground(uncertainColor),
		verdict.Error:      lipgloss.NewStyle().Foreground(errorColor),
	}
)

var (
	ttyOnce sync.Once
	tty     bool
)

// StdoutIsTerminal reports whether stdout renders styles.
func StdoutIsTerminal() bool {
	ttyOnce.Do(func() {
		if os.Getenv("TERM") == "dumb" {
			return
		}
		if termenv.EnvColorProfile() == termenv.Ascii {
			return
		}
		tty = term.IsTerminal(int(os.Stdout.Fd()))
	})
	return tty
}

func render(style lipgloss.Style, s string) string {
	if !StdoutIsTerminal() {
		return s
	}
	return style.Render(s)
}

// PrintBanner shows the tool banner and scan parameters.
func PrintBanner(input, baseURL string, endpoints int) {
	fmt.Println(render(bannerStyle, "doppel "+defaults.Version) + render(mutedStyle, "  BOLA/IDOR scanner"))
	fmt.Printf("  input:     %s\n", input)
	if baseURL != "" {
		fmt.Printf("  base url:  %s\n", baseURL)
	}
	fmt.Printf("  endpoints: %d\n\n", endpoints)
}

// PrintFinding writes one result line as findings stream in.
func PrintFinding(f *verdict.Finding) {
	style, ok := verdictStyles[f.Verdict]
	if !ok {
		style = mutedStyle
	}
	label := fmt.Sprintf("[%s]", f.Verdict)

	detail := ""
	if f.Case.Param != "" {
		detail = fmt.Sprintf(" param=%s", f.Case.Param)
	}
	if f.Reason != "" {
		detail += render(mutedStyle, " ("+f.Reason+")")
	}

	fmt.Printf("%s %s %s%s\n", render(style, label), f.Case.Method, f.Case.URL, detail)
}

// PrintError writes a fatal error line to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, render(verdictStyles[verdict.Vulnerable], "error: ")+msg)
}

// PrintSummary shows the final counts and written report paths.
func PrintSummary(s report.Summary, reports []string) {
	fmt.Println()
	fmt.Println(render(bannerStyle, "scan complete"))
	fmt.Printf("  total cases:  %d\n", s.Total)
	fmt.Printf("  %s  %d\n", render(verdictStyles[verdict.Vulnerable], "vulnerable:"), s.Vulnerable)
	fmt.Printf("  %s      %d\n", render(verdictStyles[verdict.Secure], "secure:"), s.Secure)
	fmt.Printf("  %s   %d\n", render(verdictStyles[verdict.Uncertain], "uncertain:"), s.Uncertain)
	if s.Errors > 0 {
		fmt.Printf("  %s      %d\n", render(verdictStyles[verdict.Error], "errors:"), s.Errors)
	}
	for _, path := range reports {
		fmt.Printf("  report: %s\n", path)
	}
}
