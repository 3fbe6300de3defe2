// Command doppel scans HTTP APIs for broken object-level authorization
// (BOLA / IDOR). It parses an API collection, plans identifier swap and
// mutation attacks against ownership-bearing parameters, replays them
// with an attacker credential, and classifies each response.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/doppelscan/doppel/pkg/advisor"
	"github.com/doppelscan/doppel/pkg/auth"
	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/engine"
	"github.com/doppelscan/doppel/pkg/parser"
	"github.com/doppelscan/doppel/pkg/plan"
	"github.com/doppelscan/doppel/pkg/report"
	"github.com/doppelscan/doppel/pkg/spec"
	"github.com/doppelscan/doppel/pkg/ui"
	"github.com/doppelscan/doppel/pkg/verdict"
)

type options struct {
	input         string
	baseURL       string
	attackerToken string
	victimID      string
	concurrency   int
	timeoutSecs   int
	rateLimit     int
	ollamaModel   string

	noMutation  bool
	noPII       bool
	noSoftFail  bool
	csvReport   bool
	mdReport    bool
	sarifReport bool
	pdfReport   bool
}

func main() {
	os.Exit(run())
}

// run wraps the scan so deferred cleanup happens before the process
// exits and internal panics convert to exit 3 instead of a stack dump
// mid-report.
func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			ui.PrintError(fmt.Sprintf("internal error: %v", r))
			code = exitRuntime
		}
	}()

	opts := parseFlags()
	setupLogging()

	endpoints, err := parser.Parse(opts.input)
	if err != nil {
		ui.PrintError(err.Error())
		return exitCodeFor(err)
	}
	for _, ep := range endpoints {
		if err := ep.Validate(); err != nil {
			slog.Warn("endpoint invariant violated", slog.String("error", err.Error()))
		}
	}

	ui.PrintBanner(opts.input, opts.baseURL, len(endpoints))
	if len(endpoints) == 0 {
		fmt.Println("no endpoints discovered, nothing to do")
		return exitOK
	}

	// --base-url may only be omitted when the spec carries absolute
	// server URLs for everything.
	if opts.baseURL == "" {
		for _, ep := range endpoints {
			if !strings.HasPrefix(ep.Path, "http://") && !strings.HasPrefix(ep.Path, "https://") {
				ui.PrintError("--base-url is required: the spec does not provide a server URL for " + ep.Path)
				return exitConfig
			}
		}
	}

	attackerID, ok := auth.ExtractUserID(opts.attackerToken)
	if ok {
		slog.Info("extracted attacker id from token", slog.String("id", attackerID))
	} else {
		slog.Warn("could not extract a user id from the attacker token; ownership analysis will be less precise")
	}

	planner := plan.New(plan.Config{
		BaseURL:           opts.baseURL,
		AttackerToken:     opts.attackerToken,
		VictimID:          opts.victimID,
		MutationalFuzzing: !opts.noMutation,
	})

	var plans []plan.Plan
	mdWriter := report.NewMarkdownWriter(report.Filename("md"))
	for _, ep := range endpoints {
		p := planner.Build(ep)
		if p.SkipReason != "" {
			slog.Debug("endpoint skipped",
				slog.String("endpoint", ep.ID),
				slog.String("reason", p.SkipReason))
			mdWriter.AddSkipped(string(ep.Method), ep.Path, p.SkipReason)
			continue
		}
		plans = append(plans, p)
	}

	writers, reportPaths := buildWriters(opts, mdWriter)

	verdictCfg := verdict.Config{
		AttackerID:       attackerID,
		VictimID:         opts.victimID,
		SoftFailAnalysis: !opts.noSoftFail,
	}
	if !opts.noPII {
		verdictCfg.Advisor = advisor.New(os.Getenv("OLLAMA_URL"), opts.ollamaModel, nil)
	}

	eng := engine.New(engine.Config{
		Concurrency: opts.concurrency,
		Timeout:     time.Duration(opts.timeoutSecs) * time.Second,
		RateLimit:   opts.rateLimit,
	}, verdict.New(verdictCfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	findings := make(chan verdict.Finding, defaults.FindingsBuffer)
	go eng.Run(ctx, plans, findings)

	var summary report.Summary
	for f := range findings {
		f := f
		summary.Add(&f)
		ui.PrintFinding(&f)
		for _, w := range writers {
			if err := w.Write(&f); err != nil {
				slog.Warn("report write failed", slog.String("error", err.Error()))
			}
		}
	}

	for i, w := range writers {
		if err := w.Close(); err != nil {
			ui.PrintError(fmt.Sprintf("writing %s: %v", reportPaths[i], err))
			code = exitRuntime
		}
	}

	ui.PrintSummary(summary, reportPaths)

	if code == exitRuntime {
		return code
	}
	if summary.Vulnerable > 0 {
		return exitVulnerable
	}
	return exitOK
}

// parseFlags binds and validates the CLI surface.
func parseFlags() options {
	var opts options

	flag.StringVar(&opts.input, "input", "", "spec file or directory (OpenAPI, Postman, or Bruno)")
	flag.StringVar(&opts.baseURL, "base-url", "", "base URL of the target API (overrides the spec's server URL)")
	flag.StringVar(&opts.attackerToken, "attacker-token", "", "bearer token for the scanning identity")
	flag.StringVar(&opts.victimID, "victim-id", "", "victim resource identifier to substitute")
	flag.IntVar(&opts.concurrency, "concurrency", defaults.Concurrency, "global in-flight request cap")
	flag.IntVar(&opts.timeoutSecs, "timeout", int(defaults.RequestTimeout.Seconds()), "per-request timeout in seconds")
	flag.IntVar(&opts.rateLimit, "rate-limit", 0, "max requests per second (0 = unlimited)")
	flag.StringVar(&opts.ollamaModel, "ollama-model", defaults.OllamaModel, "Ollama model for PII analysis")

	flag.BoolVar(&opts.noMutation, "no-mutational-fuzzing", false, "disable mutation payloads")
	flag.BoolVar(&opts.noPII, "no-pii-analysis", false, "disable the local PII advisor")
	flag.BoolVar(&opts.noSoftFail, "no-soft-fail-analysis", false, "disable soft-fail body analysis")

	flag.BoolVar(&opts.csvReport, "csv-report", false, "write a CSV report")
	flag.BoolVar(&opts.mdReport, "markdown-report", false, "write a Markdown report (default)")
	flag.BoolVar(&opts.sarifReport, "sarif-report", false, "write a SARIF report")
	flag.BoolVar(&opts.pdfReport, "pdf-report", false, "write a PDF report")

	flag.Parse()

	if opts.input == "" {
		exitWithUsage("--input is required")
	}
	if opts.attackerToken == "" {
		exitWithUsage("--attacker-token is required")
	}
	if opts.victimID == "" {
		exitWithUsage("--victim-id is required")
	}
	return opts
}

// buildWriters assembles the enabled report writers. Markdown is the
// default when no writer flag is given.
func buildWriters(opts options, mdWriter *report.MarkdownWriter) ([]report.Writer, []string) {
	var writers []report.Writer
	var paths []string

	wantMarkdown := opts.mdReport || (!opts.csvReport && !opts.sarifReport && !opts.pdfReport)
	if wantMarkdown {
		writers = append(writers, mdWriter)
		paths = append(paths, mdWriter.Path())
	}
	if opts.csvReport {
		path := report.Filename("csv")
		writers = append(writers, report.NewCSVWriter(path))
		paths = append(paths, path)
	}
	if opts.sarifReport {
		path := report.Filename("sarif")
		writers = append(writers, report.NewSARIFWriter(path))
		paths = append(paths, path)
	}
	if opts.pdfReport {
		path := report.Filename("pdf")
		writers = append(writers, report.NewPDFWriter(path))
		paths = append(paths, path)
	}
	return writers, paths
}

// setupLogging wires slog to stderr at the level named by DOPPEL_LOG.
func setupLogging() {
	level := slog.LevelWarn
	switch os.Getenv(defaults.LogEnv) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// exitCodeFor maps whole-run errors to the exit-code contract.
func exitCodeFor(err error) int {
	var sv *spec.SecurityViolation
	var pe *spec.ParseError
	switch {
	case errors.As(err, &sv), errors.As(err, &pe),
		errors.Is(err, spec.ErrNotFound), errors.Is(err, spec.ErrUnsupportedFormat):
		return exitConfig
	default:
		return exitRuntime
	}
}
