package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doppelscan/doppel/pkg/report"
	"github.com/doppelscan/doppel/pkg/spec"
)

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, exitConfig, exitCodeFor(&spec.SecurityViolation{File: "a", Reason: "escape"}))
	assert.Equal(t, exitConfig, exitCodeFor(&spec.ParseError{File: "a", Reason: "bad"}))
	assert.Equal(t, exitConfig, exitCodeFor(fmt.Errorf("wrap: %w", spec.ErrNotFound)))
	assert.Equal(t, exitConfig, exitCodeFor(spec.ErrUnsupportedFormat))
	assert.Equal(t, exitRuntime, exitCodeFor(errors.New("boom")))
}

func TestBuildWritersDefaultsToMarkdown(t *testing.T) {
	md := report.NewMarkdownWriter("report.md")

	writers, paths := buildWriters(options{}, md)
	assert.Len(t, writers, 1)
	assert.Equal(t, []string{"report.md"}, paths)

	writers, paths = buildWriters(options{csvReport: true, sarifReport: true}, md)
	assert.Len(t, writers, 2, "markdown drops out when another writer is chosen")
	assert.Len(t, paths, 2)

	writers, _ = buildWriters(options{mdReport: true, pdfReport: true}, md)
	assert.Len(t, writers, 2)
}
