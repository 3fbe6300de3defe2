// Package parser turns a filesystem path — spec file or collection
// directory — into an ordered sequence of endpoints. Format detection
// is by file extension: .json/.yaml attempt OpenAPI then Postman,
// .bru files and directories containing them go to the Bruno parser.
package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/doppelscan/doppel/pkg/parser/bruno"
	"github.com/doppelscan/doppel/pkg/parser/openapi"
	"github.com/doppelscan/doppel/pkg/parser/postman"
	"github.com/doppelscan/doppel/pkg/spec"
)

// Parse discovers endpoints under path. A directory with zero
// recognizable files yields an empty sequence, not an error.
func Parse(path string) ([]spec.Endpoint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", spec.ErrNotFound, path)
		}
		return nil, &spec.ParseError{File: path, Reason: "cannot stat input", Err: err}
	}

	if fi.IsDir() {
		return parseDir(path)
	}
	return parseFile(path)
}

// parseFile dispatches a single file by extension.
func parseFile(path string) ([]spec.Endpoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bru":
		return bruno.Parse(path)
	case ".json", ".yaml", ".yml":
		endpoints, err := openapi.New().Parse(path)
		if err == nil {
			return endpoints, nil
		}
		if !errors.Is(err, openapi.ErrNotOpenAPI) {
			return nil, err
		}
		slog.Debug("not an OpenAPI document, trying Postman", slog.String("file", path))
		return postman.Parse(path)
	default:
		return nil, fmt.Errorf("%w: %s", spec.ErrUnsupportedFormat, path)
	}
}

// parseDir handles directories: Bruno trees when any .bru file exists,
// otherwise every recognizable spec file in lexicographic order.
func parseDir(dir string) ([]spec.Endpoint, error) {
	var specFiles []string
	hasBru := false

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".bru":
			hasBru = true
		case ".json", ".yaml", ".yml":
			specFiles = append(specFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, &spec.ParseError{File: dir, Reason: "walk failed", Err: err}
	}

	if hasBru {
		return bruno.Parse(dir)
	}

	sort.Strings(specFiles)
	var endpoints []spec.Endpoint
	for _, file := range specFiles {
		eps, err := parseFile(file)
		if err != nil {
			// Directory scans tolerate files that are not specs
			// (shared $ref fragments, fixtures). Security violations
			// still abort: a hostile ref must never be skipped over.
			var sv *spec.SecurityViolation
			if errors.As(err, &sv) {
				return nil, err
			}
			slog.Warn("skipping unrecognizable file", slog.String("file", file), slog.String("error", err.Error()))
			continue
		}
		endpoints = append(endpoints, eps...)
	}
	return endpoints, nil
}
