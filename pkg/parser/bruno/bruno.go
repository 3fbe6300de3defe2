// Package bruno parses Bruno collection trees: directories of .bru
// files in Bruno's line-oriented block format. Files are visited in
// lexicographic path order so endpoint order is stable.
package bruno

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/doppelscan/doppel/pkg/spec"
)

// Parse walks root (a directory or a single .bru file) and returns the
// endpoints of every .bru file found. A directory with no .bru files
// yields an empty sequence, not an error.
func Parse(root string) ([]spec.Endpoint, error) {
	fi, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", spec.ErrNotFound, root)
		}
		return nil, &spec.ParseError{File: root, Reason: "cannot stat", Err: err}
	}

	var files []string
	if fi.IsDir() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".bru") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &spec.ParseError{File: root, Reason: "walk failed", Err: err}
		}
		sort.Strings(files)
	} else {
		files = []string{root}
	}

	var endpoints []spec.Endpoint
	for _, file := range files {
		ep, ok, err := parseFile(file)
		if err != nil {
			return nil, err
		}
		if ok {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}

// methodBlocks are the .bru block names that declare an HTTP request.
var methodBlocks = []string{"get", "post", "put", "patch", "delete", "head", "options"}

// parseFile extracts one endpoint from a .bru file. Files without a
// method block (folder metadata, environments) are skipped.
func parseFile(path string) (spec.Endpoint, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return spec.Endpoint{}, false, &spec.ParseError{File: path, Reason: "cannot read", Err: err}
	}

	blocks := splitBlocks(string(data))

	var (
		method spec.Method
		fields map[string]string
	)
	for _, name := range methodBlocks {
		if content, ok := blocks[name]; ok {
			m, _ := spec.ParseMethod(name)
			method = m
			fields = blockFields(content)
			break
		}
	}
	if method == "" {
		return spec.Endpoint{}, false, nil
	}

	rawURL := fields["url"]
	if rawURL == "" {
		return spec.Endpoint{}, false, &spec.ParseError{File: path, Location: string(method), Reason: "method block has no url"}
	}

	ep := spec.Endpoint{
		ID:          spec.NewID(method, rawURL, filepath.Base(path)),
		Method:      method,
		Path:        rawURL,
		Description: blockFields(blocks["meta"])["name"],
		Source:      spec.FormatBruno,
	}

	for _, name := range spec.PlaceholderNames(rawURL) {
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:     name,
			In:       spec.LocationPath,
			Required: true,
			Type:     spec.TypeUnknown,
		})
	}

	for key, value := range blockFields(blocks["query"]) {
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:    key,
			In:      spec.LocationQuery,
			Type:    spec.TypeString,
			Example: value,
		})
	}
	for key, value := range blockFields(blocks["headers"]) {
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:    key,
			In:      spec.LocationHeader,
			Type:    spec.TypeString,
			Example: value,
		})
	}
	sortParams(ep.Parameters)

	if raw, ok := blocks["body:json"]; ok {
		trimmed := strings.TrimSpace(raw)
		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
			ep.ExampleBody = []byte(trimmed)
			var leaves []spec.Parameter
			walkJSONLeaves(value, "", &leaves)
			sort.Slice(leaves, func(i, j int) bool { return leaves[i].Name < leaves[j].Name })
			ep.Parameters = append(ep.Parameters, leaves...)
		}
	}

	return ep, true, nil
}

// splitBlocks cuts a .bru file into named blocks. Block bodies may
// contain nested braces (body:json holds raw JSON), so the scanner
// tracks depth instead of looking for the first closing brace.
func splitBlocks(content string) map[string]string {
	blocks := make(map[string]string)
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasSuffix(line, "{") {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
		if name == "" || strings.ContainsAny(name, " \t\"'") {
			continue
		}

		depth := 1
		var body []string
		j := i + 1
		for ; j < len(lines) && depth > 0; j++ {
			depth += strings.Count(lines[j], "{") - strings.Count(lines[j], "}")
			if depth > 0 {
				body = append(body, lines[j])
			}
		}
		blocks[name] = strings.Join(body, "\n")
		i = j - 1
	}
	return blocks
}

// blockFields parses "key: value" lines inside a simple block.
func blockFields(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		// Disabled entries are prefixed with "~" in Bruno.
		if key == "" || strings.HasPrefix(key, "~") {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// sortParams orders parameters by location then name so map iteration
// order never leaks into the endpoint sequence.
func sortParams(params []spec.Parameter) {
	sort.SliceStable(params, func(i, j int) bool {
		if params[i].In != params[j].In {
			return locationRank(params[i].In) < locationRank(params[j].In)
		}
		return params[i].Name < params[j].Name
	})
}

func locationRank(loc spec.Location) int {
	switch loc {
	case spec.LocationPath:
		return 0
	case spec.LocationQuery:
		return 1
	case spec.LocationHeader:
		return 2
	default:
		return 3
	}
}

// walkJSONLeaves flattens a JSON value into dotted-path Body
// parameters (same convention as the OpenAPI and Postman parsers).
func walkJSONLeaves(value any, prefix string, out *[]spec.Parameter) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := key
			if prefix != "" {
				child = prefix + "." + key
			}
			walkJSONLeaves(v[key], child, out)
		}
	case []any:
		if len(v) > 0 {
			walkJSONLeaves(v[0], prefix+"[0]", out)
		}
	default:
		if prefix == "" {
			prefix = "body"
		}
		typ := spec.TypeUnknown
		switch value.(type) {
		case string:
			typ = spec.TypeString
		case bool:
			typ = spec.TypeBoolean
		case float64:
			typ = spec.TypeNumber
		}
		*out = append(*out, spec.Parameter{
			Name:    prefix,
			In:      spec.LocationBody,
			Type:    typ,
			Example: value,
		})
	}
}
