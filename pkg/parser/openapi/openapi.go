// Package openapi parses OpenAPI 3.0 documents into the normalized
// endpoint model. It resolves internal and external $ref targets,
// flattens composed request body schemas into dotted-path leaves, and
// hard-fails any reference that escapes the spec's directory.
package openapi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/spec"
)

// ErrNotOpenAPI indicates the document is valid JSON/YAML but carries
// no OpenAPI 3.x version marker. The dispatcher uses this to fall back
// to the Postman parser.
var ErrNotOpenAPI = errors.New("openapi: not an OpenAPI 3.x document")

// errCycle marks re-entry into a (document, pointer) pair during
// resolution. It never escapes the package; cycles degrade to an
// unknown-typed leaf.
var errCycle = errors.New("openapi: reference cycle")

// Walk limits defending against unbounded composition.
const (
	maxSchemaDepth = 32
	maxBodyLeaves  = 512
)

// document is one loaded spec file: the raw decoded tree plus the key
// order of its paths object.
type document struct {
	path      string // canonical absolute path
	dir       string
	root      map[string]any
	pathOrder []string
}

// Parser parses a single OpenAPI document and its external references.
// The reference cache lives for one Parse call and is discarded after.
type Parser struct {
	rootDir string
	docs    map[string]*document
}

// New creates a parser.
func New() *Parser {
	return &Parser{docs: make(map[string]*document)}
}

// Parse reads the document at path and returns its endpoints in
// document order: paths by insertion order, methods in the canonical
// GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS order.
func (p *Parser) Parse(path string) ([]spec.Endpoint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &spec.ParseError{File: path, Reason: "cannot resolve path", Err: err}
	}
	p.rootDir = filepath.Dir(abs)
	p.docs = make(map[string]*document)

	doc, err := p.loadDocument(abs)
	if err != nil {
		return nil, err
	}

	version := getString(doc.root, "openapi")
	if !strings.HasPrefix(version, "3.") {
		return nil, fmt.Errorf("%w: version %q", ErrNotOpenAPI, version)
	}

	server := p.serverURL(doc)
	origin := filepath.Base(abs)

	paths, _ := asMap(doc.root["paths"])
	var endpoints []spec.Endpoint
	for _, tmpl := range doc.pathOrder {
		item, ok := asMap(paths[tmpl])
		if !ok {
			continue
		}
		for _, method := range spec.MethodOrder {
			op, ok := asMap(item[strings.ToLower(string(method))])
			if !ok {
				continue
			}
			ep, err := p.buildEndpoint(doc, server, origin, tmpl, method, item, op)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}

// loadDocument reads, size-checks, and decodes one spec file, caching
// it by canonical path so shared external references parse once.
func (p *Parser) loadDocument(abs string) (*document, error) {
	if doc, ok := p.docs[abs]; ok {
		return doc, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", spec.ErrNotFound, abs)
		}
		return nil, &spec.ParseError{File: abs, Reason: "cannot open", Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, defaults.MaxSpecBytes+1))
	if err != nil {
		return nil, &spec.ParseError{File: abs, Reason: "cannot read", Err: err}
	}
	if int64(len(data)) > defaults.MaxSpecBytes {
		return nil, &spec.SecurityViolation{File: abs, Reason: "document exceeds size limit"}
	}

	// YAML 1.2 is a JSON superset, so one decoder covers both formats.
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &spec.ParseError{File: abs, Reason: "invalid document", Err: err}
	}

	doc := &document{
		path:      abs,
		dir:       filepath.Dir(abs),
		root:      root,
		pathOrder: pathKeyOrder(data),
	}
	p.docs[abs] = doc
	return doc, nil
}

// pathKeyOrder extracts the insertion order of the top-level paths
// object. Go maps shuffle keys; report diffability needs the
// document's own order.
func pathKeyOrder(data []byte) []string {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return nil
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "paths" {
			continue
		}
		paths := root.Content[i+1]
		if paths.Kind != yaml.MappingNode {
			return nil
		}
		order := make([]string, 0, len(paths.Content)/2)
		for j := 0; j+1 < len(paths.Content); j += 2 {
			order = append(order, paths.Content[j].Value)
		}
		return order
	}
	return nil
}

// serverURL resolves servers[0].url with each {var} replaced by its
// declared default.
func (p *Parser) serverURL(doc *document) string {
	servers, ok := doc.root["servers"].([]any)
	if !ok || len(servers) == 0 {
		return ""
	}
	first, ok := asMap(servers[0])
	if !ok {
		return ""
	}
	raw := getString(first, "url")

	vars, _ := asMap(first["variables"])
	for name, v := range vars {
		def, ok := asMap(v)
		if !ok {
			continue
		}
		raw = strings.ReplaceAll(raw, "{"+name+"}", fmt.Sprint(def["default"]))
	}
	return strings.TrimSuffix(raw, "/")
}

// buildEndpoint assembles one Endpoint from a path item and operation.
func (p *Parser) buildEndpoint(doc *document, server, origin, tmpl string, method spec.Method, item, op map[string]any) (spec.Endpoint, error) {
	path := tmpl
	if server != "" {
		path = server + tmpl
	}

	ep := spec.Endpoint{
		ID:          spec.NewID(method, tmpl, origin),
		Method:      method,
		Path:        path,
		Description: firstNonEmpty(getString(op, "summary"), getString(op, "description")),
		Source:      spec.FormatOpenAPI,
	}

	params, err := p.mergedParameters(doc, item, op)
	if err != nil {
		return ep, err
	}
	ep.Parameters = params

	bodyParams, example, err := p.requestBodyLeaves(doc, op)
	if err != nil {
		return ep, err
	}
	ep.Parameters = append(ep.Parameters, bodyParams...)
	ep.ExampleBody = example

	return ep, nil
}

// mergedParameters merges path-level and operation-level parameter
// lists. Operation entries override path entries with the same name
// and location.
func (p *Parser) mergedParameters(doc *document, item, op map[string]any) ([]spec.Parameter, error) {
	var out []spec.Parameter
	seen := make(map[string]bool)

	appendList := func(raw any) error {
		list, ok := raw.([]any)
		if !ok {
			return nil
		}
		for _, entry := range list {
			m, ok := asMap(entry)
			if !ok {
				continue
			}
			param, err := p.convertParameter(doc, m)
			if err != nil {
				return err
			}
			if param == nil {
				continue
			}
			key := string(param.In) + ":" + param.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, *param)
		}
		return nil
	}

	// Operation parameters first so they win over path-level ones.
	if err := appendList(op["parameters"]); err != nil {
		return nil, err
	}
	if err := appendList(item["parameters"]); err != nil {
		return nil, err
	}
	return out, nil
}

// convertParameter turns one parameter object (possibly a $ref) into a
// flat Parameter. Cookie parameters and unknown locations are dropped.
func (p *Parser) convertParameter(doc *document, m map[string]any) (*spec.Parameter, error) {
	if ref := getString(m, "$ref"); ref != "" {
		resolved, targetDoc, _, err := p.resolve(doc, ref, make(map[string]bool))
		if err != nil {
			if errors.Is(err, errCycle) {
				return nil, nil
			}
			return nil, err
		}
		rm, ok := asMap(resolved)
		if !ok {
			return nil, nil
		}
		return p.convertParameter(targetDoc, rm)
	}

	var loc spec.Location
	switch getString(m, "in") {
	case "path":
		loc = spec.LocationPath
	case "query":
		loc = spec.LocationQuery
	case "header":
		loc = spec.LocationHeader
	default:
		return nil, nil
	}

	param := &spec.Parameter{
		Name:     getString(m, "name"),
		In:       loc,
		Required: getBool(m, "required"),
		Type:     spec.TypeUnknown,
		Example:  m["example"],
	}

	if schemaRaw, ok := asMap(m["schema"]); ok {
		schema, _, err := p.derefSchema(doc, schemaRaw, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		if schema != nil {
			param.Type = mapType(getString(schema, "type"))
			if param.Example == nil {
				param.Example = firstNonNil(schema["example"], schema["default"])
			}
			param.Enum = enumStrings(schema["enum"])
		}
	}
	return param, nil
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
