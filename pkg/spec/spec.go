// Package spec defines the normalized endpoint model shared by all
// collection parsers and the downstream attack pipeline.
package spec

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Format identifies the source format an endpoint was parsed from.
type Format string

const (
	FormatOpenAPI Format = "openapi3"
	FormatPostman Format = "postman"
	FormatBruno   Format = "bruno"
)

// Method is an HTTP method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// MethodOrder is the canonical enumeration order for operations under a
// single path. Report stability depends on it.
var MethodOrder = []Method{
	MethodGet, MethodPost, MethodPut, MethodPatch,
	MethodDelete, MethodHead, MethodOptions,
}

// ParseMethod returns the Method for s, or false if s is not a
// supported HTTP method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range MethodOrder {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Location identifies where a parameter is sent in the HTTP request.
type Location string

const (
	LocationPath   Location = "path"
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationBody   Location = "body"
)

// Type is the declared schema type of a parameter.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeUnknown Type = "unknown"
)

// Parameter is a single input of an endpoint. Body parameters use a
// dotted path name ("user.address.zip", "items[0]") addressing a leaf
// of the composed body schema.
type Parameter struct {
	Name     string   `json:"name"`
	In       Location `json:"in"`
	Required bool     `json:"required,omitempty"`
	Type     Type     `json:"type"`
	Example  any      `json:"example,omitempty"`
	Enum     []string `json:"enum,omitempty"`
}

// Endpoint is one discovered request. Parsers create it; nothing
// mutates it afterwards.
type Endpoint struct {
	// ID is a stable hash of method, template path, and origin.
	ID string `json:"id"`

	Method Method `json:"method"`

	// Path is the template URL. Placeholders appear in either
	// {name} or :name form and are preserved verbatim from the source.
	Path string `json:"path"`

	Parameters []Parameter `json:"parameters,omitempty"`

	Description string `json:"description,omitempty"`

	// ExampleBody is a sample request body from the source, if any.
	ExampleBody []byte `json:"example_body,omitempty"`

	Source Format `json:"source"`
}

// NewID derives the stable endpoint identifier from method, template
// path, and origin (source file or document title). Murmur3 keeps the
// id short and collision-resistant enough for report correlation.
func NewID(method Method, path, origin string) string {
	h := murmur3.Sum64([]byte(string(method) + " " + path + " " + origin))
	return fmt.Sprintf("%016x", h)
}

// PlaceholderNames returns the names of all template placeholders in a
// path, covering both {name} and :name forms, in order of appearance.
func PlaceholderNames(path string) []string {
	var names []string
	seen := make(map[string]bool)

	add := func(n string) {
		if n != "" && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}

	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '{':
			// Skip {{var}} template variables, they are not path params.
			if i+1 < len(path) && path[i+1] == '{' {
				if end := strings.Index(path[i:], "}}"); end >= 0 {
					i += end + 1
					continue
				}
			}
			end := strings.IndexByte(path[i:], '}')
			if end < 0 {
				continue
			}
			add(path[i+1 : i+end])
			i += end
		case ':':
			// A colon placeholder runs to the next path separator.
			if i > 0 && path[i-1] != '/' {
				continue // scheme separator or embedded colon
			}
			j := i + 1
			for j < len(path) && path[j] != '/' && path[j] != '?' {
				j++
			}
			add(path[i+1 : j])
			i = j - 1
		}
	}
	return names
}

// ParametersIn returns the endpoint's parameters at the given location,
// preserving declaration order.
func (e *Endpoint) ParametersIn(loc Location) []Parameter {
	var out []Parameter
	for _, p := range e.Parameters {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the endpoint invariants: unique parameter names per
// location and full coverage of path placeholders by path parameters.
func (e *Endpoint) Validate() error {
	seen := make(map[string]bool)
	for _, p := range e.Parameters {
		key := string(p.In) + ":" + p.Name
		if seen[key] {
			return fmt.Errorf("endpoint %s %s: duplicate %s parameter %q", e.Method, e.Path, p.In, p.Name)
		}
		seen[key] = true
	}

	for _, name := range PlaceholderNames(e.Path) {
		if !seen[string(LocationPath)+":"+name] {
			return fmt.Errorf("endpoint %s %s: placeholder %q has no path parameter", e.Method, e.Path, name)
		}
	}
	return nil
}
