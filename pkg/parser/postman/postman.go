// Package postman parses Postman Collection v2.0/v2.1 files into the
// normalized endpoint model. The collection tree is walked depth-first
// so endpoint order matches the collection's own layout.
package postman

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/doppelscan/doppel/pkg/spec"
)

// Internal types for JSON unmarshalling. Parse() converts them to the
// shared endpoint model; nothing here is exported.

type collection struct {
	Info  info   `json:"info"`
	Item  []item `json:"item"`
}

type info struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// item is either a folder (has Item) or a request (has Request).
type item struct {
	Name    string   `json:"name"`
	Item    []item   `json:"item,omitempty"`
	Request *request `json:"request,omitempty"`
}

type request struct {
	Method      string  `json:"method"`
	URL         itemURL `json:"url"`
	Header      []kv    `json:"header,omitempty"`
	Body        *body   `json:"body,omitempty"`
	Description string  `json:"description,omitempty"`
}

// itemURL can be a plain string or an object with raw/host/path/query.
type itemURL struct {
	Raw      string   `json:"raw,omitempty"`
	Protocol string   `json:"protocol,omitempty"`
	Host     []string `json:"host,omitempty"`
	Path     []string `json:"path,omitempty"`
	Query    []kv     `json:"query,omitempty"`
	Variable []kv     `json:"variable,omitempty"`
}

func (u *itemURL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.Raw = s
		return nil
	}

	type alias itemURL
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unmarshal postman URL: %w", err)
	}
	*u = itemURL(obj)
	return nil
}

type kv struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

type body struct {
	Mode       string `json:"mode"`
	Raw        string `json:"raw,omitempty"`
	URLEncoded []kv   `json:"urlencoded,omitempty"`
	FormData   []kv   `json:"formdata,omitempty"`
}

// Parse reads a Postman collection file and returns its endpoints in
// tree DFS order.
func Parse(path string) ([]spec.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", spec.ErrNotFound, path)
		}
		return nil, &spec.ParseError{File: path, Reason: "cannot read", Err: err}
	}
	return ParseBytes(data, path)
}

// ParseBytes parses collection content. The source name feeds endpoint
// ids and error messages.
func ParseBytes(data []byte, source string) ([]spec.Endpoint, error) {
	var coll collection
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, &spec.ParseError{File: source, Reason: "invalid collection JSON", Err: err}
	}
	if !strings.Contains(coll.Info.Schema, "schema.getpostman.com") &&
		!strings.Contains(coll.Info.Schema, "postman.com/json/collection") {
		return nil, &spec.ParseError{File: source, Reason: "missing Postman schema marker"}
	}

	origin := coll.Info.Name
	if origin == "" {
		origin = source
	}

	var endpoints []spec.Endpoint
	walkItems(coll.Item, origin, &endpoints)
	return endpoints, nil
}

// walkItems descends the collection tree depth-first, converting leaf
// requests to endpoints.
func walkItems(items []item, origin string, out *[]spec.Endpoint) {
	for _, it := range items {
		if len(it.Item) > 0 {
			walkItems(it.Item, origin, out)
			continue
		}
		if it.Request == nil {
			continue
		}
		if ep, ok := convertRequest(it, origin); ok {
			*out = append(*out, ep)
		}
	}
}

// convertRequest builds one endpoint from a request item.
func convertRequest(it item, origin string) (spec.Endpoint, bool) {
	req := it.Request

	method, ok := spec.ParseMethod(req.Method)
	if !ok {
		return spec.Endpoint{}, false
	}

	raw := req.URL.Raw
	if raw == "" {
		raw = assembleURL(req.URL)
	}
	tmpl := templatePath(raw)

	ep := spec.Endpoint{
		ID:          spec.NewID(method, tmpl, origin),
		Method:      method,
		Path:        tmpl,
		Description: firstNonEmpty(it.Name, req.Description),
		Source:      spec.FormatPostman,
	}

	// Path variables declared on the URL object.
	declared := make(map[string]bool)
	for _, v := range req.URL.Variable {
		declared[v.Key] = true
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:     v.Key,
			In:       spec.LocationPath,
			Required: true,
			Type:     guessType(v.Value),
			Example:  exampleOrNil(v.Value),
		})
	}
	// Placeholders present in the path but not declared still need a
	// path parameter so the template invariant holds.
	for _, name := range spec.PlaceholderNames(tmpl) {
		if !declared[name] {
			ep.Parameters = append(ep.Parameters, spec.Parameter{
				Name:     name,
				In:       spec.LocationPath,
				Required: true,
				Type:     spec.TypeUnknown,
			})
		}
	}

	for _, q := range req.URL.Query {
		if q.Disabled {
			continue
		}
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:    q.Key,
			In:      spec.LocationQuery,
			Type:    guessType(q.Value),
			Example: exampleOrNil(q.Value),
		})
	}

	for _, h := range req.Header {
		if h.Disabled {
			continue
		}
		ep.Parameters = append(ep.Parameters, spec.Parameter{
			Name:    h.Key,
			In:      spec.LocationHeader,
			Type:    spec.TypeString,
			Example: exampleOrNil(h.Value),
		})
	}

	if req.Body != nil {
		convertBody(req.Body, &ep)
	}

	return ep, true
}

// convertBody emits Body parameters for form fields or the leaves of a
// raw JSON payload.
func convertBody(b *body, ep *spec.Endpoint) {
	switch b.Mode {
	case "urlencoded", "formdata":
		fields := b.URLEncoded
		if b.Mode == "formdata" {
			fields = b.FormData
		}
		for _, f := range fields {
			if f.Disabled {
				continue
			}
			ep.Parameters = append(ep.Parameters, spec.Parameter{
				Name:    f.Key,
				In:      spec.LocationBody,
				Type:    guessType(f.Value),
				Example: exampleOrNil(f.Value),
			})
		}
	case "raw":
		trimmed := strings.TrimSpace(b.Raw)
		if trimmed == "" {
			return
		}
		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			return
		}
		ep.ExampleBody = []byte(trimmed)

		var leaves []spec.Parameter
		walkJSONLeaves(value, "", &leaves)
		sort.Slice(leaves, func(i, j int) bool { return leaves[i].Name < leaves[j].Name })
		ep.Parameters = append(ep.Parameters, leaves...)
	}
}

// walkJSONLeaves flattens a JSON value into dotted-path Body
// parameters, mirroring the OpenAPI schema leaf convention.
func walkJSONLeaves(value any, prefix string, out *[]spec.Parameter) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 && prefix != "" {
			*out = append(*out, spec.Parameter{Name: prefix, In: spec.LocationBody, Type: spec.TypeObject})
			return
		}
		for _, key := range sortedKeys(v) {
			walkJSONLeaves(v[key], joinPath(prefix, key), out)
		}
	case []any:
		if len(v) == 0 {
			if prefix != "" {
				*out = append(*out, spec.Parameter{Name: prefix + "[0]", In: spec.LocationBody, Type: spec.TypeUnknown})
			}
			return
		}
		walkJSONLeaves(v[0], prefix+"[0]", out)
	default:
		if prefix == "" {
			prefix = "body"
		}
		*out = append(*out, spec.Parameter{
			Name:    prefix,
			In:      spec.LocationBody,
			Type:    jsonType(value),
			Example: value,
		})
	}
}

// jsonType maps a decoded JSON scalar to a declared type.
func jsonType(v any) spec.Type {
	switch n := v.(type) {
	case string:
		return spec.TypeString
	case bool:
		return spec.TypeBoolean
	case float64:
		if n == math.Trunc(n) {
			return spec.TypeInteger
		}
		return spec.TypeNumber
	default:
		return spec.TypeUnknown
	}
}

// assembleURL reconstructs a URL from host/path segments when raw is
// absent.
func assembleURL(u itemURL) string {
	var sb strings.Builder
	if u.Protocol != "" {
		sb.WriteString(u.Protocol)
		sb.WriteString("://")
	}
	if len(u.Host) > 0 {
		sb.WriteString(strings.Join(u.Host, "."))
	}
	for _, p := range u.Path {
		sb.WriteByte('/')
		sb.WriteString(p)
	}
	if len(u.Query) > 0 {
		sb.WriteByte('?')
		for i, q := range u.Query {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(q.Key)
			sb.WriteByte('=')
			sb.WriteString(q.Value)
		}
	}
	return sb.String()
}

// templatePath strips scheme, host, and query from a raw URL, keeping
// {{var}} and :name placeholders verbatim.
func templatePath(raw string) string {
	// {{baseUrl}}-style prefixes defeat url.Parse; peel them off first.
	prefix := ""
	rest := raw
	if strings.HasPrefix(rest, "{{") {
		if end := strings.Index(rest, "}}"); end >= 0 {
			prefix = rest[:end+2]
			rest = rest[end+2:]
		}
	}

	if u, err := url.Parse(rest); err == nil && u.Path != "" && (u.Scheme != "" || prefix != "") {
		path := u.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return prefix + path
	}

	// Fallback: strip scheme and host by hand.
	path := rest
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
		if idx := strings.IndexByte(path, '/'); idx >= 0 {
			path = path[idx:]
		} else {
			path = "/"
		}
	}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		path = "/"
	}
	if prefix == "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

func guessType(value string) spec.Type {
	if value == "" {
		return spec.TypeString
	}
	allDigits := true
	for _, c := range value {
		if c < '0' || c > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		return spec.TypeInteger
	}
	return spec.TypeString
}

func exampleOrNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
