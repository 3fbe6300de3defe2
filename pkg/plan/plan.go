// Package plan turns scored endpoints into a concrete test matrix:
// one baseline case per endpoint, a victim-identifier swap per
// targetable parameter, and optional mutation payloads.
package plan

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/risk"
	"github.com/doppelscan/doppel/pkg/spec"
)

// Class labels what a test case is for.
type Class string

const (
	ClassBaseline Class = "baseline"
	ClassSwap     Class = "swap"
	ClassMutation Class = "mutation"
)

// MutationKind names the payload family of a mutation case.
type MutationKind string

const (
	MutationSQLi     MutationKind = "sqli"
	MutationXSS      MutationKind = "xss"
	MutationBoundary MutationKind = "boundary"
	MutationAdjacent MutationKind = "adjacent"
)

// TestCase is one concrete request to send.
type TestCase struct {
	EndpointID string `json:"endpoint_id"`

	// Index orders cases within an endpoint; the baseline is 0.
	Index int `json:"index"`

	URL     string            `json:"url"`
	Method  spec.Method       `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`

	Class    Class        `json:"class"`
	Mutation MutationKind `json:"mutation,omitempty"`

	// Param and Injected identify the single parameter under test and
	// the value planted in it. Empty for the baseline.
	Param    string        `json:"param,omitempty"`
	ParamIn  spec.Location `json:"param_in,omitempty"`
	Injected string        `json:"injected,omitempty"`

	// SkipReason marks a case that is planned but must not be sent
	// (for example a non-numeric victim id against an integer
	// parameter). The engine reports it as uncertain.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Plan is the full test matrix for one endpoint.
type Plan struct {
	Endpoint spec.Endpoint         `json:"endpoint"`
	Scores   map[string]risk.Score `json:"scores"`

	Baseline TestCase   `json:"baseline"`
	Attacks  []TestCase `json:"attacks"`

	// SkipReason set means the whole endpoint is skipped and carries
	// no cases at all.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Config parameterizes the planner.
type Config struct {
	// BaseURL prefixes relative endpoint paths.
	BaseURL string

	// AttackerToken is the bearer credential for every request.
	AttackerToken string

	// VictimID is the identifier substituted by swap cases.
	VictimID string

	// MutationalFuzzing adds canned adversarial payloads per
	// targetable parameter.
	MutationalFuzzing bool

	// Threshold is the minimum risk score for a parameter to be
	// attacked. Zero means the default.
	Threshold int

	// Vars are known template variables ({{baseUrl}} and server
	// variables). Unknown {{var}} occurrences are left alone so they
	// surface as a 4xx and route to uncertain.
	Vars map[string]string
}

// Planner builds test plans from endpoints.
type Planner struct {
	cfg Config
}

// New creates a planner. Zero-value config fields get defaults.
func New(cfg Config) *Planner {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.RiskThreshold
	}
	return &Planner{cfg: cfg}
}

// Build produces the plan for one endpoint. HEAD and OPTIONS
// operations are reported but never attacked; endpoints whose best
// parameter stays under the threshold are skipped the same way.
func (pl *Planner) Build(ep spec.Endpoint) Plan {
	scores := risk.ScoreEndpoint(ep)
	p := Plan{Endpoint: ep, Scores: scores}

	if ep.Method == spec.MethodHead || ep.Method == spec.MethodOptions {
		p.SkipReason = "method not attacked"
		return p
	}

	targets := pl.targetable(ep, scores)
	if len(targets) == 0 {
		p.SkipReason = "no targetable parameters"
		return p
	}

	p.Baseline = pl.buildCase(ep, 0, ClassBaseline, "", nil)

	index := 1
	for _, target := range targets {
		swap := pl.buildSwap(ep, index, target)
		p.Attacks = append(p.Attacks, swap)
		index++

		if !pl.cfg.MutationalFuzzing {
			continue
		}
		for _, payload := range MutationPayloads(pl.cfg.VictimID) {
			tc := pl.buildCase(ep, index, ClassMutation, payload.Value, &target)
			tc.Mutation = payload.Kind
			p.Attacks = append(p.Attacks, tc)
			index++
		}
	}
	return p
}

// targetable returns the parameters whose score clears the threshold,
// in declaration order.
func (pl *Planner) targetable(ep spec.Endpoint, scores map[string]risk.Score) []spec.Parameter {
	var out []spec.Parameter
	for _, p := range ep.Parameters {
		if scores[risk.Key(p)].Value >= pl.cfg.Threshold {
			out = append(out, p)
		}
	}
	return out
}

// buildSwap creates the victim-id swap case for one parameter. An
// integer-declared parameter with a non-numeric victim id demotes to a
// skipped case.
func (pl *Planner) buildSwap(ep spec.Endpoint, index int, target spec.Parameter) TestCase {
	tc := pl.buildCase(ep, index, ClassSwap, pl.cfg.VictimID, &target)
	if target.Type == spec.TypeInteger {
		if _, err := strconv.ParseInt(pl.cfg.VictimID, 10, 64); err != nil {
			tc.SkipReason = "victim id is not coercible to integer"
		}
	}
	return tc
}

// buildCase assembles a concrete request. When target is non-nil, that
// single parameter receives injected instead of its baseline value.
func (pl *Planner) buildCase(ep spec.Endpoint, index int, class Class, injected string, target *spec.Parameter) TestCase {
	tc := TestCase{
		EndpointID: ep.ID,
		Index:      index,
		Method:     ep.Method,
		Class:      class,
		Headers: map[string]string{
			"Authorization": "Bearer " + pl.cfg.AttackerToken,
		},
	}
	if target != nil {
		tc.Param = target.Name
		tc.ParamIn = target.In
		tc.Injected = injected
	}

	override := func(p spec.Parameter) (string, bool) {
		if target != nil && p.Name == target.Name && p.In == target.In {
			return injected, true
		}
		return "", false
	}

	// Path values, then query string, then headers, then body.
	rawURL := pl.resolveTemplate(ep.Path)
	for _, p := range ep.ParametersIn(spec.LocationPath) {
		value, ok := override(p)
		if !ok {
			value = baselineString(p)
		}
		rawURL = substitutePlaceholder(rawURL, p.Name, value)
	}
	if !isAbsoluteURL(rawURL) {
		rawURL = strings.TrimSuffix(pl.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(rawURL, "/")
	}

	query := url.Values{}
	for _, p := range ep.ParametersIn(spec.LocationQuery) {
		value, ok := override(p)
		if !ok {
			value = baselineString(p)
		}
		query.Set(p.Name, value)
	}
	if encoded := query.Encode(); encoded != "" {
		if strings.Contains(rawURL, "?") {
			rawURL += "&" + encoded
		} else {
			rawURL += "?" + encoded
		}
	}
	tc.URL = rawURL

	for _, p := range ep.ParametersIn(spec.LocationHeader) {
		value, ok := override(p)
		if !ok {
			value = baselineString(p)
		}
		tc.Headers[p.Name] = value
	}

	bodyParams := ep.ParametersIn(spec.LocationBody)
	if len(bodyParams) > 0 {
		root := make(map[string]any)
		for _, p := range bodyParams {
			var value any
			if s, ok := override(p); ok {
				value = coerce(s, p.Type)
			} else {
				value = baselineValue(p)
			}
			setLeaf(root, p.Name, value)
		}
		if data, err := json.Marshal(root); err == nil {
			tc.Body = data
			tc.Headers["Content-Type"] = "application/json"
		}
	} else if len(ep.ExampleBody) > 0 && ep.Method != spec.MethodGet {
		tc.Body = ep.ExampleBody
		tc.Headers["Content-Type"] = "application/json"
	}

	return tc
}

// resolveTemplate substitutes {{var}} template variables for known
// keys only.
func (pl *Planner) resolveTemplate(path string) string {
	if !strings.Contains(path, "{{") {
		return path
	}
	out := path
	if pl.cfg.BaseURL != "" {
		out = strings.ReplaceAll(out, "{{baseUrl}}", strings.TrimSuffix(pl.cfg.BaseURL, "/"))
	}
	for key, value := range pl.cfg.Vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// substitutePlaceholder fills one template parameter, {name} form
// first, then :name.
func substitutePlaceholder(path, name, value string) string {
	path = strings.ReplaceAll(path, "{"+name+"}", value)

	// :name runs to the next separator, so guard against prefix
	// collisions (:id vs :idempotencyKey) by checking the boundary.
	token := ":" + name
	for {
		idx := strings.Index(path, token)
		if idx < 0 {
			break
		}
		end := idx + len(token)
		if end < len(path) && path[end] != '/' && path[end] != '?' {
			// Longer placeholder with this prefix; leave it.
			next := strings.IndexAny(path[end:], "/?")
			if next < 0 {
				break
			}
			rest := substitutePlaceholder(path[end+next:], name, value)
			return path[:end+next] + rest
		}
		path = path[:idx] + value + path[end:]
	}
	return path
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// baselineString renders a parameter's baseline value as a string:
// the declared example when present, else a deterministic placeholder.
func baselineString(p spec.Parameter) string {
	if p.Example != nil {
		return stringify(p.Example)
	}
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case spec.TypeInteger, spec.TypeNumber:
		return "1"
	case spec.TypeBoolean:
		return "true"
	default:
		return "a"
	}
}

// baselineValue is the JSON-typed baseline for body leaves.
func baselineValue(p spec.Parameter) any {
	if p.Example != nil {
		return p.Example
	}
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case spec.TypeInteger, spec.TypeNumber:
		return 1
	case spec.TypeBoolean:
		return true
	default:
		return "a"
	}
}

// coerce converts an injected string to the leaf's declared JSON type
// where possible, falling back to the raw string.
func coerce(s string, t spec.Type) any {
	switch t {
	case spec.TypeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case spec.TypeNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case spec.TypeBoolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// setLeaf writes a value into a nested JSON object at a dotted path.
// Array markers create single-element arrays ("items[0].sku").
func setLeaf(root map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := root
	for i, seg := range segments {
		name, isArray := strings.CutSuffix(seg, "[0]")
		if name == "" {
			return
		}
		last := i == len(segments)-1

		if last && !isArray {
			current[name] = value
			return
		}

		if isArray {
			arr, ok := current[name].([]any)
			if !ok || len(arr) == 0 {
				if last {
					current[name] = []any{value}
					return
				}
				child := make(map[string]any)
				current[name] = []any{child}
				current = child
				continue
			}
			if last {
				arr[0] = value
				return
			}
			child, ok := arr[0].(map[string]any)
			if !ok {
				child = make(map[string]any)
				arr[0] = child
			}
			current = child
			continue
		}

		child, ok := current[name].(map[string]any)
		if !ok {
			child = make(map[string]any)
			current[name] = child
		}
		current = child
	}
}
