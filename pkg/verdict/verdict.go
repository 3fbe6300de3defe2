// Package verdict classifies attack responses. Each swap or mutation
// response is compared against its endpoint's baseline and a fixed
// rule table; the first matching rule wins.
package verdict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doppelscan/doppel/pkg/plan"
	"github.com/doppelscan/doppel/pkg/regexcache"
	"github.com/doppelscan/doppel/pkg/risk"
)

// Verdict is the classification of one attack response.
type Verdict string

const (
	Vulnerable Verdict = "VULNERABLE"
	Secure     Verdict = "SECURE"
	Uncertain  Verdict = "UNCERTAIN"
	Error      Verdict = "ERROR"
)

// ResponseRecord captures what came back from one request.
type ResponseRecord struct {
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type,omitempty"`
	Body        []byte        `json:"-"`
	Truncated   bool          `json:"truncated,omitempty"`
	Duration    time.Duration `json:"duration"`

	// Fingerprint is the sorted set of JSON leaf paths of the body.
	// Non-JSON bodies have an empty fingerprint.
	Fingerprint []string `json:"fingerprint,omitempty"`
}

// Finding links one attack case to its baseline and carries the
// computed verdict.
type Finding struct {
	EndpointID string `json:"endpoint_id"`
	CaseIndex  int    `json:"case_index"`

	Case     plan.TestCase   `json:"case"`
	Baseline *ResponseRecord `json:"baseline,omitempty"`
	Response *ResponseRecord `json:"response,omitempty"`

	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`

	// Severity is the parameter risk score scaled by the verdict
	// weight (vulnerable 1.0, uncertain 0.3, secure 0).
	Severity float64 `json:"severity"`

	// Evidence lists the specific field matches that drove the
	// verdict.
	Evidence []string `json:"evidence,omitempty"`

	// RiskScore is the tested parameter's risk score.
	RiskScore risk.Score `json:"risk_score"`

	Err string `json:"error,omitempty"`
}

// Advisor is the optional PII oracle consulted for candidate
// VULNERABLE verdicts. It may downgrade, never upgrade.
type Advisor interface {
	AnalyzeBody(ctx context.Context, body []byte) (containsPII bool, kinds []string, err error)
}

// Config tunes the verdict engine.
type Config struct {
	// AttackerID is the attacker's own identifier (from JWT claims),
	// used to recognize reflected-self responses. Optional.
	AttackerID string

	// VictimID is the identifier whose leakage we look for.
	VictimID string

	// SoftFailAnalysis enables rule R7 (2xx bodies that spell out a
	// denial).
	SoftFailAnalysis bool

	// Advisor, when set, reviews candidate vulnerable verdicts.
	Advisor Advisor
}

// Engine applies the rule table.
type Engine struct {
	cfg Config
}

// New creates a verdict engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// sensitiveLeaves is the allowlist of leaf names whose presence next
// to the victim identifier upgrades a structural match to a leak.
var sensitiveLeaves = map[string]bool{
	"id": true, "email": true, "ssn": true, "account": true,
	"card": true, "phone": true, "balance": true, "token": true,
}

// softFailPattern matches denial text inside 2xx bodies.
const softFailPattern = `(?i)error|denied|unauthorized|forbidden|not allowed`

// Judge computes the finding for one executed attack case.
func (e *Engine) Judge(ctx context.Context, tc plan.TestCase, score risk.Score, baseline, response *ResponseRecord) Finding {
	f := Finding{
		EndpointID: tc.EndpointID,
		CaseIndex:  tc.Index,
		Case:       tc,
		Baseline:   baseline,
		Response:   response,
		RiskScore:  score,
	}

	f.Verdict, f.Reason, f.Evidence = e.classify(response, baseline)

	if f.Verdict == Vulnerable && e.cfg.Advisor != nil {
		containsPII, kinds, err := e.cfg.Advisor.AnalyzeBody(ctx, response.Body)
		switch {
		case err != nil:
			// Advisor trouble never blocks a finding.
		case containsPII:
			for _, kind := range kinds {
				f.Evidence = append(f.Evidence, "pii:"+kind)
			}
		default:
			f.Verdict = Uncertain
			f.Reason = "advisor-negative"
		}
	}

	f.Severity = Severity(score, f.Verdict)
	return f
}

// classify runs the rule table top-down; first match wins.
func (e *Engine) classify(a, b *ResponseRecord) (Verdict, string, []string) {
	status := a.StatusCode
	body := a.Body

	// R1: explicit denial.
	if status == 401 || status == 403 {
		return Secure, "access denied", nil
	}
	// R2: the swapped resource may simply not exist.
	if status == 404 {
		return Uncertain, "not-found", nil
	}
	// R3: the payload broke something instead of leaking something.
	if status >= 500 {
		return Uncertain, "server-error", nil
	}
	if status < 200 || status >= 300 {
		return Uncertain, "inconclusive", nil
	}

	// R4: 2xx with nothing in it proves nothing.
	if len(strings.TrimSpace(string(body))) == 0 {
		return Uncertain, "empty-ok", nil
	}

	// R5: structural twin of the baseline carrying the victim id or a
	// sensitive leaf value.
	if evidence := e.structuralLeak(a, b); len(evidence) > 0 {
		return Vulnerable, "structural match with sensitive data", evidence
	}

	// R6: victim id sitting in the same object as a sensitive key.
	if evidence := e.objectLeak(body); len(evidence) > 0 {
		return Vulnerable, "victim identifier beside sensitive field", evidence
	}

	// R7: denial spelled out in a 2xx body.
	if e.cfg.SoftFailAnalysis && !looksBinary(body) {
		if m := regexcache.MustGet(softFailPattern).Find(body); m != nil {
			return Secure, "soft-fail", []string{"match:" + strings.ToLower(string(m))}
		}
	}

	// R8: nothing conclusive either way.
	return Uncertain, "inconclusive", nil
}

// structuralLeak implements R5: the attack body's fingerprint matches
// the baseline's and at least one leaf value equals the victim id or
// sits under a sensitive leaf name.
func (e *Engine) structuralLeak(a, b *ResponseRecord) []string {
	if len(a.Fingerprint) == 0 || b == nil || len(b.Fingerprint) == 0 {
		return nil
	}
	if !equalFingerprints(a.Fingerprint, b.Fingerprint) {
		return nil
	}

	leaves, err := JSONLeaves(a.Body)
	if err != nil {
		return nil
	}

	// A response that is visibly the attacker's own record is the
	// authorization working, not a leak.
	if e.cfg.AttackerID != "" && ownsIdentity(leaves, e.cfg.AttackerID) && !ownsIdentity(leaves, e.cfg.VictimID) {
		return nil
	}

	var evidence []string
	for _, l := range leaves {
		name := leafName(l.Path)
		if e.cfg.VictimID != "" && l.Value == e.cfg.VictimID {
			evidence = append(evidence, fmt.Sprintf("%s=%s", l.Path, l.Value))
			continue
		}
		if sensitiveLeaves[name] && l.Value != "" {
			evidence = append(evidence, "sensitive:"+l.Path)
		}
	}
	return evidence
}

// objectLeak implements R6: reflection vs leakage. The victim id must
// share a JSON object with a sensitive key; the id merely appearing in
// a public field is reflection, not a leak.
func (e *Engine) objectLeak(body []byte) []string {
	if e.cfg.VictimID == "" || !strings.Contains(string(body), e.cfg.VictimID) {
		return nil
	}

	objects, err := jsonObjects(body)
	if err != nil {
		return nil
	}

	for _, obj := range objects {
		var hasVictim bool
		var sensitive []string
		for key, value := range obj {
			switch v := value.(type) {
			case string:
				if strings.Contains(v, e.cfg.VictimID) {
					hasVictim = true
				}
			case float64, bool:
				if fmt.Sprint(v) == e.cfg.VictimID {
					hasVictim = true
				}
			}
			if sensitiveLeaves[strings.ToLower(key)] {
				sensitive = append(sensitive, key)
			}
		}
		if hasVictim && len(sensitive) > 0 {
			evidence := make([]string, 0, len(sensitive)+1)
			evidence = append(evidence, "victim-id:"+e.cfg.VictimID)
			for _, key := range sensitive {
				evidence = append(evidence, "sensitive:"+key)
			}
			return evidence
		}
	}
	return nil
}

// Severity scales the parameter risk score by the verdict weight.
func Severity(score risk.Score, v Verdict) float64 {
	switch v {
	case Vulnerable:
		return float64(score.Value)
	case Uncertain:
		return float64(score.Value) * 0.3
	default:
		return 0
	}
}

// looksBinary reports whether a body is likely binary data: a null
// byte, or a high ratio of non-printable bytes.
func looksBinary(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	nonPrintable := 0
	for _, b := range body {
		if b == 0 {
			return true
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(body)) > 0.3
}

func leafName(path string) string {
	if idx := strings.LastIndexAny(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if idx := strings.IndexByte(path, '['); idx >= 0 {
		path = path[:idx]
	}
	return strings.ToLower(path)
}

func equalFingerprints(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
