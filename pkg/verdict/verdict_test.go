package verdict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doppelscan/doppel/pkg/plan"
	"github.com/doppelscan/doppel/pkg/risk"
)

func record(status int, body string) *ResponseRecord {
	return &ResponseRecord{
		StatusCode:  status,
		Body:        []byte(body),
		Fingerprint: Fingerprint([]byte(body)),
	}
}

func testCase() plan.TestCase {
	return plan.TestCase{
		EndpointID: "ep1",
		Index:      1,
		Method:     "GET",
		URL:        "http://t/users/u_victim",
		Class:      plan.ClassSwap,
		Param:      "id",
		ParamIn:    "path",
		Injected:   "u_victim",
	}
}

func newEngine() *Engine {
	return New(Config{
		AttackerID:       "u_attacker",
		VictimID:         "u_victim",
		SoftFailAnalysis: true,
	})
}

func judge(t *testing.T, e *Engine, baseline, response *ResponseRecord) Finding {
	t.Helper()
	score := risk.Score{Value: 80}
	return e.Judge(context.Background(), testCase(), score, baseline, response)
}

func TestR1ExplicitDenial(t *testing.T) {
	e := newEngine()
	baseline := record(200, `{"id":"u_attacker"}`)
	for _, status := range []int{401, 403} {
		f := judge(t, e, baseline, record(status, ""))
		assert.Equal(t, Secure, f.Verdict)
		assert.Equal(t, float64(0), f.Severity)
	}
}

func TestR2NotFound(t *testing.T) {
	f := judge(t, newEngine(), record(200, `{}`), record(404, ""))
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "not-found", f.Reason)
}

func TestR3ServerError(t *testing.T) {
	f := judge(t, newEngine(), record(200, `{}`), record(500, "boom"))
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "server-error", f.Reason)
}

func TestR4EmptyOK(t *testing.T) {
	f := judge(t, newEngine(), record(200, `{"id":"u_attacker"}`), record(200, "  "))
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "empty-ok", f.Reason)
}

func TestR5StructuralLeak(t *testing.T) {
	baseline := record(200, `{"id":"u_attacker","email":"a@e.com"}`)
	attack := record(200, `{"id":"u_victim","email":"v@e.com"}`)

	f := judge(t, newEngine(), baseline, attack)
	require.Equal(t, Vulnerable, f.Verdict)
	assert.NotEmpty(t, f.Evidence)
	assert.Equal(t, float64(80), f.Severity, "vulnerable severity equals the risk score")
}

func TestR5OwnDataIsNotALeak(t *testing.T) {
	// Server ignored the swap and returned the attacker's own record:
	// structurally identical, but ownership says no leak.
	baseline := record(200, `{"id":"u_attacker","email":"a@e.com"}`)
	attack := record(200, `{"id":"u_attacker","email":"a@e.com"}`)

	f := judge(t, newEngine(), baseline, attack)
	assert.NotEqual(t, Vulnerable, f.Verdict)
}

func TestR6LeakageRequiresSensitiveNeighbor(t *testing.T) {
	baseline := record(200, `{"posts":[]}`)

	// Victim id next to an ssn in the same object: leak.
	attack := record(200, `{"profile":{"id":"u_victim","ssn":"123-45-6789"}}`)
	f := judge(t, newEngine(), baseline, attack)
	assert.Equal(t, Vulnerable, f.Verdict)

	// Reflection: victim id on a public field with no sensitive
	// neighbor stays inconclusive.
	reflection := record(200, `{"author":"u_victim","title":"hello"}`)
	f = judge(t, newEngine(), baseline, reflection)
	assert.Equal(t, Uncertain, f.Verdict)
}

func TestR7SoftFail(t *testing.T) {
	baseline := record(200, `{"id":"u_attacker"}`)
	attack := record(200, `{"error":"access denied"}`)

	f := judge(t, newEngine(), baseline, attack)
	assert.Equal(t, Secure, f.Verdict)
	assert.Equal(t, "soft-fail", f.Reason)
}

func TestR7DisabledFallsThrough(t *testing.T) {
	e := New(Config{VictimID: "u_victim", SoftFailAnalysis: false})
	baseline := record(200, `{"id":"u_attacker"}`)
	attack := record(200, `{"error":"access denied"}`)

	f := judge(t, e, baseline, attack)
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "inconclusive", f.Reason)
}

func TestR8Inconclusive(t *testing.T) {
	baseline := record(200, `{"a":1}`)
	attack := record(200, `{"totally":"unrelated"}`)

	f := judge(t, newEngine(), baseline, attack)
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "inconclusive", f.Reason)
	assert.InDelta(t, 24.0, f.Severity, 0.001, "uncertain weight is 0.3")
}

type fakeAdvisor struct {
	containsPII bool
	kinds       []string
	called      bool
}

func (a *fakeAdvisor) AnalyzeBody(_ context.Context, _ []byte) (bool, []string, error) {
	a.called = true
	return a.containsPII, a.kinds, nil
}

func TestAdvisorDowngrades(t *testing.T) {
	adv := &fakeAdvisor{containsPII: false}
	e := New(Config{
		AttackerID:       "u_attacker",
		VictimID:         "u_victim",
		SoftFailAnalysis: true,
		Advisor:          adv,
	})

	baseline := record(200, `{"id":"u_attacker","email":"a@e.com"}`)
	attack := record(200, `{"id":"u_victim","email":"v@e.com"}`)

	f := judge(t, e, baseline, attack)
	assert.True(t, adv.called)
	assert.Equal(t, Uncertain, f.Verdict)
	assert.Equal(t, "advisor-negative", f.Reason)
}

func TestAdvisorConfirms(t *testing.T) {
	adv := &fakeAdvisor{containsPII: true, kinds: []string{"email"}}
	e := New(Config{VictimID: "u_victim", SoftFailAnalysis: true, Advisor: adv})

	baseline := record(200, `{"id":"u_attacker","email":"a@e.com"}`)
	attack := record(200, `{"id":"u_victim","email":"v@e.com"}`)

	f := judge(t, e, baseline, attack)
	assert.Equal(t, Vulnerable, f.Verdict)
	assert.Contains(t, f.Evidence, "pii:email")
}

func TestAdvisorNeverConsultedForSecure(t *testing.T) {
	adv := &fakeAdvisor{containsPII: true}
	e := New(Config{VictimID: "u_victim", SoftFailAnalysis: true, Advisor: adv})

	f := judge(t, e, record(200, `{}`), record(403, ""))
	assert.Equal(t, Secure, f.Verdict)
	assert.False(t, adv.called, "the advisor only reviews candidate vulnerable verdicts")
}

func TestBinaryBodySkipsSoftFail(t *testing.T) {
	baseline := record(200, `{"id":"u_attacker"}`)
	attack := &ResponseRecord{StatusCode: 200, Body: []byte("PNG\x00\x01\x02errors")}

	f := judge(t, newEngine(), baseline, attack)
	assert.Equal(t, Uncertain, f.Verdict)
}
