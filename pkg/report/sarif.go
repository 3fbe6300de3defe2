package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/doppelscan/doppel/pkg/defaults"
	"github.com/doppelscan/doppel/pkg/verdict"
)

// SARIFWriter renders findings as SARIF 2.1.0 for code-scanning
// ingestion. Only vulnerable and error results are reported; secure
// and uncertain outcomes are noise at that layer.
type SARIFWriter struct {
	buffer
	path string
}

// NewSARIFWriter creates a SARIF report writer targeting path.
func NewSARIFWriter(path string) *SARIFWriter {
	return &SARIFWriter{path: path}
}

type sarifDocument struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription sarifMessage    `json:"shortDescription"`
	DefaultConfig    sarifRuleConfig `json:"defaultConfiguration"`
	Properties       sarifRuleProps  `json:"properties"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifRuleProps struct {
	Tags             []string `json:"tags"`
	SecuritySeverity string   `json:"security-severity"`
	CWE              []string `json:"cwe,omitempty"`
	OWASP            string   `json:"owasp,omitempty"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations"`
	Properties sarifResultProps `json:"properties,omitempty"`
}

type sarifResultProps struct {
	Parameter string   `json:"parameter,omitempty"`
	Injected  string   `json:"injected,omitempty"`
	Evidence  []string `json:"evidence,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLoc `json:"physicalLocation"`
}

type sarifPhysicalLoc struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

func (w *SARIFWriter) Close() (retErr error) {
	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create sarif report: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(w.build())
}

func (w *SARIFWriter) build() sarifDocument {
	rules := make(map[string]sarifRule)
	var results []sarifResult

	for _, f := range w.sorted() {
		var level string
		switch f.Verdict {
		case verdict.Vulnerable:
			level = "error"
		case verdict.Error:
			level = "note"
		default:
			continue
		}

		ruleID := "doppel-bola-" + f.EndpointID
		if _, ok := rules[ruleID]; !ok {
			rules[ruleID] = sarifRule{
				ID:   ruleID,
				Name: fmt.Sprintf("BOLA exposure on %s %s", f.Case.Method, f.Case.URL),
				ShortDescription: sarifMessage{
					Text: "Broken object-level authorization check",
				},
				DefaultConfig: sarifRuleConfig{Level: "error"},
				Properties: sarifRuleProps{
					Tags:             []string{"security", "bola", "idor"},
					SecuritySeverity: fmt.Sprintf("%.1f", f.Severity/10),
					CWE:              []string{"CWE-639"},
					OWASP:            "A01:2021-Broken Access Control",
				},
			}
		}

		msg := fmt.Sprintf("Parameter %q accepted the victim identifier %q (status %d): %s",
			f.Case.Param, f.Case.Injected, statusOf(f), f.Reason)
		if f.Verdict == verdict.Error {
			msg = fmt.Sprintf("Request against parameter %q failed: %s", f.Case.Param, f.Err)
		}

		results = append(results, sarifResult{
			RuleID:  ruleID,
			Level:   level,
			Message: sarifMessage{Text: msg},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLoc{
					ArtifactLocation: sarifArtifact{URI: f.Case.URL},
				},
			}},
			Properties: sarifResultProps{
				Parameter: f.Case.Param,
				Injected:  f.Case.Injected,
				Evidence:  f.Evidence,
			},
		})
	}

	ruleSlice := make([]sarifRule, 0, len(rules))
	for _, rule := range rules {
		ruleSlice = append(ruleSlice, rule)
	}
	sort.Slice(ruleSlice, func(i, j int) bool { return ruleSlice[i].ID < ruleSlice[j].ID })

	return sarifDocument{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "Doppel",
					Version:        defaults.Version,
					InformationURI: "https://github.com/doppelscan/doppel",
					Rules:          ruleSlice,
				},
			},
			Results: results,
		}},
	}
}
