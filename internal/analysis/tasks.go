package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/openlexica/lexcascade/internal/record"
)

func init() {
	register(reportingTask{})
	register(anachronismTask{})
	register(obligationsTask{})
	register(complexityTask{})
}

// reportingTask detects reporting requirements in a section.
type reportingTask struct{}

func (reportingTask) Name() string { return "reporting" }

func (reportingTask) Prompt(rec *record.Record) (string, string) {
	system := "You analyze statutory text. Answer only with a JSON object: " +
		`{"has_reporting": bool, "reporting_summary": string, "tags": [string], "highlight_phrases": [string]}.`
	user := "Does this legal-code section impose a reporting requirement on any party? " +
		"If so, summarize it, tag it (e.g. annual, financial, to-legislature), and quote the phrases that establish it.\n\n" +
		sectionBlock(rec)
	return system, user
}

type reportingPayload struct {
	HasReporting     bool     `json:"has_reporting"`
	ReportingSummary string   `json:"reporting_summary"`
	Tags             []string `json:"tags"`
	HighlightPhrases []string `json:"highlight_phrases"`
}

func (reportingTask) Parse(raw string) (json.RawMessage, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var p reportingPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling reporting payload: %w", err)
	}
	if p.HasReporting && p.ReportingSummary == "" {
		return nil, fmt.Errorf("has_reporting set without a summary")
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.HighlightPhrases == nil {
		p.HighlightPhrases = []string{}
	}
	return json.Marshal(p)
}

// anachronismTask classifies whether a section is anachronistic.
type anachronismTask struct{}

func (anachronismTask) Name() string { return "anachronism" }

var anachronismCategories = map[string]bool{
	"technology":  true,
	"institution": true,
	"terminology": true,
	"monetary":    true,
	"none":        true,
}

func (anachronismTask) Prompt(rec *record.Record) (string, string) {
	system := "You analyze statutory text. Answer only with a JSON object: " +
		`{"is_anachronistic": bool, "category": "technology|institution|terminology|monetary|none", "rationale": string}.`
	user := "Does this legal-code section reference obsolete technology, defunct institutions, " +
		"archaic terminology, or outdated monetary amounts?\n\n" + sectionBlock(rec)
	return system, user
}

type anachronismPayload struct {
	IsAnachronistic bool   `json:"is_anachronistic"`
	Category        string `json:"category"`
	Rationale       string `json:"rationale"`
}

func (anachronismTask) Parse(raw string) (json.RawMessage, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var p anachronismPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling anachronism payload: %w", err)
	}
	if !anachronismCategories[p.Category] {
		return nil, fmt.Errorf("invalid anachronism category %q", p.Category)
	}
	return json.Marshal(p)
}

// obligationsTask extracts actor/action obligations from a section.
type obligationsTask struct{}

func (obligationsTask) Name() string { return "obligations" }

func (obligationsTask) Prompt(rec *record.Record) (string, string) {
	system := "You analyze statutory text. Answer only with a JSON object: " +
		`{"obligations": [{"actor": string, "action": string, "modality": "shall|must|may|should|prohibited"}]}.`
	user := "List every obligation this legal-code section imposes: who must (or may) do what.\n\n" +
		sectionBlock(rec)
	return system, user
}

type obligation struct {
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Modality string `json:"modality"`
}

type obligationsPayload struct {
	Obligations []obligation `json:"obligations"`
}

var modalities = map[string]bool{
	"shall":      true,
	"must":       true,
	"may":        true,
	"should":     true,
	"prohibited": true,
}

func (obligationsTask) Parse(raw string) (json.RawMessage, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var p obligationsPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling obligations payload: %w", err)
	}
	for i, o := range p.Obligations {
		if o.Actor == "" || o.Action == "" {
			return nil, fmt.Errorf("obligation %d missing actor or action", i)
		}
		if !modalities[o.Modality] {
			return nil, fmt.Errorf("obligation %d has invalid modality %q", i, o.Modality)
		}
	}
	if p.Obligations == nil {
		p.Obligations = []obligation{}
	}
	return json.Marshal(p)
}

// complexityTask scores how hard a section would be to implement.
type complexityTask struct{}

func (complexityTask) Name() string { return "complexity" }

func (complexityTask) Prompt(rec *record.Record) (string, string) {
	system := "You analyze statutory text. Answer only with a JSON object: " +
		`{"score": 1-5, "drivers": [string]}.`
	user := "Score the implementation complexity of this legal-code section from 1 (trivial) " +
		"to 5 (major multi-agency effort) and name the complexity drivers.\n\n" + sectionBlock(rec)
	return system, user
}

type complexityPayload struct {
	Score   int      `json:"score"`
	Drivers []string `json:"drivers"`
}

func (complexityTask) Parse(raw string) (json.RawMessage, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var p complexityPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling complexity payload: %w", err)
	}
	if p.Score < 1 || p.Score > 5 {
		return nil, fmt.Errorf("complexity score %d out of range", p.Score)
	}
	if p.Drivers == nil {
		p.Drivers = []string{}
	}
	return json.Marshal(p)
}
