package record

import (
	"encoding/json"
	"fmt"
)

// Record is one unit of work read from the input NDJSON stream: a single
// legal-code section to analyze.
type Record struct {
	ID      string `json:"id"`
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}

// Result is one line of the output NDJSON stream. The task payload fields
// are flattened into the top-level object next to the envelope fields, so a
// reporting result serializes as
// {"id":…,"task":…,"model_used":…,"has_reporting":…,…}.
type Result struct {
	ID        string
	Task      string
	ModelUsed string
	Payload   json.RawMessage
}

// MarshalJSON flattens Payload into the envelope.
func (r *Result) MarshalJSON() ([]byte, error) {
	merged := map[string]any{}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &merged); err != nil {
			return nil, fmt.Errorf("result payload for %s is not a JSON object: %w", r.ID, err)
		}
	}
	merged["id"] = r.ID
	merged["task"] = r.Task
	merged["model_used"] = r.ModelUsed
	return json.Marshal(merged)
}
