// Package analysis supplies the per-task collaborators the cascade treats
// as opaque: prompt construction for a legal-code section and parsing of
// the model's structured output. The cascade itself never inspects either.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openlexica/lexcascade/internal/record"
)

// Task builds the prompt for one analysis pass and validates model output.
// A Parse failure counts as a failure of that model for that record and
// triggers failover, never a pipeline abort.
type Task interface {
	Name() string
	Prompt(rec *record.Record) (system, user string)
	Parse(raw string) (json.RawMessage, error)
}

var tasks = map[string]Task{}

func register(t Task) { tasks[t.Name()] = t }

// Get returns a task by name.
func Get(name string) (Task, error) {
	t, ok := tasks[name]
	if !ok {
		return nil, fmt.Errorf("unknown task: %s (available: %s)", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names returns all task names, sorted.
func Names() []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extractJSON finds the JSON object in text that may be wrapped in markdown
// code fences or surrounded by prose.
func extractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)

	if isValidJSON(s) {
		return s, nil
	}

	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + len("```json")
		end := strings.Index(s[start:], "```")
		if end != -1 {
			candidate := strings.TrimSpace(s[start : start+end])
			if isValidJSON(candidate) {
				return candidate, nil
			}
		}
	}
	if idx := strings.Index(s, "```"); idx != -1 {
		start := idx + len("```")
		end := strings.Index(s[start:], "```")
		if end != -1 {
			candidate := strings.TrimSpace(s[start : start+end])
			if isValidJSON(candidate) {
				return candidate, nil
			}
		}
	}

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		candidate := s[first : last+1]
		if isValidJSON(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

func sectionBlock(rec *record.Record) string {
	var b strings.Builder
	if rec.Heading != "" {
		b.WriteString("Section: " + rec.Heading + "\n\n")
	}
	b.WriteString(rec.Text)
	return b.String()
}
