// Package validate checks the backend registry and provider configuration
// before a run starts. Errors here abort the process; warnings are printed
// and the run continues.
package validate

import (
	"fmt"
	"strings"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/config"
	"github.com/openlexica/lexcascade/internal/registry"
)

// Severity classifies validation issues.
type Severity int

const (
	SeverityError   Severity = iota // Blocks the run
	SeverityWarning                 // Logged, does not block
)

// Issue represents a single validation problem.
type Issue struct {
	Severity Severity
	Subject  string
	Message  string
}

func (i Issue) String() string {
	sev := "ERROR"
	if i.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s — %s", sev, i.Subject, i.Message)
}

// Result holds all validation issues.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Result) errorf(subject, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityError, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(subject, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// Registry checks the loaded backend registry against the provider
// configuration.
func Registry(reg *registry.Registry, cfg *config.Config) *Result {
	r := &Result{}

	known := make(map[string]bool)
	for _, name := range backend.Providers() {
		known[name] = true
	}

	seen := make(map[string]bool)
	for _, m := range reg.All() {
		if m.ID == "" {
			r.errorf(m.Provider, "model id is empty")
			continue
		}
		if seen[m.Key()] {
			r.errorf(m.Key(), "configured more than once")
		}
		seen[m.Key()] = true

		if !known[m.Provider] {
			r.errorf(m.Key(), "unknown provider %q", m.Provider)
			continue
		}
		if msg := credentialIssue(m.Provider, cfg); msg != "" {
			r.errorf(m.Key(), "%s", msg)
		}
	}

	for _, t := range reg.ByTier() {
		if t.Name == "" {
			r.errorf(fmt.Sprintf("tier %d", t.Index), "tier name is empty")
		}
		if len(t.Models) == 0 {
			r.warnf(t.Name, "tier has no models")
		}
		if t.WindowLimit < 0 {
			r.errorf(t.Name, "window_limit must be >= 0 (0 means unlimited)")
		}
		if t.WindowLimit == 0 && t.Index == 0 {
			r.warnf(t.Name, "highest-priority tier is unlimited; rate_limited strategy will never fall through it on window quota")
		}
	}

	if cfg.ErrorDriven.CooldownThreshold < 0 {
		r.errorf("error_driven.cooldown_threshold", "must be >= 0")
	}

	return r
}

func credentialIssue(provider string, cfg *config.Config) string {
	switch provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return "GEMINI_API_KEY not set"
		}
	case "groq":
		if cfg.Groq.APIKey == "" {
			return "GROQ_API_KEY not set"
		}
	case "openrouter":
		if cfg.OpenRouter.APIKey == "" {
			return "OPENROUTER_API_KEY not set"
		}
	case "vertex":
		if cfg.Vertex.Project == "" {
			return "vertex project not set (GOOGLE_CLOUD_PROJECT)"
		}
	case "ollama":
		// Local server, no credentials.
	}
	return ""
}

// FormatResult renders a validation result for the CLI.
func FormatResult(r *Result) string {
	if len(r.Issues) == 0 {
		return "✓ configuration valid"
	}

	var b strings.Builder
	for _, i := range r.Issues {
		b.WriteString(i.String() + "\n")
	}
	errs, warns := 0, 0
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs++
		} else {
			warns++
		}
	}
	fmt.Fprintf(&b, "%d error(s), %d warning(s)", errs, warns)
	return b.String()
}
