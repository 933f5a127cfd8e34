package validate

import (
	"strings"
	"testing"

	"github.com/openlexica/lexcascade/internal/config"
	"github.com/openlexica/lexcascade/internal/registry"

	_ "github.com/openlexica/lexcascade/internal/backend/providers/gemini"
	_ "github.com/openlexica/lexcascade/internal/backend/providers/groq"
	_ "github.com/openlexica/lexcascade/internal/backend/providers/ollama"
	_ "github.com/openlexica/lexcascade/internal/backend/providers/openrouter"
	_ "github.com/openlexica/lexcascade/internal/backend/providers/vertex"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gemini.APIKey = "g-key"
	cfg.Groq.APIKey = "gr-key"
	cfg.OpenRouter.APIKey = "or-key"
	cfg.Vertex.Project = "my-project"
	cfg.ErrorDriven.CooldownThreshold = 100
	return cfg
}

func buildRegistry(t *testing.T, tiers []*registry.Tier) *registry.Registry {
	t.Helper()
	reg, err := registry.FromTiers(tiers)
	if err != nil {
		t.Fatalf("FromTiers: %v", err)
	}
	return reg
}

func TestRegistryValid(t *testing.T) {
	reg := buildRegistry(t, []*registry.Tier{
		{Name: "gemini", WindowLimit: 10, Models: []*registry.Model{{Provider: "gemini", ID: "flash"}}},
		{Name: "ollama", Models: []*registry.Model{{Provider: "ollama", ID: "llama3"}}},
	})

	r := Registry(reg, validConfig())
	if r.HasErrors() {
		t.Errorf("expected clean result, got: %v", r.Issues)
	}
}

func TestRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []*registry.Tier
		cfg     func(*config.Config)
		wantMsg string
	}{
		{
			name: "empty model id",
			tiers: []*registry.Tier{
				{Name: "t0", Models: []*registry.Model{{Provider: "gemini", ID: ""}}},
			},
			wantMsg: "model id is empty",
		},
		{
			name: "duplicate model",
			tiers: []*registry.Tier{
				{Name: "t0", WindowLimit: 1, Models: []*registry.Model{
					{Provider: "groq", ID: "llama3"},
					{Provider: "groq", ID: "llama3"},
				}},
			},
			wantMsg: "configured more than once",
		},
		{
			name: "unknown provider",
			tiers: []*registry.Tier{
				{Name: "t0", WindowLimit: 1, Models: []*registry.Model{{Provider: "nonesuch", ID: "m"}}},
			},
			wantMsg: "unknown provider",
		},
		{
			name: "missing credentials",
			tiers: []*registry.Tier{
				{Name: "t0", WindowLimit: 1, Models: []*registry.Model{{Provider: "groq", ID: "llama3"}}},
			},
			cfg:     func(c *config.Config) { c.Groq.APIKey = "" },
			wantMsg: "GROQ_API_KEY not set",
		},
		{
			name: "missing vertex project",
			tiers: []*registry.Tier{
				{Name: "t0", WindowLimit: 1, Models: []*registry.Model{{Provider: "vertex", ID: "gemini-pro"}}},
			},
			cfg:     func(c *config.Config) { c.Vertex.Project = "" },
			wantMsg: "vertex project not set",
		},
		{
			name: "nameless tier",
			tiers: []*registry.Tier{
				{Name: "", WindowLimit: 1, Models: []*registry.Model{{Provider: "ollama", ID: "llama3"}}},
			},
			wantMsg: "tier name is empty",
		},
		{
			name: "negative window limit",
			tiers: []*registry.Tier{
				{Name: "t0", WindowLimit: -5, Models: []*registry.Model{{Provider: "ollama", ID: "llama3"}}},
			},
			wantMsg: "window_limit must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			r := Registry(buildRegistry(t, tt.tiers), cfg)
			if !r.HasErrors() {
				t.Fatalf("expected errors, got: %v", r.Issues)
			}
			found := false
			for _, i := range r.Issues {
				if i.Severity == SeverityError && strings.Contains(i.Message, tt.wantMsg) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got: %v", tt.wantMsg, r.Issues)
			}
		})
	}
}

func TestRegistryWarnsOnUnlimitedTopTier(t *testing.T) {
	reg := buildRegistry(t, []*registry.Tier{
		{Name: "ollama", WindowLimit: 0, Models: []*registry.Model{{Provider: "ollama", ID: "llama3"}}},
	})

	r := Registry(reg, validConfig())
	if r.HasErrors() {
		t.Fatalf("warnings must not block: %v", r.Issues)
	}
	if len(r.Issues) == 0 {
		t.Fatal("expected a warning for an unlimited highest-priority tier")
	}
	if r.Issues[0].Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %v", r.Issues[0])
	}
}

func TestFormatResult(t *testing.T) {
	r := &Result{}
	if got := FormatResult(r); !strings.Contains(got, "configuration valid") {
		t.Errorf("expected clean marker, got %q", got)
	}

	r.errorf("groq/llama3", "GROQ_API_KEY not set")
	r.warnf("ollama", "tier has no models")
	got := FormatResult(r)
	for _, want := range []string{"[ERROR]", "[WARN]", "1 error(s), 1 warning(s)"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted result missing %q:\n%s", want, got)
		}
	}
}
