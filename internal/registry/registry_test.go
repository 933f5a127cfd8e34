package registry

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `version: 1
tiers:
  - name: vertex
    window_limit: 60
    models:
      - provider: vertex
        model: gemini-2.0-flash
  - name: groq
    window_limit: 30
    models:
      - provider: groq
        model: llama-3.3-70b-versatile
      - provider: groq
        model: llama-3.1-8b-instant
  - name: ollama
    models:
      - provider: ollama
        model: llama3.1
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backends.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	reg, err := Load(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if reg.Len() != 4 {
		t.Fatalf("expected 4 models, got %d", reg.Len())
	}

	wantOrder := []string{
		"vertex/gemini-2.0-flash",
		"groq/llama-3.3-70b-versatile",
		"groq/llama-3.1-8b-instant",
		"ollama/llama3.1",
	}
	for i, m := range reg.All() {
		if m.Key() != wantOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantOrder[i], m.Key())
		}
	}

	tiers := reg.ByTier()
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	if tiers[0].Name != "vertex" || tiers[0].WindowLimit != 60 || tiers[0].Index != 0 {
		t.Errorf("unexpected first tier: %+v", tiers[0])
	}
	if tiers[2].WindowLimit != 0 {
		t.Errorf("expected unlimited last tier, got limit %d", tiers[2].WindowLimit)
	}

	// Models carry their tier attribution.
	m := reg.All()[1]
	if m.Tier != 1 || m.TierName != "groq" {
		t.Errorf("expected tier 1/groq, got %d/%s", m.Tier, m.TierName)
	}
}

func TestLoadEmptyManifestFails(t *testing.T) {
	for name, body := range map[string]string{
		"no tiers":    "version: 1\n",
		"empty tiers": "version: 1\ntiers: []\n",
		"tier without models": `version: 1
tiers:
  - name: vertex
`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeManifest(t, body)); err == nil {
				t.Fatal("expected error for manifest with no models")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeManifest(t, "tiers: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBindUnknownProvider(t *testing.T) {
	reg, err := FromTiers([]*Tier{
		{Name: "t0", Models: []*Model{{Provider: "nonesuch", ID: "m"}}},
	})
	if err != nil {
		t.Fatalf("FromTiers: %v", err)
	}
	if err := reg.Bind(nil, nil); err == nil {
		t.Fatal("expected error binding unknown provider")
	}
}
