// Package registry loads the ordered, tiered list of configured model
// backends. The registry is immutable once loaded; cascade strategies keep
// their own mutable view of it.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

// Model describes one configured backend: a provider, a model id, and the
// tier it belongs to. Lower tier index means higher priority.
type Model struct {
	Provider string `yaml:"provider"`
	ID       string `yaml:"model"`
	Tier     int    `yaml:"-"`
	TierName string `yaml:"-"`
}

// Key returns the unique provider/model identifier used in logs, stats, and
// output records.
func (m *Model) Key() string { return m.Provider + "/" + m.ID }

// Tier is a priority group of models sharing a quota pool.
type Tier struct {
	Name        string   `yaml:"name"`
	WindowLimit int      `yaml:"window_limit"`
	Models      []*Model `yaml:"models"`
	Index       int      `yaml:"-"`
}

type manifest struct {
	Version int     `yaml:"version"`
	Tiers   []*Tier `yaml:"tiers"`
}

// Registry holds the full priority-ordered backend list.
type Registry struct {
	tiers    []*Tier
	models   []*Model
	backends map[string]backend.Backend
}

// Load reads the backends manifest. Zero configured models is a fatal
// configuration error.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backends manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing backends manifest: %w", err)
	}

	return FromTiers(m.Tiers)
}

// FromTiers builds a registry from an already-parsed tier list.
func FromTiers(tiers []*Tier) (*Registry, error) {
	r := &Registry{backends: make(map[string]backend.Backend)}
	for i, t := range tiers {
		t.Index = i
		for _, m := range t.Models {
			m.Tier = i
			m.TierName = t.Name
			r.models = append(r.models, m)
		}
		r.tiers = append(r.tiers, t)
	}

	if len(r.models) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}
	return r, nil
}

// All returns every model in priority order (tier order, then manifest
// order within a tier).
func (r *Registry) All() []*Model {
	out := make([]*Model, len(r.models))
	copy(out, r.models)
	return out
}

// ByTier returns the tiers in priority order.
func (r *Registry) ByTier() []*Tier { return r.tiers }

// Len returns the number of configured models.
func (r *Registry) Len() int { return len(r.models) }

// Bind constructs a backend for every model using the registered provider
// factories. settings supplies per-provider credentials from configuration.
func (r *Registry) Bind(settings map[string]backend.Settings, client *httpclient.Client) error {
	for _, m := range r.models {
		b, err := backend.NewBackend(m.Provider, m.ID, settings[m.Provider], client)
		if err != nil {
			return fmt.Errorf("configuring %s: %w", m.Key(), err)
		}
		r.backends[m.Key()] = b
	}
	return nil
}

// BindBackends installs pre-built backends keyed by model key. Used by
// tests and by callers that construct backends themselves.
func (r *Registry) BindBackends(backends map[string]backend.Backend) {
	for k, b := range backends {
		r.backends[k] = b
	}
}

// Backend returns the bound backend for a model, or nil if Bind was never
// called for it.
func (r *Registry) Backend(m *Model) backend.Backend {
	return r.backends[m.Key()]
}
