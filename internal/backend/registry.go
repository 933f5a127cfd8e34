package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openlexica/lexcascade/internal/httpclient"
)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a provider factory to the global registry. Called from
// provider package init functions.
func Register(provider string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[provider] = f
}

// NewBackend constructs a backend for the given provider and model.
func NewBackend(provider, model string, settings Settings, client *httpclient.Client) (Backend, error) {
	mu.RLock()
	f, ok := factories[provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	return f(model, settings, client)
}

// Providers returns all registered provider names, sorted.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
