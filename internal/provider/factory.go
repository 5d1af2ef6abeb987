package provider

import (
	"sort"
	"sync"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/fault"
)

// Factory builds an Adapter from a validated AIConfig.
type Factory func(cfg config.AIConfig) Adapter

var (
	regMu     sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory installs a constructor for a provider name. Adapter
// subpackages call this from init; main links them with blank imports.
func RegisterFactory(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
}

// Names returns the registered provider names, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New validates the configuration and builds the matching Adapter.
func New(cfg config.AIConfig) (Adapter, error) {
	if err := config.ValidateAI(cfg); err != nil {
		return nil, err
	}

	regMu.RLock()
	f, ok := factories[cfg.Provider]
	regMu.RUnlock()
	if !ok {
		return nil, fault.New(fault.InvalidParameters, "unknown provider: %s", cfg.Provider)
	}
	return f(cfg), nil
}
