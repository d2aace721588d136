package agentcore

import (
	"fmt"
	"sync"
)

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderOpenAI covers OpenAI-compatible chat completion backends
	ProviderOpenAI ProviderID = "openai"

	// ProviderLorem is the mock provider for testing and development
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// ProviderRegistry routes models to providers. Registration order is
// selection order: Select returns the first registered provider that
// reports support for the model.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{}
}

// Register adds a provider. Registering the same provider ID twice is an
// error; swap configurations by building a new registry.
func (r *ProviderRegistry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("provider %s is already registered", p.Name())
		}
	}
	r.providers = append(r.providers, p)
	return nil
}

// Select returns the first registered provider that supports the model.
func (r *ProviderRegistry) Select(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, &ModelError{
		Model:  model,
		Reason: "no registered provider supports this model",
		Err:    ErrInvalidModel,
	}
}

// Providers returns the registered providers in registration order.
func (r *ProviderRegistry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
