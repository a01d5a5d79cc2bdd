package model

import (
	"sync"
)

// Registry manages model selection based on capabilities.
// Selection is deterministic: the first preferred model that has a
// configured endpoint wins. Implementations are never raced or
// load-balanced against each other.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description" yaml:"description"`

	// Preferred lists models in order of preference.
	// The first model with a configured endpoint is used.
	Preferred []string `json:"preferred" yaml:"preferred"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (anthropic, openai).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API endpoint URL (empty = provider default).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
	}
}

// NewDefaultRegistry creates a registry with sensible defaults.
// Used when no configuration is provided.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityGenerate: {
				Description: "Fast draft generation",
				Preferred:   []string{"gpt-mini"},
			},
			CapabilityValidate: {
				Description: "Careful review and correction of drafts",
				Preferred:   []string{"claude-sonnet", "gpt-full"},
			},
		},
		map[string]*EndpointConfig{
			"gpt-mini": {
				Provider: "openai",
				Model:    "gpt-4o-mini",
			},
			"gpt-full": {
				Provider: "openai",
				Model:    "gpt-4o",
			},
			"claude-sonnet": {
				Provider: "anthropic",
				Model:    "claude-sonnet-4-20250514",
			},
		},
	)
}

// Resolve returns the selected model for a capability: the first entry of
// the preference list that has a configured endpoint. Returns "" when
// nothing usable is configured.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.capabilities[cap]
	if !ok {
		return ""
	}
	for _, name := range cfg.Preferred {
		if _, ok := r.endpoints[name]; ok {
			return name
		}
	}
	return ""
}

// Preference returns the full preference list for a capability.
func (r *Registry) Preference(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		return append([]string(nil), cfg.Preferred...)
	}
	return nil
}

// GetEndpoint returns the endpoint configuration for a model name.
// Returns nil if the model is not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(cap Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.capabilities[cap] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[name] = cfg
}

// ListEndpoints returns all configured endpoint names.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}

// Replace swaps the registry contents atomically. Used by config reload.
func (r *Registry) Replace(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caps != nil {
		r.capabilities = caps
	}
	if endpoints != nil {
		r.endpoints = endpoints
	}
}
