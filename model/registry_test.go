package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_FirstConfiguredWins(t *testing.T) {
	r := NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityValidate: {
				Preferred: []string{"missing-model", "claude-sonnet", "gpt-full"},
			},
		},
		map[string]*EndpointConfig{
			"claude-sonnet": {Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
			"gpt-full":      {Provider: "openai", Model: "gpt-4o"},
		},
	)

	// Entries without an endpoint are skipped; selection stays deterministic.
	assert.Equal(t, "claude-sonnet", r.Resolve(CapabilityValidate))
	assert.Equal(t, "claude-sonnet", r.Resolve(CapabilityValidate))
}

func TestResolve_NothingConfigured(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.Equal(t, "", r.Resolve(CapabilityGenerate))
}

func TestReplace_SwapsEndpoints(t *testing.T) {
	r := NewDefaultRegistry()
	assert.NotEqual(t, "", r.Resolve(CapabilityGenerate))

	r.Replace(
		map[Capability]*CapabilityConfig{
			CapabilityGenerate: {Preferred: []string{"local"}},
		},
		map[string]*EndpointConfig{
			"local": {Provider: "openai", URL: "http://localhost:8080/v1", Model: "local-model"},
		},
	)

	assert.Equal(t, "local", r.Resolve(CapabilityGenerate))
	ep := r.GetEndpoint("local")
	assert.NotNil(t, ep)
	assert.Equal(t, "http://localhost:8080/v1", ep.URL)
}

func TestParseCapability(t *testing.T) {
	assert.Equal(t, CapabilityGenerate, ParseCapability("generate"))
	assert.Equal(t, CapabilityValidate, ParseCapability("validate"))
	assert.Equal(t, Capability(""), ParseCapability("planning"))
}
