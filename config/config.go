// Package config provides configuration loading and management for Platewise.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platewise/platewise/model"
)

// Config represents the complete Platewise configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Log      LogConfig      `yaml:"log"`
	NATS     NATSConfig     `yaml:"nats"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// ReadTimeout bounds request reads
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds response writes; must exceed the pipeline total
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ModelsConfig configures capability-based model selection
type ModelsConfig struct {
	// Capabilities maps capability names to model preference lists
	Capabilities map[string]*model.CapabilityConfig `yaml:"capabilities"`
	// Endpoints maps model names to provider endpoints
	Endpoints map[string]*model.EndpointConfig `yaml:"endpoints"`
}

// PipelineConfig configures verification run behavior
type PipelineConfig struct {
	// GeneratorTimeout is the draft-generation stage deadline
	GeneratorTimeout time.Duration `yaml:"generator_timeout"`
	// ValidatorTimeout is the review stage deadline
	ValidatorTimeout time.Duration `yaml:"validator_timeout"`
	// ModifiedDelta is the character delta at which a validator rewrite
	// counts as a content modification
	ModifiedDelta int `yaml:"modified_delta"`
	// MaxItems bounds the inventory list size
	MaxItems int `yaml:"max_items"`
	// MaxItemLength bounds each inventory item
	MaxItemLength int `yaml:"max_item_length"`
}

// CacheConfig configures the verification cache
type CacheConfig struct {
	// TTL is how long verified results stay fresh
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries bounds the in-memory cache size
	MaxEntries int `yaml:"max_entries"`
}

// PricingConfig configures the price lookup fan-out
type PricingConfig struct {
	// BaseURL is the product search API root (empty = pricing disabled)
	BaseURL string `yaml:"base_url"`
	// TopN is how many products to keep per item
	TopN int `yaml:"top_n"`
	// PerItemTimeout is the nested deadline for each item lookup
	PerItemTimeout time.Duration `yaml:"per_item_timeout"`
	// MaxConcurrent bounds in-flight lookups
	MaxConcurrent int `yaml:"max_concurrent"`
}

// LogConfig configures the execution audit log
type LogConfig struct {
	// Capacity bounds retained entries; oldest are evicted first
	Capacity int `yaml:"capacity"`
}

// NATSConfig configures the optional execution log mirror
type NATSConfig struct {
	// URL is the NATS server URL (empty = mirroring disabled)
	URL string `yaml:"url"`
	// Subject is the publish subject for finalized entries
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
		},
		Models: ModelsConfig{
			Capabilities: nil, // model.NewDefaultRegistry when empty
			Endpoints:    nil,
		},
		Pipeline: PipelineConfig{
			GeneratorTimeout: 60 * time.Second,
			ValidatorTimeout: 45 * time.Second,
			ModifiedDelta:    256,
			MaxItems:         30,
			MaxItemLength:    80,
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 4096,
		},
		Pricing: PricingConfig{
			BaseURL:        "",
			TopN:           3,
			PerItemTimeout: 10 * time.Second,
			MaxConcurrent:  8,
		},
		Log: LogConfig{
			Capacity: 1000,
		},
		NATS: NATSConfig{
			URL:     "",
			Subject: "platewise.execlog.entry",
		},
	}
}

// Registry builds a model registry from the models section, falling back
// to the built-in defaults when the section is empty.
func (c *Config) Registry() *model.Registry {
	if len(c.Models.Capabilities) == 0 && len(c.Models.Endpoints) == 0 {
		return model.NewDefaultRegistry()
	}
	caps := make(map[model.Capability]*model.CapabilityConfig, len(c.Models.Capabilities))
	for name, cfg := range c.Models.Capabilities {
		caps[model.Capability(name)] = cfg
	}
	return model.NewRegistry(caps, c.Models.Endpoints)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Pipeline.GeneratorTimeout <= 0 {
		return fmt.Errorf("pipeline.generator_timeout must be positive")
	}
	if c.Pipeline.ValidatorTimeout <= 0 {
		return fmt.Errorf("pipeline.validator_timeout must be positive")
	}
	if c.Pipeline.MaxItems <= 0 {
		return fmt.Errorf("pipeline.max_items must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Log.Capacity <= 0 {
		return fmt.Errorf("log.capacity must be positive")
	}
	for name, cap := range c.Models.Capabilities {
		if cap == nil || len(cap.Preferred) == 0 {
			return fmt.Errorf("models.capabilities.%s needs at least one preferred model", name)
		}
	}
	for name, ep := range c.Models.Endpoints {
		if ep == nil || ep.Provider == "" {
			return fmt.Errorf("models.endpoints.%s needs a provider", name)
		}
		if ep.Model == "" {
			return fmt.Errorf("models.endpoints.%s needs a model identifier", name)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}

	// Models: capability and endpoint maps replace wholesale when present
	if len(other.Models.Capabilities) > 0 {
		c.Models.Capabilities = other.Models.Capabilities
	}
	if len(other.Models.Endpoints) > 0 {
		c.Models.Endpoints = other.Models.Endpoints
	}

	// Pipeline
	if other.Pipeline.GeneratorTimeout != 0 {
		c.Pipeline.GeneratorTimeout = other.Pipeline.GeneratorTimeout
	}
	if other.Pipeline.ValidatorTimeout != 0 {
		c.Pipeline.ValidatorTimeout = other.Pipeline.ValidatorTimeout
	}
	if other.Pipeline.ModifiedDelta != 0 {
		c.Pipeline.ModifiedDelta = other.Pipeline.ModifiedDelta
	}
	if other.Pipeline.MaxItems != 0 {
		c.Pipeline.MaxItems = other.Pipeline.MaxItems
	}
	if other.Pipeline.MaxItemLength != 0 {
		c.Pipeline.MaxItemLength = other.Pipeline.MaxItemLength
	}

	// Cache
	if other.Cache.TTL != 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}

	// Pricing
	if other.Pricing.BaseURL != "" {
		c.Pricing.BaseURL = other.Pricing.BaseURL
	}
	if other.Pricing.TopN != 0 {
		c.Pricing.TopN = other.Pricing.TopN
	}
	if other.Pricing.PerItemTimeout != 0 {
		c.Pricing.PerItemTimeout = other.Pricing.PerItemTimeout
	}
	if other.Pricing.MaxConcurrent != 0 {
		c.Pricing.MaxConcurrent = other.Pricing.MaxConcurrent
	}

	// Log
	if other.Log.Capacity != 0 {
		c.Log.Capacity = other.Log.Capacity
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
}
