// Package config loads runtime configuration from a YAML file plus a
// dotenv overlay, and builds the provider registry from the result.
// Configuration is passed explicitly to constructors; nothing in this
// module reads process-wide state after loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	agentcore "github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/providers/anthropic"
	"github.com/haowjy/meridian-agent-go/providers/lorem"
	"github.com/haowjy/meridian-agent-go/providers/openai"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return d.Std().String() }

// Config is the full runtime configuration.
type Config struct {
	DefaultModel string           `yaml:"default_model"`
	Providers    ProvidersConfig  `yaml:"providers"`
	Delegation   DelegationConfig `yaml:"delegation"`
	Jobs         JobsConfig       `yaml:"jobs"`
}

// ProvidersConfig holds per-backend settings. API keys left empty here
// are filled from the environment (OPENAI_API_KEY, ANTHROPIC_API_KEY),
// which a discovered .env file may populate.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig configures the chat-completions backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// DelegationConfig sets scheduler defaults.
type DelegationConfig struct {
	MaxConcurrentAgents int      `yaml:"max_concurrent_agents"`
	DefaultTaskTimeout  Duration `yaml:"default_task_timeout"`
	// Budget caps running tasks across recursive dispatch levels when
	// > 0; 0 leaves nesting uncapped.
	Budget int `yaml:"budget"`
}

// JobsConfig sets async poller defaults.
type JobsConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	PollTimeout  Duration `yaml:"poll_timeout"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DefaultModel: "lorem-fast",
		Delegation: DelegationConfig{
			MaxConcurrentAgents: 4,
			DefaultTaskTimeout:  Duration(2 * time.Minute),
		},
		Jobs: JobsConfig{
			PollInterval: Duration(2 * time.Second),
			PollTimeout:  Duration(5 * time.Minute),
		},
	}
}

// Load reads the YAML file at path over the defaults, then overlays
// environment variables. An empty path skips the file and loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile walks from the working directory toward the filesystem
// root looking for a .env file and loads the first one found into the
// process environment without overriding variables already set. A
// missing .env is not an error.
func LoadEnvFile() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return godotenv.Load(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Providers.Anthropic.APIKey == "" {
		c.Providers.Anthropic.APIKey = key
	}
}

func (c *Config) validate() error {
	if c.Delegation.MaxConcurrentAgents < 1 {
		return fmt.Errorf("delegation.max_concurrent_agents must be at least 1, got %d",
			c.Delegation.MaxConcurrentAgents)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	if c.Jobs.PollTimeout <= 0 {
		return fmt.Errorf("jobs.poll_timeout must be positive, got %s", c.Jobs.PollTimeout)
	}
	return nil
}

// BuildRegistry constructs the provider registry for this config. The
// mock provider is always available; real backends register only when
// their API key is configured.
func (c *Config) BuildRegistry() (*agentcore.ProviderRegistry, error) {
	registry := agentcore.NewProviderRegistry()

	if key := c.Providers.Anthropic.APIKey; key != "" {
		provider, err := anthropic.NewProvider(key)
		if err != nil {
			return nil, fmt.Errorf("configuring anthropic provider: %w", err)
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	if key := c.Providers.OpenAI.APIKey; key != "" {
		var opts []openai.Option
		if c.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.Providers.OpenAI.BaseURL))
		}
		if rps := c.Providers.OpenAI.RequestsPerSecond; rps > 0 {
			burst := c.Providers.OpenAI.Burst
			if burst < 1 {
				burst = 1
			}
			opts = append(opts, openai.WithRateLimit(rps, burst))
		}
		provider, err := openai.NewProvider(key, opts...)
		if err != nil {
			return nil, fmt.Errorf("configuring openai provider: %w", err)
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	if err := registry.Register(lorem.NewProvider()); err != nil {
		return nil, err
	}
	return registry, nil
}
