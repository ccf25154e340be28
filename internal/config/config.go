// Package config handles Pawprint configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./pawprint.yaml, ~/.config/pawprint/pawprint.yaml, /etc/pawprint/pawprint.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"pawprint.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pawprint", "pawprint.yaml"))
	}

	paths = append(paths, "/etc/pawprint/pawprint.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Pawprint configuration.
type Config struct {
	Listen       ListenConfig    `yaml:"listen"`
	Device       DeviceConfig    `yaml:"device"`
	Owner        OwnerConfig     `yaml:"owner"`
	Providers    ProvidersConfig `yaml:"providers"`
	Generation   GenerationConfig `yaml:"generation"`
	Quota        QuotaConfig     `yaml:"quota"`
	Recovery     RecoveryConfig  `yaml:"recovery"`
	Pipeline     PipelineConfig  `yaml:"pipeline"`
	MQTT         MQTTConfig      `yaml:"mqtt"`
	Holidays     []HolidayConfig `yaml:"holidays"`
	DataDir      string          `yaml:"data_dir"`
	TaxonomyFile string          `yaml:"taxonomy_file"`
	LogLevel     string          `yaml:"log_level"`
	LogFormat    string          `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DeviceConfig identifies this toy on the network.
type DeviceConfig struct {
	// Name is the human-facing toy name, used in diary prompts and MQTT topics.
	Name string `yaml:"name"`
}

// OwnerConfig seeds the context assembler when no richer source is available.
type OwnerConfig struct {
	Name             string   `yaml:"name"`
	UserID           string   `yaml:"user_id"`
	City             string   `yaml:"city"`
	FavoriteWeathers []string `yaml:"favorite_weathers"`
	DislikedWeathers []string `yaml:"disliked_weathers"`
	FavoriteSeasons  []string `yaml:"favorite_seasons"`
	DislikedSeasons  []string `yaml:"disliked_seasons"`
}

// ProvidersConfig defines the LLM providers and their failover order.
type ProvidersConfig struct {
	// Order lists provider names in failover order (e.g. ["ollama", "anthropic"]).
	// The first entry is the primary.
	Order     []string        `yaml:"order"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OllamaConfig defines the local Ollama provider.
type OllamaConfig struct {
	URL   string `yaml:"url"` // Default: http://localhost:11434
	Model string `yaml:"model"`
}

// AnthropicConfig defines the Anthropic API provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GenerationConfig tunes diary generation calls.
type GenerationConfig struct {
	TimeoutSec  int     `yaml:"timeout_sec"`  // Per LLM call (default 30)
	MaxRetries  int     `yaml:"max_retries"`  // Per provider before failover (default 2)
	MaxTokens   int     `yaml:"max_tokens"`   // Default 256
	Temperature float64 `yaml:"temperature"`  // Default 0.8
}

// QuotaConfig bounds the daily diary quota.
type QuotaConfig struct {
	// MinDaily and MaxDaily bound the randomized total drawn at each reset.
	// MinDaily 0 disables regular events entirely (claimed events still pass).
	MinDaily     int `yaml:"min_daily"`      // Default 2
	MaxDaily     int `yaml:"max_daily"`      // Default 5
	ResetPollSec int `yaml:"reset_poll_sec"` // Wall-clock poll for midnight (default 30)
}

// RecoveryConfig tunes the error recovery orchestrator.
type RecoveryConfig struct {
	BreakerFailureThreshold   int `yaml:"breaker_failure_threshold"`    // Default 5
	BreakerRecoveryTimeoutSec int `yaml:"breaker_recovery_timeout_sec"` // Default 60
	BreakerSuccessThreshold   int `yaml:"breaker_success_threshold"`    // Default 1
	RetryMaxAttempts          int `yaml:"retry_max_attempts"`           // Default 3
	RetryBaseDelayMS          int `yaml:"retry_base_delay_ms"`          // Default 500
	RetryMaxDelaySec          int `yaml:"retry_max_delay_sec"`          // Default 60
	EscalationThreshold       int `yaml:"escalation_threshold"`         // Recoveries/hour before critical (default 5)
	ResponseCacheSize         int `yaml:"response_cache_size"`          // Default 64
}

// PipelineConfig tunes event processing concurrency.
type PipelineConfig struct {
	Workers          int `yaml:"workers"`            // Default 4
	QueueSize        int `yaml:"queue_size"`         // Default 256
	ShutdownGraceSec int `yaml:"shutdown_grace_sec"` // Drain window on stop (default 10)
}

// MQTTConfig defines the optional device link.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"` // e.g. mqtt://broker:1883 or mqtts://broker:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // Default: pawprint
}

// HolidayConfig defines one recurring holiday for the timing calculator.
type HolidayConfig struct {
	Name  string `yaml:"name"`
	Month int    `yaml:"month"`
	Day   int    `yaml:"day"`
}

// Load reads configuration from a YAML file, applies defaults, and
// validates. Malformed values are rejected here so they never reach
// dispatch time.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8390},
		Device: DeviceConfig{Name: "pawprint"},
		Providers: ProvidersConfig{
			Order:  []string{"ollama"},
			Ollama: OllamaConfig{URL: "http://localhost:11434", Model: "qwen3:4b"},
		},
		Generation: GenerationConfig{
			TimeoutSec:  30,
			MaxRetries:  2,
			MaxTokens:   256,
			Temperature: 0.8,
		},
		Quota: QuotaConfig{MinDaily: 2, MaxDaily: 5, ResetPollSec: 30},
		Recovery: RecoveryConfig{
			BreakerFailureThreshold:   5,
			BreakerRecoveryTimeoutSec: 60,
			BreakerSuccessThreshold:   1,
			RetryMaxAttempts:          3,
			RetryBaseDelayMS:          500,
			RetryMaxDelaySec:          60,
			EscalationThreshold:       5,
			ResponseCacheSize:         64,
		},
		Pipeline: PipelineConfig{Workers: 4, QueueSize: 256, ShutdownGraceSec: 10},
		MQTT:     MQTTConfig{TopicPrefix: "pawprint"},
		Holidays: []HolidayConfig{
			{Name: "New Year", Month: 1, Day: 1},
			{Name: "Spring Festival", Month: 2, Day: 17},
			{Name: "Children's Day", Month: 6, Day: 1},
			{Name: "Mid-Autumn Festival", Month: 10, Day: 6},
			{Name: "National Day", Month: 10, Day: 1},
			{Name: "Christmas", Month: 12, Day: 25},
		},
		DataDir:   "data",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat)
	}

	if c.Quota.MinDaily < 0 || c.Quota.MaxDaily < c.Quota.MinDaily {
		return fmt.Errorf("quota: min_daily %d / max_daily %d (need 0 <= min <= max)",
			c.Quota.MinDaily, c.Quota.MaxDaily)
	}
	if c.Quota.ResetPollSec <= 0 {
		return fmt.Errorf("quota: reset_poll_sec must be positive, got %d", c.Quota.ResetPollSec)
	}

	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers: order must name at least one provider")
	}
	for _, name := range c.Providers.Order {
		switch name {
		case "ollama", "anthropic":
		default:
			return fmt.Errorf("providers: unknown provider %q in order (valid: ollama, anthropic)", name)
		}
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline: queue_size must be at least 1, got %d", c.Pipeline.QueueSize)
	}

	if c.Recovery.BreakerFailureThreshold < 1 || c.Recovery.BreakerSuccessThreshold < 1 {
		return fmt.Errorf("recovery: breaker thresholds must be at least 1")
	}

	for _, h := range c.Holidays {
		if h.Name == "" {
			return fmt.Errorf("holidays: entry with empty name")
		}
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return fmt.Errorf("holidays: %s has invalid date %d/%d", h.Name, h.Month, h.Day)
		}
	}

	return nil
}
