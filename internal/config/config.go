// Package config handles freshagent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/freshagent/config.yaml,
// /etc/freshagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "freshagent", "config.yaml"))
	}

	paths = append(paths, "/etc/freshagent/config.yaml")
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

// Config holds all freshagent configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Provider    ProviderConfig    `yaml:"provider"`
	FreshAlert  FreshAlertConfig  `yaml:"freshalert"`
	Spoonacular SpoonacularConfig `yaml:"spoonacular"`
	Engine      EngineConfig      `yaml:"engine"`
	Vision      VisionConfig      `yaml:"vision"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig defines the chat-completion provider binding.
// Any OpenAI-compatible endpoint works; the vision and summary models
// default to Model when unset.
type ProviderConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	VisionModel  string `yaml:"vision_model"`
	SummaryModel string `yaml:"summary_model"`
}

// EffectiveVisionModel returns the model used for image description sub-calls.
func (p ProviderConfig) EffectiveVisionModel() string {
	if p.VisionModel != "" {
		return p.VisionModel
	}
	return p.Model
}

// EffectiveSummaryModel returns the model used for summarization sub-calls.
func (p ProviderConfig) EffectiveSummaryModel() string {
	if p.SummaryModel != "" {
		return p.SummaryModel
	}
	return p.Model
}

// FreshAlertConfig defines the Fresh Alert API connection.
type FreshAlertConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
}

// SpoonacularConfig defines the Spoonacular API connection.
type SpoonacularConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// EngineConfig tunes the turn orchestration engine.
type EngineConfig struct {
	// CompactionThreshold is the number of turns past the watermark that
	// triggers summarization. The default of 8 matches the conversation
	// policy the agent was tuned with.
	CompactionThreshold int `yaml:"compaction_threshold"`
	// ToolTimeoutSec bounds each individual tool call (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// MaxToolRounds caps generate→execute loops per invocation (default 25).
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// VisionConfig tunes image preprocessing.
type VisionConfig struct {
	// MaxDimension is the resize bound applied before the vision sub-call
	// (default 512). Smaller images cost fewer tokens.
	MaxDimension int `yaml:"max_dimension"`
	// JPEGQuality is the recompression quality, 1-100 (default 80).
	JPEGQuality int `yaml:"jpeg_quality"`
	// Optimize enables downsampling/recompression before the sub-call.
	Optimize bool `yaml:"optimize"`
	// TimeoutSec bounds each vision sub-call (default 60).
	TimeoutSec int `yaml:"timeout_sec"`
}

// CheckpointConfig tunes session state persistence.
type CheckpointConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalMin int  `yaml:"interval_min"` // default 15
	MaxAgeDays  int  `yaml:"max_age_days"` // prune horizon, default 7
	MinKeep     int  `yaml:"min_keep"`     // default 5
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Provider: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-5-mini",
		},
		FreshAlert: FreshAlertConfig{
			BaseURL: "https://api.fresh-alert.app",
		},
		Spoonacular: SpoonacularConfig{
			BaseURL: "https://api.spoonacular.com",
		},
		Engine: EngineConfig{
			CompactionThreshold: 8,
			ToolTimeoutSec:      30,
			MaxToolRounds:       25,
		},
		Vision: VisionConfig{
			MaxDimension: 512,
			JPEGQuality:  80,
			Optimize:     true,
			TimeoutSec:   60,
		},
		Checkpoint: CheckpointConfig{
			Enabled:     true,
			IntervalMin: 15,
			MaxAgeDays:  7,
			MinKeep:     5,
		},
		DataDir: ".",
	}
}
