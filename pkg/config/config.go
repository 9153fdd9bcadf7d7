// Package config loads tailorcore's on-disk configuration: the
// candidate's curriculum location, API credentials, and the run-level
// defaults (worker pool size, budgets, pandoc template) every job falls
// back to unless a flag overrides it.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// Config represents the application configuration.
type Config struct {
	Name               string        `json:"name"`
	AnthropicAPIKey    string        `json:"anthropic_api_key"`
	CurriculumLocation string        `json:"curriculum_location"`
	StoreLocation      string        `json:"store_location"`
	CompleteResumeURL  string        `json:"complete_resume_url,omitempty"`
	LinkedInURL        string        `json:"linkedin_url,omitempty"`
	Pandoc             PandocConfig  `json:"pandoc"`
	Defaults           DefaultConfig `json:"defaults"`
	Run                RunDefaults   `json:"run"`
}

// PandocConfig holds pandoc-related configuration.
type PandocConfig struct {
	TemplatePath string `json:"template_path"`
	ClassFile    string `json:"class_file"`
}

// DefaultConfig holds default values for commands.
type DefaultConfig struct {
	OutputDir string `json:"output_dir"`
}

// RunDefaults maps onto domain.RunConfig for jobs that don't override
// them on the command line.
type RunDefaults struct {
	BudgetTokens   int            `json:"budget_tokens"`
	BudgetSeconds  int            `json:"budget_seconds"`
	WorkerPoolSize int            `json:"worker_pool_size"`
	ProviderLimits map[string]int `json:"provider_limits,omitempty"`
}

// ToRunConfig builds a domain.RunConfig from the configured defaults.
func (r RunDefaults) ToRunConfig(tierOverride domain.Tier) domain.RunConfig {
	return domain.RunConfig{
		TierOverride:   tierOverride,
		BudgetTokens:   r.BudgetTokens,
		BudgetSeconds:  r.BudgetSeconds,
		ProviderLimits: r.ProviderLimits,
	}
}

// Load reads configuration from file with environment variable overrides.
func Load(configPath string) (cfg Config, err error) {
	path := configPath
	if path == "" {
		var homeDir string
		homeDir, err = os.UserHomeDir()
		if err != nil {
			err = errors.Wrap(err, "failed to get user home directory")
			return cfg, err
		}
		path = filepath.Join(homeDir, ".tailorcore", "config.json")
	}

	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = errors.Errorf("config file not found: %s (run 'tailorcore init' to create)", path)
			return cfg, err
		}
		err = errors.Wrapf(err, "failed to read config file: %s", path)
		return cfg, err
	}

	if err = json.Unmarshal(data, &cfg); err != nil {
		err = errors.Wrapf(err, "failed to parse config file: %s", path)
		return cfg, err
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.AnthropicAPIKey = apiKey
	}

	if cfg.Run.WorkerPoolSize <= 0 {
		cfg.Run.WorkerPoolSize = 4
	}

	if err = cfg.Validate(); err != nil {
		err = errors.Wrap(err, "config validation failed")
		return cfg, err
	}

	return cfg, err
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() (err error) {
	if c.Name == "" {
		return errors.New("name is required in config")
	}

	if c.AnthropicAPIKey == "" {
		return errors.New("anthropic_api_key is required (set in config or ANTHROPIC_API_KEY env var)")
	}

	if c.CurriculumLocation == "" {
		return errors.New("curriculum_location is required in config")
	}

	if _, err = os.Stat(c.CurriculumLocation); os.IsNotExist(err) {
		return errors.Errorf("curriculum file not found: %s", c.CurriculumLocation)
	}

	if c.Defaults.OutputDir == "" {
		c.Defaults.OutputDir = "./applications"
	}

	if c.StoreLocation == "" {
		c.StoreLocation = filepath.Join(filepath.Dir(c.CurriculumLocation), "tailorcore.db")
	}

	return nil
}

// InitConfig creates a default configuration file.
func InitConfig(configPath string) (err error) {
	path := configPath
	if path == "" {
		var homeDir string
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		path = filepath.Join(homeDir, ".tailorcore", "config.json")
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "failed to create config directory: %s", filepath.Dir(path))
	}

	if _, statErr := os.Stat(path); statErr == nil {
		return errors.Errorf("config file already exists: %s", path)
	}

	defaultCfg := Config{
		Name:               "your-name",
		AnthropicAPIKey:    "sk-ant-api03-...",
		CurriculumLocation: filepath.Join(filepath.Dir(path), "curriculum.json"),
		Pandoc: PandocConfig{
			TemplatePath: filepath.Join(filepath.Dir(path), "resume-template.latex"),
			ClassFile:    filepath.Join(filepath.Dir(path), "resume.cls"),
		},
		Defaults: DefaultConfig{OutputDir: "./applications"},
		Run:      RunDefaults{WorkerPoolSize: 4, BudgetSeconds: 240},
	}

	data, err := json.MarshalIndent(defaultCfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if err = os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}

	return nil
}
