// Package config loads zenyth's configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the ZENYTH_CONFIG environment variable. Without either, defaults are
// used. A small set of environment variables then override file values
// so the server can be configured from a process manager.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in llm.provider.
const (
	ProviderCLI  = "cli"
	ProviderHTTP = "http"
	ProviderMock = "mock"
)

var validProviders = map[string]bool{
	ProviderCLI:  true,
	ProviderHTTP: true,
	ProviderMock: true,
}

// DefaultPort is the wrapper's listen port when PORT is unset.
const DefaultPort = 3001

// Config is the full application configuration.
type Config struct {
	// DataDir holds the SQLite database. Default: ~/.zenyth
	DataDir string `yaml:"data_dir"`

	// PhasesDir, when set, is overlaid on the embedded phase configs
	// and watched for changes.
	PhasesDir string `yaml:"phases_dir"`

	// LogFile redirects logs from stderr.
	LogFile string `yaml:"log_file"`

	LLM           LLMConfig           `yaml:"llm"`
	CLI           CLIConfig           `yaml:"cli"`
	Wrapper       WrapperConfig       `yaml:"wrapper"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
}

// LLMConfig selects and configures the provider used by the LLM phases.
type LLMConfig struct {
	// Provider is one of cli, http or mock.
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// MockResponses are replayed by the mock provider.
	MockResponses []string `yaml:"mock_responses"`
}

// CLIConfig configures the command-line AI tool.
type CLIConfig struct {
	Binary         string   `yaml:"binary"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	WorkDir        string   `yaml:"work_dir"`
	ExtraArgs      []string `yaml:"extra_args"`
}

// WrapperConfig configures the OpenAI-compatible HTTP wrapper.
type WrapperConfig struct {
	Port int `yaml:"port"`

	// APIKey, when set, is required as a Bearer token.
	APIKey string `yaml:"api_key"`

	// Models is the static list served by /v1/models.
	Models []string `yaml:"models"`

	MaxConcurrent   int    `yaml:"max_concurrent"`
	ContinueSession bool   `yaml:"continue_session"`
	ServiceName     string `yaml:"service_name"`
}

// OrchestrationConfig bounds workflow runs.
type OrchestrationConfig struct {
	MaxPhaseVisits int `yaml:"max_phase_visits"`
	MaxSteps       int `yaml:"max_steps"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".zenyth"),
		LLM: LLMConfig{
			Provider:       ProviderCLI,
			TimeoutSeconds: 300,
		},
		CLI: CLIConfig{
			Binary:         "claude",
			TimeoutSeconds: 300,
		},
		Wrapper: WrapperConfig{
			Port:          DefaultPort,
			Models:        []string{"claude-code"},
			MaxConcurrent: 1,
			ServiceName:   "zenyth-openai-wrapper",
		},
		Orchestration: OrchestrationConfig{
			MaxPhaseVisits: 1,
			MaxSteps:       20,
		},
	}
}

// Load reads the file at path, or at $ZENYTH_CONFIG when path is empty,
// then applies environment overrides. With no file at all, defaults are
// used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ZENYTH_CONFIG")
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.DataDir = os.ExpandEnv(cfg.DataDir)
	cfg.PhasesDir = os.ExpandEnv(cfg.PhasesDir)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv applies the environment overrides. Empty variables are ignored.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Wrapper.Port = port
	}
	overrides := []struct {
		env string
		dst *string
	}{
		{"ZENYTH_DATA_DIR", &c.DataDir},
		{"ZENYTH_LLM_PROVIDER", &c.LLM.Provider},
		{"ZENYTH_LLM_BASE_URL", &c.LLM.BaseURL},
		{"ZENYTH_LLM_MODEL", &c.LLM.Model},
		{"ZENYTH_LLM_API_KEY", &c.LLM.APIKey},
		{"ZENYTH_API_KEY", &c.Wrapper.APIKey},
		{"ZENYTH_CLI_BINARY", &c.CLI.Binary},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	return nil
}

// LLMTimeout is the HTTP provider request timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// CLITimeout is the per-invocation timeout of the CLI tool.
func (c *Config) CLITimeout() time.Duration {
	return time.Duration(c.CLI.TimeoutSeconds) * time.Second
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, fmt.Errorf("llm.provider %q must be one of: cli, http, mock", c.LLM.Provider))
	}
	if c.LLM.Provider == ProviderHTTP && c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required for the http provider"))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("llm.timeout_seconds must be positive"))
	}
	if c.CLI.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("cli.timeout_seconds must be positive"))
	}
	if c.CLI.Binary == "" {
		errs = append(errs, errors.New("cli.binary is required"))
	}
	if len(c.Wrapper.Models) == 0 {
		errs = append(errs, errors.New("wrapper.models must list at least one model"))
	}
	if c.Wrapper.Port <= 0 || c.Wrapper.Port > 65535 {
		errs = append(errs, fmt.Errorf("wrapper.port %d is out of range", c.Wrapper.Port))
	}
	if c.Wrapper.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("wrapper.max_concurrent must be positive"))
	}
	return errors.Join(errs...)
}
