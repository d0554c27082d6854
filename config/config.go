// Package config loads the JSON configuration file and the optional .env
// files next to it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/danmt/hub-spoke-cm-sub000/evolution"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
	"github.com/danmt/hub-spoke-cm-sub000/logging"
)

const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"

	DefaultServerAddr = "127.0.0.1:8080"
	DefaultWorkspace  = "."
)

// Config is the whole runtime configuration.
type Config struct {
	LLM             LLMConfig `json:"llm"`
	ServerAddr      string    `json:"server_addr,omitempty"`
	Workspace       string    `json:"workspace,omitempty"`
	LogLevel        string    `json:"log_level,omitempty"`
	LogFormat       string    `json:"log_format,omitempty"`
	FeedbackBackend string    `json:"feedback_backend,omitempty"`
	SQLitePath      string    `json:"sqlite_path,omitempty"`
	MetricsFile     string    `json:"metrics_file,omitempty"`
	ConflictPolicy  string    `json:"conflict_policy,omitempty"`
}

// LLMConfig selects the completion provider. APIKeyEnv names an environment
// variable holding the key when APIKey is empty.
type LLMConfig struct {
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
}

var defaultKeyEnv = map[string]string{
	"openai":   "OPENAI_API_KEY",
	"deepseek": "DEEPSEEK_API_KEY",
	"gemini":   "GEMINI_API_KEY",
}

// LoadDotEnv loads .env from the config directory and the working
// directory. Variables already set are never overwritten.
func LoadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	seen := make(map[string]bool)
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %s: %w", abs, err)
		}
	}
	return nil
}

// LoadConfig reads JSON config from disk, fills defaults and resolves the
// API key from the environment.
func LoadConfig(path string) (Config, error) {
	if err := LoadDotEnv(path); err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.Workspace != "" && !filepath.IsAbs(cfg.Workspace) {
		cfg.Workspace = filepath.Join(filepath.Dir(path), cfg.Workspace)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is used when no config file exists. Only the working directory
// .env is consulted.
func Default() (Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return Config{}, err
	}
	var cfg Config
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	if c.Workspace == "" {
		c.Workspace = DefaultWorkspace
	}
	if c.FeedbackBackend == "" {
		c.FeedbackBackend = BackendJSONL
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.APIKey == "" {
		env := c.LLM.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[c.LLM.Provider]
		}
		if env != "" {
			c.LLM.APIKey = os.Getenv(env)
		}
	}
}

// Validate checks values that would otherwise fail late. Provider
// credentials are checked when the client is built.
func (c Config) Validate() error {
	var errs []error
	switch c.FeedbackBackend {
	case BackendJSONL:
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("feedback_backend sqlite requires sqlite_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feedback_backend %q", c.FeedbackBackend))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, ok := evolution.ParsePolicy(c.ConflictPolicy); !ok {
		errs = append(errs, fmt.Errorf("unknown conflict_policy %q", c.ConflictPolicy))
	}
	return errors.Join(errs...)
}

// Settings converts the LLM section for llm.New.
func (c Config) Settings() llm.Settings {
	return llm.Settings{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}

// Policy returns the configured conflict policy.
func (c Config) Policy() evolution.Policy {
	p, _ := evolution.ParsePolicy(c.ConflictPolicy)
	return p
}
