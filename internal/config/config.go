package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Agent     AgentConfig     `toml:"agent"`
	Citations CitationsConfig `toml:"citations"`
	Web       WebConfig       `toml:"web"`
	Notify    NotifyConfig    `toml:"notify"`

	// APIKey comes from the environment, never from the file
	APIKey string `toml:"-"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	ProjectRoot  string `toml:"project_root"`
}

// AgentConfig holds remote research agent settings
type AgentConfig struct {
	BaseURL             string `toml:"base_url"`
	Name                string `toml:"name"`
	ThinkingSummaries   string `toml:"thinking_summaries"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `toml:"poll_timeout_seconds"`
}

// CitationsConfig holds citation processing settings
type CitationsConfig struct {
	ResolveRedirects      bool   `toml:"resolve_redirects"`
	ResolveTimeoutSeconds int    `toml:"resolve_timeout_seconds"`
	RedirectIndicator     string `toml:"redirect_indicator"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// NotifyConfig holds completion notification settings
type NotifyConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// apiKeyEnv is the environment variable carrying the agent credential
const apiKeyEnv = "GEMINI_API_KEY"

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".research-orchestrator", "research.db"),
		},
		Agent: AgentConfig{
			Name:                "deep-research-pro-preview-12-2025",
			ThinkingSummaries:   "auto",
			PollIntervalSeconds: 10,
			PollTimeoutSeconds:  1800,
		},
		Citations: CitationsConfig{
			ResolveRedirects:      true,
			ResolveTimeoutSeconds: 10,
			RedirectIndicator:     "grounding-api-redirect",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// The API key is read from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.APIKey = os.Getenv(apiKeyEnv)

	return cfg, nil
}

// RequireAPIKey fails when the agent credential is missing. Commands
// that never talk to the remote agent skip this check.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("%s environment variable is not set", apiKeyEnv)
	}
	return nil
}

// PollInterval returns the poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Agent.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the poll timeout as a duration
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Agent.PollTimeoutSeconds) * time.Second
}

// ResolveTimeout returns the redirect resolution timeout as a duration
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Citations.ResolveTimeoutSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "research-orchestrator", "config.toml")
}
