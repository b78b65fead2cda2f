// Package config loads the top-level AllBeads configuration: the set of
// Boss contexts (rigs) the aggregator and sheriff operate over, plus
// their optional external-integration settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/allbeads/allbeads/internal/graph"
)

// DefaultPath is where the config is looked up if no path is given
// explicitly: ~/.config/allbeads/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "allbeads", "config.toml"), nil
}

// JiraIntegration configures the JIRA half of ExternalSyncer for one
// context.
type JiraIntegration struct {
	BaseURL      string `toml:"base_url"`
	ProjectKey   string `toml:"project_key"`
	TokenEnvVar  string `toml:"token_env_var"`
}

// GitHubIntegration configures the GitHub half of ExternalSyncer for one
// context.
type GitHubIntegration struct {
	BaseURL     string `toml:"base_url"` // "github.com" or a GHE host
	Owner       string `toml:"owner"`
	Repo        string `toml:"repo"`
	TokenEnvVar string `toml:"token_env_var"`
}

// BossContext is one aggregation root: a named rig plus its integration
// settings.
type BossContext struct {
	Name       string `toml:"name"`
	Path       string `toml:"path"`
	Remote     string `toml:"remote"`
	Branch     string `toml:"branch"`
	AuthRaw    string `toml:"auth_strategy"`
	AuthEnvVar string `toml:"auth_env_var"`
	Prefix     string `toml:"prefix"`

	Jira   *JiraIntegration   `toml:"jira"`
	GitHub *GitHubIntegration `toml:"github"`
}

// Auth parses the context's configured auth strategy.
func (c *BossContext) Auth() graph.AuthStrategy {
	return graph.ParseAuthStrategy(c.AuthRaw)
}

// Config is the top-level AllBeads configuration.
type Config struct {
	AgentName    string        `toml:"agent_name"` // used in egress completion comments
	PollInterval int           `toml:"poll_interval_seconds"`
	CachePath    string        `toml:"cache_path"`
	CacheTTL     int           `toml:"cache_ttl_seconds"`
	LabelFilter  string        `toml:"label_filter"` // default "ai-agent"
	TwoWaySync   bool          `toml:"two_way_sync"`
	Contexts     []BossContext `toml:"contexts"`
}

// Load reads and parses the AllBeads config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.LabelFilter == "" {
		c.LabelFilter = "ai-agent"
	}
	if c.AgentName == "" {
		c.AgentName = "AllBeads agent"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300
	}
	for _, ctx := range c.Contexts {
		if ctx.Name == "" {
			return fmt.Errorf("config: a context is missing its name")
		}
		if ctx.Remote == "" {
			return fmt.Errorf("config: context %s is missing remote", ctx.Name)
		}
		if ctx.GitHub != nil && (ctx.GitHub.Owner == "" || ctx.GitHub.Repo == "") {
			return fmt.Errorf("config: context %s's github integration needs both owner and repo", ctx.Name)
		}
		if ctx.Jira != nil && ctx.Jira.ProjectKey == "" {
			return fmt.Errorf("config: context %s's jira integration is missing project_key", ctx.Name)
		}
	}
	return nil
}
