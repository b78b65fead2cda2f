package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/allbeads/allbeads/internal/config"
	"github.com/allbeads/allbeads/internal/extsync"
	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/sheriff"
)

// loadConfig reads the AllBeads config from --config, or the default
// path if unset.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// resolveToken reads the token held in the named environment variable;
// an empty envVar yields an empty token (integration disabled for this
// context). Unlike gitrepo's git-auth token lookup, it applies no "$"
// indirection and no GITHUB_TOKEN fallback.
func resolveToken(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// buildSheriffConfig translates the top-level AllBeads config into a
// sheriff.Config, resolving each context's git auth and integration
// tokens.
func buildSheriffConfig(cfg *config.Config) sheriff.Config {
	sCfg := sheriff.Config{
		PollInterval: time.Duration(cfg.PollInterval) * time.Second,
		SkipErrors:   true,
		CachePath:    cfg.CachePath,
		CacheTTL:     time.Duration(cfg.CacheTTL) * time.Second,
		LabelFilter:  cfg.LabelFilter,
		TwoWaySync:   cfg.TwoWaySync,
		AgentName:    cfg.AgentName,
		LockPath:     sheriffLockPath(cfg),
	}

	for _, c := range cfg.Contexts {
		cc := sheriff.ContextConfig{
			Name:       c.Name,
			RigId:      graph.BossRigId(c.Name),
			Path:       c.Path,
			Remote:     c.Remote,
			Branch:     c.Branch,
			Auth:       c.Auth(),
			AuthEnvVar: c.AuthEnvVar,
			Prefix:     c.Prefix,
		}
		if c.Jira != nil {
			cc.JiraKey = c.Jira.ProjectKey
			cc.Jira = &extsync.JiraConfig{
				BaseURL:    c.Jira.BaseURL,
				ProjectKey: c.Jira.ProjectKey,
				Token:      resolveToken(c.Jira.TokenEnvVar),
			}
		}
		if c.GitHub != nil {
			cc.GitHub = &extsync.GitHubConfig{
				BaseURL: c.GitHub.BaseURL,
				Owner:   c.GitHub.Owner,
				Repo:    c.GitHub.Repo,
				Token:   resolveToken(c.GitHub.TokenEnvVar),
			}
		}
		sCfg.Contexts = append(sCfg.Contexts, cc)
	}
	return sCfg
}

func sheriffLockPath(cfg *config.Config) string {
	dir := filepath.Dir(cfg.CachePath)
	if dir == "" || dir == "." {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sheriff.lock")
}

func newSheriff() (*sheriff.Sheriff, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sheriff.New(buildSheriffConfig(cfg), nil)
}
