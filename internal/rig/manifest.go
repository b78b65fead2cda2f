// Package rig loads the per-repository rig manifest that names a rig's
// identity, remote, authentication, and namespace prefix.
package rig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/allbeads/allbeads/internal/graph"
)

// ManifestPath is the repo-relative path of a rig manifest.
const ManifestPath = ".allbeads/rig.toml"

// ManifestVersion is the current supported manifest schema version.
const ManifestVersion = 1

// Manifest is the on-disk shape of a rig manifest.
type Manifest struct {
	Version int `toml:"version"`

	Rig struct {
		Id            string `toml:"id"`
		Prefix        string `toml:"prefix"`
		DefaultBranch string `toml:"default_branch"`
		Persona       string `toml:"persona"`
		Context       string `toml:"context"`
	} `toml:"rig"`

	Git struct {
		Remote string `toml:"remote"`
	} `toml:"git"`

	Auth struct {
		Strategy string `toml:"strategy"` // ssh_agent (default), env_token, host_cli
		EnvVar   string `toml:"env_var"`
	} `toml:"auth"`

	Integrations struct {
		JiraProjectKey string `toml:"jira_project_key"`
	} `toml:"integrations"`
}

// LoadManifest reads and parses a rig manifest from the repo root.
// Returns (nil, nil) if the manifest is not present.
func LoadManifest(repoRoot string) (*Manifest, error) {
	path := filepath.Join(repoRoot, ManifestPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest Manifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}

// Validate ensures the manifest uses a supported version and carries its
// required fields.
func (m *Manifest) Validate() error {
	if m.Version == 0 {
		return fmt.Errorf("manifest version missing (expected %d)", ManifestVersion)
	}
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version %d (expected %d)", m.Version, ManifestVersion)
	}
	if m.Rig.Id == "" {
		return fmt.Errorf("manifest: rig.id is required")
	}
	if m.Git.Remote == "" {
		return fmt.Errorf("manifest: git.remote is required")
	}
	if m.Rig.Prefix == "" {
		return fmt.Errorf("manifest: rig.prefix is required")
	}
	if m.Rig.Context == "" {
		return fmt.Errorf("manifest: rig.context is required")
	}
	return nil
}

// ToRig builds a graph.Rig from the manifest's fields.
func (m *Manifest) ToRig(path string) (*graph.Rig, error) {
	return graph.NewRigBuilder().
		ID(graph.RigId(m.Rig.Id)).
		Path(path).
		Remote(m.Git.Remote).
		Branch(m.Rig.DefaultBranch).
		AuthStrategy(graph.ParseAuthStrategy(m.Auth.Strategy)).
		Persona(m.Rig.Persona).
		Prefix(m.Rig.Prefix).
		JiraKey(m.Integrations.JiraProjectKey).
		Context(m.Rig.Context).
		Build()
}
