package rig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allbeads/allbeads/internal/graph"
)

func writeManifest(t *testing.T, root, content string) {
	t.Helper()
	manifestDir := filepath.Join(root, ".allbeads")
	if err := os.MkdirAll(manifestDir, 0755); err != nil {
		t.Fatalf("mkdir .allbeads: %v", err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, "rig.toml"), []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadManifestAndToRig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, root, `version = 1

[rig]
id = "boss-work"
prefix = "wk"
default_branch = "main"
persona = "reviewer"
context = "work"

[git]
remote = "git@github.com:acme/work.git"

[auth]
strategy = "env_token"
env_var = "WORK_TOKEN"

[integrations]
jira_project_key = "WORK"
`)

	manifest, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if manifest == nil {
		t.Fatal("expected manifest, got nil")
	}

	rig, err := manifest.ToRig(root)
	if err != nil {
		t.Fatalf("ToRig: %v", err)
	}
	if rig.Id != graph.RigId("boss-work") {
		t.Errorf("rig.Id = %q, want boss-work", rig.Id)
	}
	if rig.Auth != graph.AuthEnvToken {
		t.Errorf("rig.Auth = %v, want AuthEnvToken", rig.Auth)
	}
	if rig.JiraKey != "WORK" {
		t.Errorf("rig.JiraKey = %q, want WORK", rig.JiraKey)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manifest, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if manifest != nil {
		t.Fatalf("expected nil manifest, got %+v", manifest)
	}
}

func TestLoadManifestInvalidVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, root, `version = 2`)

	if _, err := LoadManifest(root); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestLoadManifestMissingRequiredField(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, root, `version = 1

[rig]
id = "boss-work"
`)

	if _, err := LoadManifest(root); err == nil {
		t.Fatal("expected error for missing git.remote/prefix/context")
	}
}
