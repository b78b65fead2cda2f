// Package gitrepo implements RepoHandle, the capability bundle the
// aggregator needs around one git working tree: clone/fetch/pull/stage/
// commit/push, shelled out to the git CLI the way internal/epic/sync.go
// in the teacher daemon does.
package gitrepo

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/allbeads/allbeads/internal/graph"
)

// Status is the result of a working-tree status check.
type Status int

const (
	NotCloned Status = iota
	UpToDate
	UpdatesAvailable
	Dirty
)

func (s Status) String() string {
	switch s {
	case NotCloned:
		return "not_cloned"
	case UpdatesAvailable:
		return "updates_available"
	case Dirty:
		return "dirty"
	default:
		return "up_to_date"
	}
}

const issuesStreamRelPath = ".beads/issues"

// Handle is a RepoHandle: one git working tree, its remote URL, its
// auth strategy, and its local path.
type Handle struct {
	RigId  graph.RigId
	Path   string
	Remote string
	Branch string
	Auth   graph.AuthStrategy

	// AuthEnvVar names the env var holding the token when Auth is
	// AuthEnvToken.
	AuthEnvVar string
}

// New constructs a Handle. It performs no I/O.
func New(rig graph.RigId, path, remote, branch string, auth graph.AuthStrategy, authEnvVar string) *Handle {
	if branch == "" {
		branch = "main"
	}
	return &Handle{RigId: rig, Path: path, Remote: remote, Branch: branch, Auth: auth, AuthEnvVar: authEnvVar}
}

// gitArgs prepends authArgs to args so every git invocation — status,
// fetch, pull, push, and clone alike — carries the same credential
// config, the way git2's RemoteCallbacks applies uniformly to every
// remote operation in the original.
func (h *Handle) gitArgs(args ...string) []string {
	return append(h.authArgs(), args...)
}

func (h *Handle) run(name string, args ...string) (stdout, stderr string, err error) {
	if name == "git" {
		args = h.gitArgs(args...)
	}
	cmd := exec.Command(name, args...)
	cmd.Dir = h.Path
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	return outBuf.String(), errBuf.String(), runErr
}

// authArgs returns the `-c` config arguments needed to authenticate a
// token-based clone/fetch/push, per the three-tier auth contract
// (§4.3/§6): SSH-agent needs nothing (the ssh-agent is consulted
// automatically, same as git2::Cred::ssh_key_from_agent); env-token auth
// sets an `http.extraheader` carrying an HTTP Basic credential with
// username "git", mirroring the original's
// `Cred::userpass_plaintext(user, token)` callback without relying on
// GIT_USERNAME/GIT_PASSWORD, which stock git does not read for HTTPS.
func (h *Handle) authArgs() []string {
	if h.Auth != graph.AuthEnvToken || h.AuthEnvVar == "" {
		return nil
	}
	token := resolveEnvToken(h.AuthEnvVar)
	if token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte("git:" + token))
	return []string{"-c", "http.extraheader=Authorization: Basic " + basic}
}

// resolveEnvToken implements the token-resolution order from §6: (a) if
// the named env var's value itself begins with "$", dereference it as
// another env var name; (b) otherwise use its value directly; (c) fall
// back to GITHUB_TOKEN. Absence yields "" (a warning, not a hard error,
// is the caller's concern).
func resolveEnvToken(envVar string) string {
	v := os.Getenv(envVar)
	if strings.HasPrefix(v, "$") {
		v = os.Getenv(strings.TrimPrefix(v, "$"))
	}
	if v == "" {
		v = os.Getenv("GITHUB_TOKEN")
	}
	return v
}

// IsCloned reports whether a working tree already exists at Path.
func (h *Handle) IsCloned() bool {
	_, err := os.Stat(filepath.Join(h.Path, ".git"))
	return err == nil
}

// Status reports the working tree's state.
func (h *Handle) Status() (Status, error) {
	if _, err := os.Stat(filepath.Join(h.Path, ".git")); os.IsNotExist(err) {
		return NotCloned, nil
	} else if err != nil {
		return NotCloned, fmt.Errorf("statting %s: %w", h.Path, err)
	}
	out, stderr, err := h.run("git", "status", "--porcelain")
	if err != nil {
		return UpToDate, fmt.Errorf("git status: %w (%s)", err, strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(out) != "" {
		return Dirty, nil
	}
	return UpToDate, nil
}

// CloneIfNeeded clones the remote to Path if no working tree exists yet.
func (h *Handle) CloneIfNeeded() error {
	status, err := h.Status()
	if err != nil {
		return err
	}
	if status != NotCloned {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.Path), 0o755); err != nil {
		return fmt.Errorf("preparing parent of %s: %w", h.Path, err)
	}
	cmd := exec.Command("git", h.gitArgs("clone", "--branch", h.Branch, h.Remote, h.Path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cloning %s: %w (%s)", h.Remote, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Fetch fetches refs from origin without merging.
func (h *Handle) Fetch() error {
	_, stderr, err := h.run("git", "fetch", "origin")
	if err != nil {
		return fmt.Errorf("fetching %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	return nil
}

// Pull fetches and fast-forward merges the current branch.
func (h *Handle) Pull() error {
	_, stderr, err := h.run("git", "pull", "--ff-only", "origin", h.Branch)
	if err != nil {
		return fmt.Errorf("pulling %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	return nil
}

// Stage marks paths for the next commit.
func (h *Handle) Stage(paths []string) error {
	args := append([]string{"add"}, paths...)
	_, stderr, err := h.run("git", args...)
	if err != nil {
		return fmt.Errorf("staging in %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	return nil
}

// Commit creates a new commit and returns its oid.
func (h *Handle) Commit(message, authorName, authorEmail string) (string, error) {
	_, stderr, err := h.run("git", "-c", fmt.Sprintf("user.name=%s", authorName),
		"-c", fmt.Sprintf("user.email=%s", authorEmail), "commit", "-m", message)
	if err != nil {
		return "", fmt.Errorf("committing in %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	out, stderr, err := h.run("git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("reading HEAD in %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(out), nil
}

// Push pushes the current branch (or an explicit branch) to origin.
func (h *Handle) Push(branch string) error {
	if branch == "" {
		branch = h.Branch
	}
	_, stderr, err := h.run("git", "push", "origin", branch)
	if err != nil {
		return fmt.Errorf("pushing %s: %w (%s)", h.RigId, err, strings.TrimSpace(stderr))
	}
	return nil
}

// HasIssuesStream reports whether this working tree carries a bead
// stream file.
func (h *Handle) HasIssuesStream() bool {
	_, err := os.Stat(h.IssuesStreamPath())
	return err == nil
}

// IssuesStreamPath returns the filesystem path of this repo's bead
// stream.
func (h *Handle) IssuesStreamPath() string {
	return filepath.Join(h.Path, issuesStreamRelPath)
}
