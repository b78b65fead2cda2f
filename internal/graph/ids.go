// Package graph implements the federated bead graph: identifiers, beads,
// shadow beads, rigs, and the in-memory multi-index container over them.
package graph

import "strings"

// BeadId identifies a single tracked work item. It is a distinct nominal
// type from RigId so a function expecting one cannot silently accept the
// other; equality is byte-exact, with no normalisation.
type BeadId string

// RigId identifies one participating repository.
type RigId string

// String returns the id's underlying text.
func (id BeadId) String() string { return string(id) }

// String returns the id's underlying text.
func (id RigId) String() string { return string(id) }

// Prefix returns the portion of the id before the first '-', and ok=true
// if the id is hyphenated. A bare id with no hyphen yields ("", false).
func (id BeadId) Prefix() (prefix string, ok bool) {
	s := string(id)
	i := strings.IndexByte(s, '-')
	if i < 0 {
		return "", false
	}
	return s[:i], true
}

// Hash returns the portion of the id after the first '-', and ok=true if
// the id is hyphenated.
func (id BeadId) Hash() (hash string, ok bool) {
	s := string(id)
	i := strings.IndexByte(s, '-')
	if i < 0 {
		return "", false
	}
	return s[i+1:], true
}

// AuthStrategy is the closed set of authentication modes a Rig may use to
// reach its git remote. It unifies what the original implementation
// modeled as two separate enums (one on the rig, one on the boss config) —
// both described the same three modes, so one type serves both here.
type AuthStrategy int

const (
	// AuthSSHAgent authenticates via the local SSH agent; no explicit secret.
	AuthSSHAgent AuthStrategy = iota
	// AuthEnvToken authenticates via a token read from a named env var.
	AuthEnvToken
	// AuthHostCLI authenticates via a token discovered from a host CLI
	// (e.g. `gh auth token`).
	AuthHostCLI
)

// String renders the strategy as its lowercase enumerator name, the form
// persisted by the cache and accepted back on load.
func (a AuthStrategy) String() string {
	switch a {
	case AuthEnvToken:
		return "env_token"
	case AuthHostCLI:
		return "host_cli"
	default:
		return "ssh_agent"
	}
}

// ParseAuthStrategy parses the lowercase enumerator form, defaulting to
// AuthSSHAgent for any unrecognised value (lenient ingest, per spec §4.6).
func ParseAuthStrategy(s string) AuthStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "env_token":
		return AuthEnvToken
	case "host_cli":
		return AuthHostCLI
	default:
		return AuthSSHAgent
	}
}
