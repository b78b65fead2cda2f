// Package extsync implements bi-directional synchronisation against
// JIRA (REST) and GitHub Issues (REST+GraphQL), producing shadow beads
// for external issues and pushing local status changes back.
package extsync

import (
	"context"
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

// Timeouts per spec §4.7.
const (
	SearchTimeout   = 30 * time.Second
	FetchTimeout    = 10 * time.Second
	MutationTimeout = 15 * time.Second
)

// DefaultLabelFilter marks beads/issues "managed by agent".
const DefaultLabelFilter = "ai-agent"

// Config configures one ExternalSyncer adapter.
type Config struct {
	LabelFilter string // sanitised before use in any search query
	TwoWaySync  bool
	AgentName   string // used in egress completion comments
}

// Syncer is the bi-directional contract an external-system adapter
// implements.
type Syncer interface {
	// System names the adapter ("jira" or "github"), used in event
	// messages and logs.
	System() string
	// Ingress queries the external system for managed, open issues and
	// returns the shadow beads they produce.
	Ingress(ctx context.Context) ([]*graph.ShadowBead, error)
	// Egress pushes local status deltas for beads previously linked via
	// ingress, against the current graph. No-op if TwoWaySync is false.
	Egress(ctx context.Context, g *graph.FederatedGraph) ([]EgressResult, error)
}

// EgressResult records the outcome of one egress attempt.
type EgressResult struct {
	ExternalRef string
	Status      string // "pushed", "no_change", "skipped"
	Reason      string
	Err         error
}
