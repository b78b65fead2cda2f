package extsync

import (
	"context"
	"fmt"

	"github.com/allbeads/allbeads/internal/graph"
)

// ExternalSyncer composes zero or more Syncer adapters (JIRA, GitHub)
// into the single external-sync step of the Sheriff cycle (spec §4.8
// step 5): ingress from every configured adapter merges shadow beads
// into the graph, then egress pushes local status deltas back out.
type ExternalSyncer struct {
	syncers []Syncer
}

// NewExternalSyncer builds a composed syncer from whichever adapters are
// configured for a context; nil entries are skipped so callers can pass
// NewJira/NewGitHub results unconditionally.
func NewExternalSyncer(syncers ...Syncer) *ExternalSyncer {
	es := &ExternalSyncer{}
	for _, s := range syncers {
		if s != nil {
			es.syncers = append(es.syncers, s)
		}
	}
	return es
}

// CycleResult summarizes one sync_cycle() pass across all adapters.
type CycleResult struct {
	IngressedShadows int
	EgressResults    []EgressResult
	Errors           []error
}

// SyncCycle runs ingress then egress for every configured adapter
// against the given context's rig, merging ingressed shadows into g and
// returning a summary. Errors from one adapter do not prevent the
// others from running (spec §4.7: a single integration outage must not
// block the rest of the sync cycle).
func (es *ExternalSyncer) SyncCycle(ctx context.Context, g *graph.FederatedGraph, contextName string) CycleResult {
	var result CycleResult

	for _, s := range es.syncers {
		shadows, err := s.Ingress(ctx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s ingress: %w", s.System(), err))
			continue
		}
		for _, sh := range shadows {
			sh.Context = contextName
			g.AddShadow(sh)
			result.IngressedShadows++
		}
	}

	for _, s := range es.syncers {
		results, err := s.Egress(ctx, g)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s egress: %w", s.System(), err))
			continue
		}
		result.EgressResults = append(result.EgressResults, results...)
	}

	return result
}
