// Package aggregator orchestrates a set of RepoHandles under a sync
// policy, with a synchronous path and a bounded-parallel path that
// reports progress events, generalizing the worker-pool shape of
// internal/parallel/executor.go onto golang.org/x/sync/errgroup.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/rig"
	"github.com/allbeads/allbeads/internal/streams"
)

// SyncMode selects how far the aggregator goes against each repo.
type SyncMode int

const (
	LocalOnly SyncMode = iota
	Fetch
	Pull
)

// RepoHandle is the capability surface the aggregator needs from a git
// working tree; gitrepo.Handle satisfies it.
type RepoHandle interface {
	CloneIfNeeded() error
	Fetch() error
	Pull() error
	HasIssuesStream() bool
	IssuesStreamPath() string
	// IsCloned reports whether a working tree already exists at this
	// handle's path, checked before CloneIfNeeded so the parallel sync
	// path can emit CloningRepo/ClonedRepo only for genuinely new repos.
	IsCloned() bool
}

// RepoConfig describes one configured context/repo pairing, used to
// (re)materialise a RepoHandle and, in buildGraph, to populate the
// Rig registered for that context when the repo carries no
// .allbeads/rig.toml manifest of its own.
type RepoConfig struct {
	Context string
	RigId   graph.RigId
	Path    string
	Remote  string
	Branch  string
	Auth    graph.AuthStrategy
	Prefix  string
	JiraKey string
}

// HandleFactory builds a RepoHandle from a RepoConfig; the default
// implementation wraps gitrepo.New, isolated behind an interface so
// tests can substitute fakes without touching the filesystem or git.
type HandleFactory func(cfg RepoConfig) (RepoHandle, error)

const defaultMaxConcurrent = 8

// Config configures an Aggregator.
type Config struct {
	SyncMode      SyncMode
	ContextFilter map[string]struct{} // empty/nil = include all
	SkipErrors    bool
	MaxConcurrent int // default 8 if <= 0
}

// Aggregator orchestrates repo sync and bead-stream aggregation across
// many configured contexts.
type Aggregator struct {
	cfg      Config
	factory  HandleFactory
	repoCfgs []RepoConfig
	handles  map[string]RepoHandle
}

// New builds an Aggregator from a list of repo configs, materialising a
// RepoHandle per context via factory. Under SkipErrors, contexts that
// fail to materialise are dropped and each failure is logged as a
// warning; otherwise construction fails and every materialisation error
// is returned.
func New(cfg Config, factory HandleFactory, repoCfgs []RepoConfig) (*Aggregator, []error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	a := &Aggregator{cfg: cfg, factory: factory, repoCfgs: filterContexts(cfg, repoCfgs)}
	var errs []error
	a.handles, errs = a.materialise()
	if len(errs) > 0 && !cfg.SkipErrors {
		return nil, errs
	}
	for _, err := range errs {
		log.Printf("warning: dropping %v", err)
	}
	return a, nil
}

func filterContexts(cfg Config, repoCfgs []RepoConfig) []RepoConfig {
	if len(cfg.ContextFilter) == 0 {
		return repoCfgs
	}
	var out []RepoConfig
	for _, rc := range repoCfgs {
		if _, ok := cfg.ContextFilter[rc.Context]; ok {
			out = append(out, rc)
		}
	}
	return out
}

func (a *Aggregator) materialise() (map[string]RepoHandle, []error) {
	handles := make(map[string]RepoHandle, len(a.repoCfgs))
	var errs []error
	for _, rc := range a.repoCfgs {
		h, err := a.factory(rc)
		if err != nil {
			errs = append(errs, fmt.Errorf("context %s: %w", rc.Context, err))
			continue
		}
		handles[rc.Context] = h
	}
	return handles, errs
}

func (a *Aggregator) sortedContexts() []string {
	names := make([]string, 0, len(a.handles))
	for name := range a.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SyncResult summarises the outcome of a sync pass.
type SyncResult struct {
	Succeeded int
	Failed    int
	Errors    []RepoFailure
}

// RepoFailure names one context's sync failure.
type RepoFailure struct {
	Context string
	Err     error
}

// SyncRepos clones every repo (serial), then fetches or pulls according
// to the configured sync mode, in stable iteration order.
func (a *Aggregator) SyncRepos() (SyncResult, error) {
	result := SyncResult{}
	for _, name := range a.sortedContexts() {
		h := a.handles[name]
		if err := a.syncOne(h); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RepoFailure{Context: name, Err: err})
			if !a.cfg.SkipErrors {
				return result, err
			}
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (a *Aggregator) syncOne(h RepoHandle) error {
	if err := h.CloneIfNeeded(); err != nil {
		return err
	}
	switch a.cfg.SyncMode {
	case Fetch:
		return h.Fetch()
	case Pull:
		return h.Pull()
	default:
		return nil
	}
}

// ProgressEvent is one step of a parallel sync pass's progress stream.
type ProgressEvent struct {
	Kind      string // Starting, CloningRepo, ClonedRepo, FetchingRepo, FetchedRepo, RepoError, Complete
	Context   string
	Total     int
	Succeeded int
	Failed    int
	Err       error
}

// ProgressFunc receives progress events; it must not block meaningfully,
// since events are emitted synchronously from worker goroutines.
type ProgressFunc func(ProgressEvent)

// SyncReposParallel runs the same sync as SyncRepos but bounded to
// MaxConcurrent concurrent tasks, reporting progress via progress.
// After the pass, the Aggregator rematerialises all handles from
// configuration (new clones may have appeared).
func (a *Aggregator) SyncReposParallel(ctx context.Context, progress ProgressFunc) (SyncResult, error) {
	names := a.sortedContexts()
	total := len(names)
	emit := func(ev ProgressEvent) {
		if progress != nil {
			progress(ev)
		}
	}
	emit(ProgressEvent{Kind: "Starting", Total: total})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrent)

	result := SyncResult{}
	var mu sync.Mutex
	for _, name := range names {
		name := name
		h := a.handles[name]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic syncing %s: %v", name, r)
				}
			}()
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			emit(ProgressEvent{Kind: "FetchingRepo", Context: name})
			isNew := !h.IsCloned()
			if isNew {
				emit(ProgressEvent{Kind: "CloningRepo", Context: name})
			}
			syncErr := a.syncOne(h)
			if isNew && syncErr == nil {
				emit(ProgressEvent{Kind: "ClonedRepo", Context: name})
			}

			mu.Lock()
			defer mu.Unlock()
			if syncErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, RepoFailure{Context: name, Err: syncErr})
				emit(ProgressEvent{Kind: "RepoError", Context: name, Err: syncErr})
				if !a.cfg.SkipErrors {
					return syncErr
				}
				return nil
			}
			result.Succeeded++
			emit(ProgressEvent{Kind: "FetchedRepo", Context: name})
			return nil
		})
	}

	waitErr := g.Wait()
	emit(ProgressEvent{Kind: "Complete", Succeeded: result.Succeeded, Failed: result.Failed, Total: total})

	handles, errs := a.materialise()
	a.handles = handles
	if len(errs) > 0 && !a.cfg.SkipErrors {
		return result, errs[0]
	}
	if waitErr != nil && !a.cfg.SkipErrors {
		return result, waitErr
	}
	return result, nil
}

// Aggregate runs SyncRepos, then for every repo with an issues stream
// reads all beads, tags each with its synthetic "@<context>" label,
// inserts them into a fresh graph, and registers one Rig per repo.
func (a *Aggregator) Aggregate() (*graph.FederatedGraph, SyncResult, error) {
	result, err := a.SyncRepos()
	if err != nil && !a.cfg.SkipErrors {
		return nil, result, err
	}
	return a.buildGraph(), result, nil
}

// AggregateParallel is Aggregate's parallel-sync counterpart.
func (a *Aggregator) AggregateParallel(ctx context.Context, progress ProgressFunc) (*graph.FederatedGraph, SyncResult, error) {
	result, err := a.SyncReposParallel(ctx, progress)
	if err != nil && !a.cfg.SkipErrors {
		return nil, result, err
	}
	return a.buildGraph(), result, nil
}

// buildRig resolves the Rig to register for name. A repo's own
// .allbeads/rig.toml, when present at rc.Path, is the authoritative
// source for remote/branch/auth/persona (internal/rig.LoadManifest +
// ToRig already validate and build it); buildRig falls back to the
// Boss-side config values in rc when no manifest exists, defaulting
// Remote to "local" and Prefix to the context name only when rc itself
// carries none (e.g. a context materialised without a real remote in
// tests).
func (a *Aggregator) buildRig(name string, rc RepoConfig) *graph.Rig {
	rigId := rc.RigId
	if rigId == "" {
		rigId = graph.BossRigId(name)
	}

	if rc.Path != "" {
		if manifest, err := rig.LoadManifest(rc.Path); err == nil && manifest != nil {
			if r, buildErr := manifest.ToRig(rc.Path); buildErr == nil {
				r.Id = rigId
				r.Context = name
				if rc.JiraKey != "" {
					r.JiraKey = rc.JiraKey
				}
				return r
			}
		}
	}

	remote := rc.Remote
	if remote == "" {
		remote = "local"
	}
	prefix := rc.Prefix
	if prefix == "" {
		prefix = name
	}
	r, _ := graph.NewRigBuilder().
		ID(rigId).
		Path(rc.Path).
		Remote(remote).
		Branch(rc.Branch).
		AuthStrategy(rc.Auth).
		Prefix(prefix).
		Context(name).
		JiraKey(rc.JiraKey).
		Build()
	return r
}

func (a *Aggregator) buildGraph() *graph.FederatedGraph {
	g := graph.New()
	byContext := make(map[string]RepoConfig, len(a.repoCfgs))
	for _, rc := range a.repoCfgs {
		byContext[rc.Context] = rc
	}
	for _, name := range a.sortedContexts() {
		h := a.handles[name]
		rc := byContext[name]
		if r := a.buildRig(name, rc); r != nil {
			g.AddRig(r)
		}
		if !h.HasIssuesStream() {
			continue
		}
		r, openErr := streams.Open(h.IssuesStreamPath())
		if openErr != nil {
			continue
		}
		beads, _, _ := r.ReadAll()
		r.Close()
		label := "@" + name
		for _, b := range beads {
			if !b.HasLabel(label) {
				b.Labels = append(b.Labels, label)
			}
			g.AddBead(b)
		}
	}
	return g
}
