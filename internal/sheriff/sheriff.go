// Package sheriff implements the background aggregation daemon: a
// non-overlapping cycle of repo sync, shadow-bead diffing, external
// sync, and cache persistence, with a broadcast event stream and a
// command channel for external control — grounded on
// internal/daemon/daemon.go's heartbeat-loop shape.
package sheriff

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/allbeads/allbeads/internal/aggregator"
	"github.com/allbeads/allbeads/internal/cache"
	"github.com/allbeads/allbeads/internal/extsync"
	"github.com/allbeads/allbeads/internal/gitrepo"
	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/shadowsync"
)

// ContextConfig describes one Boss context the sheriff aggregates.
type ContextConfig struct {
	Name       string
	RigId      graph.RigId
	Path       string
	Remote     string
	Branch     string
	Auth       graph.AuthStrategy
	AuthEnvVar string
	Prefix     string
	JiraKey    string

	Jira   *extsync.JiraConfig
	GitHub *extsync.GitHubConfig
}

// Config configures a Sheriff instance.
type Config struct {
	PollInterval  time.Duration
	SkipErrors    bool
	MaxConcurrent int
	Contexts      []ContextConfig

	CachePath string
	CacheTTL  time.Duration

	LabelFilter string
	TwoWaySync  bool
	AgentName   string

	LockPath string
}

// Command is a control-channel instruction processed between cycles.
type Command int

const (
	SyncNow Command = iota
	Pause
	Resume
	Shutdown
)

const eventBufferSize = 64

// Sheriff is the background aggregation daemon.
type Sheriff struct {
	cfg     Config
	logger  *log.Logger
	agg     *aggregator.Aggregator
	cache   *cache.Cache
	syncers map[string]*extsync.ExternalSyncer
	metrics *metrics

	// shadows holds the last-known native shadow set per rig, since
	// ShadowBead is not persisted to the cache (DESIGN.md: shadows are
	// kept in memory between cycles, not carried across process restarts).
	shadowsMu sync.Mutex
	shadows   map[graph.RigId][]*graph.ShadowBead

	subsMu sync.Mutex
	subs   []chan Event

	commands chan Command
	paused   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Sheriff from cfg. The aggregator's RepoHandles are
// materialised via gitrepo.New; the cache is opened at cfg.CachePath.
func New(cfg Config, logger *log.Logger) (*Sheriff, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "sheriff: ", log.LstdFlags)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}

	repoCfgs := make([]aggregator.RepoConfig, 0, len(cfg.Contexts))
	byContext := make(map[string]ContextConfig, len(cfg.Contexts))
	for _, c := range cfg.Contexts {
		repoCfgs = append(repoCfgs, aggregator.RepoConfig{
			Context: c.Name,
			RigId:   c.RigId,
			Path:    c.Path,
			Remote:  c.Remote,
			Branch:  c.Branch,
			Auth:    c.Auth,
			Prefix:  c.Prefix,
			JiraKey: c.JiraKey,
		})
		byContext[c.Name] = c
	}

	factory := func(rc aggregator.RepoConfig) (aggregator.RepoHandle, error) {
		c, ok := byContext[rc.Context]
		if !ok {
			return nil, fmt.Errorf("no context config for %s", rc.Context)
		}
		return gitrepo.New(c.RigId, c.Path, c.Remote, c.Branch, c.Auth, c.AuthEnvVar), nil
	}

	agg, errs := aggregator.New(aggregator.Config{
		SyncMode:      aggregator.Fetch,
		SkipErrors:    cfg.SkipErrors,
		MaxConcurrent: cfg.MaxConcurrent,
	}, factory, repoCfgs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("materialising contexts: %w", errs[0])
	}

	c, err := cache.Open(cache.Config{Path: cfg.CachePath, TTL: cfg.CacheTTL, WALMode: true})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	syncers := make(map[string]*extsync.ExternalSyncer, len(cfg.Contexts))
	extCfg := extsync.Config{LabelFilter: cfg.LabelFilter, TwoWaySync: cfg.TwoWaySync, AgentName: cfg.AgentName}
	for _, ctxCfg := range cfg.Contexts {
		var adapters []extsync.Syncer
		if ctxCfg.Jira != nil {
			adapters = append(adapters, extsync.NewJira(*ctxCfg.Jira, extCfg))
		}
		if ctxCfg.GitHub != nil {
			gh, ghErr := extsync.NewGitHub(*ctxCfg.GitHub, extCfg)
			if ghErr != nil {
				logger.Printf("skipping github integration for %s: %v", ctxCfg.Name, ghErr)
			} else {
				adapters = append(adapters, gh)
			}
		}
		if len(adapters) > 0 {
			syncers[ctxCfg.Name] = extsync.NewExternalSyncer(adapters...)
		}
	}

	m, err := newMetrics()
	if err != nil {
		logger.Printf("warning: sheriff metrics unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sheriff{
		cfg:      cfg,
		logger:   logger,
		agg:      agg,
		cache:    c,
		syncers:  syncers,
		metrics:  m,
		shadows:  make(map[graph.RigId][]*graph.ShadowBead),
		commands: make(chan Command, 4),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Subscribe returns a channel of broadcast events. Subscribers that fall
// behind have events dropped rather than stalling the sheriff (spec §9
// "event fan-out").
func (s *Sheriff) Subscribe() <-chan Event {
	ch := make(chan Event, eventBufferSize)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Sheriff) emit(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than block the cycle.
		}
	}
}

// Command enqueues a control instruction, processed between cycles.
func (s *Sheriff) Command(c Command) {
	select {
	case s.commands <- c:
	default:
		s.logger.Println("command channel full, dropping command")
	}
}

// Run starts the non-overlapping cycle loop: acquires an exclusive file
// lock (refusing to run if another sheriff instance holds it), then
// alternates between a reset timer and the command channel until
// Shutdown or ctx cancellation, following internal/daemon/daemon.go's
// timer.Reset (not ticker) pattern so cycles never overlap.
func (s *Sheriff) Run(ctx context.Context) error {
	fileLock := flock.New(s.cfg.LockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring sheriff lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("sheriff already running (lock held at %s)", s.cfg.LockPath)
	}
	defer func() { _ = fileLock.Unlock() }()

	timer := time.NewTimer(0) // run the first cycle immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case cmd := <-s.commands:
			switch cmd {
			case Shutdown:
				return nil
			case Pause:
				s.paused = true
			case Resume:
				s.paused = false
			case SyncNow:
				if !s.paused {
					s.runCycle(ctx)
				}
				timer.Reset(s.cfg.PollInterval)
			}
		case <-timer.C:
			if !s.paused {
				s.runCycle(ctx)
			}
			timer.Reset(s.cfg.PollInterval)
		}
	}
}

// RunOnce executes a single aggregation cycle without acquiring the
// sheriff lock or entering the timer loop — used by one-shot CLI
// invocations ("sync-now") that don't run a standing daemon.
func (s *Sheriff) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

// Stop cancels the run loop.
func (s *Sheriff) Stop() { s.cancel() }

// Close releases the cache handle. Call after Run returns.
func (s *Sheriff) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// runCycle executes the seven-step aggregation cycle (spec §4.8):
// CycleStarted -> parallel repo sync -> load aggregated graph ->
// per-rig shadow diff+apply -> per-integration external sync ->
// cache.StoreGraph -> CycleCompleted.
func (s *Sheriff) runCycle(ctx context.Context) {
	s.emit(Event{Kind: CycleStarted})

	g, syncResult, err := s.agg.AggregateParallel(ctx, s.forwardProgress)
	if err != nil && !s.cfg.SkipErrors {
		s.emit(Event{Kind: Error, Err: err})
		s.metrics.recordCycle(ctx, true)
		return
	}

	s.applyShadowSync(g)

	var hadExternalError bool
	for name, syncer := range s.syncers {
		result := syncer.SyncCycle(ctx, g, name)
		for _, egressResult := range result.EgressResults {
			if egressResult.Status == "pushed" {
				s.emit(Event{Kind: ExternalPushed, Context: name, BeadId: egressResult.ExternalRef})
			}
		}
		for _, syncErr := range result.Errors {
			hadExternalError = true
			s.emit(Event{Kind: Error, Context: name, Err: syncErr})
		}
	}

	if s.cache != nil {
		if storeErr := s.cache.StoreGraph(g); storeErr != nil {
			s.emit(Event{Kind: Error, Err: fmt.Errorf("storing cache: %w", storeErr)})
			hadExternalError = true
		}
	}

	s.metrics.recordCycle(ctx, len(syncResult.Errors) > 0 || hadExternalError)
	s.emit(Event{Kind: CycleCompleted, Succeeded: syncResult.Succeeded, Failed: syncResult.Failed, Total: syncResult.Succeeded + syncResult.Failed})
}

func (s *Sheriff) forwardProgress(ev aggregator.ProgressEvent) {
	switch ev.Kind {
	case "CloningRepo":
		s.emit(Event{Kind: RepoCloning, Context: ev.Context})
	case "ClonedRepo":
		s.emit(Event{Kind: RepoCloned, Context: ev.Context})
	case "FetchingRepo":
		s.emit(Event{Kind: RepoFetching, Context: ev.Context})
	case "FetchedRepo":
		s.emit(Event{Kind: RepoFetched, Context: ev.Context})
		s.metrics.recordRepoSync(s.ctx, "success")
	case "RepoError":
		s.emit(Event{Kind: RepoError, Context: ev.Context, Err: ev.Err})
		s.metrics.recordRepoSync(s.ctx, "error")
	}
}

// applyShadowSync runs shadowsync.Sync for every rig present in g,
// against that rig's beads and its last-known shadow set, applying the
// resulting diff to g and to the in-memory shadow store.
func (s *Sheriff) applyShadowSync(g *graph.FederatedGraph) {
	now := time.Now()
	s.shadowsMu.Lock()
	defer s.shadowsMu.Unlock()

	for _, ctxCfg := range s.cfg.Contexts {
		rigId := ctxCfg.RigId
		if rigId == "" {
			rigId = graph.BossRigId(ctxCfg.Name)
		}
		native, _ := g.ByLabel("@" + ctxCfg.Name)
		existing := s.shadows[rigId]

		diff := shadowsync.Sync(rigId, ctxCfg.Name, native, existing, now)

		for _, sh := range diff.Create {
			g.AddShadow(sh)
			s.emit(Event{Kind: ShadowCreated, Context: ctxCfg.Name, BeadId: string(sh.Id)})
		}
		for _, sh := range diff.Update {
			g.AddShadow(sh)
			s.emit(Event{Kind: ShadowUpdated, Context: ctxCfg.Name, BeadId: string(sh.Id)})
		}
		for _, id := range diff.Delete {
			g.RemoveShadow(id)
			s.emit(Event{Kind: ShadowDeleted, Context: ctxCfg.Name, BeadId: string(id)})
		}
		s.metrics.recordShadowOp(s.ctx, "create", len(diff.Create))
		s.metrics.recordShadowOp(s.ctx, "update", len(diff.Update))
		s.metrics.recordShadowOp(s.ctx, "delete", len(diff.Delete))

		s.shadows[rigId] = mergedShadowSet(existing, diff)
	}
}

// mergedShadowSet applies a Diff to a rig's tracked shadow set in
// memory, since shadowsync.Sync itself is a pure diff function with no
// notion of persisted state.
func mergedShadowSet(existing []*graph.ShadowBead, diff shadowsync.Diff) []*graph.ShadowBead {
	byId := make(map[graph.BeadId]*graph.ShadowBead, len(existing))
	for _, sh := range existing {
		byId[sh.Id] = sh
	}
	for _, sh := range diff.Create {
		byId[sh.Id] = sh
	}
	for _, sh := range diff.Update {
		byId[sh.Id] = sh
	}
	for _, id := range diff.Delete {
		delete(byId, id)
	}
	out := make([]*graph.ShadowBead, 0, len(byId))
	for _, sh := range byId {
		out = append(out, sh)
	}
	return out
}
