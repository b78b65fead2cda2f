package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

func testGraph() *graph.FederatedGraph {
	g := graph.New()
	now := time.Now()
	g.AddBead(&graph.Bead{
		Id: "a1", Title: "first", Status: graph.StatusOpen, Priority: graph.P1,
		IssueType: graph.IssueEpic, CreatedAt: now, UpdatedAt: now,
		Labels: []string{"@work"}, Dependencies: []graph.BeadId{"a2"},
	})
	rig, _ := graph.NewRigBuilder().ID("boss-work").Remote("local").Prefix("w").Context("work").Build()
	g.AddRig(rig)
	return g
}

func openTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(Config{Path: filepath.Join(dir, "cache.db"), TTL: ttl})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	c := openTestCache(t, time.Minute)
	g := testGraph()
	if err := c.StoreGraph(g); err != nil {
		t.Fatalf("store: %v", err)
	}
	loaded, err := c.LoadGraph()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected loaded graph, got nil")
	}
	b, ok := loaded.Bead("a1")
	if !ok {
		t.Fatalf("expected bead a1")
	}
	if b.Priority != graph.P1 || b.IssueType != graph.IssueEpic {
		t.Fatalf("unexpected round-tripped bead: %+v", b)
	}
	if len(b.Dependencies) != 1 || b.Dependencies[0] != "a2" {
		t.Fatalf("expected dependency a2, got %v", b.Dependencies)
	}
	if _, ok := loaded.Rig("boss-work"); !ok {
		t.Fatalf("expected rig boss-work")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := openTestCache(t, 50*time.Millisecond)
	if err := c.StoreGraph(testGraph()); err != nil {
		t.Fatalf("store: %v", err)
	}
	expired, err := c.IsExpired()
	if err != nil || expired {
		t.Fatalf("expected fresh cache immediately after store, expired=%v err=%v", expired, err)
	}
	time.Sleep(150 * time.Millisecond)
	expired, err = c.IsExpired()
	if err != nil || !expired {
		t.Fatalf("expected expired cache after TTL, expired=%v err=%v", expired, err)
	}
	loaded, err := c.LoadGraph()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil graph for expired cache")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	c := openTestCache(t, time.Minute)
	if err := c.StoreGraph(testGraph()); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.BeadCount != 0 || stats.RigCount != 0 || !stats.Expired {
		t.Fatalf("expected empty, expired cache after clear, got %+v", stats)
	}
}

func TestLenientEnumDecodeDefaultsOnUnknownValues(t *testing.T) {
	c := openTestCache(t, time.Minute)
	now := time.Now().Format(time.RFC3339)
	if _, err := c.db.Exec(
		`INSERT INTO beads (id, title, description, status, priority, issue_type, created_at, updated_at, created_by, assignee, labels_csv, notes, context, cached_at)
		 VALUES ('x','t','', 'bogus-status', 7, 'bogus-type', ?, ?, '', '', '', '', '', ?)`,
		now, now, time.Now().UnixMilli(),
	); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec(`INSERT INTO cache_metadata (key,value,updated_at) VALUES ('last_update', ?, ?)`,
		time.Now().UnixMilli(), time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}

	loaded, err := c.LoadGraph()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, ok := loaded.Bead("x")
	if !ok {
		t.Fatalf("expected bead x")
	}
	if b.Status != graph.StatusOpen {
		t.Fatalf("expected unknown status to default to Open, got %v", b.Status)
	}
	if b.IssueType != graph.IssueTask {
		t.Fatalf("expected unknown issue_type to default to Task, got %v", b.IssueType)
	}
	if b.Priority != graph.P4 {
		t.Fatalf("expected out-of-range priority to clamp to P4, got %v", b.Priority)
	}
}
