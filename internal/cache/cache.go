// Package cache implements the persistent, TTL-governed local projection
// of the federated graph, with atomic replace-all semantics under a
// single transaction, backed by SQLite via the pure-Go driver.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/allbeads/allbeads/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS beads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	issue_type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	created_by TEXT,
	assignee TEXT,
	labels_csv TEXT,
	notes TEXT,
	context TEXT,
	cached_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS dependencies (
	bead_id TEXT NOT NULL,
	depends_on TEXT NOT NULL,
	PRIMARY KEY (bead_id, depends_on),
	FOREIGN KEY (bead_id) REFERENCES beads(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS blocks (
	bead_id TEXT NOT NULL,
	blocks_id TEXT NOT NULL,
	PRIMARY KEY (bead_id, blocks_id),
	FOREIGN KEY (bead_id) REFERENCES beads(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS rigs (
	id TEXT PRIMARY KEY,
	path TEXT,
	remote TEXT NOT NULL,
	auth_strategy TEXT NOT NULL,
	prefix TEXT,
	context TEXT,
	cached_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_beads_status ON beads(status);
CREATE INDEX IF NOT EXISTS idx_beads_context ON beads(context);
CREATE INDEX IF NOT EXISTS idx_beads_priority ON beads(priority);
CREATE INDEX IF NOT EXISTS idx_dependencies_bead_id ON dependencies(bead_id);
CREATE INDEX IF NOT EXISTS idx_blocks_bead_id ON blocks(bead_id);
`

// DefaultTTL is the cache's default freshness window.
const DefaultTTL = 5 * time.Minute

// Config configures a Cache.
type Config struct {
	Path    string        // persistent store location; parent dirs are created on open
	TTL     time.Duration // default DefaultTTL if zero
	WALMode bool          // enable write-ahead logging for concurrent readers
}

// Cache is the persistent key-value projection of a FederatedGraph.
//
// Labels are stored as a comma-joined string; a label containing a comma
// is not representable by this encoding (documented limitation, not
// worked around — see spec §9).
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Open opens (creating if absent) the cache at cfg.Path.
func Open(cfg Config) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("preparing cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", cfg.Path, err)
	}
	if cfg.WALMode {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// StoreGraph replaces the entire cached generation with g under a single
// transaction: no row of a prior generation can coexist with the new one.
func (c *Cache) StoreGraph(g *graph.FederatedGraph) (err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM dependencies`,
		`DELETE FROM blocks`,
		`DELETE FROM beads`,
		`DELETE FROM rigs`,
	} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("storage: clearing prior generation: %w", err)
		}
	}

	now := time.Now().UnixMilli()
	// context per bead is derived from its "@<context>" label, the only
	// label the aggregator guarantees; if absent the column is left blank.
	for _, b := range g.AllBeads() {
		context := contextFromLabels(b.Labels)
		if _, err = tx.Exec(
			`INSERT INTO beads (id, title, description, status, priority, issue_type, created_at, updated_at, created_by, assignee, labels_csv, notes, context, cached_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			string(b.Id), b.Title, b.Description, b.Status.String(), int(b.Priority), b.IssueType.String(),
			b.CreatedAt.Format(time.RFC3339), b.UpdatedAt.Format(time.RFC3339), b.CreatedBy, b.Assignee,
			strings.Join(b.Labels, ","), b.Notes, context, now,
		); err != nil {
			return fmt.Errorf("storage: inserting bead %s: %w", b.Id, err)
		}
		for _, dep := range b.Dependencies {
			if _, err = tx.Exec(`INSERT INTO dependencies (bead_id, depends_on) VALUES (?,?)`, string(b.Id), string(dep)); err != nil {
				return fmt.Errorf("storage: inserting dependency for %s: %w", b.Id, err)
			}
		}
		for _, blk := range b.Blocks {
			if _, err = tx.Exec(`INSERT INTO blocks (bead_id, blocks_id) VALUES (?,?)`, string(b.Id), string(blk)); err != nil {
				return fmt.Errorf("storage: inserting blocks entry for %s: %w", b.Id, err)
			}
		}
	}

	for _, r := range g.AllRigs() {
		if _, err = tx.Exec(
			`INSERT INTO rigs (id, path, remote, auth_strategy, prefix, context, cached_at) VALUES (?,?,?,?,?,?,?)`,
			string(r.Id), r.Path, r.Remote, r.Auth.String(), r.Prefix, r.Context, now,
		); err != nil {
			return fmt.Errorf("storage: inserting rig %s: %w", r.Id, err)
		}
	}

	if _, err = tx.Exec(
		`INSERT INTO cache_metadata (key, value, updated_at) VALUES ('last_update', ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		strconv.FormatInt(now, 10), now,
	); err != nil {
		return fmt.Errorf("storage: updating last_update: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: committing: %w", err)
	}
	return nil
}

func contextFromLabels(labels []string) string {
	for _, l := range labels {
		if strings.HasPrefix(l, "@") {
			return strings.TrimPrefix(l, "@")
		}
	}
	return ""
}

func labelsFromContext(labelsCSV, context string) []string {
	var labels []string
	for _, l := range strings.Split(labelsCSV, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// lastUpdate returns the cached generation's last_update epoch ms, and
// whether a row exists at all.
func (c *Cache) lastUpdate() (int64, bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM cache_metadata WHERE key='last_update'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading last_update: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing last_update: %w", err)
	}
	return ms, true, nil
}

// IsExpired reports whether the cache has no generation stored, or its
// age exceeds the configured TTL.
func (c *Cache) IsExpired() (bool, error) {
	last, exists, err := c.lastUpdate()
	if err != nil {
		return true, err
	}
	if !exists {
		return true, nil
	}
	age := time.Since(time.UnixMilli(last))
	return age > c.ttl, nil
}

// LoadGraph reconstructs a FederatedGraph from the cache. If the cache
// is expired, it returns (nil, nil) — "no graph" — rather than an error.
// Shadow beads are never persisted here; they are reconstructed by the
// Sheriff each cycle.
func (c *Cache) LoadGraph() (*graph.FederatedGraph, error) {
	expired, err := c.IsExpired()
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, nil
	}

	g := graph.New()

	rigRows, err := c.db.Query(`SELECT id, path, remote, auth_strategy, prefix, context FROM rigs`)
	if err != nil {
		return nil, fmt.Errorf("loading rigs: %w", err)
	}
	for rigRows.Next() {
		var id, path, remote, auth, prefix, context string
		if err := rigRows.Scan(&id, &path, &remote, &auth, &prefix, &context); err != nil {
			rigRows.Close()
			return nil, fmt.Errorf("scanning rig row: %w", err)
		}
		g.AddRig(&graph.Rig{
			Id: graph.RigId(id), Path: path, Remote: remote,
			Auth: graph.ParseAuthStrategy(auth), Prefix: prefix, Context: context,
		})
	}
	rigRows.Close()

	beadRows, err := c.db.Query(`SELECT id, title, description, status, priority, issue_type, created_at, updated_at, created_by, assignee, labels_csv, notes, context FROM beads`)
	if err != nil {
		return nil, fmt.Errorf("loading beads: %w", err)
	}
	type beadRow struct {
		id, labelsCSV, context string
	}
	var rows []beadRow
	for beadRows.Next() {
		var id, title, description, status, issueType, createdAt, updatedAt, createdBy, assignee, labelsCSV, notes, context string
		var priority int
		if err := beadRows.Scan(&id, &title, &description, &status, &priority, &issueType, &createdAt, &updatedAt, &createdBy, &assignee, &labelsCSV, &notes, &context); err != nil {
			beadRows.Close()
			return nil, fmt.Errorf("scanning bead row: %w", err)
		}
		createdTime, _ := time.Parse(time.RFC3339, createdAt)
		updatedTime, _ := time.Parse(time.RFC3339, updatedAt)
		b := &graph.Bead{
			Id: graph.BeadId(id), Title: title, Description: description,
			Status: graph.ParseStatus(status), Priority: graph.ClampPriority(priority),
			IssueType: graph.ParseIssueType(issueType), CreatedAt: createdTime, UpdatedAt: updatedTime,
			CreatedBy: createdBy, Assignee: assignee, Notes: notes,
			Labels: labelsFromContext(labelsCSV, context),
		}
		g.AddBead(b)
		rows = append(rows, beadRow{id: id, labelsCSV: labelsCSV, context: context})
	}
	beadRows.Close()

	for _, row := range rows {
		deps, err := c.db.Query(`SELECT depends_on FROM dependencies WHERE bead_id=?`, row.id)
		if err != nil {
			return nil, fmt.Errorf("loading dependencies for %s: %w", row.id, err)
		}
		b, _ := g.Bead(graph.BeadId(row.id))
		for deps.Next() {
			var dep string
			if err := deps.Scan(&dep); err != nil {
				deps.Close()
				return nil, err
			}
			b.Dependencies = append(b.Dependencies, graph.BeadId(dep))
		}
		deps.Close()

		blks, err := c.db.Query(`SELECT blocks_id FROM blocks WHERE bead_id=?`, row.id)
		if err != nil {
			return nil, fmt.Errorf("loading blocks for %s: %w", row.id, err)
		}
		for blks.Next() {
			var blk string
			if err := blks.Scan(&blk); err != nil {
				blks.Close()
				return nil, err
			}
			b.Blocks = append(b.Blocks, graph.BeadId(blk))
		}
		blks.Close()
		g.AddBead(b) // re-index now that Dependencies/Blocks are populated
	}

	return g, nil
}

// Clear deletes everything from the cache.
func (c *Cache) Clear() error {
	for _, stmt := range []string{
		`DELETE FROM dependencies`, `DELETE FROM blocks`, `DELETE FROM beads`,
		`DELETE FROM rigs`, `DELETE FROM cache_metadata`,
	} {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}
	return nil
}

// Stats reports row counts, last-update epoch, age, and expiry.
type Stats struct {
	BeadCount  int
	RigCount   int
	LastUpdate int64
	Age        time.Duration
	Expired    bool
}

// Stats returns the cache's current statistics.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM beads`).Scan(&s.BeadCount); err != nil {
		return s, fmt.Errorf("counting beads: %w", err)
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM rigs`).Scan(&s.RigCount); err != nil {
		return s, fmt.Errorf("counting rigs: %w", err)
	}
	last, exists, err := c.lastUpdate()
	if err != nil {
		return s, err
	}
	if exists {
		s.LastUpdate = last
		s.Age = time.Since(time.UnixMilli(last))
	}
	expired, err := c.IsExpired()
	if err != nil {
		return s, err
	}
	s.Expired = expired
	return s, nil
}
