package streams

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

func TestWriteThenReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b1 := &graph.Bead{Id: "a1", Title: "first", Status: graph.StatusOpen, Priority: graph.P2, CreatedAt: now, UpdatedAt: now}
	b2 := &graph.Bead{Id: "a2", Title: "second", Status: graph.StatusClosed, Priority: graph.P0, CreatedAt: now, UpdatedAt: now}
	if err := w.Write(b1); err != nil {
		t.Fatalf("write b1: %v", err)
	}
	if err := w.Write(b2); err != nil {
		t.Fatalf("write b2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	beads, errs, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(beads) != 2 {
		t.Fatalf("expected 2 beads, got %d", len(beads))
	}
	if beads[0].Id != "a1" || beads[1].Id != "a2" {
		t.Fatalf("expected file order a1,a2, got %v,%v", beads[0].Id, beads[1].Id)
	}
}

func TestReadAllSkipsBlankLinesAndIsolatesParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues")

	content := "\n{\"id\":\"a1\",\"title\":\"ok\",\"status\":\"open\",\"priority\":1,\"created_at\":\"2026-01-01T00:00:00Z\",\"updated_at\":\"2026-01-01T00:00:00Z\"}\nnot json\n\n"
	if err := writeRaw(path, content); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	beads, errs, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(beads) != 1 {
		t.Fatalf("expected 1 valid bead, got %d", len(beads))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
}

func TestNextYieldsOneBeadAtATimeAndIsolatesParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues")

	content := "{\"id\":\"a1\",\"title\":\"ok\",\"status\":\"open\",\"priority\":1,\"created_at\":\"2026-01-01T00:00:00Z\",\"updated_at\":\"2026-01-01T00:00:00Z\"}\nnot json\n{\"id\":\"a2\",\"title\":\"also ok\",\"status\":\"open\",\"priority\":1,\"created_at\":\"2026-01-01T00:00:00Z\",\"updated_at\":\"2026-01-01T00:00:00Z\"}\n"
	if err := writeRaw(path, content); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	b1, err := r.Next()
	if err != nil {
		t.Fatalf("expected first bead, got err: %v", err)
	}
	if b1.Id != "a1" {
		t.Fatalf("expected a1, got %v", b1.Id)
	}

	_, err = r.Next()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError on malformed line, got %v", err)
	}
	if parseErr.Line != 2 {
		t.Fatalf("expected parse error on line 2, got line %d", parseErr.Line)
	}

	b3, err := r.Next()
	if err != nil {
		t.Fatalf("expected iteration to resume past the bad line, got err: %v", err)
	}
	if b3.Id != "a2" {
		t.Fatalf("expected a2 after the isolated error, got %v", b3.Id)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func writeRaw(path, content string) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if _, err := w.f.WriteString(content); err != nil {
		return err
	}
	return w.Close()
}
