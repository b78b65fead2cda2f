// Package streams implements line-delimited record I/O against a
// repository's bead stream file (<repo>/.beads/issues).
package streams

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

const currentVersion = 1

// record is the on-disk shape of one line: a version tag flattened
// alongside the bead payload. Go has no direct equivalent of serde's
// #[serde(flatten)], so record declares the version field next to the
// payload fields and is converted to and from graph.Bead by
// beadFromRecord/recordFromBead.
type record struct {
	Version      int       `json:"version"`
	Id           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	Priority     int       `json:"priority"`
	IssueType    string    `json:"issue_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedBy    string    `json:"created_by"`
	Assignee     string    `json:"assignee,omitempty"`
	Labels       []string  `json:"labels,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Blocks       []string  `json:"blocks,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

func beadFromRecord(r record) (*graph.Bead, int) {
	b := &graph.Bead{
		Id:          graph.BeadId(r.Id),
		Title:       r.Title,
		Description: r.Description,
		Notes:       r.Notes,
		Status:      graph.ParseStatus(r.Status),
		Priority:    graph.ClampPriority(r.Priority),
		IssueType:   graph.ParseIssueType(r.IssueType),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CreatedBy:   r.CreatedBy,
		Assignee:    r.Assignee,
		Labels:      append([]string(nil), r.Labels...),
	}
	for _, d := range r.Dependencies {
		b.Dependencies = append(b.Dependencies, graph.BeadId(d))
	}
	for _, d := range r.Blocks {
		b.Blocks = append(b.Blocks, graph.BeadId(d))
	}
	version := r.Version
	if version == 0 {
		version = currentVersion
	}
	return b, version
}

func recordFromBead(b *graph.Bead) record {
	r := record{
		Version:     currentVersion,
		Id:          string(b.Id),
		Title:       b.Title,
		Description: b.Description,
		Status:      b.Status.String(),
		Priority:    int(b.Priority),
		IssueType:   b.IssueType.String(),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		CreatedBy:   b.CreatedBy,
		Assignee:    b.Assignee,
		Labels:      b.Labels,
		Notes:       b.Notes,
	}
	for _, d := range b.Dependencies {
		r.Dependencies = append(r.Dependencies, string(d))
	}
	for _, d := range b.Blocks {
		r.Blocks = append(r.Blocks, string(d))
	}
	return r
}

// ParseError describes a parse failure for one specific line, reported
// without halting iteration of the rest of the stream.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bead stream line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader reads beads from a bead stream file in file order.
type Reader struct {
	f       *os.File
	scanner *bufio.Scanner
	lineNo  int
}

// Open opens path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bead stream %s: %w", path, err)
	}
	return &Reader{f: f}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// ReadAll returns every bead in the stream, in file order, skipping blank
// lines. A malformed line is reported in errs but does not stop reading
// of the remaining lines.
func (r *Reader) ReadAll() (beads []*graph.Bead, errs []*ParseError, err error) {
	if _, seekErr := r.f.Seek(0, io.SeekStart); seekErr != nil {
		return nil, nil, seekErr
	}
	scanner := bufio.NewScanner(r.f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if decErr := json.Unmarshal([]byte(line), &rec); decErr != nil {
			errs = append(errs, &ParseError{Line: lineNo, Err: decErr})
			continue
		}
		if rec.Id == "" || rec.Title == "" {
			errs = append(errs, &ParseError{Line: lineNo, Err: fmt.Errorf("missing required field")})
			continue
		}
		b, _ := beadFromRecord(rec)
		beads = append(beads, b)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return beads, errs, scanErr
	}
	return beads, errs, nil
}

// Iter (re)starts one-at-a-time iteration from the beginning of the
// stream, for use with Next. Unlike ReadAll, which collects every
// parse error from the whole file before returning, Next surfaces one
// line's outcome per call so a caller can stop, log, or retry without
// the rest of the file already having been scanned.
func (r *Reader) Iter() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r.scanner = bufio.NewScanner(r.f)
	r.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	r.lineNo = 0
	return nil
}

// Next returns the next bead in the stream, skipping blank lines. It
// returns io.EOF once the stream is exhausted. A malformed line is
// reported as a *ParseError from this call only — Next does not
// consume or skip any further lines on its own; the caller decides
// whether to call Next again to resume at the following line. Next
// calls Iter implicitly on first use.
func (r *Reader) Next() (*graph.Bead, error) {
	if r.scanner == nil {
		if err := r.Iter(); err != nil {
			return nil, err
		}
	}
	for r.scanner.Scan() {
		r.lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if decErr := json.Unmarshal([]byte(line), &rec); decErr != nil {
			return nil, &ParseError{Line: r.lineNo, Err: decErr}
		}
		if rec.Id == "" || rec.Title == "" {
			return nil, &ParseError{Line: r.lineNo, Err: fmt.Errorf("missing required field")}
		}
		b, _ := beadFromRecord(rec)
		return b, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Writer appends or truncates a bead stream file.
type Writer struct {
	f *os.File
}

// Create truncates path and opens it for writing.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating bead stream %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append opens path in append mode, creating it if absent.
func Append(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening bead stream %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Write appends one record terminated by a single newline.
func (w *Writer) Write(b *graph.Bead) error {
	rec := recordFromBead(b)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding bead %s: %w", b.Id, err)
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing bead %s: %w", b.Id, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}
