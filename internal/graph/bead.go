package graph

import "time"

// Priority is a total order P0 (highest) through P4 (lowest).
type Priority int

const (
	P0 Priority = iota
	P1
	P2
	P3
	P4
)

// ClampPriority maps any integer onto the closed Priority range, clamping
// unknown values to P4 per spec's "unknown integers clamp to P4" rule.
func ClampPriority(n int) Priority {
	if n < int(P0) || n > int(P4) {
		return P4
	}
	return Priority(n)
}

func (p Priority) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "P4"
	}
}

// Status is a bead's lifecycle state. Tombstone is terminal and signals
// deletion from a bead stream rather than a live state.
type Status int

const (
	StatusOpen Status = iota
	StatusInProgress
	StatusBlocked
	StatusDeferred
	StatusClosed
	StatusTombstone
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusBlocked:
		return "blocked"
	case StatusDeferred:
		return "deferred"
	case StatusClosed:
		return "closed"
	case StatusTombstone:
		return "tombstone"
	default:
		return "open"
	}
}

// ParseStatus parses the lowercase enumerator form, defaulting to
// StatusOpen for unknown input (lenient ingest, per spec §4.6).
func ParseStatus(s string) Status {
	switch s {
	case "in_progress":
		return StatusInProgress
	case "blocked":
		return StatusBlocked
	case "deferred":
		return StatusDeferred
	case "closed":
		return StatusClosed
	case "tombstone":
		return StatusTombstone
	default:
		return StatusOpen
	}
}

// IssueType classifies the kind of work a bead tracks.
type IssueType int

const (
	IssueTask IssueType = iota
	IssueBug
	IssueFeature
	IssueEpic
)

func (t IssueType) String() string {
	switch t {
	case IssueBug:
		return "bug"
	case IssueFeature:
		return "feature"
	case IssueEpic:
		return "epic"
	default:
		return "task"
	}
}

// ParseIssueType parses the lowercase enumerator form, defaulting to
// IssueTask for unknown input.
func ParseIssueType(s string) IssueType {
	switch s {
	case "bug":
		return IssueBug
	case "feature":
		return IssueFeature
	case "epic":
		return IssueEpic
	default:
		return IssueTask
	}
}

// Bead is the canonical record of a single tracked work item, owned by
// exactly one repository.
type Bead struct {
	Id           BeadId
	Title        string
	Description  string
	Notes        string
	Status       Status
	Priority     Priority
	IssueType    IssueType
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    string
	Assignee     string
	Labels       []string
	Dependencies []BeadId // ids this bead depends on
	Blocks       []BeadId // ids this bead blocks
}

// HasLabel reports whether the bead carries the given label.
func (b *Bead) HasLabel(label string) bool {
	for _, l := range b.Labels {
		if l == label {
			return true
		}
	}
	return false
}
