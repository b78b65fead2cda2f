package extsync

import (
	"strconv"
	"strings"

	"github.com/allbeads/allbeads/internal/graph"
)

// SanitiseLabel strips everything but alphanumerics, '-', '_', and
// spaces from a label before it is interpolated into a JQL or GitHub
// Search query string, preventing injection (spec §4.7/§8).
func SanitiseLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JiraPriorityToCore maps a JIRA priority name to the core Priority
// enum, per spec §4.7's table.
func JiraPriorityToCore(name string) graph.Priority {
	switch strings.ToLower(name) {
	case "highest", "blocker":
		return graph.P0
	case "high", "critical":
		return graph.P1
	case "medium", "normal":
		return graph.P2
	case "low", "minor":
		return graph.P3
	default:
		return graph.P4
	}
}

// GitHubLabelsToPriority maps a GitHub issue's label set to the core
// Priority enum. Default is P2 when no priority label matches.
func GitHubLabelsToPriority(labels []string) graph.Priority {
	for _, l := range labels {
		lower := strings.ToLower(l)
		switch {
		case lower == "p0" || lower == "critical":
			return graph.P0
		case lower == "p1" || lower == "high":
			return graph.P1
		case lower == "p2" || lower == "medium":
			return graph.P2
		case lower == "p3" || lower == "low":
			return graph.P3
		case lower == "p4" || lower == "backlog":
			return graph.P4
		}
	}
	return graph.P2
}

// JiraIssueTypeToCore maps a JIRA issue type name to the core IssueType
// enum.
func JiraIssueTypeToCore(name string) graph.IssueType {
	switch strings.ToLower(name) {
	case "bug":
		return graph.IssueBug
	case "epic":
		return graph.IssueEpic
	case "story", "task", "sub-task":
		return graph.IssueTask
	default:
		return graph.IssueFeature
	}
}

// GitHubLabelsToIssueType maps a GitHub issue's label set to the core
// IssueType enum.
func GitHubLabelsToIssueType(labels []string) graph.IssueType {
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "bug":
			return graph.IssueBug
		case "enhancement", "feature":
			return graph.IssueFeature
		case "epic":
			return graph.IssueEpic
		}
	}
	return graph.IssueTask
}

// JiraStatusCategoryToCore maps a JIRA status-category key to the core
// Status enum.
func JiraStatusCategoryToCore(categoryKey string) graph.Status {
	switch strings.ToLower(categoryKey) {
	case "indeterminate":
		return graph.StatusInProgress
	case "done":
		return graph.StatusClosed
	default: // "new"
		return graph.StatusOpen
	}
}

// GitHubStateToCore maps a GitHub issue state to the core Status enum.
func GitHubStateToCore(state string) graph.Status {
	if strings.EqualFold(state, "closed") {
		return graph.StatusClosed
	}
	return graph.StatusOpen
}

// TargetExternalState is the egress target state computed from a local
// bead's status, per spec §4.7 step 1: Closed -> Done/closed,
// InProgress -> In Progress/open, otherwise skip (ok=false).
type TargetExternalState struct {
	JiraStatusName string // e.g. "Done", "In Progress"
	GitHubState    string // "open" or "closed"
}

func TargetFor(status graph.Status) (TargetExternalState, bool) {
	switch status {
	case graph.StatusClosed:
		return TargetExternalState{JiraStatusName: "Done", GitHubState: "closed"}, true
	case graph.StatusInProgress:
		return TargetExternalState{JiraStatusName: "In Progress", GitHubState: "open"}, true
	default:
		return TargetExternalState{}, false
	}
}

// ExternalRefJira formats the jira: external ref for a key.
func ExternalRefJira(key string) string { return "jira:" + key }

// ExternalRefGitHub formats the github: external ref for an issue.
func ExternalRefGitHub(owner, repo string, number int) string {
	return "github:" + owner + "/" + repo + "#" + strconv.Itoa(number)
}
