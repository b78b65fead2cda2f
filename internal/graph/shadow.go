package graph

import "time"

// ShadowBead is a pointer-plus-summary record for a bead that lives
// elsewhere — another repository, or an external issue tracker — used to
// surface cross-repo dependencies and external issues in the aggregate.
type ShadowBead struct {
	Id           BeadId // local to the Boss repository
	Pointer      BeadUri
	Summary      string
	Status       Status
	Priority     Priority
	IssueType    IssueType
	Context      string
	Dependencies []BeadUri
	Blocks       []BeadUri
	Labels       []string
	LastSynced   time.Time
	Notes        string

	// ExternalRef identifies the external system issue this shadow
	// mirrors (e.g. "jira:PROJ-123", "github:acme/service#42"), set
	// only for shadows created by ExternalSyncer ingress.
	ExternalRef *string
}

// IsExternal reports whether this shadow mirrors an external tracker
// issue rather than a native bead in another rig.
func (s *ShadowBead) IsExternal() bool {
	return s.ExternalRef != nil
}

// HasLabel reports whether the shadow carries the given label.
func (s *ShadowBead) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}
