// Package shadowsync computes the diff between a rig's native beads and
// its existing shadow beads: a pure function, by design, that cannot
// fail.
package shadowsync

import (
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

const shadowIdHashLen = 6

// ShouldSync is the shadow-eligibility predicate: a native bead is
// shadow-eligible iff its issue-type is Epic, or its priority is P0 or
// P1.
func ShouldSync(b *graph.Bead) bool {
	return b.IssueType == graph.IssueEpic || b.Priority == graph.P0 || b.Priority == graph.P1
}

// ShadowId computes the stable (but not globally unique) shadow id for a
// native bead within a rig: shadow-<rig>-<first 6 chars of bead id>.
func ShadowId(rig graph.RigId, bead graph.BeadId) graph.BeadId {
	h := string(bead)
	if len(h) > shadowIdHashLen {
		h = h[:shadowIdHashLen]
	}
	return graph.BeadId("shadow-" + string(rig) + "-" + h)
}

// Diff is the set of shadow mutations ShadowSync computes for one rig.
type Diff struct {
	Create []*graph.ShadowBead
	Update []*graph.ShadowBead
	Delete []graph.BeadId
}

// needsUpdate reports whether the mirrored fields have drifted.
func needsUpdate(existing *graph.ShadowBead, b *graph.Bead) bool {
	if existing.Summary != b.Title {
		return true
	}
	if existing.Status != b.Status {
		return true
	}
	if !sameLabels(existing.Labels, b.Labels) {
		return true
	}
	return false
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, l := range a {
		set[l] = struct{}{}
	}
	for _, l := range b {
		if _, ok := set[l]; !ok {
			return false
		}
	}
	return true
}

// Sync computes create/update/delete operations for rig's native beads
// against its existing native (non-external) shadow set.
func Sync(rig graph.RigId, context string, native []*graph.Bead, existing []*graph.ShadowBead, now time.Time) Diff {
	var diff Diff
	seenPointers := make(map[graph.BeadUri]struct{})
	byPointer := make(map[graph.BeadUri]*graph.ShadowBead, len(existing))
	for _, s := range existing {
		byPointer[s.Pointer] = s
	}

	for _, b := range native {
		if !ShouldSync(b) {
			continue
		}
		uri := graph.NewBeadUri(rig, b.Id)
		seenPointers[uri] = struct{}{}

		if existingShadow, ok := byPointer[uri]; ok {
			if needsUpdate(existingShadow, b) {
				updated := *existingShadow
				updated.Summary = b.Title
				updated.Status = b.Status
				updated.Labels = append([]string(nil), b.Labels...)
				updated.LastSynced = now
				diff.Update = append(diff.Update, &updated)
			}
			continue
		}

		diff.Create = append(diff.Create, &graph.ShadowBead{
			Id:         ShadowId(rig, b.Id),
			Pointer:    uri,
			Summary:    b.Title,
			Status:     b.Status,
			Priority:   b.Priority,
			IssueType:  b.IssueType,
			Context:    context,
			Labels:     append([]string(nil), b.Labels...),
			LastSynced: now,
		})
	}

	for _, s := range existing {
		if _, ok := seenPointers[s.Pointer]; !ok {
			diff.Delete = append(diff.Delete, s.Id)
		}
	}

	return diff
}
