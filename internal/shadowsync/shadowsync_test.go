package shadowsync

import (
	"testing"
	"time"

	"github.com/allbeads/allbeads/internal/graph"
)

func TestShadowEligibility(t *testing.T) {
	cases := []struct {
		b    graph.Bead
		want bool
	}{
		{graph.Bead{IssueType: graph.IssueEpic, Priority: graph.P4}, true},
		{graph.Bead{IssueType: graph.IssueTask, Priority: graph.P0}, true},
		{graph.Bead{IssueType: graph.IssueTask, Priority: graph.P1}, true},
		{graph.Bead{IssueType: graph.IssueTask, Priority: graph.P2}, false},
	}
	for _, c := range cases {
		if got := ShouldSync(&c.b); got != c.want {
			t.Errorf("ShouldSync(%+v) = %v, want %v", c.b, got, c.want)
		}
	}
}

func TestSyncCreateUpdateDelete(t *testing.T) {
	now := time.Now()
	native := []*graph.Bead{
		{Id: "a1", Title: "Epic A", Status: graph.StatusOpen, IssueType: graph.IssueEpic},
		{Id: "a2", Title: "changed title", Status: graph.StatusOpen, Priority: graph.P0},
	}
	existing := []*graph.ShadowBead{
		{Id: ShadowId("rig", "a2"), Pointer: graph.NewBeadUri("rig", "a2"), Summary: "old title", Status: graph.StatusOpen},
		{Id: ShadowId("rig", "a3"), Pointer: graph.NewBeadUri("rig", "a3"), Summary: "gone", Status: graph.StatusOpen},
	}

	diff := Sync("rig", "work", native, existing, now)

	if len(diff.Create) != 1 || diff.Create[0].Pointer != graph.NewBeadUri("rig", "a1") {
		t.Fatalf("expected 1 create for a1, got %+v", diff.Create)
	}
	if len(diff.Update) != 1 || diff.Update[0].Summary != "changed title" {
		t.Fatalf("expected 1 update for a2 with new title, got %+v", diff.Update)
	}
	if len(diff.Delete) != 1 || diff.Delete[0] != ShadowId("rig", "a3") {
		t.Fatalf("expected delete of a3's shadow, got %+v", diff.Delete)
	}
}

func TestSyncTwoReposOneEpicOneBug(t *testing.T) {
	now := time.Now()
	workBeads := []*graph.Bead{
		{Id: "a1", Title: "epic", IssueType: graph.IssueEpic, Status: graph.StatusOpen, Priority: graph.P2},
		{Id: "a2", Title: "bug", IssueType: graph.IssueBug, Status: graph.StatusOpen, Priority: graph.P3},
	}
	personalBeads := []*graph.Bead{
		{Id: "b1", Title: "feature", IssueType: graph.IssueFeature, Status: graph.StatusOpen, Priority: graph.P0},
	}

	workDiff := Sync("boss-work", "work", workBeads, nil, now)
	personalDiff := Sync("boss-personal", "personal", personalBeads, nil, now)

	if len(workDiff.Create) != 1 || len(workDiff.Update) != 0 || len(workDiff.Delete) != 0 {
		t.Fatalf("expected 1 create (a1 epic) for work, got %+v", workDiff)
	}
	if len(personalDiff.Create) != 1 {
		t.Fatalf("expected 1 create (b1 P0) for personal, got %+v", personalDiff)
	}
}
