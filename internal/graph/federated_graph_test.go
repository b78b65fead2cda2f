package graph

import "testing"

func TestAddBeadUpdatesDependentsIndex(t *testing.T) {
	g := New()
	b := &Bead{Id: "a1", Status: StatusOpen, Priority: P2, Dependencies: []BeadId{"a2"}}
	g.AddBead(b)

	deps := g.Dependents("a2")
	if len(deps) != 1 || deps[0] != "a1" {
		t.Fatalf("expected a1 in dependents of a2, got %v", deps)
	}
}

func TestRemoveBeadClearsLabelIndex(t *testing.T) {
	g := New()
	b := &Bead{Id: "a1", Labels: []string{"@work"}}
	g.AddBead(b)
	g.RemoveBead("a1")

	beads, shadows := g.ByLabel("@work")
	if len(beads) != 0 || len(shadows) != 0 {
		t.Fatalf("expected no remaining label entries, got beads=%v shadows=%v", beads, shadows)
	}
}

func TestLabelIndexSymmetryAcrossMutations(t *testing.T) {
	g := New()
	g.AddBead(&Bead{Id: "a1", Labels: []string{"x"}})
	g.AddShadow(&ShadowBead{Id: "s1", Context: "work", Labels: []string{"x"}})
	g.RemoveBead("a1")

	beads, shadows := g.ByLabel("x")
	if len(beads) != 0 {
		t.Fatalf("expected a1 gone from label index, got %v", beads)
	}
	if len(shadows) != 1 || shadows[0].Id != "s1" {
		t.Fatalf("expected s1 to remain in label index, got %v", shadows)
	}

	g.RemoveShadow("s1")
	_, shadows = g.ByLabel("x")
	if len(shadows) != 0 {
		t.Fatalf("expected label index empty after removing s1, got %v", shadows)
	}
}

func TestBeadUriRoundTrip(t *testing.T) {
	u := NewBeadUri("rig-a", "bead-b")
	rig, ok := u.RigId()
	if !ok || rig != "rig-a" {
		t.Fatalf("rig id round-trip failed: %v ok=%v", rig, ok)
	}
	bead, ok := u.BeadId()
	if !ok || bead != "bead-b" {
		t.Fatalf("bead id round-trip failed: %v ok=%v", bead, ok)
	}

	u2, ok := ParseBeadUri("bead://a/b")
	if !ok {
		t.Fatalf("expected bead://a/b to parse")
	}
	rig2, _ := u2.RigId()
	if rig2 != "a" {
		t.Fatalf("expected rig a, got %v", rig2)
	}

	if _, ok := ParseBeadUri("not-a-uri"); ok {
		t.Fatalf("expected not-a-uri to fail parsing")
	}
}

func TestClampPriority(t *testing.T) {
	if ClampPriority(99) != P4 {
		t.Fatalf("expected out-of-range priority to clamp to P4")
	}
	if ClampPriority(0) != P0 {
		t.Fatalf("expected 0 to map to P0")
	}
}

func TestIsBeadReadyForShadowChecksDependencies(t *testing.T) {
	g := New()
	g.AddBead(&Bead{Id: "closed-dep", Status: StatusClosed})
	g.AddShadow(&ShadowBead{
		Id:           "shadow-x",
		Dependencies: []BeadUri{NewBeadUri("r", "closed-dep")},
	})
	if !g.IsBeadReady("shadow-x") {
		t.Fatalf("expected shadow ready when all deps closed")
	}

	g.AddShadow(&ShadowBead{
		Id:           "shadow-y",
		Dependencies: []BeadUri{NewBeadUri("r", "missing")},
	})
	if g.IsBeadReady("shadow-y") {
		t.Fatalf("expected shadow not ready when dep unresolved")
	}
}

func TestAddShadowDisambiguatesIdCollision(t *testing.T) {
	g := New()
	g.AddShadow(&ShadowBead{Id: "shadow-r-abc123", Context: "work", Pointer: NewBeadUri("r", "alpha")})

	colliding := &ShadowBead{Id: "shadow-r-abc123", Context: "work", Pointer: NewBeadUri("r", "beta")}
	g.AddShadow(colliding)

	if colliding.Id == "shadow-r-abc123" {
		t.Fatalf("expected colliding shadow's id to be disambiguated, still %q", colliding.Id)
	}
	if g.shadows["shadow-r-abc123"].Pointer != NewBeadUri("r", "alpha") {
		t.Fatalf("expected original shadow to survive under its id, got %+v", g.shadows["shadow-r-abc123"])
	}
	if _, ok := g.shadows[colliding.Id]; !ok {
		t.Fatalf("expected disambiguated shadow to be stored under its new id")
	}
}

func TestAddShadowSameOriginUpdatesInPlace(t *testing.T) {
	g := New()
	g.AddShadow(&ShadowBead{Id: "shadow-r-abc123", Context: "work", Pointer: NewBeadUri("r", "alpha"), Summary: "first"})

	update := &ShadowBead{Id: "shadow-r-abc123", Context: "work", Pointer: NewBeadUri("r", "alpha"), Summary: "second"}
	g.AddShadow(update)

	if update.Id != "shadow-r-abc123" {
		t.Fatalf("expected same-origin update to keep its id, got %q", update.Id)
	}
	if len(g.shadows) != 1 || g.shadows["shadow-r-abc123"].Summary != "second" {
		t.Fatalf("expected in-place update, got %+v", g.shadows)
	}
}

func TestRigBuilderRequiresFields(t *testing.T) {
	_, err := NewRigBuilder().ID("r1").Build()
	if err == nil {
		t.Fatalf("expected error when remote/prefix/context missing")
	}

	rig, err := NewRigBuilder().ID("r1").Remote("git@host:x").Prefix("r").Context("work").Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rig.Branch != "main" {
		t.Fatalf("expected default branch main, got %q", rig.Branch)
	}
}
