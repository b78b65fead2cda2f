package graph

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Stats summarises the graph's contents for reporting and Sheriff cycle
// events.
type Stats struct {
	TotalBeads   int
	TotalShadows int
	TotalRigs    int
	Open         int
	InProgress   int
	Blocked      int
	Closed       int
}

// FederatedGraph is the in-memory multi-index container over beads,
// shadow beads, and rigs aggregated from many repositories. All
// operations are infallible over internal invariants; only a storage
// limit imposed by an implementation could fail them, and this one
// imposes none.
type FederatedGraph struct {
	beads   map[BeadId]*Bead
	shadows map[BeadId]*ShadowBead
	rigs    map[RigId]*Rig

	// dependents[X] is the set of ids that recorded X as a dependency.
	dependents map[BeadId]map[BeadId]struct{}
	// context[name] is the set of shadow ids tagged with that context.
	context map[string]map[BeadId]struct{}
	// label[name] is the set of ids (bead or shadow) carrying that label.
	label map[string]map[BeadId]struct{}
}

// New returns an empty graph.
func New() *FederatedGraph {
	return &FederatedGraph{
		beads:      make(map[BeadId]*Bead),
		shadows:    make(map[BeadId]*ShadowBead),
		rigs:       make(map[RigId]*Rig),
		dependents: make(map[BeadId]map[BeadId]struct{}),
		context:    make(map[string]map[BeadId]struct{}),
		label:      make(map[string]map[BeadId]struct{}),
	}
}

func addToIndex(idx map[string]map[BeadId]struct{}, key string, id BeadId) {
	set, ok := idx[key]
	if !ok {
		set = make(map[BeadId]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeFromIndex(idx map[string]map[BeadId]struct{}, key string, id BeadId) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// AddBead inserts or replaces b, updating the dependents-index for each
// dependency and the label-index for each label. If a bead with the same
// id already exists, its prior label/dependency index entries are removed
// first so the indices never go stale.
func (g *FederatedGraph) AddBead(b *Bead) {
	if prior, ok := g.beads[b.Id]; ok {
		g.unindexBead(prior)
	}
	cp := *b
	g.beads[b.Id] = &cp
	for _, dep := range b.Dependencies {
		addToIndex(g.dependents, string(dep), b.Id)
	}
	for _, l := range b.Labels {
		addToIndex(g.label, l, b.Id)
	}
}

func (g *FederatedGraph) unindexBead(b *Bead) {
	for _, dep := range b.Dependencies {
		removeFromIndex(g.dependents, string(dep), b.Id)
	}
	for _, l := range b.Labels {
		removeFromIndex(g.label, l, b.Id)
	}
}

// AddShadow inserts or replaces s, updating the context-index and
// label-index. The pointer acts as the shadow's external identity but is
// not itself indexed here; callers resolve by pointer via a linear scan
// (ShadowByPointer) or by keeping their own pointer→id map.
//
// shadow-<rig>-<first6(bead_id)> (spec §9) can collide: two distinct
// native beads or external issues may share the derived id. AddShadow
// is where that collision is actually detected — a prior shadow under
// the same id whose origin (Pointer, or ExternalRef for external
// shadows) differs from s's is a collision, not an update of the same
// shadow — and disambiguated by appending a uuid-derived suffix to s's
// id in place, so callers observe the id actually stored. This keeps
// shadowsync.Sync itself pure and total; the graph is the last-resort
// disambiguator spec §9 asks implementers for.
func (g *FederatedGraph) AddShadow(s *ShadowBead) {
	if prior, ok := g.shadows[s.Id]; ok && !sameShadowOrigin(prior, s) {
		disambiguated := BeadId(fmt.Sprintf("%s-%s", s.Id, uuid.New().String()[:8]))
		log.Printf("shadow id collision on %s in context %q; disambiguating to %s", s.Id, s.Context, disambiguated)
		s.Id = disambiguated
	}
	if prior, ok := g.shadows[s.Id]; ok {
		g.unindexShadow(prior)
	}
	cp := *s
	g.shadows[s.Id] = &cp
	addToIndex(g.context, s.Context, s.Id)
	for _, l := range s.Labels {
		addToIndex(g.label, l, s.Id)
	}
}

// sameShadowOrigin reports whether prior and incoming are successive
// syncs of the same underlying bead/issue (same Pointer, or same
// ExternalRef for external shadows) rather than two different origins
// that happen to derive the same shadow id.
func sameShadowOrigin(prior, incoming *ShadowBead) bool {
	if prior.ExternalRef != nil || incoming.ExternalRef != nil {
		if prior.ExternalRef == nil || incoming.ExternalRef == nil {
			return false
		}
		return *prior.ExternalRef == *incoming.ExternalRef
	}
	return prior.Pointer == incoming.Pointer
}

func (g *FederatedGraph) unindexShadow(s *ShadowBead) {
	removeFromIndex(g.context, s.Context, s.Id)
	for _, l := range s.Labels {
		removeFromIndex(g.label, l, s.Id)
	}
}

// AddRig registers r by id.
func (g *FederatedGraph) AddRig(r *Rig) {
	cp := *r
	g.rigs[r.Id] = &cp
}

// RemoveBead drops the bead and removes it from the label-index and from
// the dependents-index as a key (its own entry in dependents is deleted);
// beads that depended on it are left referencing the now-missing id
// (dangling), per spec: "the graph tolerates asymmetry."
func (g *FederatedGraph) RemoveBead(id BeadId) {
	b, ok := g.beads[id]
	if !ok {
		return
	}
	g.unindexBead(b)
	delete(g.beads, id)
	delete(g.dependents, id)
}

// RemoveShadow drops the shadow and removes it from the context-index and
// label-index.
func (g *FederatedGraph) RemoveShadow(id BeadId) {
	s, ok := g.shadows[id]
	if !ok {
		return
	}
	g.unindexShadow(s)
	delete(g.shadows, id)
}

// Bead returns the bead with id, if present.
func (g *FederatedGraph) Bead(id BeadId) (*Bead, bool) {
	b, ok := g.beads[id]
	return b, ok
}

// Shadow returns the shadow with id, if present.
func (g *FederatedGraph) Shadow(id BeadId) (*ShadowBead, bool) {
	s, ok := g.shadows[id]
	return s, ok
}

// ShadowByPointer returns the shadow whose pointer equals uri, if any.
func (g *FederatedGraph) ShadowByPointer(uri BeadUri) (*ShadowBead, bool) {
	for _, s := range g.shadows {
		if s.Pointer == uri {
			return s, true
		}
	}
	return nil, false
}

// Rig returns the rig with id, if present.
func (g *FederatedGraph) Rig(id RigId) (*Rig, bool) {
	r, ok := g.rigs[id]
	return r, ok
}

// AllBeads returns every bead in the graph, order unspecified.
func (g *FederatedGraph) AllBeads() []*Bead {
	out := make([]*Bead, 0, len(g.beads))
	for _, b := range g.beads {
		out = append(out, b)
	}
	return out
}

// AllShadows returns every shadow in the graph, order unspecified.
func (g *FederatedGraph) AllShadows() []*ShadowBead {
	out := make([]*ShadowBead, 0, len(g.shadows))
	for _, s := range g.shadows {
		out = append(out, s)
	}
	return out
}

// AllRigs returns every rig in the graph, order unspecified.
func (g *FederatedGraph) AllRigs() []*Rig {
	out := make([]*Rig, 0, len(g.rigs))
	for _, r := range g.rigs {
		out = append(out, r)
	}
	return out
}

// ByStatus returns every bead with the given status.
func (g *FederatedGraph) ByStatus(status Status) []*Bead {
	var out []*Bead
	for _, b := range g.beads {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

// ByContext returns the shadows tagged with the given context name.
func (g *FederatedGraph) ByContext(name string) []*ShadowBead {
	var out []*ShadowBead
	for id := range g.context[name] {
		if s, ok := g.shadows[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ByLabel returns the beads and shadows carrying the given label,
// separately.
func (g *FederatedGraph) ByLabel(name string) (beads []*Bead, shadows []*ShadowBead) {
	for id := range g.label[name] {
		if b, ok := g.beads[id]; ok {
			beads = append(beads, b)
		}
		if s, ok := g.shadows[id]; ok {
			shadows = append(shadows, s)
		}
	}
	return beads, shadows
}

// Dependents returns the ids that recorded id as a dependency.
func (g *FederatedGraph) Dependents(id BeadId) []BeadId {
	var out []BeadId
	for depId := range g.dependents[id] {
		out = append(out, depId)
	}
	return out
}

// ReadyBeads returns beads with status Open and an empty dependency
// list.
func (g *FederatedGraph) ReadyBeads() []*Bead {
	var out []*Bead
	for _, b := range g.beads {
		if b.Status == StatusOpen && len(b.Dependencies) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// IsBeadReady reports whether the bead or shadow named by id is ready:
// beads are ready per ReadyBeads' criteria; shadows are ready iff every
// one of their cross-repo dependency URIs resolves to a Closed bead or
// shadow — an unresolved URI makes the shadow not ready.
func (g *FederatedGraph) IsBeadReady(id BeadId) bool {
	if b, ok := g.beads[id]; ok {
		return b.Status == StatusOpen && len(b.Dependencies) == 0
	}
	if s, ok := g.shadows[id]; ok {
		for _, uri := range s.Dependencies {
			if !g.uriResolvesClosed(uri) {
				return false
			}
		}
		return true
	}
	return false
}

func (g *FederatedGraph) uriResolvesClosed(uri BeadUri) bool {
	beadId, ok := uri.BeadId()
	if !ok {
		return false
	}
	if b, ok := g.beads[beadId]; ok {
		return b.Status == StatusClosed
	}
	if s, ok := g.shadows[beadId]; ok {
		return s.Status == StatusClosed
	}
	return false
}

// Stats returns aggregate counts across the graph.
func (g *FederatedGraph) Stats() Stats {
	s := Stats{
		TotalBeads:   len(g.beads),
		TotalShadows: len(g.shadows),
		TotalRigs:    len(g.rigs),
	}
	for _, b := range g.beads {
		switch b.Status {
		case StatusOpen:
			s.Open++
		case StatusInProgress:
			s.InProgress++
		case StatusBlocked:
			s.Blocked++
		case StatusClosed:
			s.Closed++
		}
	}
	return s
}
