package graph

import "strings"

const beadURIScheme = "bead://"

// BeadUri is a text pointer naming a bead from outside its owning repo,
// of the form bead://<rig>/<bead>.
type BeadUri string

// NewBeadUri constructs a BeadUri from its rig and bead components. '/'
// inside bead-id is not supported and is not validated against here — the
// core tolerates whatever the caller supplies.
func NewBeadUri(rig RigId, bead BeadId) BeadUri {
	return BeadUri(beadURIScheme + string(rig) + "/" + string(bead))
}

// RigId returns the rig component, or ("", false) if the URI does not
// parse (never panics — parse failures surface as a bool, not an error).
func (u BeadUri) RigId() (RigId, bool) {
	rig, _, ok := u.split()
	return rig, ok
}

// BeadId returns the bead component, or ("", false) if the URI does not
// parse.
func (u BeadUri) BeadId() (BeadId, bool) {
	_, bead, ok := u.split()
	return bead, ok
}

// split parses the URI iff it starts with the bead:// scheme and contains
// at least one '/' after it.
func (u BeadUri) split() (RigId, BeadId, bool) {
	s := string(u)
	if !strings.HasPrefix(s, beadURIScheme) {
		return "", "", false
	}
	rest := s[len(beadURIScheme):]
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", "", false
	}
	rig, bead := rest[:i], rest[i+1:]
	return RigId(rig), BeadId(bead), true
}

// ParseBeadUri parses a raw string form of a BeadUri.
func ParseBeadUri(s string) (BeadUri, bool) {
	u := BeadUri(s)
	_, _, ok := u.split()
	if !ok {
		return "", false
	}
	return u, true
}
