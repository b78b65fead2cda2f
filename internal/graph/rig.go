package graph

import "fmt"

// Rig is one participating repository: its remote, authentication, and
// namespace prefix.
type Rig struct {
	Id         RigId
	Path       string
	Remote     string
	Branch     string // defaults to "main"
	Auth       AuthStrategy
	Persona    string
	Prefix     string
	JiraKey    string
	Context    string
}

// RigBuilder constructs a Rig, validating required fields before Build.
type RigBuilder struct {
	rig Rig
	err error
}

// NewRigBuilder starts a builder with the default branch pre-filled.
func NewRigBuilder() *RigBuilder {
	return &RigBuilder{rig: Rig{Branch: "main", Auth: AuthSSHAgent}}
}

func (b *RigBuilder) ID(id RigId) *RigBuilder       { b.rig.Id = id; return b }
func (b *RigBuilder) Path(p string) *RigBuilder     { b.rig.Path = p; return b }
func (b *RigBuilder) Remote(r string) *RigBuilder    { b.rig.Remote = r; return b }
func (b *RigBuilder) Branch(br string) *RigBuilder {
	if br != "" {
		b.rig.Branch = br
	}
	return b
}
func (b *RigBuilder) AuthStrategy(a AuthStrategy) *RigBuilder { b.rig.Auth = a; return b }
func (b *RigBuilder) Persona(p string) *RigBuilder            { b.rig.Persona = p; return b }
func (b *RigBuilder) Prefix(p string) *RigBuilder              { b.rig.Prefix = p; return b }
func (b *RigBuilder) JiraKey(k string) *RigBuilder             { b.rig.JiraKey = k; return b }
func (b *RigBuilder) Context(c string) *RigBuilder             { b.rig.Context = c; return b }

// Build validates required fields (id, remote, prefix, context) and
// returns the constructed Rig.
func (b *RigBuilder) Build() (*Rig, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.rig.Id == "" {
		return nil, fmt.Errorf("rig: id is required")
	}
	if b.rig.Remote == "" {
		return nil, fmt.Errorf("rig: remote is required")
	}
	if b.rig.Prefix == "" {
		return nil, fmt.Errorf("rig: prefix is required")
	}
	if b.rig.Context == "" {
		return nil, fmt.Errorf("rig: context is required")
	}
	rig := b.rig
	return &rig, nil
}

// BossRigId returns the synthetic rig id the aggregator assigns a context
// during aggregation: "boss-<context>".
func BossRigId(context string) RigId {
	return RigId("boss-" + context)
}
