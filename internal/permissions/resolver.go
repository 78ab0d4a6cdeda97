package permissions

import (
	"sort"
	"time"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
)

// EffectiveSlot is a capability slot with its value committed.
type EffectiveSlot struct {
	Kind           catalog.Kind `json:"kind"`
	Param          string       `json:"param"`
	Value          bool         `json:"value"`
	CatalogDefault bool         `json:"catalog_default"`
	Overridden     bool         `json:"overridden"`
	Locked         bool         `json:"locked"`
	State          State        `json:"state"`
	Description    string       `json:"description,omitempty"`
}

// EffectiveNode mirrors a catalog node.
type EffectiveNode struct {
	Name        string          `json:"name"`
	Info        string          `json:"info,omitempty"`
	Description string          `json:"description,omitempty"`
	Slots       []EffectiveSlot `json:"slots,omitempty"`
	Children    []EffectiveNode `json:"children,omitempty"`
}

// EffectiveTree is the resolved, catalog shaped permission tree of a subject.
type EffectiveTree struct {
	Version string          `json:"version"`
	Nodes   []EffectiveNode `json:"nodes"`
}

// Input carries everything a resolution depends on besides the catalog.
type Input struct {
	Overrides  OverrideSet
	Shields    ShieldLockSet
	SuperAdmin bool
	// SubjectCreatedAt feeds RolloutOffForExisting rules. Zero means unknown.
	SubjectCreatedAt time.Time
}

// Resolver computes effective trees. The zero value applies no rollout policy.
type Resolver struct {
	Policy PolicyTable
}

// NewResolver returns a Resolver using policy.
func NewResolver(policy PolicyTable) Resolver {
	return Resolver{Policy: policy}
}

// Resolve resolves c for a subject using the built-in default-off table.
func Resolve(c catalog.Catalog, overrides OverrideSet, shields ShieldLockSet, isSuperAdmin bool) EffectiveTree {
	return NewResolver(DefaultOff()).Resolve(c, Input{Overrides: overrides, Shields: shields, SuperAdmin: isSuperAdmin})
}

// Resolve builds the effective tree. For every slot: a shield lock forces it
// off unless the actor is a super admin, then an explicit override wins, then
// the rollout policy may force it off, then the catalog default applies.
// Params in the input that the catalog does not know are ignored.
func (r Resolver) Resolve(c catalog.Catalog, in Input) EffectiveTree {
	return EffectiveTree{Version: c.Version, Nodes: r.resolveNodes(c.Nodes, in)}
}

func (r Resolver) resolveNodes(nodes []catalog.Node, in Input) []EffectiveNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]EffectiveNode, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		en := EffectiveNode{Name: n.Name, Info: n.Info, Description: n.Description}
		n.EachSlot(func(kind catalog.Kind, s *catalog.Slot) {
			en.Slots = append(en.Slots, r.resolveSlot(kind, s, in))
		})
		en.Children = r.resolveNodes(n.Children, in)
		out = append(out, en)
	}
	return out
}

func (r Resolver) resolveSlot(kind catalog.Kind, s *catalog.Slot, in Input) EffectiveSlot {
	override, overridden := in.Overrides.Lookup(s.Param)
	locked := in.Shields.Locked(s.Param)
	slot := EffectiveSlot{
		Kind:           kind,
		Param:          s.Param,
		CatalogDefault: s.Default,
		Overridden:     overridden,
		Locked:         locked,
		State:          StateOf(s.Param, in.Overrides, in.Shields),
		Description:    s.Description,
	}
	switch {
	case locked && !in.SuperAdmin:
		slot.Value = false
	case overridden:
		slot.Value = override
	case r.Policy.ForcesOff(s.Param, in.SubjectCreatedAt):
		slot.Value = false
	default:
		slot.Value = s.Default
	}
	return slot
}

// Walk visits every slot of the tree in catalog order.
func (t EffectiveTree) Walk(fn func(EffectiveSlot)) {
	var walk func([]EffectiveNode)
	walk = func(nodes []EffectiveNode) {
		for _, n := range nodes {
			for _, s := range n.Slots {
				fn(s)
			}
			walk(n.Children)
		}
	}
	walk(t.Nodes)
}

// Slot returns the resolved slot for param.
func (t EffectiveTree) Slot(param string) (EffectiveSlot, bool) {
	var (
		found EffectiveSlot
		ok    bool
	)
	t.Walk(func(s EffectiveSlot) {
		if !ok && s.Param == param {
			found, ok = s, true
		}
	})
	return found, ok
}

// ValueOf returns the resolved value of param. The second result is false
// when the tree has no such param.
func (t EffectiveTree) ValueOf(param string) (bool, bool) {
	s, ok := t.Slot(param)
	return s.Value, ok
}

// Values flattens the tree to param -> value.
func (t EffectiveTree) Values() map[string]bool {
	out := make(map[string]bool)
	t.Walk(func(s EffectiveSlot) {
		out[s.Param] = s.Value
	})
	return out
}

// Granted lists the params resolved to true, sorted.
func (t EffectiveTree) Granted() []string {
	var granted []string
	t.Walk(func(s EffectiveSlot) {
		if s.Value {
			granted = append(granted, s.Param)
		}
	})
	sort.Strings(granted)
	return granted
}
