package permissions

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
)

// Op names a merge operation.
type Op string

const (
	OpSetOne          Op = "set_one"
	OpSetNode         Op = "set_node"
	OpSetSubtree      Op = "set_subtree"
	OpSetAll          Op = "set_all"
	OpResetToTemplate Op = "reset_to_template"
)

// Mutation is a single user action against an override set.
type Mutation struct {
	Op    Op     `json:"op" validate:"required,oneof=set_one set_node set_subtree set_all reset_to_template"`
	Param string `json:"param,omitempty" validate:"required_if=Op set_one"`
	Node  string `json:"node,omitempty" validate:"required_if=Op set_node,required_if=Op set_subtree"`
	Value bool   `json:"value"`
}

// SetOne sets a single param.
func SetOne(o OverrideSet, param string, value bool) OverrideSet {
	out := o.Clone()
	out[param] = value
	return out
}

// SetNode sets every param owned by node, leaving its children alone.
func SetNode(o OverrideSet, node catalog.Node, value bool) OverrideSet {
	return setParams(o, node.Params(), value)
}

// SetSubtree sets every param of node and all of its descendants.
func SetSubtree(o OverrideSet, node catalog.Node, value bool) OverrideSet {
	return setParams(o, node.SubtreeParams(), value)
}

// SetAll sets every param in the catalog. Entries for params the catalog no
// longer defines are kept as they are.
func SetAll(o OverrideSet, c catalog.Catalog, value bool) OverrideSet {
	return setParams(o, c.Params(), value)
}

// ResetToTemplate discards the member's own overrides and adopts a copy of
// the template's.
func ResetToTemplate(_ OverrideSet, template OverrideSet) OverrideSet {
	return template.Clone()
}

func setParams(o OverrideSet, params []string, value bool) OverrideSet {
	out := o.Clone()
	for _, p := range params {
		out[p] = value
	}
	return out
}

// Apply runs m against current. template is only read by OpResetToTemplate.
func Apply(c catalog.Catalog, current, template OverrideSet, m Mutation) (OverrideSet, error) {
	switch m.Op {
	case OpSetOne:
		if !c.Has(m.Param) {
			return nil, fmt.Errorf("%w: param %q", ErrNotFound, m.Param)
		}
		return SetOne(current, m.Param, m.Value), nil
	case OpSetNode, OpSetSubtree:
		node, ok := c.Find(m.Node)
		if !ok {
			return nil, fmt.Errorf("%w: node %q", ErrNotFound, m.Node)
		}
		if m.Op == OpSetNode {
			return SetNode(current, node, m.Value), nil
		}
		return SetSubtree(current, node, m.Value), nil
	case OpSetAll:
		return SetAll(current, c, m.Value), nil
	case OpResetToTemplate:
		return ResetToTemplate(current, template), nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
}

// Change is one param whose stored entry differs between two sets. A nil
// side means the entry is absent.
type Change struct {
	Param string `json:"param"`
	From  *bool  `json:"from"`
	To    *bool  `json:"to"`
}

// Diff lists the entries that differ between before and after, sorted by param.
func Diff(before, after OverrideSet) []Change {
	union := Layer(after, before)
	var changes []Change
	for _, p := range union.Keys() {
		b, hadB := before.Lookup(p)
		a, hadA := after.Lookup(p)
		if hadA == hadB && a == b {
			continue
		}
		ch := Change{Param: p}
		if hadB {
			ch.From = boolPtr(b)
		}
		if hadA {
			ch.To = boolPtr(a)
		}
		changes = append(changes, ch)
	}
	return changes
}

func boolPtr(v bool) *bool { return &v }

// Proposal is the outcome of a mutation before it is persisted.
type Proposal struct {
	ID      uuid.UUID   `json:"id"`
	Before  OverrideSet `json:"before"`
	After   OverrideSet `json:"after"`
	Changes []Change    `json:"changes"`
}

// Propose pairs a before and after set.
func Propose(before, after OverrideSet) Proposal {
	return Proposal{
		ID:      uuid.New(),
		Before:  before.Clone(),
		After:   after.Clone(),
		Changes: Diff(before, after),
	}
}

// Empty reports whether the proposal changes nothing.
func (p Proposal) Empty() bool {
	return len(p.Changes) == 0
}

// Rollback returns a copy of the state before the mutation.
func (p Proposal) Rollback() OverrideSet {
	return p.Before.Clone()
}
