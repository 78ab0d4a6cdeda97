// Package catalog defines the static tree of CRM permission nodes.
//
// A catalog is plain data: every node carries up to three capability slots
// (view, edit, hide) and an ordered list of children. Each slot is addressed
// by a globally unique param, which is the key used by stored override maps.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid indicates a catalog that breaks its structural rules.
var ErrInvalid = errors.New("catalog: invalid definition")

// Kind names one capability axis of a node.
type Kind string

const (
	KindView Kind = "view"
	KindEdit Kind = "edit"
	KindHide Kind = "hide"
)

// Kinds is the fixed iteration order for capability slots.
var Kinds = []Kind{KindView, KindEdit, KindHide}

// Slot is one capability of a node.
type Slot struct {
	Param       string `yaml:"param" json:"param"`
	Default     bool   `yaml:"default" json:"default"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Node is a named entry in the catalog.
type Node struct {
	Name        string `yaml:"name" json:"name"`
	Info        string `yaml:"info,omitempty" json:"info,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	View        *Slot  `yaml:"view,omitempty" json:"view,omitempty"`
	Edit        *Slot  `yaml:"edit,omitempty" json:"edit,omitempty"`
	Hide        *Slot  `yaml:"hide,omitempty" json:"hide,omitempty"`
	Children    []Node `yaml:"children,omitempty" json:"children,omitempty"`
}

// Catalog is the ordered list of top-level nodes.
type Catalog struct {
	Version string `yaml:"version" json:"version"`
	Nodes   []Node `yaml:"nodes" json:"nodes"`
}

// Slot returns the slot for kind, or nil when the node lacks it.
func (n *Node) Slot(kind Kind) *Slot {
	switch kind {
	case KindView:
		return n.View
	case KindEdit:
		return n.Edit
	case KindHide:
		return n.Hide
	}
	return nil
}

func (n *Node) setSlot(kind Kind, slot *Slot) {
	switch kind {
	case KindView:
		n.View = slot
	case KindEdit:
		n.Edit = slot
	case KindHide:
		n.Hide = slot
	}
}

// EachSlot calls fn for every present slot in Kinds order.
func (n *Node) EachSlot(fn func(Kind, *Slot)) {
	for _, kind := range Kinds {
		if slot := n.Slot(kind); slot != nil {
			fn(kind, slot)
		}
	}
}

// Params returns the node's own params, excluding children.
func (n *Node) Params() []string {
	var params []string
	n.EachSlot(func(_ Kind, s *Slot) {
		params = append(params, s.Param)
	})
	return params
}

// SubtreeParams returns the params of the node and all of its descendants.
func (n *Node) SubtreeParams() []string {
	params := n.Params()
	for i := range n.Children {
		params = append(params, n.Children[i].SubtreeParams()...)
	}
	return params
}

// Walk visits every node depth-first in catalog order. path holds the names
// of the ancestors including the visited node. Returning false stops the walk.
func (c Catalog) Walk(fn func(path []string, n *Node) bool) {
	var walk func(path []string, nodes []Node) bool
	walk = func(path []string, nodes []Node) bool {
		for i := range nodes {
			p := append(append([]string(nil), path...), nodes[i].Name)
			if !fn(p, &nodes[i]) {
				return false
			}
			if !walk(p, nodes[i].Children) {
				return false
			}
		}
		return true
	}
	walk(nil, c.Nodes)
}

// Params lists every param in catalog order.
func (c Catalog) Params() []string {
	var params []string
	c.Walk(func(_ []string, n *Node) bool {
		params = append(params, n.Params()...)
		return true
	})
	return params
}

// Has reports whether param is defined.
func (c Catalog) Has(param string) bool {
	_, _, ok := c.Lookup(param)
	return ok
}

// Lookup finds the slot addressed by param.
func (c Catalog) Lookup(param string) (Slot, Kind, bool) {
	var (
		found Slot
		kind  Kind
		ok    bool
	)
	c.Walk(func(_ []string, n *Node) bool {
		n.EachSlot(func(k Kind, s *Slot) {
			if !ok && s.Param == param {
				found, kind, ok = *s, k, true
			}
		})
		return !ok
	})
	return found, kind, ok
}

// Find returns the first node with the given name. Failing that, name is
// read as a slash separated path ("Settings/Members"). Paths are matched by
// joining the node names, so names that contain a slash stay reachable.
func (c Catalog) Find(name string) (Node, bool) {
	if n, ok := c.find(func(_ []string, n *Node) bool { return n.Name == name }); ok {
		return n, true
	}
	want := strings.Trim(name, "/")
	return c.find(func(path []string, _ *Node) bool {
		return len(path) > 1 && strings.Join(path, "/") == want
	})
}

func (c Catalog) find(match func(path []string, n *Node) bool) (Node, bool) {
	var (
		found Node
		ok    bool
	)
	c.Walk(func(path []string, n *Node) bool {
		if match(path, n) {
			found, ok = n.Clone(), true
			return false
		}
		return true
	})
	return found, ok
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	for _, kind := range Kinds {
		if s := n.Slot(kind); s != nil {
			cp := *s
			out.setSlot(kind, &cp)
		}
	}
	if n.Children != nil {
		out.Children = make([]Node, len(n.Children))
		for i := range n.Children {
			out.Children[i] = n.Children[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := Catalog{Version: c.Version}
	if c.Nodes != nil {
		out.Nodes = make([]Node, len(c.Nodes))
		for i := range c.Nodes {
			out.Nodes[i] = c.Nodes[i].Clone()
		}
	}
	return out
}

// Validate checks node shape and param uniqueness.
func (c Catalog) Validate() error {
	seen := make(map[string]string)
	var errs []error
	c.Walk(func(path []string, n *Node) bool {
		where := strings.Join(path, "/")
		if strings.TrimSpace(n.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: unnamed node at %q", ErrInvalid, where))
		}
		if len(n.Params()) == 0 && len(n.Children) == 0 {
			errs = append(errs, fmt.Errorf("%w: node %q has no capability and no children", ErrInvalid, where))
		}
		n.EachSlot(func(k Kind, s *Slot) {
			if strings.TrimSpace(s.Param) == "" {
				errs = append(errs, fmt.Errorf("%w: node %q %s slot has empty param", ErrInvalid, where, k))
				return
			}
			if prev, dup := seen[s.Param]; dup {
				errs = append(errs, fmt.Errorf("%w: param %q used by %q and %q", ErrInvalid, s.Param, prev, where))
				return
			}
			seen[s.Param] = where
		})
		return true
	})
	return errors.Join(errs...)
}
