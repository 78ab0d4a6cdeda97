// Package permissions resolves and edits CRM capability overrides: the
// per-subject override sets, the company shield locks and the rollout policy
// for conservatively disabled params.
package permissions

import "sort"

// OverrideSet maps params to explicit values for one subject. A missing key
// means the resolved default applies.
type OverrideSet map[string]bool

// ShieldLockSet maps params to company wide locks. A true entry forces the
// capability off for everyone but super admins.
type ShieldLockSet map[string]bool

// Clone returns an independent copy. Cloning nil yields an empty set.
func (o OverrideSet) Clone() OverrideSet {
	out := make(OverrideSet, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Lookup returns the stored value for param.
func (o OverrideSet) Lookup(param string) (bool, bool) {
	v, ok := o[param]
	return v, ok
}

// Equal reports value equality; nil and empty sets are equal.
func (o OverrideSet) Equal(other OverrideSet) bool {
	if len(o) != len(other) {
		return false
	}
	for k, v := range o {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Keys returns the params in sorted order.
func (o OverrideSet) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (s ShieldLockSet) Clone() ShieldLockSet {
	out := make(ShieldLockSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Locked reports whether param is shielded.
func (s ShieldLockSet) Locked(param string) bool {
	return s[param]
}

// Layer stacks a member's overrides on top of its role template's. Member
// entries win; the result is a new set.
func Layer(member, template OverrideSet) OverrideSet {
	out := template.Clone()
	for k, v := range member {
		out[k] = v
	}
	return out
}
