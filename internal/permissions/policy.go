package permissions

import (
	"sort"
	"time"
)

// Rollout selects how a param behaves when a subject has no explicit value.
type Rollout int

const (
	// RolloutOff resolves to false for every subject without an override.
	RolloutOff Rollout = iota + 1
	// RolloutOffForExisting resolves to false for subjects created before the
	// rule was introduced and to the catalog default for newer ones.
	RolloutOffForExisting
)

// PolicyRule declares the rollout default of one param.
type PolicyRule struct {
	Param        string
	IntroducedAt time.Time
	Rollout      Rollout
}

// PolicyTable indexes rollout rules by param.
type PolicyTable map[string]PolicyRule

// NewPolicyTable builds a table from rules. Later rules replace earlier ones.
func NewPolicyTable(rules ...PolicyRule) PolicyTable {
	t := make(PolicyTable, len(rules))
	for _, r := range rules {
		t[r.Param] = r
	}
	return t
}

// ForcesOff reports whether param must resolve to false for a subject created
// at createdAt that carries no override. A zero createdAt counts as existing.
func (t PolicyTable) ForcesOff(param string, createdAt time.Time) bool {
	rule, ok := t[param]
	if !ok {
		return false
	}
	switch rule.Rollout {
	case RolloutOff:
		return true
	case RolloutOffForExisting:
		return createdAt.IsZero() || createdAt.Before(rule.IntroducedAt)
	}
	return false
}

// Params returns the params governed by the table.
func (t PolicyTable) Params() []string {
	params := make([]string, 0, len(t))
	for p := range t {
		params = append(params, p)
	}
	sort.Strings(params)
	return params
}

var defaultOffRules = []PolicyRule{
	{Param: "acc_v_client_export", IntroducedAt: time.Date(2023, 11, 6, 0, 0, 0, 0, time.UTC), Rollout: RolloutOff},
	{Param: "acc_v_analytics_export", IntroducedAt: time.Date(2024, 2, 19, 0, 0, 0, 0, time.UTC), Rollout: RolloutOff},
	{Param: "acc_v_api_keys", IntroducedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Rollout: RolloutOff},
	{Param: "acc_v_chat_history", IntroducedAt: time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC), Rollout: RolloutOff},
}

// DefaultOff returns the built-in rollout table.
func DefaultOff() PolicyTable {
	return NewPolicyTable(defaultOffRules...)
}
