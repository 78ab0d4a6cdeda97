package permissions

// State is the combined shield/override state of one param.
//
//	UnlockedDefault --override--> UnlockedOverridden
//	any state --shield on--> LockedOff
//	LockedOff --shield off--> UnlockedOverridden | UnlockedDefault
//
// Overrides written while LockedOff are stored but stay masked for non super
// admins until the shield is lifted.
type State string

const (
	StateUnlockedDefault    State = "unlocked_default"
	StateUnlockedOverridden State = "unlocked_overridden"
	StateLockedOff          State = "locked_off"
)

// StateOf derives the state of param.
func StateOf(param string, overrides OverrideSet, shields ShieldLockSet) State {
	if shields.Locked(param) {
		return StateLockedOff
	}
	if _, ok := overrides.Lookup(param); ok {
		return StateUnlockedOverridden
	}
	return StateUnlockedDefault
}
