package permissions

// SetShield sets or lifts the company wide lock on param. Only super admins
// may do so; the check happens before anything is copied.
func SetShield(locks ShieldLockSet, param string, locked, isSuperAdmin bool) (ShieldLockSet, error) {
	if !isSuperAdmin {
		return nil, ErrPermissionDenied
	}
	out := locks.Clone()
	out[param] = locked
	return out, nil
}
