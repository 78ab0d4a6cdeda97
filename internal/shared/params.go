package shared

// Catalog params guarding the access-control API itself.
const (
	ParamViewRoles        = "acc_v_roles"
	ParamEditRoles        = "acc_e_roles"
	ParamViewMembers      = "acc_v_members"
	ParamEditMembers      = "acc_e_members"
	ParamEditCustomFields = "acc_e_custom_fields"
)

// AdminParams lists the params guarding the access-control API.
func AdminParams() []string {
	return []string{
		ParamViewRoles,
		ParamEditRoles,
		ParamViewMembers,
		ParamEditMembers,
		ParamEditCustomFields,
	}
}
