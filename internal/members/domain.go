package members

import (
	"time"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
)

// Member is a company user with optional template and personal overrides.
type Member struct {
	ID             int64                   `json:"id"`
	CompanyID      int64                   `json:"company_id"`
	Name           string                  `json:"name"`
	Email          string                  `json:"email"`
	RoleTemplateID *int64                  `json:"role_template_id"`
	Acc            permissions.OverrideSet `json:"acc"`
	SuperAdmin     bool                    `json:"is_super_admin"`
	IsActive       bool                    `json:"is_active"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Detail pairs a member with the template overrides it inherits and its
// resolved capabilities.
type Detail struct {
	Member      Member                    `json:"member"`
	TemplateAcc permissions.OverrideSet   `json:"template_acc"`
	Effective   permissions.EffectiveTree `json:"effective"`
}

// MutationResult is returned after a mutation was applied and saved.
type MutationResult struct {
	Member   Member               `json:"member"`
	Proposal permissions.Proposal `json:"proposal"`
}
