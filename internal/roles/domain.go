package roles

import (
	"time"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
)

// RoleTemplate is a named, company scoped override set members can inherit.
type RoleTemplate struct {
	ID        int64                   `json:"id"`
	CompanyID int64                   `json:"company_id"`
	Name      string                  `json:"name"`
	Acc       permissions.OverrideSet `json:"acc"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Detail pairs a template with its resolved capabilities.
type Detail struct {
	Template  RoleTemplate              `json:"template"`
	Effective permissions.EffectiveTree `json:"effective"`
}

// MutationResult is returned after a mutation was applied and saved.
type MutationResult struct {
	Template RoleTemplate         `json:"template"`
	Proposal permissions.Proposal `json:"proposal"`
}
