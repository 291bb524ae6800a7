package models

// Category is a spending category. A nil TenantID means the category belongs
// to the shared catalog visible to every tenant.
type Category struct {
	ID       string  `json:"id" db:"id"`
	TenantID *string `json:"tenant_id,omitempty" db:"tenant_id"`
	Name     string  `json:"name" db:"name"`
}
