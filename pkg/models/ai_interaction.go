package models

import (
	"time"

	"github.com/Ramsey-B/sage/pkg/database"
)

// AIInteraction is one answered question. Immutable once created.
type AIInteraction struct {
	ID        string                    `json:"id" db:"id"`
	TenantID  string                    `json:"tenant_id" db:"tenant_id"`
	UserID    string                    `json:"user_id" db:"user_id"`
	Question  string                    `json:"question" db:"question"`
	Response  string                    `json:"response" db:"response"`
	Citations database.JSONB[[]string]  `json:"citations" db:"citations"`
	CreatedAt time.Time                 `json:"created_at" db:"created_at"`
}
