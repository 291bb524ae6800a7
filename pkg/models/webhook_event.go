package models

import "time"

// WebhookEvent records one admitted inbound event. The unique key
// (tenant_id, source, event_id) is the idempotency key; rows are never
// updated or deleted.
type WebhookEvent struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Source      string    `json:"source" db:"source"`
	EventID     string    `json:"event_id" db:"event_id"`
	PayloadHash string    `json:"payload_hash" db:"payload_hash"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
