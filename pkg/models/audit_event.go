package models

import (
	"encoding/json"
	"time"
)

// Actor types for audit events.
const (
	ActorTypeProvider = "provider"
	ActorTypeAI       = "ai"
	ActorTypeUser     = "user"
	ActorTypeSystem   = "system"
)

// Audit event types.
const (
	AuditWebhookReceived       = "webhook_received"
	AuditTransactionIngested   = "transaction_ingested"
	AuditChatQuery             = "chat_query"
	AuditActionProposed        = "action_proposed"
	AuditRecategorizeExecuted  = "recategorize_executed"
	AuditProposalExecuted      = "proposal_executed"
)

// AuditEvent is one append-only entry in the audit trail. There is no update
// or delete path for this entity.
type AuditEvent struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	ActorType  string          `json:"actor_type" db:"actor_type"`
	ActorID    *string         `json:"actor_id,omitempty" db:"actor_id"`
	EventType  string          `json:"event_type" db:"event_type"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *string         `json:"entity_id,omitempty" db:"entity_id"`
	Diff       json.RawMessage `json:"diff" db:"diff"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
