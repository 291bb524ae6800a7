package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType tags the payload variant of a proposal. Dispatch on action types
// is deliberately closed: adding one means adding a payload variant, its
// validation, and its confirmation branch.
type ActionType string

const (
	ActionTypeRecategorize ActionType = "recategorize"
)

// ProposalStatus values. The only transition is proposed -> executed.
const (
	ProposalStatusProposed = "proposed"
	ProposalStatusExecuted = "executed"
)

// ActionProposal is an AI-suggested mutation awaiting explicit human
// confirmation. It takes effect only through the confirmation flow.
type ActionProposal struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	AIInteractionID string          `json:"ai_interaction_id" db:"ai_interaction_id"`
	ActionType      ActionType      `json:"action_type" db:"action_type"`
	Payload         json.RawMessage `json:"payload" db:"payload"`
	Status          string          `json:"status" db:"status"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// RecategorizePayload is the payload for ActionTypeRecategorize.
type RecategorizePayload struct {
	TransactionID string `json:"transaction_id"`
	CategoryName  string `json:"category_name"`
	Reason        string `json:"reason,omitempty"`
}

// ProposalPayload is the decoded, tagged form of ActionProposal.Payload.
// Exactly one variant is set, matching the action type.
type ProposalPayload struct {
	Recategorize *RecategorizePayload
}

// ParseProposalPayload decodes raw into the variant for actionType. Unknown
// action types and structurally invalid payloads are rejected here, at
// proposal-creation time, so malformed model output never reaches the
// confirmation flow.
func ParseProposalPayload(actionType ActionType, raw json.RawMessage) (ProposalPayload, error) {
	switch actionType {
	case ActionTypeRecategorize:
		var p RecategorizePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return ProposalPayload{}, fmt.Errorf("invalid %s payload: %w", actionType, err)
		}
		if p.TransactionID == "" {
			return ProposalPayload{}, fmt.Errorf("%s payload requires transaction_id", actionType)
		}
		if p.CategoryName == "" {
			return ProposalPayload{}, fmt.Errorf("%s payload requires category_name", actionType)
		}
		return ProposalPayload{Recategorize: &p}, nil
	default:
		return ProposalPayload{}, fmt.Errorf("unknown action type %q", actionType)
	}
}
