// Package events handles event emission for ledger lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the producer surface the emitter needs.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, event *kafka.LedgerEvent) error
}

// Emitter publishes ledger lifecycle events. A nil producer disables emission;
// failures are logged and never fail the caller, because events fire only
// after the unit of work that produced them has committed.
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitTransactionIngested emits an event for each newly written transaction version.
func (e *Emitter) EmitTransactionIngested(ctx context.Context, tx *models.Transaction) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitTransactionIngested")
	defer span.End()

	e.emit(ctx, "transaction.ingested", tx.TenantID, tx.ID, "transactions", tx.Version, map[string]any{
		"schema_version": SchemaVersion,
		"provider_tx_id": tx.ProviderTxID,
		"amount":         tx.Amount,
		"status":         tx.Status,
	})
}

// EmitTransactionRecategorized emits an event for a confirmed category change.
func (e *Emitter) EmitTransactionRecategorized(ctx context.Context, tx *models.Transaction) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitTransactionRecategorized")
	defer span.End()

	e.emit(ctx, "transaction.recategorized", tx.TenantID, tx.ID, "transactions", tx.Version, map[string]any{
		"schema_version": SchemaVersion,
		"provider_tx_id": tx.ProviderTxID,
		"category_id":    tx.CategoryID,
	})
}

// EmitProposalExecuted emits an event when a proposal reaches its terminal state.
func (e *Emitter) EmitProposalExecuted(ctx context.Context, proposal *models.ActionProposal) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitProposalExecuted")
	defer span.End()

	e.emit(ctx, "proposal.executed", proposal.TenantID, proposal.ID, "ai_action_proposals", 0, map[string]any{
		"schema_version": SchemaVersion,
		"action_type":    proposal.ActionType,
		"user_id":        proposal.UserID,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType, tenantID, entityID, entityType string, version int, data map[string]any) {
	if e.producer == nil {
		return
	}

	dataJSON, _ := json.Marshal(data)

	event := &kafka.LedgerEvent{
		EventType:  eventType,
		TenantID:   tenantID,
		EntityID:   entityID,
		EntityType: entityType,
		Data:       dataJSON,
		Version:    version,
	}

	if err := e.producer.PublishLedgerEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to emit ledger event")
	}
}
