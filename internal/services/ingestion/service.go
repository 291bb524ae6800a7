// Package ingestion implements idempotent webhook intake. Admission is decided
// by the idempotency ledger inside the same unit of work that writes the
// transactions, so a retried delivery either fully applied or never did.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// WebhookEventRepository is the idempotency ledger surface.
type WebhookEventRepository interface {
	Admit(ctx context.Context, tenantID, source, eventID, payloadHash string) (bool, error)
}

// TransactionWriter appends transaction version rows.
type TransactionWriter interface {
	InsertVersion(ctx context.Context, tx models.Transaction) (bool, error)
}

// AuditRecorder records audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// WebhookPayload is the body of an inbound provider webhook.
type WebhookPayload struct {
	AccountID    string                   `json:"account_id"`
	Transactions []models.TransactionInput `json:"transactions"`
}

// WebhookRequest is one inbound webhook delivery.
type WebhookRequest struct {
	TenantID string
	Source   string
	EventID  string
	Payload  WebhookPayload
}

// WebhookResult reports what a delivery did. Duplicate deliveries report
// Duplicate=true and touch nothing.
type WebhookResult struct {
	Duplicate bool                 `json:"duplicate"`
	Ingested  int                  `json:"ingested"`
	Skipped   int                  `json:"skipped"`
	Inserted  []models.Transaction `json:"-"`
}

// Service handles webhook ingestion.
type Service struct {
	db            database.DB
	logger        ectologger.Logger
	webhookEvents WebhookEventRepository
	transactions  TransactionWriter
	auditor       AuditRecorder
	emitter       *events.Emitter
	now           func() time.Time
}

// NewService creates a new ingestion service
func NewService(db database.DB, logger ectologger.Logger, webhookEvents WebhookEventRepository,
	transactions TransactionWriter, auditor AuditRecorder, emitter *events.Emitter) *Service {
	return &Service{
		db:            db,
		logger:        logger,
		webhookEvents: webhookEvents,
		transactions:  transactions,
		auditor:       auditor,
		emitter:       emitter,
		now:           time.Now,
	}
}

// HandleWebhook admits and ingests one webhook delivery.
func (s *Service) HandleWebhook(ctx context.Context, req WebhookRequest) (WebhookResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.HandleWebhook")
	defer span.End()

	var result WebhookResult

	if req.Source == "" {
		return result, httperror.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	if req.EventID == "" {
		return result, httperror.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}

	payloadHash, err := hashPayload(req.Payload)
	if err != nil {
		return result, httperror.NewHTTPError(http.StatusBadRequest, "payload is not serializable")
	}

	err = database.WithTenantScope(ctx, s.db, s.logger, req.TenantID, func(ctx context.Context) error {
		admitted, admitErr := s.webhookEvents.Admit(ctx, req.TenantID, req.Source, req.EventID, payloadHash)
		if admitErr != nil {
			return admitErr
		}
		if !admitted {
			result.Duplicate = true
			return nil
		}

		diff, _ := json.Marshal(map[string]any{
			"source":            req.Source,
			"event_id":          req.EventID,
			"payload_hash":      payloadHash,
			"transaction_count": len(req.Payload.Transactions),
		})
		if auditErr := s.auditor.Record(ctx, models.AuditEvent{
			TenantID:   req.TenantID,
			ActorType:  models.ActorTypeProvider,
			ActorID:    &req.Source,
			EventType:  models.AuditWebhookReceived,
			EntityType: "webhook_events",
			Diff:       diff,
		}); auditErr != nil {
			return auditErr
		}

		now := s.now()
		for _, input := range req.Payload.Transactions {
			providerTxID, description, currency, status, occurredAt, version := input.Normalize(now)
			if providerTxID == "" {
				return httperror.NewHTTPError(http.StatusBadRequest, "transaction provider_tx_id is required")
			}

			tx := models.Transaction{
				ID:                      uuid.New().String(),
				TenantID:                req.TenantID,
				AccountID:               req.Payload.AccountID,
				ProviderTxID:            providerTxID,
				Amount:                  input.Amount,
				Currency:                currency,
				Description:             description,
				OccurredAt:              occurredAt,
				Status:                  status,
				Version:                 version,
				SupersedesTransactionID: input.SupersedesTransactionID,
			}

			inserted, insertErr := s.transactions.InsertVersion(ctx, tx)
			if insertErr != nil {
				return insertErr
			}
			if !inserted {
				// Same (tenant, provider_tx_id, version) already exists.
				// Replays inside a fresh event are skipped without failing
				// the rest of the batch.
				result.Skipped++
				continue
			}

			txDiff, _ := json.Marshal(map[string]any{
				"provider_tx_id": tx.ProviderTxID,
				"amount":         tx.Amount,
				"currency":       tx.Currency,
				"version":        tx.Version,
			})
			if auditErr := s.auditor.Record(ctx, models.AuditEvent{
				TenantID:   req.TenantID,
				ActorType:  models.ActorTypeProvider,
				ActorID:    &req.Source,
				EventType:  models.AuditTransactionIngested,
				EntityType: "transactions",
				EntityID:   &tx.ID,
				Diff:       txDiff,
			}); auditErr != nil {
				return auditErr
			}

			result.Ingested++
			result.Inserted = append(result.Inserted, tx)
		}
		return nil
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(req.TenantID, req.Source, "error").Inc()
		return WebhookResult{}, err
	}

	if result.Duplicate {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": req.TenantID,
			"source":    req.Source,
			"event_id":  req.EventID,
		}).Info("Skipping duplicate webhook event")
		metrics.WebhookEventsTotal.WithLabelValues(req.TenantID, req.Source, "duplicate").Inc()
		return result, nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(req.TenantID, req.Source, "processed").Inc()
	metrics.TransactionsIngestedTotal.WithLabelValues(req.TenantID).Add(float64(result.Ingested))
	for i := range result.Inserted {
		s.emitter.EmitTransactionIngested(ctx, &result.Inserted[i])
	}

	return result, nil
}

// hashPayload produces the stored fingerprint of a delivery body.
func hashPayload(payload WebhookPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
