package webhookevent

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const webhookEventTable = "webhook_events"

// Repository handles webhook event persistence. One row per admitted inbound
// event; the unique key (tenant_id, source, event_id) is the idempotency key.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new webhook event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Admit inserts the event's idempotency record. The uniqueness constraint,
// not a prior read, decides admission: a concurrent or repeated delivery of
// the same (tenant_id, source, event_id) loses the insert and is reported as
// not admitted, never as an error.
func (r *Repository) Admit(ctx context.Context, tenantID, source, eventID, payloadHash string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "webhookevent.Repository.Admit")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(webhookEventTable)
	ib.Cols("id", "tenant_id", "source", "event_id", "payload_hash")
	ib.Values(uuid.New().String(), tenantID, source, eventID, payloadHash)
	ib.OnConflictDoNothing()

	query, args := ib.Build()

	result, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"source":    source,
			"event_id":  eventID,
		}).Error("Failed to admit webhook event")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to admit webhook event")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to admit webhook event")
	}

	return rows == 1, nil
}
