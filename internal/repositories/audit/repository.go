package audit

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const auditEventTable = "audit_events"

// Repository is the single write path for the audit trail. There is no update
// or delete; an insert failure propagates so the enclosing unit of work rolls
// back, because an unaudited mutation must not commit.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record appends one audit event.
func (r *Repository) Record(ctx context.Context, event models.AuditEvent) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Record")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	diff := event.Diff
	if diff == nil {
		diff = []byte("{}")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(auditEventTable)
	ib.Cols("id", "tenant_id", "actor_type", "actor_id", "event_type", "entity_type", "entity_id", "diff")
	ib.Values(event.ID, event.TenantID, event.ActorType, event.ActorID,
		event.EventType, event.EntityType, event.EntityID, []byte(diff))

	query, args := ib.Build()

	if _, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  event.TenantID,
			"event_type": event.EventType,
		}).Error("Failed to record audit event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record audit event")
	}
	return nil
}
