package aiinteraction

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const aiInteractionTable = "ai_interactions"

// Repository persists answered questions. Rows are write-once.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new AI interaction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts one interaction row.
func (r *Repository) Create(ctx context.Context, interaction models.AIInteraction) error {
	ctx, span := tracing.StartSpan(ctx, "aiinteraction.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(aiInteractionTable)
	ib.Cols("id", "tenant_id", "user_id", "question", "response", "citations")
	ib.Values(interaction.ID, interaction.TenantID, interaction.UserID,
		interaction.Question, interaction.Response, interaction.Citations)

	query, args := ib.Build()

	if _, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": interaction.TenantID,
			"user_id":   interaction.UserID,
		}).Error("Failed to create AI interaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record interaction")
	}
	return nil
}
