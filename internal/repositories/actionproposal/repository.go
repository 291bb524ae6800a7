package actionproposal

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const proposalTable = "ai_action_proposals"

// Repository owns the proposal lifecycle rows. The status column only ever
// moves proposed -> executed, and only through ClaimExecution.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new action proposal repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a proposal in the initial proposed state.
func (r *Repository) Create(ctx context.Context, proposal models.ActionProposal) error {
	ctx, span := tracing.StartSpan(ctx, "actionproposal.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(proposalTable)
	ib.Cols("id", "tenant_id", "user_id", "ai_interaction_id", "action_type", "payload", "status")
	ib.Values(proposal.ID, proposal.TenantID, proposal.UserID, proposal.AIInteractionID,
		string(proposal.ActionType), []byte(proposal.Payload), models.ProposalStatusProposed)

	query, args := ib.Build()

	if _, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   proposal.TenantID,
			"action_type": proposal.ActionType,
		}).Error("Failed to create action proposal")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create proposal")
	}
	return nil
}

// GetByID loads a proposal. Tenant and owner checks belong to the caller;
// row level security already hides rows outside the active tenant scope.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ActionProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "actionproposal.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "user_id", "ai_interaction_id", "action_type",
		"payload", "status", "confirmed_at", "executed_at", "created_at")
	sb.From(proposalTable)
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()

	var proposal models.ActionProposal
	if err := database.QuerierFrom(ctx, r.db).GetContext(ctx, &proposal, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "proposal not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get action proposal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get proposal")
	}
	return &proposal, nil
}

// ClaimExecution performs the guarded proposed -> executed transition,
// stamping confirmed_at and executed_at. It reports whether this caller won
// the claim; inside a unit of work the row lock serializes concurrent
// confirms, so exactly one caller ever wins.
func (r *Repository) ClaimExecution(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "actionproposal.Repository.ClaimExecution")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(proposalTable)
	ub.Set(
		ub.Assign("status", models.ProposalStatusExecuted),
		"confirmed_at = now()",
		"executed_at = now()",
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ProposalStatusProposed),
	)

	query, args := ub.Build()

	result, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to claim proposal execution")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to execute proposal")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to execute proposal")
	}

	return rows == 1, nil
}
