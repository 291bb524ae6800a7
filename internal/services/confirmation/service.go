// Package confirmation implements the human approval step of the proposal
// lifecycle. A proposal executes at most once; the guarded status transition
// inside the unit of work is what enforces that, not any in-process state.
package confirmation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// ProposalRepository is the proposal store surface.
type ProposalRepository interface {
	GetByID(ctx context.Context, id string) (*models.ActionProposal, error)
	ClaimExecution(ctx context.Context, id string) (bool, error)
}

// CategoryReader resolves category names.
type CategoryReader interface {
	GetByName(ctx context.Context, tenantID, name string) (*models.Category, error)
}

// Ledger applies confirmed changes to the transaction store.
type Ledger interface {
	ApplyCategoryChange(ctx context.Context, tenantID, transactionID string, category models.Category, actorID string) (*models.Transaction, error)
}

// AuditRecorder records audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// ConfirmResult reports one executed proposal.
type ConfirmResult struct {
	Proposal    *models.ActionProposal `json:"proposal"`
	Transaction *models.Transaction    `json:"transaction,omitempty"`
}

// Service executes confirmed proposals.
type Service struct {
	db         database.DB
	logger     ectologger.Logger
	proposals  ProposalRepository
	categories CategoryReader
	ledger     Ledger
	auditor    AuditRecorder
	emitter    *events.Emitter
}

// NewService creates a new confirmation service
func NewService(db database.DB, logger ectologger.Logger, proposals ProposalRepository,
	categories CategoryReader, ledger Ledger, auditor AuditRecorder, emitter *events.Emitter) *Service {
	return &Service{
		db:         db,
		logger:     logger,
		proposals:  proposals,
		categories: categories,
		ledger:     ledger,
		auditor:    auditor,
		emitter:    emitter,
	}
}

// Confirm executes the proposal on behalf of the user who owns it. Ownership,
// tenant, and status are all checked inside one unit of work; the claim on the
// status row serializes concurrent confirms so exactly one caller executes.
func (s *Service) Confirm(ctx context.Context, tenantID, userID, proposalID string) (*ConfirmResult, error) {
	ctx, span := tracing.StartSpan(ctx, "confirmation.Service.Confirm")
	defer span.End()

	if userID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if proposalID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "proposal_id is required")
	}

	var result ConfirmResult
	err := database.WithTenantScope(ctx, s.db, s.logger, tenantID, func(ctx context.Context) error {
		proposal, getErr := s.proposals.GetByID(ctx, proposalID)
		if getErr != nil {
			return getErr
		}
		if proposal.TenantID != tenantID {
			return httperror.NewHTTPError(http.StatusForbidden, "proposal belongs to another tenant")
		}
		if proposal.UserID != userID {
			return httperror.NewHTTPError(http.StatusForbidden, "proposal belongs to another user")
		}
		if proposal.Status != models.ProposalStatusProposed {
			return invalidStateError(proposal.Status)
		}

		claimed, claimErr := s.proposals.ClaimExecution(ctx, proposal.ID)
		if claimErr != nil {
			return claimErr
		}
		if !claimed {
			// A concurrent confirm won the row. Reload for the status the
			// caller lost to.
			lost, reloadErr := s.proposals.GetByID(ctx, proposalID)
			if reloadErr != nil {
				return reloadErr
			}
			return invalidStateError(lost.Status)
		}

		switch proposal.ActionType {
		case models.ActionTypeRecategorize:
			payload, parseErr := models.ParseProposalPayload(proposal.ActionType, proposal.Payload)
			if parseErr != nil {
				s.logger.WithContext(ctx).WithError(parseErr).WithField("id", proposal.ID).Error("Stored proposal payload is invalid")
				return httperror.NewHTTPError(http.StatusInternalServerError, "proposal payload is invalid")
			}

			category, catErr := s.categories.GetByName(ctx, tenantID, payload.Recategorize.CategoryName)
			if catErr != nil {
				return catErr
			}

			tx, applyErr := s.ledger.ApplyCategoryChange(ctx, tenantID, payload.Recategorize.TransactionID, *category, userID)
			if applyErr != nil {
				return applyErr
			}
			result.Transaction = tx
		default:
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unsupported action type %q", proposal.ActionType)
		}

		diff, _ := json.Marshal(map[string]any{
			"action_type": proposal.ActionType,
			"status":      models.ProposalStatusExecuted,
		})
		if auditErr := s.auditor.Record(ctx, models.AuditEvent{
			TenantID:   tenantID,
			ActorType:  models.ActorTypeUser,
			ActorID:    &userID,
			EventType:  models.AuditProposalExecuted,
			EntityType: "ai_action_proposals",
			EntityID:   &proposal.ID,
			Diff:       diff,
		}); auditErr != nil {
			return auditErr
		}

		executed := *proposal
		executed.Status = models.ProposalStatusExecuted
		result.Proposal = &executed
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ProposalsExecutedTotal.WithLabelValues(tenantID, string(result.Proposal.ActionType)).Inc()
	s.emitter.EmitProposalExecuted(ctx, result.Proposal)
	if result.Transaction != nil {
		s.emitter.EmitTransactionRecategorized(ctx, result.Transaction)
	}

	return &result, nil
}

func invalidStateError(status string) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, "proposal is %s and cannot be confirmed", status).
		AddMetaValue("status", status)
}
