// Package ledger implements reads and appends over the versioned transaction
// store. Category changes never update a row; they append a superseding
// version linked to the one it replaces.
package ledger

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// TransactionRepository is the store surface the ledger needs.
type TransactionRepository interface {
	InsertVersion(ctx context.Context, tx models.Transaction) (bool, error)
	GetCurrentByID(ctx context.Context, tenantID, id string) (*models.Transaction, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.Transaction, error)
	ListCurrent(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error)
	ListVersions(ctx context.Context, tenantID, providerTxID string) ([]models.Transaction, error)
}

// AuditRecorder records audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// Service is the versioned transaction store.
type Service struct {
	db           database.DB
	logger       ectologger.Logger
	transactions TransactionRepository
	auditor      AuditRecorder
}

// NewService creates a new ledger service
func NewService(db database.DB, logger ectologger.Logger, transactions TransactionRepository, auditor AuditRecorder) *Service {
	return &Service{
		db:           db,
		logger:       logger,
		transactions: transactions,
		auditor:      auditor,
	}
}

// ListCurrent returns the current version of every logical transaction for
// the tenant.
func (s *Service) ListCurrent(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.ListCurrent")
	defer span.End()

	var txs []models.Transaction
	err := database.WithTenantScope(ctx, s.db, s.logger, tenantID, func(ctx context.Context) error {
		var listErr error
		txs, listErr = s.transactions.ListCurrent(ctx, tenantID, limit)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// History returns the full version chain containing the given row, oldest
// first. The id may point at any version in the chain.
func (s *Service) History(ctx context.Context, tenantID, id string) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.History")
	defer span.End()

	var chain []models.Transaction
	err := database.WithTenantScope(ctx, s.db, s.logger, tenantID, func(ctx context.Context) error {
		row, getErr := s.transactions.GetByID(ctx, tenantID, id)
		if getErr != nil {
			return getErr
		}

		var listErr error
		chain, listErr = s.transactions.ListVersions(ctx, tenantID, row.ProviderTxID)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ApplyCategoryChange appends a version with the category replaced. The input
// id must be the current version of its chain; superseded ids are rejected so
// a stale proposal cannot fork history. A version conflict on the append means
// a concurrent writer already advanced the chain, and the winner's row is
// returned instead of an error.
//
// Must run inside an open tenant scope; the appended row and its audit entry
// commit together with the caller's unit of work.
func (s *Service) ApplyCategoryChange(ctx context.Context, tenantID, transactionID string, category models.Category, actorID string) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.ApplyCategoryChange")
	defer span.End()

	current, err := s.transactions.GetCurrentByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}

	previousCategoryID := current.CategoryID

	next := models.Transaction{
		ID:                      uuid.New().String(),
		TenantID:                current.TenantID,
		AccountID:               current.AccountID,
		ProviderTxID:            current.ProviderTxID,
		Amount:                  current.Amount,
		Currency:                current.Currency,
		Description:             current.Description,
		OccurredAt:              current.OccurredAt,
		Status:                  current.Status,
		Version:                 current.Version + 1,
		SupersedesTransactionID: &current.ID,
		CategoryID:              &category.ID,
	}

	inserted, err := s.transactions.InsertVersion(ctx, next)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the version race. The chain already moved past current.Version,
		// so report whatever is current now.
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id":      tenantID,
			"provider_tx_id": current.ProviderTxID,
			"version":        next.Version,
		}).Warn("Category change lost a version race")

		chain, listErr := s.transactions.ListVersions(ctx, tenantID, current.ProviderTxID)
		if listErr != nil {
			return nil, listErr
		}
		if len(chain) == 0 {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "transaction chain is empty")
		}
		latest := chain[len(chain)-1]
		return &latest, nil
	}

	diff, _ := json.Marshal(map[string]any{
		"previous_category_id": previousCategoryID,
		"category_id":          category.ID,
		"category_name":        category.Name,
		"previous_version":     current.Version,
		"version":              next.Version,
	})
	if err := s.auditor.Record(ctx, models.AuditEvent{
		TenantID:   tenantID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actorID,
		EventType:  models.AuditRecategorizeExecuted,
		EntityType: "transactions",
		EntityID:   &next.ID,
		Diff:       diff,
	}); err != nil {
		return nil, err
	}

	return &next, nil
}
