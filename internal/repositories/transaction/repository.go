package transaction

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const (
	transactionTable = "transactions"
	currentView      = "current_transactions"
)

var transactionColumns = []string{
	"id", "tenant_id", "account_id", "provider_tx_id", "amount", "currency",
	"description", "occurred_at", "status", "version",
	"supersedes_transaction_id", "category_id", "created_at",
}

// Repository owns all writes to the transactions table. Rows are immutable;
// every mutation is an insert of a new, higher-versioned row.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new transaction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertVersion appends one version row. A uniqueness conflict on
// (tenant_id, provider_tx_id, version) means the row was already applied by
// this or a concurrent writer; that is reported as inserted=false, not as an
// error, so batch ingestion can skip and move on.
func (r *Repository) InsertVersion(ctx context.Context, tx models.Transaction) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.InsertVersion")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(transactionTable)
	ib.Cols("id", "tenant_id", "account_id", "provider_tx_id", "amount", "currency",
		"description", "occurred_at", "status", "version", "supersedes_transaction_id", "category_id")
	ib.Values(tx.ID, tx.TenantID, tx.AccountID, tx.ProviderTxID, tx.Amount, tx.Currency,
		tx.Description, tx.OccurredAt, tx.Status, tx.Version, tx.SupersedesTransactionID, tx.CategoryID)
	ib.OnConflictDoNothing()

	query, args := ib.Build()

	result, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":      tx.TenantID,
			"provider_tx_id": tx.ProviderTxID,
			"version":        tx.Version,
		}).Error("Failed to insert transaction version")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert transaction")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert transaction")
	}

	return rows == 1, nil
}

// GetByID returns the row with the given id regardless of whether it is the
// current version of its chain.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.GetByID")
	defer span.End()

	return r.getOne(ctx, transactionTable, tenantID, id)
}

// GetCurrentByID returns the row with the given id only if it is the current
// version of its chain.
func (r *Repository) GetCurrentByID(ctx context.Context, tenantID, id string) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.GetCurrentByID")
	defer span.End()

	return r.getOne(ctx, currentView, tenantID, id)
}

func (r *Repository) getOne(ctx context.Context, table, tenantID, id string) (*models.Transaction, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
	)
	sb.Limit(1)

	query, args := sb.Build()

	var tx models.Transaction
	if err := database.QuerierFrom(ctx, r.db).GetContext(ctx, &tx, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"id":        id,
		}).Error("Failed to get transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	return &tx, nil
}

// ListCurrent returns the current version of every logical transaction for the
// tenant, newest occurrence first.
func (r *Repository) ListCurrent(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.ListCurrent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From(currentView)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("occurred_at DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()

	var txs []models.Transaction
	if err := database.QuerierFrom(ctx, r.db).SelectContext(ctx, &txs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list current transactions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transactions")
	}
	return txs, nil
}

// ListCurrentIDs returns the subset of ids that resolve to current rows for
// the tenant. Used by citation verification.
func (r *Repository) ListCurrentIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.ListCurrentIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id FROM current_transactions WHERE tenant_id = $1 AND id = ANY($2)`

	var found []string
	if err := database.QuerierFrom(ctx, r.db).SelectContext(ctx, &found, query, tenantID, pq.Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"ids":       len(ids),
		}).Error("Failed to resolve transaction ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve transaction ids")
	}
	return found, nil
}

// ListVersions returns the full version chain of one logical transaction in
// ascending version order.
func (r *Repository) ListVersions(ctx context.Context, tenantID, providerTxID string) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.ListVersions")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From(transactionTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("provider_tx_id", providerTxID),
	)
	sb.OrderBy("version")

	query, args := sb.Build()

	var txs []models.Transaction
	if err := database.QuerierFrom(ctx, r.db).SelectContext(ctx, &txs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":      tenantID,
			"provider_tx_id": providerTxID,
		}).Error("Failed to list transaction versions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transaction versions")
	}
	return txs, nil
}
