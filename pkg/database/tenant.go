package database

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
)

// WithTenantScope runs fn inside a single database transaction whose session
// is scoped to tenantID before any statement of fn executes. Repositories
// called from fn pick up the open transaction through GetTx, so the whole unit
// of work commits or rolls back as one. The scope is torn down on every exit
// path: commit on success, rollback on error or panic.
func WithTenantScope(ctx context.Context, db DB, logger ectologger.Logger, tenantID string, fn func(ctx context.Context) error) (err error) {
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}

	// An open scope carried by ctx is reused: the nested unit of work joins
	// the outer transaction and the outermost owner commits or rolls back.
	if tx, ok := ctx.Value(txKey).(Tx); ok && tx != nil && tx.IsOpen() {
		if status, ok := ctx.Value(txStatusKey).(string); ok && status == "open" {
			if _, execErr := tx.ExecContext(ctx, "SELECT set_config('app.current_tenant_id', $1, true)", tenantID); execErr != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to establish tenant scope")
			}
			return fn(ctx)
		}
	}

	tx, beginErr := db.BeginTxx(ctx, nil)
	if beginErr != nil {
		logger.WithContext(ctx).WithError(beginErr).WithField("tenant_id", tenantID).Error("Failed to begin tenant scope")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to establish tenant scope")
	}

	scoped := NewTx(tx, logger)

	done := false
	defer func() {
		if done {
			return
		}
		// error or panic exit; the scope must not outlive the unit of work
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).WithField("tenant_id", tenantID).Error("Failed to roll back tenant scope")
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	// set_config with is_local=true pins the tenant for the lifetime of this
	// transaction only; row level security policies read it back.
	if _, execErr := tx.ExecContext(ctx, "SELECT set_config('app.current_tenant_id', $1, true)", tenantID); execErr != nil {
		logger.WithContext(ctx).WithError(execErr).WithField("tenant_id", tenantID).Error("Failed to set tenant context")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to establish tenant scope")
	}

	if err = fn(ContextWithTx(ctx, scoped)); err != nil {
		return err
	}

	done = true // a failed commit already finalizes the transaction
	if commitErr := tx.Commit(); commitErr != nil {
		logger.WithContext(ctx).WithError(commitErr).WithField("tenant_id", tenantID).Error("Failed to commit tenant scoped unit of work")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit unit of work")
	}
	return nil
}
