package transactions

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/services/ledger"
	"github.com/Ramsey-B/sage/pkg/context"
)

const defaultListLimit = 100

// Register registers transaction routes
func Register(g *echo.Group) {
	g.GET("", ListTransactions)
	g.GET("/:id/history", GetTransactionHistory)
}

// ListTransactions returns the current version of every transaction for the
// tenant, newest first.
func ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, service, err := ectoinject.GetContext[*ledger.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	txs, err := service.ListCurrent(ctx, tenantID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, txs)
}

// GetTransactionHistory returns the full version chain containing the given
// transaction id, oldest version first.
func GetTransactionHistory(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*ledger.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	chain, err := service.History(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chain)
}
