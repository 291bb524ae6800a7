package actions

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/services/confirmation"
	"github.com/Ramsey-B/sage/pkg/context"
)

// Register registers action proposal routes
func Register(g *echo.Group) {
	g.POST("/:id/confirm", ConfirmAction)
}

// ConfirmAction executes a proposed action on behalf of the user who owns it.
// Confirming an already executed proposal returns 409 with the proposal's
// current status in the error meta.
func ConfirmAction(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	userID := context.GetUserID(ctx)

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*confirmation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := service.Confirm(ctx, tenantID, userID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
