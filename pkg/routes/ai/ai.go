package ai

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/services/assistant"
	"github.com/Ramsey-B/sage/pkg/context"
)

// Register registers AI assistant routes
func Register(g *echo.Group) {
	g.POST("/chat", Chat)
}

// ChatRequest is the request body for a chat question
type ChatRequest struct {
	Question string `json:"question" validate:"required"`
}

// Chat answers a question about the tenant's transactions. Every transaction
// the answer references is verified against the ledger before the response is
// released.
func Chat(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	userID := context.GetUserID(ctx)

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, service, err := ectoinject.GetContext[*assistant.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := service.Chat(ctx, tenantID, userID, req.Question)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
