package webhooks

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/services/ingestion"
	"github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/models"
)

// Register registers webhook routes
func Register(g *echo.Group) {
	g.POST("/:source", ReceiveWebhook)
}

// ReceiveWebhookRequest is the body of an inbound provider webhook.
type ReceiveWebhookRequest struct {
	EventID      string                    `json:"event_id" validate:"required"`
	AccountID    string                    `json:"account_id"`
	Transactions []models.TransactionInput `json:"transactions"`
}

// ReceiveWebhook ingests one provider webhook delivery. Replays of an already
// admitted event return 200 with duplicate=true and change nothing.
func ReceiveWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	source := c.Param("source")

	var req ReceiveWebhookRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, service, err := ectoinject.GetContext[*ingestion.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := service.HandleWebhook(ctx, ingestion.WebhookRequest{
		TenantID: tenantID,
		Source:   source,
		EventID:  req.EventID,
		Payload: ingestion.WebhookPayload{
			AccountID:    req.AccountID,
			Transactions: req.Transactions,
		},
	})
	if err != nil {
		return err
	}

	if result.Duplicate {
		return c.JSON(http.StatusOK, result)
	}
	return c.JSON(http.StatusCreated, result)
}
