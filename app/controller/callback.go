package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/factory"
	"github.com/vibast-solutions/ms-go-chip-donations/app/service"
	"github.com/vibast-solutions/ms-go-chip-donations/app/types"
)

const defaultFailureReason = "The payment was not completed."

// CallbackController serves the two gateway-facing endpoints: the signed
// webhook and the donor return redirect.
type CallbackController struct {
	reconcileService *service.ReconcileService
	links            service.Links
	logger           logrus.FieldLogger
}

func NewCallbackController(reconcileService *service.ReconcileService, links service.Links) *CallbackController {
	return &CallbackController{
		reconcileService: reconcileService,
		links:            links,
		logger:           factory.NewModuleLogger("callback-controller"),
	}
}

// HandleCallback never echoes anything about the failure to the sender.
func (c *CallbackController) HandleCallback(ctx echo.Context) error {
	req, err := types.NewCallbackRequestFromContext(ctx)
	if err != nil {
		return ctx.NoContent(http.StatusBadRequest)
	}

	l := factory.LoggerWithContext(c.logger, ctx).WithField("transaction_id", req.GetTransactionId())

	result, err := c.reconcileService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, service.ErrAccessDenied), errors.Is(err, service.ErrSignatureInvalid):
			l.WithError(err).Warn("Webhook rejected")
			return ctx.NoContent(http.StatusForbidden)
		case errors.Is(err, service.ErrMalformedPayload):
			l.WithError(err).Warn("Webhook payload malformed")
			return ctx.NoContent(http.StatusBadRequest)
		default:
			l.WithError(err).Error("Webhook processing failed")
			return ctx.NoContent(http.StatusServiceUnavailable)
		}
	}

	l.WithField("decision", string(result.Decision)).Info("Webhook processed")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "ok"})
}

func (c *CallbackController) HandleReturn(ctx echo.Context) error {
	req, err := types.NewReturnRequestFromContext(ctx)
	if err != nil {
		return renderPage(ctx, http.StatusBadRequest, errorPage("Invalid request", "The payment link is not valid."))
	}
	if err := req.Validate(); err != nil {
		return renderPage(ctx, http.StatusBadRequest, errorPage("Invalid request", "The payment link is not valid."))
	}

	l := factory.LoggerWithContext(c.logger, ctx).WithField("transaction_id", req.GetTransactionId())

	result, err := c.reconcileService.HandleReturn(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return renderPage(ctx, http.StatusBadRequest, errorPage("Invalid request", "The payment link is not valid."))
		case errors.Is(err, service.ErrTransactionNotFound):
			return renderPage(ctx, http.StatusNotFound, errorPage("Donation not found", "We could not find this donation."))
		case errors.Is(err, service.ErrAccessDenied):
			return renderPage(ctx, http.StatusForbidden, errorPage("Access denied", "The payment link is not valid."))
		case errors.Is(err, service.ErrNoGatewayTransaction):
			return renderPage(ctx, http.StatusOK, pendingPage(req.GetTransactionId()))
		default:
			l.WithError(err).Error("Return reconciliation failed")
			return renderPage(ctx, http.StatusServiceUnavailable, errorPage(
				"Temporarily unavailable",
				"We could not confirm your payment right now. Please reload this page in a few moments.",
			))
		}
	}

	txn := result.Transaction
	switch txn.Status {
	case entity.TransactionStatusCompleted:
		return ctx.Redirect(http.StatusFound, c.links.ReceiptURLFor(txn))
	case entity.TransactionStatusFailed:
		reason := result.Reason
		if reason == "" {
			reason = defaultFailureReason
		}
		gatewayID := ""
		if txn.GatewayTransactionID != nil {
			gatewayID = *txn.GatewayTransactionID
		}
		return renderPage(ctx, http.StatusOK, failurePage(txn.ID, gatewayID, reason, c.links.CancelURLFor(txn)))
	default:
		return renderPage(ctx, http.StatusOK, pendingPage(txn.ID))
	}
}
