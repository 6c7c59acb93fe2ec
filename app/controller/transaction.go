package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/factory"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	"github.com/vibast-solutions/ms-go-chip-donations/app/mapper"
	"github.com/vibast-solutions/ms-go-chip-donations/app/service"
	"github.com/vibast-solutions/ms-go-chip-donations/app/types"
)

type TransactionController struct {
	transactionService *service.TransactionService
	logger             logrus.FieldLogger
}

func NewTransactionController(transactionService *service.TransactionService) *TransactionController {
	return &TransactionController{
		transactionService: transactionService,
		logger:             factory.NewModuleLogger("transactions-controller"),
	}
}

func (c *TransactionController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *TransactionController) CreateTransaction(ctx echo.Context) error {
	req, err := types.NewCreateTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.CreateTransaction(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrUnsupportedCurrency):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionExists):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create transaction failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.TransactionResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *TransactionController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, logs, err := c.transactionService.GetTransaction(ctx.Request().Context(), req.GetId())
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get transaction failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.TransactionResponse{
		Transaction: mapper.TransactionToResponse(item),
		Logs:        mapper.TransactionLogsToResponse(logs),
	})
}

func (c *TransactionController) StartCheckout(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.StartCheckout(ctx.Request().Context(), req.GetId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrUnsupportedCurrency):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrGatewayRejected):
			var apiErr *gateway.APIError
			details := map[string]interface{}{}
			if errors.As(err, &apiErr) {
				details = apiErr.Errors
			}
			return ctx.JSON(http.StatusBadGateway, &types.ErrorResponse{Error: service.ErrGatewayRejected.Error(), Details: details})
		case errors.Is(err, service.ErrGatewayUnavailable), errors.Is(err, service.ErrLockUnavailable), errors.Is(err, gateway.ErrCredentialsMissing):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Checkout temporarily unavailable")
			return c.writeError(ctx, http.StatusServiceUnavailable, "checkout temporarily unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Start checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.TransactionToCheckout(item))
}

func (c *TransactionController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
