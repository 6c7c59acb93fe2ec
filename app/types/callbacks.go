package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	SignatureHeader = "X-Signature"

	QueryTransactionID = "transaction_id"
	QueryAccessKey     = "access_key"

	// MaxCallbackBodyBytes bounds how much of a webhook body is read.
	MaxCallbackBodyBytes = 1 << 20
)

// CallbackRequest is one webhook delivery. Body holds the bytes exactly as
// received.
type CallbackRequest struct {
	TransactionId string
	AccessKey     string
	Signature     string
	Body          []byte
}

func (r *CallbackRequest) GetTransactionId() string { return r.TransactionId }
func (r *CallbackRequest) GetAccessKey() string     { return r.AccessKey }
func (r *CallbackRequest) GetSignature() string     { return r.Signature }
func (r *CallbackRequest) GetBody() []byte          { return r.Body }

func NewCallbackRequestFromContext(ctx echo.Context) (*CallbackRequest, error) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, MaxCallbackBodyBytes))
	if err != nil {
		return nil, err
	}

	return &CallbackRequest{
		TransactionId: strings.TrimSpace(ctx.QueryParam(QueryTransactionID)),
		AccessKey:     strings.TrimSpace(ctx.QueryParam(QueryAccessKey)),
		Signature:     strings.TrimSpace(ctx.Request().Header.Get(SignatureHeader)),
		Body:          body,
	}, nil
}

type ReturnRequest struct {
	TransactionId string
	AccessKey     string
}

func (r *ReturnRequest) GetTransactionId() string { return r.TransactionId }
func (r *ReturnRequest) GetAccessKey() string     { return r.AccessKey }

func NewReturnRequestFromContext(ctx echo.Context) (*ReturnRequest, error) {
	return &ReturnRequest{
		TransactionId: strings.TrimSpace(ctx.QueryParam(QueryTransactionID)),
		AccessKey:     strings.TrimSpace(ctx.QueryParam(QueryAccessKey)),
	}, nil
}

func (r *ReturnRequest) Validate() error {
	if r.TransactionId == "" {
		return errors.New("transaction_id is required")
	}
	if r.AccessKey == "" {
		return errors.New("access_key is required")
	}
	return nil
}
