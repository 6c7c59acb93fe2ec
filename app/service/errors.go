package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrTransactionExists    = errors.New("transaction already exists")
	ErrInvalidStatus        = errors.New("invalid transaction status")
	ErrAccessDenied         = errors.New("access denied")
	ErrSignatureInvalid     = errors.New("signature verification failed")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrLockUnavailable      = errors.New("transaction is busy")
	ErrNoGatewayTransaction = errors.New("transaction has no gateway purchase")
	ErrUnsupportedCurrency  = errors.New("unsupported currency")
)
