package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	"github.com/vibast-solutions/ms-go-chip-donations/app/lock"
	"github.com/vibast-solutions/ms-go-chip-donations/app/notification"
	"github.com/vibast-solutions/ms-go-chip-donations/app/repository"
	"github.com/vibast-solutions/ms-go-chip-donations/app/signature"
)

const (
	defaultPollTimeout = 10 * time.Second
	payloadExcerptSize = 512
)

type Decision string

const (
	DecisionCompleted Decision = "completed"
	DecisionFailed    Decision = "failed"
	// DecisionIgnored leaves a pending transaction untouched because the event
	// belongs to another transaction.
	DecisionIgnored Decision = "ignored"
	// DecisionRedundant is an event for a transaction that is already terminal.
	DecisionRedundant Decision = "redundant"
	// DecisionDeferred leaves a pending transaction untouched because a sweep
	// found its purchase still in flight at the gateway.
	DecisionDeferred Decision = "deferred"
)

const (
	reasonDeclined       = "The payment was declined."
	reasonAccessKey      = "The payment link is not valid."
	reasonAmountMismatch = "The amount paid does not match the donation."
	reasonNotFound       = "The payment could not be found."
)

// ReconcileResult carries the audit Message and, for failed outcomes, a short
// Reason that is safe to show the donor.
type ReconcileResult struct {
	Transaction *entity.Transaction
	Decision    Decision
	Message     string
	Reason      string
}

type verdict struct {
	decision Decision
	to       int32
	message  string
	reason   string
}

type callbackRequest interface {
	GetTransactionId() string
	GetAccessKey() string
	GetSignature() string
	GetBody() []byte
}

type returnRequest interface {
	GetTransactionId() string
	GetAccessKey() string
}

type transactionRepository interface {
	Create(ctx context.Context, txn *entity.Transaction) error
	FindByID(ctx context.Context, id string) (*entity.Transaction, error)
	AttachCheckout(ctx context.Context, txn *entity.Transaction, logMessage string) error
	Transition(ctx context.Context, id string, from, to int32, logMessage string, at time.Time) error
	ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error)
}

type transactionLogRepository interface {
	Append(ctx context.Context, entry *entity.TransactionLog) error
	ListByTransactionID(ctx context.Context, transactionID string) ([]*entity.TransactionLog, error)
}

type transactionCallbackRepository interface {
	Create(ctx context.Context, callback *entity.TransactionCallback) error
}

type credentialsSource interface {
	Credentials(ctx context.Context) (gateway.Credentials, error)
}

type ReconcileConfig struct {
	PollTimeout  time.Duration
	StaleAfter   time.Duration
	JobBatchSize int32
}

type ReconcileService struct {
	txnRepo      transactionRepository
	logRepo      transactionLogRepository
	callbackRepo transactionCallbackRepository
	credentials  credentialsSource
	gateway      gateway.Client
	locker       lock.Locker
	cfg          ReconcileConfig
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewReconcileService(
	txnRepo transactionRepository,
	logRepo transactionLogRepository,
	callbackRepo transactionCallbackRepository,
	credentials credentialsSource,
	gatewayClient gateway.Client,
	locker lock.Locker,
	cfg ReconcileConfig,
	logger logrus.FieldLogger,
) *ReconcileService {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}

	return &ReconcileService{
		txnRepo:      txnRepo,
		logRepo:      logRepo,
		callbackRepo: callbackRepo,
		credentials:  credentials,
		gateway:      gatewayClient,
		locker:       locker,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook processes one signed gateway delivery. The signature is
// checked over the received bytes before anything is parsed.
func (s *ReconcileService) HandleWebhook(ctx context.Context, req callbackRequest) (*ReconcileResult, error) {
	transactionID := strings.TrimSpace(req.GetTransactionId())
	if transactionID == "" {
		s.persistCallback(ctx, nil, req, entity.CallbackStatusRejected, "missing transaction id")
		return nil, ErrTransactionNotFound
	}

	txn, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		s.persistCallback(ctx, nil, req, entity.CallbackStatusRejected, "transaction not found")
		return nil, ErrTransactionNotFound
	}

	if key := strings.TrimSpace(req.GetAccessKey()); key != "" && !accessKeyMatches(txn, key) {
		s.persistCallback(ctx, &txn.ID, req, entity.CallbackStatusRejected, "access key mismatch")
		return nil, ErrAccessDenied
	}

	body := req.GetBody()
	if len(body) == 0 {
		s.persistCallback(ctx, &txn.ID, req, entity.CallbackStatusRejected, "empty body")
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	creds, err := s.credentials.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !signature.Verify(body, req.GetSignature(), creds.PublicKey) {
		s.persistCallback(ctx, &txn.ID, req, entity.CallbackStatusRejected, "signature verification failed")
		return nil, ErrSignatureInvalid
	}

	event, err := notification.Parse(body)
	if err != nil {
		s.persistCallback(ctx, &txn.ID, req, entity.CallbackStatusRejected, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	event.Source = entity.EventSourceWebhook

	result, err := s.apply(ctx, txn.ID, event)
	if err != nil {
		return nil, err
	}

	s.persistCallback(ctx, &txn.ID, req, entity.CallbackStatusProcessed, "")
	return result, nil
}

// HandleReturn reconciles a transaction when the donor lands back from the
// hosted checkout, by polling the gateway for the purchase state.
func (s *ReconcileService) HandleReturn(ctx context.Context, req returnRequest) (*ReconcileResult, error) {
	transactionID := strings.TrimSpace(req.GetTransactionId())
	accessKey := strings.TrimSpace(req.GetAccessKey())
	if transactionID == "" || accessKey == "" {
		return nil, ErrInvalidRequest
	}

	txn, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}

	if txn.Terminal() {
		if !accessKeyMatches(txn, accessKey) {
			return nil, ErrAccessDenied
		}
		return &ReconcileResult{Transaction: txn, Decision: DecisionRedundant}, nil
	}

	return s.pullAndApply(ctx, txn, entity.EventSourceReturn, &accessKey)
}

// ReconcileTransaction polls the gateway for a pending transaction on behalf
// of a trusted caller. No access key is checked.
func (s *ReconcileService) ReconcileTransaction(ctx context.Context, transactionID, source string) (*ReconcileResult, error) {
	txn, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if txn.Terminal() {
		return &ReconcileResult{Transaction: txn, Decision: DecisionRedundant}, nil
	}

	return s.pullAndApply(ctx, txn, source, nil)
}

func (s *ReconcileService) pullAndApply(ctx context.Context, txn *entity.Transaction, source string, accessKey *string) (*ReconcileResult, error) {
	if txn.GatewayTransactionID == nil || strings.TrimSpace(*txn.GatewayTransactionID) == "" {
		return nil, ErrNoGatewayTransaction
	}
	gatewayID := strings.TrimSpace(*txn.GatewayTransactionID)

	creds, err := s.credentials.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	event, err := s.gateway.GetPayment(pollCtx, creds, gatewayID)
	cancel()

	if errors.Is(err, gateway.ErrPaymentNotFound) {
		message := fmt.Sprintf("Error: CHIP purchase %s could not be found", gatewayID)
		return s.failUnderLock(ctx, txn.ID, message)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	event.Source = source
	event.AccessKey = accessKey
	return s.apply(ctx, txn.ID, event)
}

// apply runs the transition table for event against the current state of the
// transaction, re-read while holding its lock.
func (s *ReconcileService) apply(ctx context.Context, transactionID string, event *entity.PaymentEvent) (*ReconcileResult, error) {
	var result *ReconcileResult

	err := s.withTransactionLock(ctx, transactionID, func(ctx context.Context) error {
		current, err := s.txnRepo.FindByID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		if current == nil {
			return ErrTransactionNotFound
		}

		v := decide(current, event)
		l := s.logger.WithFields(logrus.Fields{
			"transaction_id": current.ID,
			"external_id":    event.ExternalID,
			"source":         event.Source,
			"decision":       string(v.decision),
		})

		switch v.decision {
		case DecisionIgnored:
			l.WithField("reference", event.Reference).Warn("Ignoring gateway event for another transaction")
			result = &ReconcileResult{Transaction: current, Decision: v.decision, Message: v.message}
			return nil
		case DecisionDeferred:
			l.WithField("gateway_status", event.GatewayStatus).Debug("Gateway purchase still in flight")
			result = &ReconcileResult{Transaction: current, Decision: v.decision}
			return nil
		case DecisionRedundant:
			result, err = s.recordRedundant(ctx, current, v.message)
			return err
		}

		if err := s.txnRepo.Transition(ctx, current.ID, entity.TransactionStatusPending, v.to, v.message, s.now()); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return s.reloadAsRedundant(ctx, current.ID, event, &result)
			}
			return fmt.Errorf("persist transition: %w", err)
		}

		current.Status = v.to
		l.Info("Transaction reconciled")
		result = &ReconcileResult{Transaction: current, Decision: v.decision, Message: v.message, Reason: v.reason}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ReconcileService) failUnderLock(ctx context.Context, transactionID, message string) (*ReconcileResult, error) {
	var result *ReconcileResult

	err := s.withTransactionLock(ctx, transactionID, func(ctx context.Context) error {
		current, err := s.txnRepo.FindByID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		if current == nil {
			return ErrTransactionNotFound
		}
		if current.Terminal() {
			result = &ReconcileResult{Transaction: current, Decision: DecisionRedundant}
			return nil
		}

		if err := s.txnRepo.Transition(ctx, current.ID, entity.TransactionStatusPending, entity.TransactionStatusFailed, message, s.now()); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				result = &ReconcileResult{Transaction: current, Decision: DecisionRedundant}
				return nil
			}
			return fmt.Errorf("persist transition: %w", err)
		}

		current.Status = entity.TransactionStatusFailed
		s.logger.WithField("transaction_id", current.ID).Warn("Gateway purchase not found, transaction failed")
		result = &ReconcileResult{Transaction: current, Decision: DecisionFailed, Message: message, Reason: reasonNotFound}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ReconcileService) withTransactionLock(ctx context.Context, transactionID string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, lock.TransactionKey(transactionID), fn)
	if errors.Is(err, lock.ErrLockTimeout) {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return err
}

func (s *ReconcileService) recordRedundant(ctx context.Context, txn *entity.Transaction, message string) (*ReconcileResult, error) {
	if err := s.logRepo.Append(ctx, &entity.TransactionLog{
		TransactionID: txn.ID,
		Message:       message,
		CreatedAt:     s.now(),
	}); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return &ReconcileResult{Transaction: txn, Decision: DecisionRedundant, Message: message}, nil
}

func (s *ReconcileService) reloadAsRedundant(ctx context.Context, transactionID string, event *entity.PaymentEvent, result **ReconcileResult) error {
	current, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("reload transaction: %w", err)
	}
	if current == nil {
		return ErrTransactionNotFound
	}
	r, err := s.recordRedundant(ctx, current, redundantMessage(current, event))
	if err != nil {
		return err
	}
	*result = r
	return nil
}

func (s *ReconcileService) persistCallback(ctx context.Context, transactionID *string, req callbackRequest, status int32, reason string) {
	var errPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, 1024)
		errPtr = &trimmed
	}

	err := s.callbackRepo.Create(ctx, &entity.TransactionCallback{
		TransactionID: transactionID,
		Signature:     truncate(strings.TrimSpace(req.GetSignature()), 1024),
		PayloadJSON:   string(req.GetBody()),
		Status:        status,
		Error:         errPtr,
		CreatedAt:     s.now(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to journal webhook delivery")
	}
}

// decide maps the current transaction state and an event onto the outcome,
// the target status and the audit message.
func decide(txn *entity.Transaction, event *entity.PaymentEvent) verdict {
	if txn.Terminal() {
		return verdict{decision: DecisionRedundant, to: txn.Status, message: redundantMessage(txn, event)}
	}
	if event.Reference != txn.ID {
		return verdict{
			decision: DecisionIgnored,
			to:       txn.Status,
			message:  fmt.Sprintf("Gateway event reference %q does not match transaction", event.Reference),
		}
	}
	if event.Source == entity.EventSourceSweep && !event.Final() {
		return verdict{decision: DecisionDeferred, to: txn.Status}
	}
	if !event.Paid() {
		return verdict{
			decision: DecisionFailed,
			to:       entity.TransactionStatusFailed,
			message: fmt.Sprintf(
				"Payment declined by CHIP. Gateway status: %s. CHIP Transaction ID: %s",
				displayStatus(event.GatewayStatus), event.ExternalID,
			),
			reason: reasonDeclined,
		}
	}
	if event.AccessKey != nil && !accessKeyMatches(txn, *event.AccessKey) {
		return verdict{
			decision: DecisionFailed,
			to:       entity.TransactionStatusFailed,
			message:  fmt.Sprintf("Access key mismatch on return for CHIP Transaction ID: %s", event.ExternalID),
			reason:   reasonAccessKey,
		}
	}
	if event.Amount != txn.ExpectedAmount {
		return verdict{
			decision: DecisionFailed,
			to:       entity.TransactionStatusFailed,
			message: fmt.Sprintf(
				"Amount mismatch for CHIP Transaction ID: %s. Expected %d, received %d. Payload: %s",
				event.ExternalID, txn.ExpectedAmount, event.Amount, truncate(string(event.RawBody), payloadExcerptSize),
			),
			reason: reasonAmountMismatch,
		}
	}

	return verdict{
		decision: DecisionCompleted,
		to:       entity.TransactionStatusCompleted,
		message:  fmt.Sprintf("CHIP Transaction ID: %s and Payment Method: %s", event.ExternalID, event.PaymentMethod),
	}
}

func redundantMessage(txn *entity.Transaction, event *entity.PaymentEvent) string {
	return fmt.Sprintf(
		"Redundant %s delivery ignored, transaction already %s. CHIP Transaction ID: %s, status: %s",
		event.Source, entity.StatusName(txn.Status), event.ExternalID, displayStatus(event.GatewayStatus),
	)
}

func displayStatus(status string) string {
	if strings.TrimSpace(status) == "" {
		return "(empty)"
	}
	return status
}

func accessKeyMatches(txn *entity.Transaction, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(txn.AccessKey), []byte(presented)) == 1
}

// truncate cuts value to at most max bytes without splitting a UTF-8
// sequence. Invalid bytes in the kept part are dropped.
func truncate(value string, max int) string {
	if len(value) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return strings.ToValidUTF8(value, "")
}
