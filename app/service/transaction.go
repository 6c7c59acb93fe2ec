package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	"github.com/vibast-solutions/ms-go-chip-donations/app/lock"
	"github.com/vibast-solutions/ms-go-chip-donations/app/repository"
	"github.com/vibast-solutions/ms-go-chip-donations/app/types"
)

const (
	SupportedCurrency = "MYR"

	purchaseTimezone = "Asia/Kuala_Lumpur"
	purchasePlatform = "api"
	maxFullNameLen   = 128
	maxProductLen    = 256
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

var fullNameDisallowed = regexp.MustCompile(`[^A-Za-z0-9@/\\().\-_,&' ]`)

type createTransactionRequest interface {
	GetId() string
	GetAmount() string
	GetCurrency() string
	GetCampaignName() string
	GetDonor() types.Donor
}

type CheckoutConfig struct {
	CreatorAgent           string
	SendReceipt            bool
	DueStrict              bool
	DueStrictTiming        time.Duration
	PaymentMethodWhitelist []string
}

type TransactionService struct {
	txnRepo     transactionRepository
	logRepo     transactionLogRepository
	credentials credentialsSource
	gateway     gateway.Client
	locker      lock.Locker
	links       Links
	cfg         CheckoutConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewTransactionService(
	txnRepo transactionRepository,
	logRepo transactionLogRepository,
	credentials credentialsSource,
	gatewayClient gateway.Client,
	locker lock.Locker,
	links Links,
	cfg CheckoutConfig,
	logger logrus.FieldLogger,
) *TransactionService {
	return &TransactionService{
		txnRepo:     txnRepo,
		logRepo:     logRepo,
		credentials: credentials,
		gateway:     gatewayClient,
		locker:      locker,
		links:       links,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateTransaction registers a pending donation. Repeating the call with the
// same id and amount returns the stored transaction.
func (s *TransactionService) CreateTransaction(ctx context.Context, req createTransactionRequest) (*entity.Transaction, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency()))
	if currency != SupportedCurrency {
		return nil, ErrUnsupportedCurrency
	}

	amount, err := ToMinorUnits(req.GetAmount())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := strings.TrimSpace(req.GetId())
	if id == "" {
		id = uuid.NewString()
	} else {
		existing, err := s.txnRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return sameTransactionOrConflict(existing, amount, currency)
		}
	}

	donor := req.GetDonor()
	now := s.now()
	txn := &entity.Transaction{
		ID:             id,
		Status:         entity.TransactionStatusPending,
		ExpectedAmount: amount,
		Currency:       currency,
		AccessKey:      newAccessKey(),
		CampaignName:   strings.TrimSpace(req.GetCampaignName()),
		DonorEmail:     donor.Email,
		DonorFirstName: donor.FirstName,
		DonorLastName:  donor.LastName,
		DonorPhone:     donor.Phone,
		DonorAddress:   donor.Address,
		DonorAddress2:  donor.Address2,
		DonorCity:      donor.City,
		DonorState:     donor.State,
		DonorPostcode:  donor.Postcode,
		DonorCountry:   donor.Country,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.txnRepo.Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrTransactionAlreadyExists) {
			existing, findErr := s.txnRepo.FindByID(ctx, id)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return sameTransactionOrConflict(existing, amount, currency)
			}
			return nil, ErrTransactionExists
		}
		return nil, err
	}

	return txn, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*entity.Transaction, []*entity.TransactionLog, error) {
	txn, err := s.txnRepo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, nil, err
	}
	if txn == nil {
		return nil, nil, ErrTransactionNotFound
	}

	logs, err := s.logRepo.ListByTransactionID(ctx, txn.ID)
	if err != nil {
		return nil, nil, err
	}

	return txn, logs, nil
}

// StartCheckout creates the gateway purchase for a pending transaction. It is
// idempotent: once a purchase is bound the stored checkout is returned.
func (s *TransactionService) StartCheckout(ctx context.Context, id string) (*entity.Transaction, error) {
	id = strings.TrimSpace(id)
	var result *entity.Transaction

	err := s.locker.WithLock(ctx, lock.TransactionKey(id), func(ctx context.Context) error {
		txn, err := s.txnRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrTransactionNotFound
		}
		if txn.GatewayTransactionID != nil {
			result = txn
			return nil
		}
		if txn.Terminal() {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidStatus, entity.StatusName(txn.Status))
		}
		if txn.Currency != SupportedCurrency {
			return ErrUnsupportedCurrency
		}

		creds, err := s.credentials.Credentials(ctx)
		if err != nil {
			return err
		}

		created, err := s.gateway.CreatePayment(ctx, creds, s.buildPurchase(txn, creds))
		if err != nil {
			var apiErr *gateway.APIError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("%w: %w", ErrGatewayRejected, apiErr)
			}
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}

		gatewayID := created.ID
		checkoutURL := created.CheckoutURL
		txn.GatewayTransactionID = &gatewayID
		txn.CheckoutURL = &checkoutURL
		txn.IsTest = created.IsTest
		txn.UpdatedAt = s.now()

		if err := s.txnRepo.AttachCheckout(ctx, txn, "Checkout Link: "+checkoutURL); err != nil {
			return fmt.Errorf("attach checkout: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"external_id":    gatewayID,
			"is_test":        txn.IsTest,
		}).Info("Checkout created")
		result = txn
		return nil
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *TransactionService) buildPurchase(txn *entity.Transaction, creds gateway.Credentials) *gateway.CreatePaymentParams {
	cancelURL := s.links.CancelURLFor(txn)

	params := &gateway.CreatePaymentParams{
		Client: gateway.ClientDetails{
			Email:         txn.DonorEmail,
			FullName:      sanitizeFullName(txn.DonorFirstName + " " + txn.DonorLastName),
			Phone:         txn.DonorPhone,
			StreetAddress: joinAddress(txn.DonorAddress, txn.DonorAddress2),
			Country:       txn.DonorCountry,
			City:          txn.DonorCity,
			ZipCode:       txn.DonorPostcode,
			State:         txn.DonorState,
		},
		SuccessRedirect: s.links.ReturnURL(txn),
		FailureRedirect: cancelURL,
		CancelRedirect:  cancelURL,
		SuccessCallback: s.links.CallbackURL(txn),
		CreatorAgent:    s.cfg.CreatorAgent,
		Reference:       txn.ID,
		Platform:        purchasePlatform,
		SendReceipt:     s.cfg.SendReceipt,
		BrandID:         creds.BrandID,
		Purchase: gateway.PurchaseDetails{
			Timezone: purchaseTimezone,
			Currency: txn.Currency,
			Products: []gateway.Product{{
				Name:  truncateRunes(txn.CampaignName, maxProductLen),
				Price: txn.ExpectedAmount,
			}},
		},
	}

	if s.cfg.DueStrict {
		params.Purchase.DueStrict = true
		if s.cfg.DueStrictTiming > 0 {
			params.Due = s.now().Add(s.cfg.DueStrictTiming).Unix()
		}
	}
	if len(s.cfg.PaymentMethodWhitelist) > 0 {
		params.PaymentMethodWhitelist = append([]string(nil), s.cfg.PaymentMethodWhitelist...)
	}

	return params
}

// ToMinorUnits converts a decimal amount in major units to rounded minor units.
func ToMinorUnits(amount string) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, errors.New("amount must be a decimal number")
	}
	minor := value.Shift(2).Round(0)
	if !minor.IsPositive() {
		return 0, errors.New("amount must be > 0")
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, errors.New("amount is too large")
	}
	return minor.IntPart(), nil
}

func sameTransactionOrConflict(existing *entity.Transaction, amount int64, currency string) (*entity.Transaction, error) {
	if existing.ExpectedAmount != amount || existing.Currency != currency {
		return nil, ErrTransactionExists
	}
	return existing, nil
}

func newAccessKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func sanitizeFullName(name string) string {
	name = strings.ReplaceAll(name, "’", "'")
	name = fullNameDisallowed.ReplaceAllString(name, "")
	return truncateRunes(strings.TrimSpace(name), maxFullNameLen)
}

func joinAddress(lines ...string) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Trim(strings.TrimSpace(line), ","); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ",")
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
