// Package gateway talks to the CHIP purchases API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

var (
	ErrPaymentNotFound    = errors.New("gateway payment not found")
	ErrCredentialsMissing = errors.New("gateway credentials are not configured")
	ErrInvalidResponse    = errors.New("invalid gateway response")
)

type Credentials struct {
	SecretKey string
	BrandID   string
	PublicKey string
}

func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.SecretKey) != "" && strings.TrimSpace(c.BrandID) != ""
}

type Client interface {
	CreatePayment(ctx context.Context, creds Credentials, params *CreatePaymentParams) (*CreatePaymentResult, error)
	GetPayment(ctx context.Context, creds Credentials, externalID string) (*entity.PaymentEvent, error)
	PublicKey(ctx context.Context, creds Credentials) (string, error)
}

type ClientDetails struct {
	Email         string `json:"email,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Country       string `json:"country,omitempty"`
	City          string `json:"city,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
	State         string `json:"state,omitempty"`
}

type Product struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type PurchaseDetails struct {
	Timezone  string    `json:"timezone"`
	Currency  string    `json:"currency"`
	DueStrict bool      `json:"due_strict,omitempty"`
	Products  []Product `json:"products"`
}

// CreatePaymentParams is the body of POST /purchases/.
type CreatePaymentParams struct {
	Client                 ClientDetails   `json:"client"`
	SuccessRedirect        string          `json:"success_redirect"`
	FailureRedirect        string          `json:"failure_redirect"`
	CancelRedirect         string          `json:"cancel_redirect"`
	SuccessCallback        string          `json:"success_callback"`
	CreatorAgent           string          `json:"creator_agent"`
	Reference              string          `json:"reference"`
	Platform               string          `json:"platform"`
	SendReceipt            bool            `json:"send_receipt"`
	BrandID                string          `json:"brand_id"`
	Purchase               PurchaseDetails `json:"purchase"`
	Due                    int64           `json:"due,omitempty"`
	PaymentMethodWhitelist []string        `json:"payment_method_whitelist,omitempty"`
}

type CreatePaymentResult struct {
	ID          string
	CheckoutURL string
	IsTest      bool
}

// APIError carries a non-2xx gateway answer. Errors holds the decoded error
// payload when the body was JSON, or the raw body otherwise.
type APIError struct {
	StatusCode int
	Errors     map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway request failed: status=%d", e.StatusCode)
}
