package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/notification"
)

const (
	DefaultBaseURL = "https://gate.chip-in.asia/api/v1"

	maxResponseBytes = 1 << 20
)

type ChipConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

type ChipClient struct {
	baseURL string
	client  *http.Client
}

func NewChipClient(cfg ChipConfig) *ChipClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &ChipClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ChipClient) CreatePayment(ctx context.Context, creds Credentials, params *CreatePaymentParams) (*CreatePaymentResult, error) {
	if !creds.Configured() {
		return nil, ErrCredentialsMissing
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, creds, http.MethodPost, "/purchases/", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
		IsTest      bool   `json:"is_test"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Errors: decodeErrors(body)}
	}

	return &CreatePaymentResult{
		ID:          strings.TrimSpace(resp.ID),
		CheckoutURL: strings.TrimSpace(resp.CheckoutURL),
		IsTest:      resp.IsTest,
	}, nil
}

func (c *ChipClient) GetPayment(ctx context.Context, creds Credentials, externalID string) (*entity.PaymentEvent, error) {
	if !creds.Configured() {
		return nil, ErrCredentialsMissing
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrPaymentNotFound
	}

	body, err := c.do(ctx, creds, http.MethodGet, "/purchases/"+url.PathEscape(externalID)+"/", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	event, err := notification.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return event, nil
}

func (c *ChipClient) PublicKey(ctx context.Context, creds Credentials) (string, error) {
	if !creds.Configured() {
		return "", ErrCredentialsMissing
	}

	body, err := c.do(ctx, creds, http.MethodGet, "/public_key/", nil)
	if err != nil {
		return "", err
	}

	var key string
	if err := json.Unmarshal(body, &key); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	key = strings.ReplaceAll(strings.TrimSpace(key), `\n`, "\n")
	if key == "" {
		return "", fmt.Errorf("%w: empty public key", ErrInvalidResponse)
	}
	return key, nil
}

func (c *ChipClient) do(ctx context.Context, creds Credentials, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Errors: decodeErrors(body)}
	}

	return body, nil
}

func decodeErrors(body []byte) map[string]interface{} {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded != nil {
		return decoded
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"body": raw}
}
