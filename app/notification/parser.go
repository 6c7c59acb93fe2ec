package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
)

type purchasePayload struct {
	ID        *string         `json:"id"`
	Reference json.RawMessage `json:"reference"`
	Status    *string         `json:"status"`
	Purchase  *struct {
		Total *json.Number `json:"total"`
	} `json:"purchase"`
	TransactionData *struct {
		PaymentMethod *string `json:"payment_method"`
	} `json:"transaction_data"`
}

// Parse decodes a CHIP purchase object, as delivered by the webhook or returned
// by the purchase lookup, into a PaymentEvent. The raw bytes are kept as-is.
func Parse(raw []byte) (*entity.PaymentEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var payload purchasePayload
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if payload.ID == nil || strings.TrimSpace(*payload.ID) == "" {
		return nil, missing("id")
	}
	reference, err := parseReference(payload.Reference)
	if err != nil {
		return nil, err
	}
	if payload.Status == nil {
		return nil, missing("status")
	}
	if payload.Purchase == nil || payload.Purchase.Total == nil {
		return nil, missing("purchase.total")
	}
	if payload.TransactionData == nil || payload.TransactionData.PaymentMethod == nil {
		return nil, missing("transaction_data.payment_method")
	}

	total, err := payload.Purchase.Total.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: purchase.total must be an integer amount of minor units", ErrMalformedPayload)
	}

	return &entity.PaymentEvent{
		ExternalID:    strings.TrimSpace(*payload.ID),
		Reference:     reference,
		Status:        NormalizeStatus(*payload.Status),
		GatewayStatus: strings.TrimSpace(*payload.Status),
		Amount:        total,
		PaymentMethod: strings.TrimSpace(*payload.TransactionData.PaymentMethod),
		RawBody:       raw,
	}, nil
}

// NormalizeStatus maps the gateway vocabulary onto paid/not_paid. Only the
// literal "paid" counts as paid.
func NormalizeStatus(status string) string {
	if status == "paid" {
		return entity.PaymentStatusPaid
	}
	return entity.PaymentStatusNotPaid
}

func parseReference(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", missing("reference")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: reference: %v", ErrMalformedPayload, err)
		}
		if strings.TrimSpace(s) == "" {
			return "", missing("reference")
		}
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: reference must be a string or integer", ErrMalformedPayload)
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("%w: reference must be a string or integer", ErrMalformedPayload)
	}
	return n.String(), nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
