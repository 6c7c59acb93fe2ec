package entity

import "strings"

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusNotPaid = "not_paid"
)

const (
	EventSourceWebhook = "webhook"
	EventSourceReturn  = "return"
	EventSourceSweep   = "sweep"
)

// PaymentEvent is a normalized gateway notification or polled purchase. It is
// never persisted.
type PaymentEvent struct {
	ExternalID    string
	Reference     string
	Status        string
	GatewayStatus string
	Amount        int64
	PaymentMethod string
	RawBody       []byte

	Source string
	// AccessKey is the key presented by the caller; only the return path sets it.
	AccessKey *string
}

// finalGatewayStatuses are CHIP purchase statuses after which a purchase can
// no longer be paid.
var finalGatewayStatuses = map[string]bool{
	"error":      true,
	"cancelled":  true,
	"expired":    true,
	"blocked":    true,
	"chargeback": true,
	"refunded":   true,
	"released":   true,
}

func (e *PaymentEvent) Paid() bool {
	return e.Status == PaymentStatusPaid
}

// Final reports whether the gateway will not move the purchase any further.
// Statuses such as created, viewed, hold or pending_* are still in flight.
func (e *PaymentEvent) Final() bool {
	return e.Paid() || finalGatewayStatuses[strings.ToLower(e.GatewayStatus)]
}
