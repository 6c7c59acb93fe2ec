package entity

import "time"

const (
	TransactionStatusPending   int32 = 1
	TransactionStatusCompleted int32 = 10
	TransactionStatusFailed    int32 = 20
)

type Transaction struct {
	ID string

	Status         int32
	ExpectedAmount int64
	Currency       string

	GatewayTransactionID *string
	CheckoutURL          *string
	IsTest               bool

	AccessKey string

	CampaignName string

	DonorEmail     string
	DonorFirstName string
	DonorLastName  string
	DonorPhone     string
	DonorAddress   string
	DonorAddress2  string
	DonorCity      string
	DonorState     string
	DonorPostcode  string
	DonorCountry   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Transaction) Terminal() bool {
	return TerminalStatus(t.Status)
}

func TerminalStatus(status int32) bool {
	return status == TransactionStatusCompleted || status == TransactionStatusFailed
}

func StatusName(status int32) string {
	switch status {
	case TransactionStatusPending:
		return "pending"
	case TransactionStatusCompleted:
		return "completed"
	case TransactionStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
