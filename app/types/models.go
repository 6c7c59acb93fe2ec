package types

type Transaction struct {
	Id                   string `json:"id"`
	Status               string `json:"status"`
	ExpectedAmount       int64  `json:"expected_amount"`
	Currency             string `json:"currency"`
	GatewayTransactionId string `json:"gateway_transaction_id,omitempty"`
	CheckoutUrl          string `json:"checkout_url,omitempty"`
	IsTest               bool   `json:"is_test"`
	AccessKey            string `json:"access_key"`
	CampaignName         string `json:"campaign_name"`
	Donor                Donor  `json:"donor"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

type Donor struct {
	Email     string `json:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name" validate:"max=128"`
	LastName  string `json:"last_name" validate:"max=128"`
	Phone     string `json:"phone" validate:"max=32"`
	Address   string `json:"address" validate:"max=255"`
	Address2  string `json:"address_2" validate:"max=255"`
	City      string `json:"city" validate:"max=128"`
	State     string `json:"state" validate:"max=128"`
	Postcode  string `json:"postcode" validate:"max=32"`
	Country   string `json:"country" validate:"omitempty,len=2"`
}

type TransactionLog struct {
	Id        uint64 `json:"id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type TransactionResponse struct {
	Transaction *Transaction      `json:"transaction"`
	Logs        []*TransactionLog `json:"logs,omitempty"`
}

type CheckoutResponse struct {
	TransactionId        string `json:"transaction_id"`
	GatewayTransactionId string `json:"gateway_transaction_id"`
	CheckoutUrl          string `json:"checkout_url"`
	IsTest               bool   `json:"is_test"`
}

type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
