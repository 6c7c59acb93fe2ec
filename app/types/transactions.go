package types

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type CreateTransactionRequest struct {
	Id           string `json:"id" validate:"omitempty,max=64,printascii"`
	Amount       string `json:"amount" validate:"required,numeric"`
	Currency     string `json:"currency" validate:"required,len=3,alpha"`
	CampaignName string `json:"campaign_name" validate:"required,max=512"`
	Donor        Donor  `json:"donor"`
}

func (r *CreateTransactionRequest) GetId() string           { return r.Id }
func (r *CreateTransactionRequest) GetAmount() string       { return r.Amount }
func (r *CreateTransactionRequest) GetCurrency() string     { return r.Currency }
func (r *CreateTransactionRequest) GetCampaignName() string { return r.CampaignName }
func (r *CreateTransactionRequest) GetDonor() Donor         { return r.Donor }

func NewCreateTransactionRequestFromContext(ctx echo.Context) (*CreateTransactionRequest, error) {
	var body CreateTransactionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Id = strings.TrimSpace(body.Id)
	body.Amount = strings.TrimSpace(body.Amount)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.CampaignName = strings.TrimSpace(body.CampaignName)
	body.Donor = trimDonor(body.Donor)

	return &body, nil
}

func (r *CreateTransactionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return errors.New("amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return errors.New("amount must be > 0")
	}
	return nil
}

type GetTransactionRequest struct {
	Id string
}

func (r *GetTransactionRequest) GetId() string { return r.Id }

func NewGetTransactionRequestFromContext(ctx echo.Context) (*GetTransactionRequest, error) {
	return &GetTransactionRequest{Id: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetTransactionRequest) Validate() error {
	if r.Id == "" {
		return errors.New("invalid transaction id")
	}
	return nil
}

func trimDonor(d Donor) Donor {
	return Donor{
		Email:     strings.TrimSpace(d.Email),
		FirstName: strings.TrimSpace(d.FirstName),
		LastName:  strings.TrimSpace(d.LastName),
		Phone:     strings.TrimSpace(d.Phone),
		Address:   strings.TrimSpace(d.Address),
		Address2:  strings.TrimSpace(d.Address2),
		City:      strings.TrimSpace(d.City),
		State:     strings.TrimSpace(d.State),
		Postcode:  strings.TrimSpace(d.Postcode),
		Country:   strings.ToUpper(strings.TrimSpace(d.Country)),
	}
}
