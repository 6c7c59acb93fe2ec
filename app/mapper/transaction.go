package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/types"
)

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		Id:                   item.ID,
		Status:               entity.StatusName(item.Status),
		ExpectedAmount:       item.ExpectedAmount,
		Currency:             item.Currency,
		GatewayTransactionId: derefString(item.GatewayTransactionID),
		CheckoutUrl:          derefString(item.CheckoutURL),
		IsTest:               item.IsTest,
		AccessKey:            item.AccessKey,
		CampaignName:         item.CampaignName,
		Donor: types.Donor{
			Email:     item.DonorEmail,
			FirstName: item.DonorFirstName,
			LastName:  item.DonorLastName,
			Phone:     item.DonorPhone,
			Address:   item.DonorAddress,
			Address2:  item.DonorAddress2,
			City:      item.DonorCity,
			State:     item.DonorState,
			Postcode:  item.DonorPostcode,
			Country:   item.DonorCountry,
		},
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func TransactionLogsToResponse(items []*entity.TransactionLog) []*types.TransactionLog {
	result := make([]*types.TransactionLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		result = append(result, &types.TransactionLog{
			Id:        item.ID,
			Message:   item.Message,
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

func TransactionToCheckout(item *entity.Transaction) *types.CheckoutResponse {
	if item == nil {
		return nil
	}

	return &types.CheckoutResponse{
		TransactionId:        item.ID,
		GatewayTransactionId: derefString(item.GatewayTransactionID),
		CheckoutUrl:          derefString(item.CheckoutURL),
		IsTest:               item.IsTest,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
