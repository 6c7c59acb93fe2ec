package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

func TestTransactionToResponse(t *testing.T) {
	gatewayID := "purchase-1"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("MYT", 8*3600))
	item := &entity.Transaction{
		ID:                   "T1",
		Status:               entity.TransactionStatusCompleted,
		ExpectedAmount:       5000,
		Currency:             "MYR",
		GatewayTransactionID: &gatewayID,
		DonorEmail:           "donor@example.com",
		CreatedAt:            created,
		UpdatedAt:            created,
	}

	out := TransactionToResponse(item)
	if out.Status != "completed" || out.GatewayTransactionId != "purchase-1" || out.CheckoutUrl != "" {
		t.Fatalf("unexpected mapping: %+v", out)
	}
	if out.CreatedAt != "2026-01-01T19:04:05Z" {
		t.Fatalf("expected UTC RFC3339 time, got %s", out.CreatedAt)
	}
	if out.Donor.Email != "donor@example.com" {
		t.Fatalf("unexpected donor: %+v", out.Donor)
	}
	if TransactionToResponse(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestTransactionLogsToResponseSkipsNil(t *testing.T) {
	out := TransactionLogsToResponse([]*entity.TransactionLog{{ID: 1, Message: "a"}, nil, {ID: 2, Message: "b"}})
	if len(out) != 2 || out[1].Message != "b" {
		t.Fatalf("unexpected logs: %+v", out)
	}
}
