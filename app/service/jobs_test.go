package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
)

func TestRunReconcileBatchSettlesStalePending(t *testing.T) {
	f := newReconcileFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	stalePaid := pendingTransaction("A", 1000)
	stalePaid.UpdatedAt = now.Add(-time.Hour)
	staleGone := pendingTransaction("B", 1000)
	staleGone.UpdatedAt = now.Add(-time.Hour)
	fresh := pendingTransaction("C", 1000)
	fresh.UpdatedAt = now.Add(-time.Minute)
	f.store.put(stalePaid)
	f.store.put(staleGone)
	f.store.put(fresh)

	f.gateway.getPayment = func(_ context.Context, _ gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
		switch externalID {
		case "ext-A":
			return paidEvent("ext-A", "A", 1000, "fpx"), nil
		case "ext-B":
			return nil, gateway.ErrPaymentNotFound
		}
		t.Fatalf("unexpected poll for %s", externalID)
		return nil, nil
	}

	if err := f.service.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.store.status("A") != entity.TransactionStatusCompleted {
		t.Fatal("expected A to complete")
	}
	if f.store.status("B") != entity.TransactionStatusFailed {
		t.Fatal("expected B to fail")
	}
	if f.store.status("C") != entity.TransactionStatusPending {
		t.Fatal("expected fresh transaction to be left alone")
	}
}

func TestRunReconcileBatchContinuesAfterError(t *testing.T) {
	f := newReconcileFixture(t)
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	for _, id := range []string{"A", "B"} {
		txn := pendingTransaction(id, 1000)
		txn.UpdatedAt = now.Add(-time.Hour)
		f.store.put(txn)
	}

	f.gateway.getPayment = func(_ context.Context, _ gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
		if externalID == "ext-A" {
			return nil, errors.New("connection reset")
		}
		return paidEvent("ext-B", "B", 1000, "fpx"), nil
	}

	err := f.service.RunReconcileBatch(context.Background())
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected first error to surface, got %v", err)
	}
	if f.store.status("A") != entity.TransactionStatusPending {
		t.Fatal("an unreachable gateway must leave A pending")
	}
	if f.store.status("B") != entity.TransactionStatusCompleted {
		t.Fatal("expected B to complete despite A failing")
	}
}

func TestRunReconcileBatchHonorsBatchSize(t *testing.T) {
	f := newReconcileFixture(t)
	f.service.cfg.JobBatchSize = 1
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	for _, id := range []string{"A", "B"} {
		txn := pendingTransaction(id, 1000)
		txn.UpdatedAt = now.Add(-time.Hour)
		f.store.put(txn)
	}
	f.gateway.getPayment = func(_ context.Context, _ gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
		return paidEvent(externalID, externalID[len("ext-"):], 1000, "fpx"), nil
	}

	if err := f.service.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.gateway.getCalls != 1 {
		t.Fatalf("expected one poll, got %d", f.gateway.getCalls)
	}
}

func TestRunReconcileBatchLeavesInFlightPurchasePending(t *testing.T) {
	f := newReconcileFixture(t)
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	txn := pendingTransaction("T1", 10000)
	txn.UpdatedAt = now.Add(-time.Hour)
	f.store.put(txn)

	gatewayStatus := "created"
	f.gateway.getPayment = func(_ context.Context, _ gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
		event := paidEvent(externalID, "T1", 10000, "")
		event.Status = entity.PaymentStatusNotPaid
		event.GatewayStatus = gatewayStatus
		return event, nil
	}

	for _, status := range []string{"created", "viewed", "pending_charge", "hold"} {
		gatewayStatus = status
		if err := f.service.RunReconcileBatch(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.store.status("T1") != entity.TransactionStatusPending {
			t.Fatalf("sweep on %q purchase moved transaction to %d", status, f.store.status("T1"))
		}
	}
	if len(f.store.logMessages("T1")) != 0 {
		t.Fatalf("expected no audit entries for in-flight purchase, got %v", f.store.logMessages("T1"))
	}

	body := webhookBody("ext-T1", "T1", "paid", 10000, "fpx")
	result, err := f.service.HandleWebhook(context.Background(), f.signedCallback(t, "T1", body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Decision != DecisionCompleted || f.store.status("T1") != entity.TransactionStatusCompleted {
		t.Fatalf("expected later paid webhook to complete, got decision=%s status=%d", result.Decision, f.store.status("T1"))
	}
}

func TestRunReconcileBatchFailsFinalPurchase(t *testing.T) {
	f := newReconcileFixture(t)
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	txn := pendingTransaction("T1", 10000)
	txn.UpdatedAt = now.Add(-time.Hour)
	f.store.put(txn)

	f.gateway.getPayment = func(_ context.Context, _ gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
		event := paidEvent(externalID, "T1", 10000, "")
		event.Status = entity.PaymentStatusNotPaid
		event.GatewayStatus = "expired"
		return event, nil
	}

	if err := f.service.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.store.status("T1") != entity.TransactionStatusFailed {
		t.Fatal("expected expired purchase to fail the transaction")
	}
	if f.store.countLogs("T1", "Gateway status: expired") != 1 {
		t.Fatalf("expected expired entry, got %v", f.store.logMessages("T1"))
	}
}
