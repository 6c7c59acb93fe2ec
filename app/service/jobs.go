package service

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

const defaultBatchSize = int32(100)

// RunReconcileBatch polls the gateway for pending transactions that have not
// moved for a while, in case neither the webhook nor the donor came back.
func (s *ReconcileService) RunReconcileBatch(ctx context.Context) error {
	before := s.now().Add(-s.cfg.StaleAfter)
	items, err := s.txnRepo.ListStalePending(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, txn := range items {
		if txn == nil || txn.GatewayTransactionID == nil {
			continue
		}

		result, err := s.ReconcileTransaction(ctx, txn.ID, entity.EventSourceSweep)
		if err != nil {
			if errors.Is(err, ErrNoGatewayTransaction) || errors.Is(err, ErrTransactionNotFound) {
				continue
			}
			s.logger.WithError(err).WithField("transaction_id", txn.ID).Warn("Reconcile sweep failed for transaction")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		s.logger.WithField("transaction_id", txn.ID).WithField("decision", string(result.Decision)).Debug("Reconcile sweep processed transaction")
	}

	return firstErr
}

func (s *ReconcileService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
