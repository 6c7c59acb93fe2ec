package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

type TransactionCallbackRepository struct {
	db DBTX
}

func NewTransactionCallbackRepository(db DBTX) *TransactionCallbackRepository {
	return &TransactionCallbackRepository{db: db}
}

func (r *TransactionCallbackRepository) Create(ctx context.Context, callback *entity.TransactionCallback) error {
	query := `
		INSERT INTO transaction_callbacks (
			transaction_id, signature, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(callback.TransactionID),
		callback.Signature,
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	callback.ID = uint64(id)

	return nil
}
