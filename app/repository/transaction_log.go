package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

type TransactionLogRepository struct {
	db DBTX
}

func NewTransactionLogRepository(db DBTX) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

func (r *TransactionLogRepository) Append(ctx context.Context, entry *entity.TransactionLog) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO transaction_logs (transaction_id, message, created_at) VALUES (?, ?, ?)`,
		entry.TransactionID,
		entry.Message,
		entry.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)

	return nil
}

func (r *TransactionLogRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*entity.TransactionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, message, created_at
		FROM transaction_logs
		WHERE transaction_id = ?
		ORDER BY id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*entity.TransactionLog, 0)
	for rows.Next() {
		entry := &entity.TransactionLog{}
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func insertLog(ctx context.Context, db DBTX, transactionID, message string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO transaction_logs (transaction_id, message, created_at) VALUES (?, ?, ?)`,
		transactionID, message, at,
	)
	return err
}
