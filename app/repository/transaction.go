package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
	// ErrStaleStatus means the row was no longer in the expected status when
	// the guarded update ran.
	ErrStaleStatus = errors.New("transaction status changed concurrently")
)

const transactionColumns = `
	id, status, expected_amount, currency,
	gateway_transaction_id, checkout_url, is_test, access_key, campaign_name,
	donor_email, donor_first_name, donor_last_name, donor_phone,
	donor_address, donor_address2, donor_city, donor_state, donor_postcode, donor_country,
	created_at, updated_at
`

type TransactionRepository struct {
	db TxDB
}

func NewTransactionRepository(db TxDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID,
		txn.Status,
		txn.ExpectedAmount,
		txn.Currency,
		nullableStringValue(txn.GatewayTransactionID),
		nullableStringValue(txn.CheckoutURL),
		txn.IsTest,
		txn.AccessKey,
		txn.CampaignName,
		txn.DonorEmail,
		txn.DonorFirstName,
		txn.DonorLastName,
		txn.DonorPhone,
		txn.DonorAddress,
		txn.DonorAddress2,
		txn.DonorCity,
		txn.DonorState,
		txn.DonorPostcode,
		txn.DonorCountry,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	txn := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, id), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return txn, nil
}

// AttachCheckout binds the gateway purchase to a pending transaction that has
// none yet, and records the audit entry in the same database transaction.
func (r *TransactionRepository) AttachCheckout(ctx context.Context, txn *entity.Transaction, logMessage string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE transactions SET
				gateway_transaction_id = ?,
				checkout_url = ?,
				is_test = ?,
				updated_at = ?
			WHERE id = ? AND gateway_transaction_id IS NULL
		`,
			nullableStringValue(txn.GatewayTransactionID),
			nullableStringValue(txn.CheckoutURL),
			txn.IsTest,
			txn.UpdatedAt,
			txn.ID,
		)
		if err != nil {
			return err
		}
		if err := requireOneRow(result); err != nil {
			return err
		}
		return insertLog(ctx, tx, txn.ID, logMessage, txn.UpdatedAt)
	})
}

// Transition moves a transaction from one status to another and appends the
// audit entry atomically. When the row is no longer in status from, nothing is
// written and ErrStaleStatus is returned.
func (r *TransactionRepository) Transition(ctx context.Context, id string, from, to int32, logMessage string, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, at, id, from,
		)
		if err != nil {
			return err
		}
		if err := requireOneRow(result); err != nil {
			return err
		}
		return insertLog(ctx, tx, id, logMessage, at)
	})
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ?
		  AND gateway_transaction_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.TransactionStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func scanTransaction(scan rowScanner, txn *entity.Transaction) error {
	var gatewayID sql.NullString
	var checkoutURL sql.NullString

	err := scan.Scan(
		&txn.ID,
		&txn.Status,
		&txn.ExpectedAmount,
		&txn.Currency,
		&gatewayID,
		&checkoutURL,
		&txn.IsTest,
		&txn.AccessKey,
		&txn.CampaignName,
		&txn.DonorEmail,
		&txn.DonorFirstName,
		&txn.DonorLastName,
		&txn.DonorPhone,
		&txn.DonorAddress,
		&txn.DonorAddress2,
		&txn.DonorCity,
		&txn.DonorState,
		&txn.DonorPostcode,
		&txn.DonorCountry,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.GatewayTransactionID = stringPtrFromNull(gatewayID)
	txn.CheckoutURL = stringPtrFromNull(checkoutURL)
	return nil
}
