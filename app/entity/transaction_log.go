package entity

import "time"

// TransactionLog is one append-only audit entry of a transaction.
type TransactionLog struct {
	ID uint64

	TransactionID string
	Message       string

	CreatedAt time.Time
}
