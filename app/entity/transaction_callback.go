package entity

import "time"

const (
	CallbackStatusProcessed int32 = 10
	CallbackStatusRejected  int32 = 20
)

type TransactionCallback struct {
	ID uint64

	TransactionID *string

	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}
