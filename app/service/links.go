package service

import (
	"net/url"
	"strings"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

const (
	CallbackPath = "/chip/callback"
	ReturnPath   = "/chip/return"
)

// Links builds the URLs handed to the gateway and to the donor browser.
type Links struct {
	PublicBaseURL string
	ReceiptURL    string
	CancelURL     string
}

func (l Links) CallbackURL(txn *entity.Transaction) string {
	return withTransactionQuery(strings.TrimRight(l.PublicBaseURL, "/")+CallbackPath, txn)
}

func (l Links) ReturnURL(txn *entity.Transaction) string {
	return withTransactionQuery(strings.TrimRight(l.PublicBaseURL, "/")+ReturnPath, txn)
}

func (l Links) ReceiptURLFor(txn *entity.Transaction) string {
	return withTransactionQuery(l.ReceiptURL, txn)
}

func (l Links) CancelURLFor(txn *entity.Transaction) string {
	u, err := url.Parse(l.CancelURL)
	if err != nil || txn == nil {
		return l.CancelURL
	}
	q := u.Query()
	q.Set("transaction_id", txn.ID)
	u.RawQuery = q.Encode()
	return u.String()
}

func withTransactionQuery(raw string, txn *entity.Transaction) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("transaction_id", txn.ID)
	q.Set("access_key", txn.AccessKey)
	u.RawQuery = q.Encode()
	return u.String()
}
