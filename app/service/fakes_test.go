package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	"github.com/vibast-solutions/ms-go-chip-donations/app/lock"
	"github.com/vibast-solutions/ms-go-chip-donations/app/repository"
)

type memoryStore struct {
	mu           sync.Mutex
	transactions map[string]*entity.Transaction
	logs         []*entity.TransactionLog
	nextLogID    uint64
	transitions  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{transactions: map[string]*entity.Transaction{}, nextLogID: 1}
}

func (s *memoryStore) put(txn *entity.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyItem := *txn
	s.transactions[txn.ID] = &copyItem
}

func (s *memoryStore) Create(_ context.Context, txn *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[txn.ID]; exists {
		return repository.ErrTransactionAlreadyExists
	}
	copyItem := *txn
	s.transactions[txn.ID] = &copyItem
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.transactions[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (s *memoryStore) AttachCheckout(_ context.Context, txn *entity.Transaction, logMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.transactions[txn.ID]
	if !ok || item.GatewayTransactionID != nil {
		return repository.ErrStaleStatus
	}
	item.GatewayTransactionID = txn.GatewayTransactionID
	item.CheckoutURL = txn.CheckoutURL
	item.IsTest = txn.IsTest
	item.UpdatedAt = txn.UpdatedAt
	s.appendLocked(txn.ID, logMessage, txn.UpdatedAt)
	return nil
}

func (s *memoryStore) Transition(_ context.Context, id string, from, to int32, logMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.transactions[id]
	if !ok || item.Status != from {
		return repository.ErrStaleStatus
	}
	item.Status = to
	item.UpdatedAt = at
	s.transitions++
	s.appendLocked(id, logMessage, at)
	return nil
}

func (s *memoryStore) ListStalePending(_ context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range s.transactions {
		if item.Status == entity.TransactionStatusPending && item.GatewayTransactionID != nil && !item.UpdatedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (s *memoryStore) Append(_ context.Context, entry *entity.TransactionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.appendLocked(entry.TransactionID, entry.Message, entry.CreatedAt)
	return nil
}

func (s *memoryStore) ListByTransactionID(_ context.Context, transactionID string) ([]*entity.TransactionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*entity.TransactionLog, 0)
	for _, entry := range s.logs {
		if entry.TransactionID == transactionID {
			copyItem := *entry
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

func (s *memoryStore) appendLocked(transactionID, message string, at time.Time) uint64 {
	id := s.nextLogID
	s.nextLogID++
	s.logs = append(s.logs, &entity.TransactionLog{ID: id, TransactionID: transactionID, Message: message, CreatedAt: at})
	return id
}

func (s *memoryStore) status(id string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions[id].Status
}

func (s *memoryStore) logMessages(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]string, 0)
	for _, entry := range s.logs {
		if entry.TransactionID == id {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func (s *memoryStore) countLogs(id, substr string) int {
	n := 0
	for _, message := range s.logMessages(id) {
		if strings.Contains(message, substr) {
			n++
		}
	}
	return n
}

type callbackJournal struct {
	mu        sync.Mutex
	callbacks []*entity.TransactionCallback
}

func (j *callbackJournal) Create(_ context.Context, callback *entity.TransactionCallback) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	copyItem := *callback
	j.callbacks = append(j.callbacks, &copyItem)
	return nil
}

func (j *callbackJournal) count(status int32) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, item := range j.callbacks {
		if item.Status == status {
			n++
		}
	}
	return n
}

type staticCredentials struct {
	creds gateway.Credentials
	err   error
}

func (c *staticCredentials) Credentials(context.Context) (gateway.Credentials, error) {
	return c.creds, c.err
}

type fakeGateway struct {
	createPayment func(ctx context.Context, creds gateway.Credentials, params *gateway.CreatePaymentParams) (*gateway.CreatePaymentResult, error)
	getPayment    func(ctx context.Context, creds gateway.Credentials, externalID string) (*entity.PaymentEvent, error)
	publicKey     func(ctx context.Context, creds gateway.Credentials) (string, error)

	mu        sync.Mutex
	getCalls  int
	lastParam *gateway.CreatePaymentParams
}

func (g *fakeGateway) CreatePayment(ctx context.Context, creds gateway.Credentials, params *gateway.CreatePaymentParams) (*gateway.CreatePaymentResult, error) {
	g.mu.Lock()
	g.lastParam = params
	g.mu.Unlock()
	return g.createPayment(ctx, creds, params)
}

func (g *fakeGateway) GetPayment(ctx context.Context, creds gateway.Credentials, externalID string) (*entity.PaymentEvent, error) {
	g.mu.Lock()
	g.getCalls++
	g.mu.Unlock()
	return g.getPayment(ctx, creds, externalID)
}

func (g *fakeGateway) PublicKey(ctx context.Context, creds gateway.Credentials) (string, error) {
	return g.publicKey(ctx, creds)
}

func paidEvent(externalID, reference string, amount int64, method string) *entity.PaymentEvent {
	return &entity.PaymentEvent{
		ExternalID:    externalID,
		Reference:     reference,
		Status:        entity.PaymentStatusPaid,
		GatewayStatus: "paid",
		Amount:        amount,
		PaymentMethod: method,
	}
}

type signer struct {
	key       *rsa.PrivateKey
	publicPEM string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key failed: %v", err)
	}
	return &signer{key: key, publicPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))}
}

func (s *signer) sign(t *testing.T, body []byte) string {
	t.Helper()
	hash := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type reconcileFixture struct {
	store   *memoryStore
	journal *callbackJournal
	gateway *fakeGateway
	signer  *signer
	service *ReconcileService
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	store := newMemoryStore()
	journal := &callbackJournal{}
	gw := &fakeGateway{
		getPayment: func(context.Context, gateway.Credentials, string) (*entity.PaymentEvent, error) {
			t.Fatal("unexpected gateway poll")
			return nil, nil
		},
	}
	sig := newSigner(t)
	creds := &staticCredentials{creds: gateway.Credentials{SecretKey: "sk", BrandID: "brand", PublicKey: sig.publicPEM}}

	svc := NewReconcileService(store, store, journal, creds, gw, lock.NewMemoryLocker(time.Second), ReconcileConfig{
		PollTimeout:  time.Second,
		StaleAfter:   15 * time.Minute,
		JobBatchSize: 10,
	}, discardLogger())

	return &reconcileFixture{store: store, journal: journal, gateway: gw, signer: sig, service: svc}
}

func pendingTransaction(id string, amount int64) *entity.Transaction {
	gatewayID := "ext-" + id
	now := time.Now().UTC()
	return &entity.Transaction{
		ID:                   id,
		Status:               entity.TransactionStatusPending,
		ExpectedAmount:       amount,
		Currency:             "MYR",
		GatewayTransactionID: &gatewayID,
		AccessKey:            "key-" + id,
		CampaignName:         "Flood relief",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
