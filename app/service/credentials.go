package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	"github.com/vibast-solutions/ms-go-chip-donations/app/signature"
)

type gatewaySettingRepository interface {
	FindByBrandID(ctx context.Context, brandID string) (*entity.GatewaySetting, error)
	Save(ctx context.Context, setting *entity.GatewaySetting) error
}

type publicKeyFetcher interface {
	PublicKey(ctx context.Context, creds gateway.Credentials) (string, error)
}

// CredentialService hands out the configured gateway credentials together
// with the cached public key. A cached key is only valid for the secret key
// and brand id it was derived from.
type CredentialService struct {
	repo      gatewaySettingRepository
	fetcher   publicKeyFetcher
	secretKey string
	brandID   string
	logger    logrus.FieldLogger

	mu        sync.RWMutex
	publicKey string
}

func NewCredentialService(
	repo gatewaySettingRepository,
	fetcher publicKeyFetcher,
	secretKey string,
	brandID string,
	logger logrus.FieldLogger,
) *CredentialService {
	return &CredentialService{
		repo:      repo,
		fetcher:   fetcher,
		secretKey: strings.TrimSpace(secretKey),
		brandID:   strings.TrimSpace(brandID),
		logger:    logger,
	}
}

// Credentials never calls the gateway. PublicKey is empty when no valid key
// has been derived yet, which makes every signature check fail.
func (s *CredentialService) Credentials(ctx context.Context) (gateway.Credentials, error) {
	s.mu.RLock()
	key := s.publicKey
	s.mu.RUnlock()
	if key != "" {
		return s.withPublicKey(key), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publicKey != "" {
		return s.withPublicKey(s.publicKey), nil
	}

	if s.brandID == "" {
		return s.withPublicKey(""), nil
	}

	setting, err := s.repo.FindByBrandID(ctx, s.brandID)
	if err != nil {
		return gateway.Credentials{}, err
	}
	if setting == nil {
		return s.withPublicKey(""), nil
	}
	if setting.Fingerprint != Fingerprint(s.secretKey, s.brandID) {
		s.logger.WithField("brand_id", s.brandID).Warn("Cached public key belongs to other credentials, ignoring it")
		return s.withPublicKey(""), nil
	}

	s.publicKey = setting.PublicKey
	return s.withPublicKey(s.publicKey), nil
}

// RefreshPublicKey derives the public key from the gateway and stores it for
// the current credentials.
func (s *CredentialService) RefreshPublicKey(ctx context.Context) error {
	creds := s.withPublicKey("")
	if !creds.Configured() {
		return gateway.ErrCredentialsMissing
	}

	key, err := s.fetcher.PublicKey(ctx, creds)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if signature.ParsePublicKey(key) == nil {
		return fmt.Errorf("%w: gateway returned an unusable public key", ErrGatewayUnavailable)
	}

	if err := s.repo.Save(ctx, &entity.GatewaySetting{
		BrandID:     s.brandID,
		Fingerprint: Fingerprint(s.secretKey, s.brandID),
		PublicKey:   key,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.publicKey = key
	s.mu.Unlock()

	s.logger.WithField("brand_id", s.brandID).Info("Gateway public key refreshed")
	return nil
}

// EnsurePublicKey refreshes the key only when none is cached for the current
// credentials.
func (s *CredentialService) EnsurePublicKey(ctx context.Context) error {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return err
	}
	if creds.PublicKey != "" {
		return nil
	}
	return s.RefreshPublicKey(ctx)
}

func (s *CredentialService) withPublicKey(key string) gateway.Credentials {
	return gateway.Credentials{
		SecretKey: s.secretKey,
		BrandID:   s.brandID,
		PublicKey: key,
	}
}

func Fingerprint(secretKey, brandID string) string {
	sum := sha256.Sum256([]byte(secretKey + "\x00" + brandID))
	return hex.EncodeToString(sum[:])
}
