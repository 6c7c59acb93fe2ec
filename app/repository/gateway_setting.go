package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-chip-donations/app/entity"
)

type GatewaySettingRepository struct {
	db DBTX
}

func NewGatewaySettingRepository(db DBTX) *GatewaySettingRepository {
	return &GatewaySettingRepository{db: db}
}

func (r *GatewaySettingRepository) FindByBrandID(ctx context.Context, brandID string) (*entity.GatewaySetting, error) {
	setting := &entity.GatewaySetting{}
	err := r.db.QueryRowContext(ctx, `
		SELECT brand_id, fingerprint, public_key, updated_at
		FROM gateway_settings
		WHERE brand_id = ?
	`, brandID).Scan(&setting.BrandID, &setting.Fingerprint, &setting.PublicKey, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return setting, nil
}

func (r *GatewaySettingRepository) Save(ctx context.Context, setting *entity.GatewaySetting) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_settings (brand_id, fingerprint, public_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			fingerprint = VALUES(fingerprint),
			public_key = VALUES(public_key),
			updated_at = VALUES(updated_at)
	`, setting.BrandID, setting.Fingerprint, setting.PublicKey, setting.UpdatedAt)
	return err
}
