package entity

import "time"

type GatewaySetting struct {
	BrandID     string
	Fingerprint string
	PublicKey   string

	UpdatedAt time.Time
}
