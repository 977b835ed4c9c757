package models

import "time"

// RedeemCode is an admin-issued credit voucher. Codes are stored
// upper-cased and become permanently unusable once expired or exhausted,
// but are never auto-deleted.
type RedeemCode struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Code      string     `gorm:"uniqueIndex;size:64;not null" json:"code"`
	Credits   int        `gorm:"not null" json:"credits"`
	MaxUses   int        `gorm:"not null;default:0" json:"max_uses"` // 0 = unlimited
	UsedCount int        `gorm:"not null;default:0" json:"used_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Redemption records one user redeeming one code. The composite unique
// index is the at-most-once-per-user guarantee.
type Redemption struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code      string    `gorm:"uniqueIndex:idx_code_user;size:64;not null" json:"code"`
	UserID    int64     `gorm:"uniqueIndex:idx_code_user;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
