package models

import (
	"time"
)

// User is a chat-platform account known to the service. The primary key
// is the platform's numeric user id — records are created lazily on the
// user's first interaction, never through a signup flow, and never deleted.
type User struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	Credits      int    `gorm:"not null;default:0" json:"credits"`
	ReferralCode string `gorm:"uniqueIndex;size:16;not null" json:"referral_code"` // immutable once generated
	ReferredBy   *int64 `gorm:"index" json:"referred_by,omitempty"`                // set at most once

	// Lifetime counters, maintained by the verify worker.
	TotalVerifications int64 `gorm:"not null;default:0" json:"total_verifications"`
	SuccessCount       int64 `gorm:"not null;default:0" json:"success_count"`
	FailCount          int64 `gorm:"not null;default:0" json:"fail_count"`

	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
