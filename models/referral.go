package models

import "time"

// Referral links a referred user to their referrer. The unique index on
// ReferredID makes the link write-once: a user can be referred at most once,
// no matter how many codes they submit later.
type Referral struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID int64     `gorm:"index;not null" json:"referrer_id"`
	ReferredID int64     `gorm:"uniqueIndex;not null" json:"referred_id"`
	CodeUsed   string    `gorm:"size:16;not null" json:"code_used"`
	CreatedAt  time.Time `json:"created_at"`
}
