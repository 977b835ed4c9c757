package models

// Daily usage rows are keyed by a UTC calendar day formatted as
// 2006-01-02. Day rollover is lazy: the ledger compares the stored date to
// the current date on every access instead of running a scheduled reset.

// DailyUsage is the global verification counter for one day.
type DailyUsage struct {
	Date  string `gorm:"primaryKey;size:10" json:"date"`
	Count int64  `gorm:"not null;default:0" json:"count"`
}

// DailyUserUsage is a single user's verification counter for one day.
type DailyUserUsage struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Date   string `gorm:"uniqueIndex:idx_day_user;size:10;not null" json:"date"`
	UserID int64  `gorm:"uniqueIndex:idx_day_user;not null" json:"user_id"`
	Count  int64  `gorm:"not null;default:0" json:"count"`
}
