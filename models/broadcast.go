package models

import "time"

// BroadcastSlotID is the fixed primary key of the single outbox row.
const BroadcastSlotID = 1

const (
	BroadcastPending    = "pending"
	BroadcastProcessing = "processing"
	BroadcastCompleted  = "completed"
)

// Broadcast is the single-slot outbox polled by the broadcast worker.
// Enqueueing a new announcement overwrites the slot (last writer wins);
// the pending→processing claim is a conditional update so overlapping
// polls cannot both pick it up.
type Broadcast struct {
	ID          int        `gorm:"primaryKey" json:"id"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	Status      string     `gorm:"size:16;not null;default:pending" json:"status"`
	SentCount   int        `gorm:"not null;default:0" json:"sent_count"`
	FailedCount int        `gorm:"not null;default:0" json:"failed_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
