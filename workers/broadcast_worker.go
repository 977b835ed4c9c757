package workers

import (
	"context"
	"log"
	"time"

	"link-verify-system/models"
	"link-verify-system/services"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// BroadcastWorker polls the single-slot outbox and fans pending
// announcements out to every known user with pacing. The claim is a
// conditional update on the pending status, so two overlapping polls can
// never both send the same broadcast.
type BroadcastWorker struct {
	DB       *gorm.DB
	Notifier services.Notifier
	Interval time.Duration
	Limiter  *rate.Limiter
}

func NewBroadcastWorker(db *gorm.DB, notifier services.Notifier) *BroadcastWorker {
	return &BroadcastWorker{
		DB:       db,
		Notifier: notifier,
		Interval: 5 * time.Second,
		Limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 1), // 10 msg/s
	}
}

func (w *BroadcastWorker) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("❌ [broadcast] failed to create scheduler: %v", err)
		return
	}

	_, _ = sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() { w.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	sched.Start()

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
		log.Println("⏹️ Broadcast worker stopped")
	}()
}

// RunOnce claims a pending broadcast, if any, and runs the fan-out to
// completion. One recipient failing never aborts the run; failed sends
// are counted and not retried.
func (w *BroadcastWorker) RunOnce(ctx context.Context) {
	claim := w.DB.Model(&models.Broadcast{}).
		Where("id = ? AND status = ?", models.BroadcastSlotID, models.BroadcastPending).
		Update("status", models.BroadcastProcessing)
	if claim.Error != nil {
		log.Printf("❌ [broadcast] claim failed: %v", claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		return // nothing pending, or another poll claimed first
	}

	var b models.Broadcast
	if err := w.DB.First(&b, "id = ?", models.BroadcastSlotID).Error; err != nil {
		log.Printf("❌ [broadcast] load slot failed: %v", err)
		return
	}

	var users []models.User
	if err := w.DB.Find(&users).Error; err != nil {
		log.Printf("❌ [broadcast] load users failed: %v", err)
		return
	}

	log.Printf("📣 [broadcast] fanning out to %d users", len(users))
	sent, failed := 0, 0
	for _, u := range users {
		if err := w.Limiter.Wait(ctx); err != nil {
			break // shutting down; counts reflect what actually went out
		}
		if err := w.Notifier.Send(u.ID, b.Message); err != nil {
			failed++
			log.Printf("⚠️ [broadcast] send to %d failed: %v", u.ID, err)
		} else {
			sent++
		}
	}

	// Finalize only if the slot is still ours. An admin can overwrite the
	// slot back to pending mid-fan-out; stamping that new announcement
	// completed would lose it, so leave it for the next poll instead.
	now := time.Now()
	finalize := w.DB.Model(&models.Broadcast{}).
		Where("id = ? AND status = ?", models.BroadcastSlotID, models.BroadcastProcessing).
		Updates(map[string]interface{}{
			"status":       models.BroadcastCompleted,
			"sent_count":   sent,
			"failed_count": failed,
			"completed_at": &now,
		})
	if finalize.Error != nil {
		log.Printf("❌ [broadcast] finalize failed: %v", finalize.Error)
		return
	}
	if finalize.RowsAffected == 0 {
		log.Printf("⚠️ [broadcast] slot was replaced mid-run (%d sent, %d failed for the old message)", sent, failed)
		return
	}
	log.Printf("✅ [broadcast] done: %d sent, %d failed", sent, failed)
}
