package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"link-verify-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminService backs the administrative surface: redeemable-code
// management, broadcast enqueueing and aggregate statistics.
type AdminService struct {
	DB      *gorm.DB
	Ledger  *LedgerService
	Queue   *JobQueue
	Proxies *ProxyRegistry
}

func NewAdminService(db *gorm.DB, ledger *LedgerService, queue *JobQueue, proxies *ProxyRegistry) *AdminService {
	return &AdminService{DB: db, Ledger: ledger, Queue: queue, Proxies: proxies}
}

type createCodeRequest struct {
	Code      string     `json:"code"`
	Credits   int        `json:"credits"`
	MaxUses   int        `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateCode registers a redeemable code. The code string is
// case-normalized on the way in; lookups normalize the same way.
func (s *AdminService) CreateCode(c *fiber.Ctx) error {
	var req createCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || req.Credits <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code and a positive credits value are required"})
	}

	rc := models.RedeemCode{
		ID:        uuid.NewString(),
		Code:      code,
		Credits:   req.Credits,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.DB.Create(&rc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "code already exists"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create code"})
	}
	log.Printf("🎟️ [admin] code %s created (%d credits, max uses %d)", code, req.Credits, req.MaxUses)
	return c.Status(fiber.StatusCreated).JSON(rc)
}

func (s *AdminService) ListCodes(c *fiber.Ctx) error {
	var codes []models.RedeemCode
	if err := s.DB.Order("created_at DESC").Find(&codes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list codes"})
	}
	return c.JSON(codes)
}

func (s *AdminService) DeleteCode(c *fiber.Ctx) error {
	code := strings.ToUpper(strings.TrimSpace(c.Params("code")))
	res := s.DB.Where("code = ?", code).Delete(&models.RedeemCode{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete code"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "code not found"})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// EnqueueBroadcast writes the single outbox slot. A new request
// overwrites whatever is there — last writer wins.
func (s *AdminService) EnqueueBroadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	b := models.Broadcast{
		ID:        models.BroadcastSlotID,
		Message:   req.Message,
		Status:    models.BroadcastPending,
		CreatedAt: time.Now(),
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&b).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue broadcast"})
	}
	log.Println("📣 [admin] broadcast enqueued")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "pending"})
}

// Stats aggregates lifetime and daily figures for the dashboard.
func (s *AdminService) Stats(c *fiber.Ctx) error {
	type totals struct {
		Users   int64
		Total   int64
		Success int64
		Failed  int64
	}
	var t totals
	err := s.DB.Raw(`
        SELECT COUNT(*) AS users,
               COALESCE(SUM(total_verifications), 0) AS total,
               COALESCE(SUM(success_count), 0) AS success,
               COALESCE(SUM(fail_count), 0) AS failed
        FROM users
    `).Scan(&t).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to aggregate stats"})
	}

	winRate := 0.0
	if t.Total > 0 {
		winRate = float64(t.Success) / float64(t.Total) * 100
	}

	todayUsed, err := s.Ledger.TodayUsage()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read daily usage"})
	}

	var top []models.User
	if err := s.DB.Order("total_verifications DESC").Limit(10).Find(&top).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load top users"})
	}

	return c.JSON(fiber.Map{
		"users":              t.Users,
		"total":              t.Total,
		"success":            t.Success,
		"failed":             t.Failed,
		"win_rate":           winRate,
		"today_used":         todayUsed,
		"global_daily_limit": s.Ledger.GlobalDailyLimit,
		"queue_depth":        s.Queue.Depth(),
		"top_users":          top,
	})
}

// ProxySnapshot exposes the health registry for operators.
func (s *AdminService) ProxySnapshot(c *fiber.Ctx) error {
	return c.JSON(s.Proxies.Snapshot())
}
