package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// VerifyService is the surface the chat front-end talks to: submission
// (admission + enqueue), queue depth, credit queries, redemptions and
// referrals. The front-end owns all rendering; this side returns typed
// reasons, not prose.
type VerifyService struct {
	Ledger   *LedgerService
	Queue    *JobQueue
	Notifier Notifier
}

func NewVerifyService(ledger *LedgerService, queue *JobQueue, notifier Notifier) *VerifyService {
	return &VerifyService{Ledger: ledger, Queue: queue, Notifier: notifier}
}

type submitRequest struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Link     string `json:"link"`
	Username string `json:"username"`
}

// Submit is the admission path: link check, daily limits (global before
// per-user), then debit-before-enqueue. Nothing is mutated on rejection.
func (s *VerifyService) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == 0 || req.ChatID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and chat_id are required"})
	}

	link := strings.TrimSpace(req.Link)
	if !strings.Contains(link, "sheerid.com") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_link"})
	}

	reason, err := s.Ledger.CheckDailyLimit(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check daily limit"})
	}
	switch reason {
	case LimitGlobal:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "daily_limit_global"})
	case LimitUser:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "daily_limit_user"})
	}

	ok, err := s.Ledger.TryDebit(req.UserID, VerificationCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to debit credits"})
	}
	if !ok {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_credit"})
	}

	pos, err := s.Queue.Enqueue(Job{
		ChatID:   req.ChatID,
		UserID:   req.UserID,
		Link:     link,
		Username: req.Username,
	})
	if err != nil {
		// Paid but not queued — hand the credit back rather than strand it.
		if refundErr := s.Ledger.Credit(req.UserID, VerificationCost); refundErr != nil {
			log.Printf("❌ [submit] refund after full queue failed for %d: %v", req.UserID, refundErr)
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue_full"})
	}

	user, err := s.Ledger.GetOrCreateUser(req.UserID)
	credits := 0
	if err != nil {
		log.Printf("⚠️ [submit] could not read balance for %d after enqueue: %v", req.UserID, err)
	} else {
		credits = user.Credits
	}
	log.Printf("📥 [submit] job queued for %s at position %d", req.Username, pos)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":            "enqueued",
		"position":          pos,
		"wait_estimate_min": pos,
		"credits_remaining": credits,
	})
}

// QueueStatus reports queue depth and today's remaining global capacity.
func (s *VerifyService) QueueStatus(c *fiber.Ctx) error {
	used, err := s.Ledger.TodayUsage()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read daily usage"})
	}
	remaining := s.Ledger.GlobalDailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(fiber.Map{
		"depth":                  s.Queue.Depth(),
		"daily_remaining_global": remaining,
	})
}

// UserCredits returns the user's balance, lifetime counters and referral
// details, creating the record on first contact.
func (s *VerifyService) UserCredits(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	user, err := s.Ledger.GetOrCreateUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load user"})
	}
	referrals, _ := s.Ledger.CountReferrals(userID)

	return c.JSON(fiber.Map{
		"credits":             user.Credits,
		"referral_code":       user.ReferralCode,
		"referrals":           referrals,
		"total_verifications": user.TotalVerifications,
		"success_count":       user.SuccessCount,
		"fail_count":          user.FailCount,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

// Redeem applies a redeemable code to the user's balance.
func (s *VerifyService) Redeem(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}
	var req codeRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code is required"})
	}

	credited, err := s.Ledger.Redeem(userID, req.Code)
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "code_not_found"})
	case errors.Is(err, ErrCodeExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "code_expired"})
	case errors.Is(err, ErrCodeExhausted):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "code_exhausted"})
	case errors.Is(err, ErrAlreadyRedeemed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_redeemed"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to redeem code"})
	}

	user, _ := s.Ledger.GetOrCreateUser(userID)
	return c.JSON(fiber.Map{"credited": credited, "credits": user.Credits})
}

// ApplyReferral links the user to a referrer and pays the referral bonus.
// The referrer gets a best-effort heads-up through the notifier.
func (s *VerifyService) ApplyReferral(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}
	var req codeRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code is required"})
	}

	referrerID, err := s.Ledger.ApplyReferral(userID, req.Code)
	switch {
	case errors.Is(err, ErrAlreadyReferred):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_referred"})
	case errors.Is(err, ErrInvalidCode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_code"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to apply referral"})
	}

	if s.Notifier != nil {
		if notifyErr := s.Notifier.Send(referrerID, fmt.Sprintf(
			"🎉 NEW REFERRAL!\n\nSomeone just joined using your link.\n💰 +%d credits added to your account!", ReferralBonus)); notifyErr != nil {
			log.Printf("⚠️ [referral] notify referrer %d failed: %v", referrerID, notifyErr)
		}
	}
	return c.JSON(fiber.Map{"status": "applied", "referrer_id": referrerID, "bonus": ReferralBonus})
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
