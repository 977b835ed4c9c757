package services

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"link-verify-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Credit economy constants.
const (
	InitialCredits   = 3 // seeded on first interaction
	VerificationCost = 1
	ReferralBonus    = 2
)

// Ledger outcomes surfaced to users.
var (
	ErrInvalidCode     = errors.New("invalid referral code")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrCodeNotFound    = errors.New("code not found")
	ErrCodeExpired     = errors.New("code expired")
	ErrCodeExhausted   = errors.New("code exhausted")
	ErrAlreadyRedeemed = errors.New("code already redeemed by user")
)

// LimitReason says which daily limit blocked an admission, if any.
type LimitReason string

const (
	LimitOK     LimitReason = "ok"
	LimitGlobal LimitReason = "global"
	LimitUser   LimitReason = "user"
)

// LedgerService owns credit balances, referral bookkeeping, redeemable
// codes and daily usage counters. Every mutating operation is a critical
// section: serialized by mu and wrapped in a transaction, so concurrent
// callers (admission path, worker finalization, redemptions) cannot
// interleave read-modify-write cycles on the same store.
type LedgerService struct {
	DB *gorm.DB

	GlobalDailyLimit int64
	UserDailyLimit   int64

	mu sync.Mutex
}

func NewLedgerService(db *gorm.DB, globalLimit, userLimit int64) *LedgerService {
	return &LedgerService{
		DB:               db,
		GlobalDailyLimit: globalLimit,
		UserDailyLimit:   userLimit,
	}
}

// GetOrCreateUser returns the user record, seeding default credits and a
// referral code on first contact. Idempotent.
func (s *LedgerService) GetOrCreateUser(id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return getOrCreateUserTx(tx, id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func getOrCreateUserTx(tx *gorm.DB, id int64, out *models.User) error {
	err := tx.First(out, "id = ?", id).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	*out = models.User{
		ID:           id,
		Credits:      InitialCredits,
		ReferralCode: newReferralCode(id),
		JoinedAt:     time.Now().UTC(),
	}
	return tx.Create(out).Error
}

// newReferralCode derives an 8-char upper-hex code from the user id and
// current time. Collisions are accepted as negligible, not checked.
func newReferralCode(id int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d%d", id, time.Now().UnixNano())))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:8]
}

// TryDebit atomically decrements the balance if it covers amount.
// Returns false (and leaves the balance untouched) otherwise. This is
// the admission gate for verification jobs.
func (s *LedgerService) TryDebit(id int64, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debited := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := getOrCreateUserTx(tx, id, &user); err != nil {
			return err
		}
		if user.Credits < amount {
			return nil
		}
		debited = true
		return tx.Model(&models.User{}).Where("id = ?", id).
			UpdateColumn("credits", gorm.Expr("credits - ?", amount)).Error
	})
	return debited, err
}

// Credit unconditionally increases a balance. Used for refunds, referral
// bonuses and code redemptions.
func (s *LedgerService) Credit(id int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := getOrCreateUserTx(tx, id, &user); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", id).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error
	})
}

// ApplyReferral links newUserID to the owner of code and credits the
// referrer. The link is write-once: a second attempt fails with
// ErrAlreadyReferred no matter which code is submitted.
func (s *LedgerService) ApplyReferral(newUserID int64, code string) (referrerID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := getOrCreateUserTx(tx, newUserID, &user); err != nil {
			return err
		}
		if user.ReferredBy != nil {
			return ErrAlreadyReferred
		}

		var referrer models.User
		if err := tx.First(&referrer, "referral_code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCode
			}
			return err
		}
		if referrer.ID == newUserID {
			return ErrInvalidCode
		}
		referrerID = referrer.ID

		if err := tx.Create(&models.Referral{
			ID:         uuid.NewString(),
			ReferrerID: referrer.ID,
			ReferredID: newUserID,
			CodeUsed:   code,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", newUserID).
			UpdateColumn("referred_by", referrer.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", referrer.ID).
			UpdateColumn("credits", gorm.Expr("credits + ?", ReferralBonus)).Error
	})
	return referrerID, err
}

// Redeem applies a redeemable code to a user. Failure checks run in
// priority order: not found, expired, exhausted, already redeemed.
// Returns the credited amount on success.
func (s *LedgerService) Redeem(userID int64, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	credited := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var rc models.RedeemCode
		if err := tx.First(&rc, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return err
		}
		if rc.ExpiresAt != nil && time.Now().After(*rc.ExpiresAt) {
			return ErrCodeExpired
		}
		if rc.MaxUses > 0 && rc.UsedCount >= rc.MaxUses {
			return ErrCodeExhausted
		}
		var prior int64
		if err := tx.Model(&models.Redemption{}).
			Where("code = ? AND user_id = ?", code, userID).
			Count(&prior).Error; err != nil {
			return err
		}
		if prior > 0 {
			return ErrAlreadyRedeemed
		}

		var user models.User
		if err := getOrCreateUserTx(tx, userID, &user); err != nil {
			return err
		}
		if err := tx.Create(&models.Redemption{
			ID:     uuid.NewString(),
			Code:   code,
			UserID: userID,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.RedeemCode{}).Where("code = ?", code).
			UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
			return err
		}
		credited = rc.Credits
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", rc.Credits)).Error
	})
	return credited, err
}

// CheckDailyLimit reports whether an admission is allowed today. The
// global limit is checked before the per-user one so global scarcity is
// reported as such, not disguised as a personal limit.
func (s *LedgerService) CheckDailyLimit(userID int64) (LimitReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := today()

	var global models.DailyUsage
	err := s.DB.First(&global, "date = ?", day).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return LimitOK, err
	}
	if global.Count >= s.GlobalDailyLimit {
		return LimitGlobal, nil
	}

	var personal models.DailyUserUsage
	err = s.DB.First(&personal, "date = ? AND user_id = ?", day, userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return LimitOK, err
	}
	if personal.Count >= s.UserDailyLimit {
		return LimitUser, nil
	}
	return LimitOK, nil
}

// RecordUsage increments today's global and per-user counters. Called
// once per admitted job when it finishes, regardless of outcome.
func (s *LedgerService) RecordUsage(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := today()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.DailyUsage{Date: day}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.DailyUsage{}).Where("date = ?", day).
			UpdateColumn("count", gorm.Expr("count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.DailyUserUsage{Date: day, UserID: userID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.DailyUserUsage{}).
			Where("date = ? AND user_id = ?", day, userID).
			UpdateColumn("count", gorm.Expr("count + 1")).Error
	})
}

// RecordOutcome bumps the lifetime counters after a job's terminal state.
func (s *LedgerService) RecordOutcome(userID int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := "fail_count"
	if success {
		col = "success_count"
	}
	return s.DB.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"total_verifications": gorm.Expr("total_verifications + 1"),
			col:                   gorm.Expr(col + " + 1"),
		}).Error
}

// CountReferrals returns how many users userID has referred.
func (s *LedgerService) CountReferrals(userID int64) (int64, error) {
	var n int64
	err := s.DB.Model(&models.Referral{}).Where("referrer_id = ?", userID).Count(&n).Error
	return n, err
}

// TodayUsage returns the global counter for the current day.
func (s *LedgerService) TodayUsage() (int64, error) {
	var usage models.DailyUsage
	err := s.DB.First(&usage, "date = ?", today()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return usage.Count, err
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
