package services

import (
	"path/filepath"
	"testing"
	"time"

	"link-verify-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Referral{},
		&models.RedeemCode{},
		&models.Redemption{},
		&models.DailyUsage{},
		&models.DailyUserUsage{},
		&models.Broadcast{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestLedger(t *testing.T) *LedgerService {
	t.Helper()
	return NewLedgerService(openTestDB(t), 1200, 24)
}

// ---------------------------------------------------------------------------
// Users & balances
// ---------------------------------------------------------------------------

func TestGetOrCreateUser_SeedsDefaults(t *testing.T) {
	ledger := newTestLedger(t)

	user, err := ledger.GetOrCreateUser(42)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if user.Credits != InitialCredits {
		t.Errorf("expected %d starting credits, got %d", InitialCredits, user.Credits)
	}
	if len(user.ReferralCode) != 8 {
		t.Errorf("expected 8-char referral code, got %q", user.ReferralCode)
	}

	// Idempotent: second call returns the same record unchanged.
	again, err := ledger.GetOrCreateUser(42)
	if err != nil {
		t.Fatalf("GetOrCreateUser again: %v", err)
	}
	if again.ReferralCode != user.ReferralCode {
		t.Errorf("referral code changed across calls: %q vs %q", user.ReferralCode, again.ReferralCode)
	}
}

func TestTryDebit_InsufficientNeverMutates(t *testing.T) {
	ledger := newTestLedger(t)
	ledger.GetOrCreateUser(1)

	ok, err := ledger.TryDebit(1, InitialCredits+1)
	if err != nil {
		t.Fatalf("TryDebit: %v", err)
	}
	if ok {
		t.Fatal("debit beyond balance should fail")
	}

	user, _ := ledger.GetOrCreateUser(1)
	if user.Credits != InitialCredits {
		t.Errorf("failed debit mutated balance: got %d", user.Credits)
	}
}

func TestBalanceArithmetic(t *testing.T) {
	ledger := newTestLedger(t)
	ledger.GetOrCreateUser(1)

	// initial + credits - successful debits
	if ok, _ := ledger.TryDebit(1, 2); !ok {
		t.Fatal("debit of 2 should succeed")
	}
	if err := ledger.Credit(1, 5); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if ok, _ := ledger.TryDebit(1, 4); !ok {
		t.Fatal("debit of 4 should succeed")
	}
	if ok, _ := ledger.TryDebit(1, 100); ok {
		t.Fatal("debit of 100 should fail")
	}

	user, _ := ledger.GetOrCreateUser(1)
	want := InitialCredits - 2 + 5 - 4
	if user.Credits != want {
		t.Errorf("expected balance %d, got %d", want, user.Credits)
	}
}

// ---------------------------------------------------------------------------
// Referrals
// ---------------------------------------------------------------------------

func TestApplyReferral(t *testing.T) {
	ledger := newTestLedger(t)
	referrer, _ := ledger.GetOrCreateUser(1)

	referrerID, err := ledger.ApplyReferral(2, referrer.ReferralCode)
	if err != nil {
		t.Fatalf("ApplyReferral: %v", err)
	}
	if referrerID != 1 {
		t.Errorf("expected referrer 1, got %d", referrerID)
	}

	updated, _ := ledger.GetOrCreateUser(1)
	if updated.Credits != InitialCredits+ReferralBonus {
		t.Errorf("referrer not credited: got %d", updated.Credits)
	}
	referred, _ := ledger.GetOrCreateUser(2)
	if referred.ReferredBy == nil || *referred.ReferredBy != 1 {
		t.Error("referred_by not recorded")
	}

	// Write-once: a second code from anyone fails quietly.
	other, _ := ledger.GetOrCreateUser(3)
	if _, err := ledger.ApplyReferral(2, other.ReferralCode); err != ErrAlreadyReferred {
		t.Errorf("expected ErrAlreadyReferred, got %v", err)
	}
}

func TestApplyReferral_InvalidCode(t *testing.T) {
	ledger := newTestLedger(t)
	user, _ := ledger.GetOrCreateUser(1)

	if _, err := ledger.ApplyReferral(2, "NOPE1234"); err != ErrInvalidCode {
		t.Errorf("unknown code: expected ErrInvalidCode, got %v", err)
	}
	// Self-referral is invalid too.
	if _, err := ledger.ApplyReferral(1, user.ReferralCode); err != ErrInvalidCode {
		t.Errorf("self referral: expected ErrInvalidCode, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Redeemable codes
// ---------------------------------------------------------------------------

func seedCode(t *testing.T, ledger *LedgerService, code string, credits, maxUses int, expiresAt *time.Time) {
	t.Helper()
	err := ledger.DB.Create(&models.RedeemCode{
		ID:        code + "-id",
		Code:      code,
		Credits:   credits,
		MaxUses:   maxUses,
		ExpiresAt: expiresAt,
	}).Error
	if err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func TestRedeem_MaxUses(t *testing.T) {
	ledger := newTestLedger(t)
	seedCode(t, ledger, "BONUS", 5, 2, nil)

	for _, userID := range []int64{1, 2} {
		credited, err := ledger.Redeem(userID, "bonus") // case-normalized
		if err != nil {
			t.Fatalf("Redeem for %d: %v", userID, err)
		}
		if credited != 5 {
			t.Errorf("expected 5 credits, got %d", credited)
		}
	}

	if _, err := ledger.Redeem(3, "BONUS"); err != ErrCodeExhausted {
		t.Errorf("expected ErrCodeExhausted on use %d, got %v", 3, err)
	}
}

func TestRedeem_OncePerUser(t *testing.T) {
	ledger := newTestLedger(t)
	seedCode(t, ledger, "WELCOME", 5, 0, nil)

	if _, err := ledger.Redeem(1, "WELCOME"); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	before, _ := ledger.GetOrCreateUser(1)

	if _, err := ledger.Redeem(1, "WELCOME"); err != ErrAlreadyRedeemed {
		t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
	}
	after, _ := ledger.GetOrCreateUser(1)
	if after.Credits != before.Credits {
		t.Errorf("second redeem re-credited: %d vs %d", before.Credits, after.Credits)
	}
}

func TestRedeem_ExpiredAndNotFound(t *testing.T) {
	ledger := newTestLedger(t)
	past := time.Now().Add(-time.Hour)
	seedCode(t, ledger, "OLD", 5, 1, &past)

	if _, err := ledger.Redeem(1, "OLD"); err != ErrCodeExpired {
		t.Errorf("expected ErrCodeExpired, got %v", err)
	}
	if _, err := ledger.Redeem(1, "MISSING"); err != ErrCodeNotFound {
		t.Errorf("expected ErrCodeNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Daily limits
// ---------------------------------------------------------------------------

func TestCheckDailyLimit_GlobalBeforeUser(t *testing.T) {
	ledger := NewLedgerService(openTestDB(t), 3, 24)

	// Fill the global budget with three different users.
	for userID := int64(1); userID <= 3; userID++ {
		if err := ledger.RecordUsage(userID); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	// A fresh user far under their personal limit is still blocked, and
	// the reason is global scarcity, not a personal limit.
	reason, err := ledger.CheckDailyLimit(99)
	if err != nil {
		t.Fatalf("CheckDailyLimit: %v", err)
	}
	if reason != LimitGlobal {
		t.Errorf("expected global block, got %q", reason)
	}
}

func TestCheckDailyLimit_PerUser(t *testing.T) {
	ledger := NewLedgerService(openTestDB(t), 1200, 2)

	for i := 0; i < 2; i++ {
		if err := ledger.RecordUsage(7); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	reason, _ := ledger.CheckDailyLimit(7)
	if reason != LimitUser {
		t.Errorf("expected user block, got %q", reason)
	}
	// Other users are unaffected.
	reason, _ = ledger.CheckDailyLimit(8)
	if reason != LimitOK {
		t.Errorf("expected ok for other user, got %q", reason)
	}
}

func TestRecordUsage_CountsBoth(t *testing.T) {
	ledger := newTestLedger(t)

	ledger.RecordUsage(1)
	ledger.RecordUsage(1)
	ledger.RecordUsage(2)

	total, err := ledger.TodayUsage()
	if err != nil {
		t.Fatalf("TodayUsage: %v", err)
	}
	if total != 3 {
		t.Errorf("expected global count 3, got %d", total)
	}

	var personal models.DailyUserUsage
	if err := ledger.DB.First(&personal, "user_id = ?", 1).Error; err != nil {
		t.Fatalf("load per-user row: %v", err)
	}
	if personal.Count != 2 {
		t.Errorf("expected per-user count 2, got %d", personal.Count)
	}
}
