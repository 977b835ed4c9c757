package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T, ledger *LedgerService, queue *JobQueue) *fiber.App {
	t.Helper()
	app := fiber.New()
	svc := NewVerifyService(ledger, queue, nil)
	app.Post("/verifications", svc.Submit)
	app.Get("/queue", svc.QueueStatus)
	app.Get("/users/:id/credits", svc.UserCredits)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func submitPayload(userID int64, link string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":  userID,
		"chat_id":  userID,
		"link":     link,
		"username": fmt.Sprintf("user%d", userID),
	}
}

func TestSubmit_RejectsNonMatchingLink(t *testing.T) {
	ledger := newTestLedger(t)
	app := newTestApp(t, ledger, NewJobQueue(10))

	status, body := postJSON(t, app, "/verifications", submitPayload(1, "https://example.com/not-it"))
	if status != fiber.StatusBadRequest || body["error"] != "invalid_link" {
		t.Fatalf("expected 400 invalid_link, got %d %v", status, body)
	}

	// Rejection mutates nothing: the user still has full starting credits.
	user, _ := ledger.GetOrCreateUser(1)
	if user.Credits != InitialCredits {
		t.Errorf("rejected submission touched the balance: %d", user.Credits)
	}
}

func TestSubmit_ThreeCreditsThreeJobs(t *testing.T) {
	ledger := newTestLedger(t)
	queue := NewJobQueue(10)
	app := newTestApp(t, ledger, queue)

	link := "https://services.sheerid.com/verify/abc123"
	for i := 1; i <= InitialCredits; i++ {
		status, body := postJSON(t, app, "/verifications", submitPayload(1, link))
		if status != fiber.StatusAccepted {
			t.Fatalf("submission %d: expected 202, got %d %v", i, status, body)
		}
		if int(body["position"].(float64)) != i {
			t.Errorf("submission %d: expected position %d, got %v", i, i, body["position"])
		}
		// The response carries the real post-debit balance, not a filler zero.
		if int(body["credits_remaining"].(float64)) != InitialCredits-i {
			t.Errorf("submission %d: expected %d credits remaining, got %v", i, InitialCredits-i, body["credits_remaining"])
		}
	}

	user, _ := ledger.GetOrCreateUser(1)
	if user.Credits != 0 {
		t.Fatalf("expected balance 0 after third admission, got %d", user.Credits)
	}

	// Fourth submission: rejected for credit, and no daily slot consumed
	// (usage only counts when a job finishes processing).
	status, body := postJSON(t, app, "/verifications", submitPayload(1, link))
	if status != fiber.StatusPaymentRequired || body["error"] != "insufficient_credit" {
		t.Fatalf("expected 402 insufficient_credit, got %d %v", status, body)
	}
	if used, _ := ledger.TodayUsage(); used != 0 {
		t.Errorf("rejected submission consumed a daily slot: %d", used)
	}
	if queue.Depth() != InitialCredits {
		t.Errorf("expected %d queued jobs, got %d", InitialCredits, queue.Depth())
	}
}

func TestSubmit_GlobalDailyLimit(t *testing.T) {
	ledger := NewLedgerService(openTestDB(t), 1, 24)
	app := newTestApp(t, ledger, NewJobQueue(10))

	// Someone else's completed job fills the global budget.
	if err := ledger.RecordUsage(99); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	status, body := postJSON(t, app, "/verifications",
		submitPayload(1, "https://services.sheerid.com/verify/abc"))
	if status != fiber.StatusTooManyRequests || body["error"] != "daily_limit_global" {
		t.Fatalf("expected 429 daily_limit_global, got %d %v", status, body)
	}
}

func TestSubmit_QueueFullRefunds(t *testing.T) {
	ledger := newTestLedger(t)
	app := newTestApp(t, ledger, NewJobQueue(1))

	link := "https://services.sheerid.com/verify/abc"
	if status, _ := postJSON(t, app, "/verifications", submitPayload(1, link)); status != fiber.StatusAccepted {
		t.Fatal("first submission should be accepted")
	}

	status, body := postJSON(t, app, "/verifications", submitPayload(1, link))
	if status != fiber.StatusServiceUnavailable || body["error"] != "queue_full" {
		t.Fatalf("expected 503 queue_full, got %d %v", status, body)
	}

	// The debit taken before the enqueue attempt was handed back.
	user, _ := ledger.GetOrCreateUser(1)
	if user.Credits != InitialCredits-VerificationCost {
		t.Errorf("expected %d credits after refund, got %d", InitialCredits-VerificationCost, user.Credits)
	}
}
