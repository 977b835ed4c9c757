package workers

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"link-verify-system/services"
)

var processingMessages = []string{
	"Hacking the mainframe... just kidding 😏",
	"Warming up the quantum processors ⚛️",
	"Summoning the verification spirits 👻",
	"Teaching AI to pretend to be a student 📚",
}

var successMessages = []string{
	"We did it! High five! 🙌",
	"Mission accomplished, agent! 🕵️",
	"That was smoother than butter 🧈",
	"Another successful heist! 💰",
}

var failMessages = []string{
	"Houston, we have a problem 🚀",
	"The matrix rejected us 💊",
	"Even hackers have bad days 😅",
	"Time to blame the firewall 🔥",
}

// VerifyWorker consumes the job queue strictly one job at a time. At
// most one verification runs regardless of queue depth: the external
// step shares an egress identity and the target rate-limits, so
// concurrent runs would raise detection risk.
type VerifyWorker struct {
	Queue    *services.JobQueue
	Ledger   *services.LedgerService
	Proxies  *services.ProxyRegistry
	Verifier services.Verifier
	Notifier services.Notifier

	// Cooldown is the pause between jobs while the queue is non-empty.
	Cooldown time.Duration
	// DrainInterval is how often buffered progress messages are forwarded.
	DrainInterval time.Duration
}

func NewVerifyWorker(queue *services.JobQueue, ledger *services.LedgerService,
	proxies *services.ProxyRegistry, verifier services.Verifier, notifier services.Notifier) *VerifyWorker {
	return &VerifyWorker{
		Queue:         queue,
		Ledger:        ledger,
		Proxies:       proxies,
		Verifier:      verifier,
		Notifier:      notifier,
		Cooldown:      10 * time.Second,
		DrainInterval: 300 * time.Millisecond,
	}
}

func (w *VerifyWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *VerifyWorker) run(ctx context.Context) {
	log.Println("🔁 Verify worker started and waiting for jobs…")
	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Verify worker stopped")
			return
		case job := <-w.Queue.Jobs():
			w.process(job)

			// Backpressure against burst processing: pause only if
			// someone is still waiting.
			if w.Queue.Depth() > 0 {
				log.Printf("[worker] cooling down %s before next job", w.Cooldown)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.Cooldown):
				}
			}
		}
	}
}

// process runs one job to its terminal state. Nothing in here is allowed
// to kill the worker loop: verifier crashes are recovered and settled
// exactly like structured failures.
func (w *VerifyWorker) process(job services.Job) {
	log.Printf("[worker] starting job for %s (chat %d)", job.Username, job.ChatID)

	w.send(job.ChatID, fmt.Sprintf("🚀 LAUNCH SEQUENCE\n\n%s\n\nBuckle up, this is gonna be good! 🎢",
		processingMessages[rand.Intn(len(processingMessages))]))

	proxyURL, _ := w.Proxies.PickPath()
	if proxyURL == "" {
		log.Println("[worker] using direct connection (no healthy proxies)")
	}
	w.send(job.ChatID, fmt.Sprintf("🌐 Connection: %s", services.ProxyDisplayName(proxyURL)))

	result, runErr := w.runVerification(job, proxyURL)

	// Usage counts once per admitted job, success or not.
	if err := w.Ledger.RecordUsage(job.UserID); err != nil {
		log.Printf("❌ [worker] failed to record usage for %d: %v", job.UserID, err)
	}

	if runErr == nil && result.Success {
		w.settleSuccess(job)
	} else {
		reason := result.Error
		if runErr != nil {
			reason = runErr.Error()
			log.Printf("❌ [worker] job for chat %d crashed: %v", job.ChatID, runErr)
		}
		w.settleFailure(job, reason)
	}

	log.Printf("[worker] finished job for chat %d", job.ChatID)
}

// runVerification offloads the blocking verifier call and bridges its
// progress messages to the notifier. A drain loop forwards buffered
// messages every DrainInterval in emission order; when the call returns
// the drain performs one final flush before stopping, so no progress
// message is silently dropped.
func (w *VerifyWorker) runVerification(job services.Job, proxyURL string) (result services.Result, err error) {
	progressCh := make(chan string, 256)
	verifyDone := make(chan struct{})
	drainDone := make(chan struct{})

	go func() {
		defer close(drainDone)
		ticker := time.NewTicker(w.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.forwardBuffered(job.ChatID, progressCh)
			case <-verifyDone:
				w.forwardBuffered(job.ChatID, progressCh) // final flush
				return
			}
		}
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("verifier panic: %v", r)
			}
			close(verifyDone)
		}()
		result, err = w.Verifier.Verify(job.Link, proxyURL, func(msg string) {
			progressCh <- msg
		})
	}()

	<-drainDone
	return result, err
}

func (w *VerifyWorker) forwardBuffered(chatID int64, progressCh <-chan string) {
	for {
		select {
		case msg := <-progressCh:
			w.send(chatID, msg)
		default:
			return
		}
	}
}

func (w *VerifyWorker) settleSuccess(job services.Job) {
	if err := w.Ledger.RecordOutcome(job.UserID, true); err != nil {
		log.Printf("❌ [worker] failed to record success for %d: %v", job.UserID, err)
	}
	credits := w.creditsOf(job.UserID)

	w.send(job.ChatID, fmt.Sprintf(
		"🎉 VICTORY ROYALE\n\n%s\n\nYour verification is in the reviewer's hands now.\n⏳ ETA: 24-48 hours — check your email!\n\n💰 Credits remaining: %d",
		successMessages[rand.Intn(len(successMessages))], credits))
}

// settleFailure is the single refund path shared by structured failures
// and crashes: exactly one refund per job either way.
func (w *VerifyWorker) settleFailure(job services.Job, reason string) {
	if err := w.Ledger.Credit(job.UserID, services.VerificationCost); err != nil {
		log.Printf("❌ [worker] failed to refund %d: %v", job.UserID, err)
	}
	if err := w.Ledger.RecordOutcome(job.UserID, false); err != nil {
		log.Printf("❌ [worker] failed to record failure for %d: %v", job.UserID, err)
	}
	credits := w.creditsOf(job.UserID)

	w.send(job.ChatID, fmt.Sprintf(
		"❌ PLOT TWIST\n\n%s\n\nWhat went wrong: %s\n\n🔧 Try a fresh link, or wait a bit and retry.\n\n💰 Credit refunded! You have: %d",
		failMessages[rand.Intn(len(failMessages))], reason, credits))
}

func (w *VerifyWorker) creditsOf(userID int64) int {
	user, err := w.Ledger.GetOrCreateUser(userID)
	if err != nil {
		log.Printf("❌ [worker] failed to load user %d: %v", userID, err)
		return 0
	}
	return user.Credits
}

// send is best-effort: a lost notification never fails the job.
func (w *VerifyWorker) send(chatID int64, text string) {
	if err := w.Notifier.Send(chatID, text); err != nil {
		log.Printf("⚠️ [worker] notify chat %d failed: %v", chatID, err)
	}
}
