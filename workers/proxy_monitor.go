package workers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"link-verify-system/services"

	"github.com/go-co-op/gocron/v2"
)

// Escalating probe budget: a generous first attempt tolerates cold
// proxies, the retries are shorter.
var probeTimeouts = []time.Duration{20 * time.Second, 10 * time.Second, 5 * time.Second}

// ProxyMonitor periodically probes every configured egress path and
// feeds the results into the shared registry. It runs independently of
// job processing and reloads the path set on each cycle.
type ProxyMonitor struct {
	Registry   *services.ProxyRegistry
	Interval   time.Duration
	ProbeDelay time.Duration // pause between paths within a cycle
	RetryPause time.Duration // pause between attempts on one path
	ProbeURL   string

	// Probe can be replaced in tests. The default does a lightweight GET
	// through the path with the given timeout.
	Probe func(proxyURL string, timeout time.Duration) error
}

func NewProxyMonitor(registry *services.ProxyRegistry, probeURL string) *ProxyMonitor {
	m := &ProxyMonitor{
		Registry:   registry,
		Interval:   60 * time.Second,
		ProbeDelay: 2 * time.Second,
		RetryPause: 2 * time.Second,
		ProbeURL:   probeURL,
	}
	m.Probe = m.httpProbe
	return m
}

func (m *ProxyMonitor) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("❌ [proxy] failed to create scheduler: %v", err)
		return
	}

	// A full cycle (three escalating attempts per path plus pauses) can
	// outlive the interval; singleton mode keeps cycles strictly
	// sequential instead of piling up on the same paths.
	_, _ = sched.NewJob(
		gocron.DurationJob(m.Interval),
		gocron.NewTask(func() { m.RunCycle(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	sched.Start()

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
		log.Println("⏹️ Proxy monitor stopped")
	}()
}

// RunCycle reloads the configured paths and probes them sequentially,
// with a small delay between paths to avoid self-inflicted burst load.
func (m *ProxyMonitor) RunCycle(ctx context.Context) {
	paths := services.LoadProxyList()
	m.Registry.SetPaths(paths)
	if len(paths) == 0 {
		return
	}

	for i, p := range paths {
		if ctx.Err() != nil {
			return
		}
		m.probePath(ctx, p)
		if i < len(paths)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.ProbeDelay):
			}
		}
	}
}

// probePath judges a path healthy if any of up to three attempts
// succeeds, and records a failure otherwise.
func (m *ProxyMonitor) probePath(ctx context.Context, proxyURL string) {
	for i, timeout := range probeTimeouts {
		if err := m.Probe(proxyURL, timeout); err == nil {
			m.Registry.MarkSuccess(proxyURL)
			return
		} else if i == len(probeTimeouts)-1 {
			log.Printf("⚠️ [proxy] %s failed all probe attempts: %v", services.ProxyDisplayName(proxyURL), err)
		}

		if i < len(probeTimeouts)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.RetryPause):
			}
		}
	}
	m.Registry.MarkFailure(proxyURL)
}

func (m *ProxyMonitor) httpProbe(proxyURL string, timeout time.Duration) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("bad proxy url: %w", err)
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(parsed),
			DisableKeepAlives: true,
		},
	}

	req, err := http.NewRequest(http.MethodGet, m.ProbeURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", services.NewIdentity().UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Any response means the path carried traffic; the target's verdict
	// on the request itself is irrelevant here.
	return nil
}
