package services

import (
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

type ProxyStatus string

const (
	ProxyUnknown   ProxyStatus = "unknown"
	ProxyHealthy   ProxyStatus = "healthy"
	ProxyUnhealthy ProxyStatus = "unhealthy"
	ProxyDead      ProxyStatus = "dead"
)

// ProxyHealth is the monitor's record for one egress path.
type ProxyHealth struct {
	URL       string      `json:"url"`
	Status    ProxyStatus `json:"status"`
	Failures  int         `json:"failures"`
	LastCheck time.Time   `json:"last_check"`
}

// ProxyRegistry tracks egress-path health. The monitor writes, the verify
// worker reads; both go through the registry's lock. Status only reaches
// dead after Threshold consecutive failures, and any success resets the
// path straight back to healthy — there is no gradual recovery window.
type ProxyRegistry struct {
	mu        sync.Mutex
	paths     map[string]*ProxyHealth
	threshold int
}

func NewProxyRegistry(deadThreshold int) *ProxyRegistry {
	if deadThreshold <= 0 {
		deadThreshold = 3
	}
	return &ProxyRegistry{
		paths:     make(map[string]*ProxyHealth),
		threshold: deadThreshold,
	}
}

// SetPaths reconciles the registry with the configured path set: new
// paths start as unknown, removed paths are dropped, known paths keep
// their health record. Called by the monitor on every cycle so operators
// can add or remove proxies without a restart.
func (r *ProxyRegistry) SetPaths(urls []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]bool, len(urls))
	for _, u := range urls {
		keep[u] = true
		if _, ok := r.paths[u]; !ok {
			r.paths[u] = &ProxyHealth{URL: u, Status: ProxyUnknown}
		}
	}
	for u := range r.paths {
		if !keep[u] {
			delete(r.paths, u)
		}
	}
}

// MarkSuccess resets the path to healthy with its failure count zeroed.
func (r *ProxyRegistry) MarkSuccess(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.paths[url]
	if !ok {
		p = &ProxyHealth{URL: url}
		r.paths[url] = p
	}
	p.Status = ProxyHealthy
	p.Failures = 0
	p.LastCheck = time.Now()
}

// MarkFailure bumps the consecutive-failure count and demotes the path,
// to dead once the threshold is reached.
func (r *ProxyRegistry) MarkFailure(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.paths[url]
	if !ok {
		p = &ProxyHealth{URL: url}
		r.paths[url] = p
	}
	p.Failures++
	p.LastCheck = time.Now()
	if p.Failures >= r.threshold {
		p.Status = ProxyDead
	} else {
		p.Status = ProxyUnhealthy
	}
}

// PickPath returns a uniformly random non-dead path. Returns ("", false)
// when none survive, which callers treat as a direct connection.
func (r *ProxyRegistry) PickPath() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alive := make([]string, 0, len(r.paths))
	for u, p := range r.paths {
		if p.Status != ProxyDead {
			alive = append(alive, u)
		}
	}
	if len(alive) == 0 {
		if len(r.paths) > 0 {
			log.Println("⚠️ [proxy] all egress paths dead — degrading to direct connection")
		}
		return "", false
	}
	return alive[rand.Intn(len(alive))], true
}

// Snapshot copies the health records for the admin surface.
func (r *ProxyRegistry) Snapshot() []ProxyHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProxyHealth, 0, len(r.paths))
	for _, p := range r.paths {
		out = append(out, *p)
	}
	return out
}

// LoadProxyList reads the configured proxy URLs from the PROXIES_JSON
// env var, falling back to the JSON file named by PROXIES_FILE. Empty
// entries are dropped; no configuration means direct connections only.
func LoadProxyList() []string {
	if raw := os.Getenv("PROXIES_JSON"); raw != "" {
		if list := parseProxyJSON([]byte(raw)); list != nil {
			return list
		}
		log.Println("⚠️ [proxy] failed to parse PROXIES_JSON env var")
	}

	path := os.Getenv("PROXIES_FILE")
	if path == "" {
		path = "proxies.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parseProxyJSON(data)
}

func parseProxyJSON(data []byte) []string {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	list := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			list = append(list, p)
		}
	}
	return list
}

// ProxyDisplayName renders a path for user-facing messages without
// leaking credentials: the city code from user:pass@city.host proxies,
// or a generic label.
func ProxyDisplayName(proxyURL string) string {
	if proxyURL == "" {
		return "DIRECT 🏠"
	}
	if at := strings.LastIndex(proxyURL, "@"); at >= 0 {
		host := proxyURL[at+1:]
		if dot := strings.Index(host, "."); dot > 0 {
			return strings.ToUpper(host[:dot]) + " 🌐"
		}
	}
	return "PROXY 🔒"
}
