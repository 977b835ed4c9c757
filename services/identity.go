package services

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Real browser User-Agents, rotated per identity.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
}

var resolutions = []string{
	"1920x1080", "1366x768", "1536x864", "1440x900", "2560x1440", "1600x900",
}

var languages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-GB,en;q=0.9",
	"en-CA,en;q=0.9",
}

var platforms = [][2]string{
	{`"Windows"`, `"Chromium";v="131", "Google Chrome";v="131"`},
	{`"Windows"`, `"Chromium";v="130", "Google Chrome";v="130"`},
	{`"macOS"`, `"Chromium";v="131", "Google Chrome";v="131"`},
	{`"Linux"`, `"Chromium";v="131", "Google Chrome";v="131"`},
}

// Identity is a ready-to-use outbound session: browser-like headers and
// a fingerprint. Consumers treat it as opaque and never inspect the
// contents beyond attaching them to requests.
type Identity struct {
	SessionID   string
	UserAgent   string
	Fingerprint string
	Headers     map[string]string
}

// NewIdentity generates a fresh randomized identity.
func NewIdentity() *Identity {
	ua := userAgents[rand.Intn(len(userAgents))]
	platform := platforms[rand.Intn(len(platforms))]

	id := &Identity{
		SessionID:   uuid.NewString(),
		UserAgent:   ua,
		Fingerprint: fingerprint(),
	}
	id.Headers = map[string]string{
		"User-Agent":         ua,
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    languages[rand.Intn(len(languages))],
		"Sec-Ch-Ua":          platform[1],
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": platform[0],
	}
	return id
}

// fingerprint hashes timing, randomness and a fake screen config into a
// stable-looking device id.
func fingerprint() string {
	material := fmt.Sprintf("%d%f%s%d",
		time.Now().UnixMilli(),
		rand.Float64(),
		resolutions[rand.Intn(len(resolutions))],
		rand.Intn(24)-12,
	)
	sum := md5.Sum([]byte(material))
	return hex.EncodeToString(sum[:])
}
