package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"link-verify-system/utils"
)

// Result is the external verification operation's outcome contract:
// either success, or a structured failure with a reason.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Verifier runs the external verification step against a submitted link.
// Verify blocks until the operation finishes. progress may be called at
// any point from the calling goroutine to report intermediate status.
// A returned error (or a panic) is an unstructured crash; callers treat
// it like a structured failure for refund purposes.
type Verifier interface {
	Verify(link, proxyURL string, progress func(string)) (Result, error)
}

// HTTPVerifier talks to the external verification service. The actual
// verification algorithm lives entirely on the other side; this client
// supplies the link, the chosen egress path and a fresh network identity.
type HTTPVerifier struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPVerifier(baseURL, token string) *HTTPVerifier {
	return &HTTPVerifier{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Minute, // verification runs are long
		},
	}
}

type verifyRequest struct {
	Link        string `json:"link"`
	Proxy       string `json:"proxy,omitempty"`
	Fingerprint string `json:"fingerprint"`
	SessionID   string `json:"session_id"`
}

func (v *HTTPVerifier) Verify(link, proxyURL string, progress func(string)) (Result, error) {
	identity := NewIdentity()

	progress("🔐 Generating a fresh browser identity…")

	body, err := json.Marshal(verifyRequest{
		Link:        link,
		Proxy:       proxyURL,
		Fingerprint: identity.Fingerprint,
		SessionID:   identity.SessionID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, v.BaseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.Token != "" {
		req.Header.Set("Authorization", "Bearer "+v.Token)
	}
	for k, val := range identity.Headers {
		req.Header.Set(k, val)
	}

	progress("📡 Submitting the verification run…")

	client := v.HTTPClient
	if client == nil {
		client = utils.HTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("verification call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode verification result: %w", err)
	}

	progress("📬 Verification run finished, checking the verdict…")
	return result, nil
}
