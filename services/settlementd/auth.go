package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// headerAPIKey carries the caller's API key identifier.
	headerAPIKey = "X-Api-Key"
	// headerTimestamp is the unix timestamp (seconds) used when signing.
	headerTimestamp = "X-Timestamp"
	// headerNonce provides replay protection combined with the timestamp.
	headerNonce = "X-Nonce"
	// headerSignature carries the hex-encoded HMAC-SHA256 request signature.
	headerSignature = "X-Signature"
	// maxBodyForSignature is the maximum body size hashed when authenticating.
	maxBodyForSignature = 1 << 20 // 1 MiB
)

// Principal represents an authenticated API client.
type Principal struct {
	APIKey string
}

// Authenticator verifies API key + HMAC signatures on incoming requests.
// Nonces are tracked per key for the configured TTL to reject replays.
type Authenticator struct {
	secrets              map[string]string
	allowedTimestampSkew time.Duration
	nonceTTL             time.Duration
	nowFn                func() time.Time

	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewAuthenticator builds an Authenticator from the configured API keys.
func NewAuthenticator(keys []APIKeyConfig, skew, nonceTTL time.Duration, nowFn func() time.Time) *Authenticator {
	secrets := make(map[string]string, len(keys))
	for _, key := range keys {
		secrets[strings.TrimSpace(key.Key)] = strings.TrimSpace(key.Secret)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	if nonceTTL < skew {
		nonceTTL = 2 * skew
	}
	return &Authenticator{
		secrets:              secrets,
		allowedTimestampSkew: skew,
		nonceTTL:             nonceTTL,
		nowFn:                nowFn,
		nonces:               make(map[string]time.Time),
	}
}

// Authenticate validates headers and signature, returning the caller
// principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > maxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyForSignature)
	}
	apiKey := strings.TrimSpace(r.Header.Get(headerAPIKey))
	if apiKey == "" {
		return nil, errors.New("missing X-Api-Key header")
	}
	secret, ok := a.secrets[apiKey]
	if !ok || secret == "" {
		return nil, errors.New("unknown API key")
	}
	timestampHeader := strings.TrimSpace(r.Header.Get(headerTimestamp))
	if timestampHeader == "" {
		return nil, errors.New("missing X-Timestamp header")
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return nil, fmt.Errorf("timestamp outside allowed skew of %s", a.allowedTimestampSkew)
	}
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	if nonce == "" {
		return nil, errors.New("missing X-Nonce header")
	}
	providedSig := strings.TrimSpace(r.Header.Get(headerSignature))
	if providedSig == "" {
		return nil, errors.New("missing X-Signature header")
	}
	expected := computeSignature(secret, timestampHeader, nonce, r.Method, canonicalRequestPath(r), body)
	providedBytes, err := hex.DecodeString(providedSig)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(providedBytes, expected) {
		return nil, errors.New("invalid signature")
	}
	if a.registerNonce(apiKey, timestampHeader, nonce, now) {
		return nil, errors.New("nonce already used")
	}
	return &Principal{APIKey: apiKey}, nil
}

// registerNonce records the nonce and reports whether it was already seen
// inside the replay window.
func (a *Authenticator) registerNonce(apiKey, timestamp, nonce string, now time.Time) bool {
	composite := apiKey + "|" + timestamp + "|" + nonce
	cutoff := now.Add(-a.nonceTTL)

	a.mu.Lock()
	defer a.mu.Unlock()
	for key, seen := range a.nonces {
		if seen.Before(cutoff) {
			delete(a.nonces, key)
		}
	}
	if seen, ok := a.nonces[composite]; ok && !seen.Before(cutoff) {
		return true
	}
	a.nonces[composite] = now
	return false
}

// canonicalRequestPath normalises URL paths and query ordering for signing.
func canonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + canonicalQuery(r.URL.RawQuery)
	}
	return path
}

// canonicalQuery normalises raw query strings for stable HMAC signing.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// computeSignature builds the HMAC-SHA256 signature bytes over the request
// metadata and body.
func computeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
