// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scrobble implements the Scrobble Policy (spec §4.13, C13):
// whether a play qualifies as a scrobble, and submission to ListenBrainz
// with retry/backoff and encrypted-token handling. Grounded on
// original_source/apps/api/src/services/listenbrainz.rs for the 50%/4-minute
// rule, the base64-then-plaintext token decryption fallback, and the
// exponential-backoff retry loop; AES-GCM is stdlib crypto/aes+crypto/cipher
// since no example repo in the pack wires a higher-level secrets/crypto
// library (the teacher itself only reaches for stdlib crypto/tls).
package scrobble

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/resonance-audio/resonance/internal/log"
	"github.com/resonance-audio/resonance/internal/metrics"
)

const (
	minTrackDurationSecs     = 30
	maxScrobbleThresholdSecs = 240
	maxRetries               = 3
	retryBaseDelay           = 500 * time.Millisecond
	listenBrainzAPIURL       = "https://api.listenbrainz.org"
	httpTimeout              = 10 * time.Second
)

// Track is the subset of track metadata a scrobble submission needs.
type Track struct {
	Title                  string
	Artist                 string
	Album                  string
	DurationSecs           int
	MusicBrainzRecordingID string
	MusicBrainzReleaseID   string
	MusicBrainzArtistID    string
}

// UserPreferences gates whether a play should ever be scrobbled.
type UserPreferences struct {
	ListenBrainzScrobble bool
	PrivateSession       bool
}

// Eligible reports whether a play qualifies as a scrobble under the
// duration/threshold/preference rule of §4.13, independent of whether a
// token is actually configured (callers check that separately since it may
// require a decrypt).
func Eligible(track Track, playedDurationSecs int, prefs UserPreferences) bool {
	if track.DurationSecs < minTrackDurationSecs {
		return false
	}
	threshold := track.DurationSecs / 2
	if threshold > maxScrobbleThresholdSecs {
		threshold = maxScrobbleThresholdSecs
	}
	if playedDurationSecs < threshold {
		return false
	}
	if !prefs.ListenBrainzScrobble {
		return false
	}
	if prefs.PrivateSession {
		return false
	}
	return true
}

// TokenClass is the outcome of validating a ListenBrainz token.
type TokenClass string

const (
	TokenValid   TokenClass = "valid"
	TokenInvalid TokenClass = "invalid"
)

// DecryptToken decrypts a stored token using AES-256-GCM after base64
// decoding. If the stored value does not base64-decode, it is treated as a
// legacy plaintext token and returned unchanged (logged at INFO, per policy).
func DecryptToken(key, stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		log.L().Info().Msg("scrobble: token is not base64-encoded, treating as legacy plaintext")
		return stored, nil
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("scrobble: invalid encryption key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("scrobble: gcm init failed: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		log.L().Info().Msg("scrobble: decoded token too short for AES-GCM, treating as legacy plaintext")
		return stored, nil
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("scrobble: token decryption failed, treating as legacy plaintext")
		return stored, nil
	}
	return string(plaintext), nil
}

// EncryptToken encrypts a token with AES-256-GCM, producing the
// base64-encoded nonce||ciphertext stored form DecryptToken expects.
func EncryptToken(key, plaintext string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("scrobble: invalid encryption key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("scrobble: gcm init failed: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("scrobble: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// HTTPDoer is the minimal port Client needs from net/http.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client submits scrobbles to ListenBrainz.
type Client struct {
	HTTP      HTTPDoer
	UserAgent string
}

// NewClient builds a Client with a default timeout-bound http.Client.
func NewClient() *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: httpTimeout},
		UserAgent: "Resonance/1.0",
	}
}

type submitListensPayload struct {
	ListenType string   `json:"listen_type"`
	Payload    []listen `json:"payload"`
}

type listen struct {
	ListenedAt    int64         `json:"listened_at"`
	TrackMetadata trackMetadata `json:"track_metadata"`
}

type trackMetadata struct {
	TrackName      string          `json:"track_name"`
	ArtistName     string          `json:"artist_name"`
	ReleaseName    string          `json:"release_name,omitempty"`
	AdditionalInfo *additionalInfo `json:"additional_info,omitempty"`
}

type additionalInfo struct {
	RecordingMBID string   `json:"recording_mbid,omitempty"`
	ReleaseMBID   string   `json:"release_mbid,omitempty"`
	ArtistMBIDs   []string `json:"artist_mbids,omitempty"`
	DurationMS    int64    `json:"duration_ms,omitempty"`
}

// SubmitResult is the outcome of a scrobble submission attempt.
type SubmitResult string

const (
	SubmitOK     SubmitResult = "submitted"
	SubmitQueued SubmitResult = "queued" // HTTP 429, not retried, not an error
	SubmitFailed SubmitResult = "failed"
)

// Submit sends one listen to ListenBrainz, retrying transient (network/5xx
// absent, connection-level) failures with exponential backoff up to
// maxRetries attempts. HTTP 429 is never retried and is reported as Queued.
func (c *Client) Submit(ctx context.Context, token string, track Track, playedAt time.Time) (SubmitResult, error) {
	payload := submitListensPayload{
		ListenType: "single",
		Payload: []listen{{
			ListenedAt: playedAt.Unix(),
			TrackMetadata: trackMetadata{
				TrackName:   track.Title,
				ArtistName:  track.Artist,
				ReleaseName: track.Album,
				AdditionalInfo: &additionalInfo{
					RecordingMBID: track.MusicBrainzRecordingID,
					ReleaseMBID:   track.MusicBrainzReleaseID,
					ArtistMBIDs:   mbidsOf(track.MusicBrainzArtistID),
					DurationMS:    int64(track.DurationSecs) * 1000,
				},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitFailed, fmt.Errorf("scrobble: marshal payload: %w", err)
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, "/1/submit-listens", token, body)
	if err != nil {
		metrics.RecordScrobbleSubmission(string(SubmitFailed))
		return SubmitFailed, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.RecordScrobbleSubmission(string(SubmitOK))
		return SubmitOK, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		log.L().Warn().Msg("scrobble: listenbrainz rate limited, queued")
		metrics.RecordScrobbleSubmission(string(SubmitQueued))
		return SubmitQueued, nil
	default:
		log.L().Warn().Int("status", resp.StatusCode).Msg("scrobble: listenbrainz submission failed")
		metrics.RecordScrobbleSubmission(string(SubmitFailed))
		return SubmitFailed, nil
	}
}

// ValidateToken checks a token against ListenBrainz, classifying 401/403 as
// TokenInvalid (not an error) and any other non-2xx as an error.
func (c *Client) ValidateToken(ctx context.Context, token string) (TokenClass, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, "/1/validate-token", token, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result struct {
			Valid bool `json:"valid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("scrobble: decode validate-token response: %w", err)
		}
		if result.Valid {
			return TokenValid, nil
		}
		return TokenInvalid, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return TokenInvalid, nil
	default:
		return "", fmt.Errorf("scrobble: token validation failed with status %d", resp.StatusCode)
	}
}

func (c *Client) doWithRetry(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, listenBrainzAPIURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("scrobble: build request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+token)
		req.Header.Set("User-Agent", c.UserAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt+1 < maxRetries {
			delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt)))
			log.L().Warn().Int("attempt", attempt+1).Dur("delay", delay).Err(err).Msg("scrobble: retrying listenbrainz request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("scrobble: request failed after %d attempts: %w", maxRetries, lastErr)
}

func mbidsOf(artistID string) []string {
	if artistID == "" {
		return nil
	}
	return []string{artistID}
}
