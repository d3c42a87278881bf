// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig configures a sliding-window IP rate limiter.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
}

// RateLimit builds an httprate sliding-window IP rate limiter with a JSON
// 429 body and Retry-After header, grounded on xg2g's own
// internal/api/middleware/ratelimit.go, trimmed of its whitelist/CIDR
// exemption path since this core has no trusted-internal-caller concept
// at the HTTP boundary (every caller is an end-user device).
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"too many requests"}`))
		}),
	)
}

// StreamRateLimit is the default limiter applied to the streaming endpoint.
func StreamRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{RequestLimit: 120, WindowSize: time.Minute})
}
