// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package middleware carries the ambient HTTP hardening this core applies
// regardless of endpoint: security headers on every response. Grounded on
// xg2g/internal/api/middleware/security_headers.go, trimmed of the
// browser-app CSP allowances (CDN/image/media sources) a JSON API has no
// use for.
package middleware

import "net/http"

// DefaultCSP is restrictive: this is a JSON API, not a page-serving app.
const DefaultCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders adds common security headers to every response.
func SecurityHeaders(csp string) func(http.Handler) http.Handler {
	if csp == "" {
		csp = DefaultCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}
			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
