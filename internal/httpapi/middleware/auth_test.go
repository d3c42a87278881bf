// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resonance-audio/resonance/internal/auth"
)

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	handlerCalled := false
	handler := RequireAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/track-1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, handlerCalled)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuth_RejectsInvalidToken(t *testing.T) {
	handler := RequireAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/track-1", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuth_AllowsValidTokenAndInjectsUserID(t *testing.T) {
	var sawUserID string
	handler := RequireAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := auth.Sign("user-7", "secret")
	req := httptest.NewRequest(http.MethodGet, "/stream/track-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-7", sawUserID)
}
