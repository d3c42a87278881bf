// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package openapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateRequest_AllowsContractMatchingRequest(t *testing.T) {
	handlerCalled := false
	handler := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/123e4567-e89b-12d3-a456-426614174000", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Fatal("expected handler to run for a contract-matching request")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestValidateRequest_RejectsInvalidFormatParam(t *testing.T) {
	handler := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/123e4567-e89b-12d3-a456-426614174000?format=wav", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a format value outside the enum, got %d", rr.Code)
	}
}

func TestValidateRequest_AllowsFlacFormat(t *testing.T) {
	handlerCalled := false
	handler := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/123e4567-e89b-12d3-a456-426614174000?format=flac", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Fatal("expected handler to run for a spec-mandated flac format request")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestValidateRequest_PassesThroughUnknownRoutes(t *testing.T) {
	handlerCalled := false
	handler := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Fatal("expected pass-through for a route not in the contract")
	}
}
