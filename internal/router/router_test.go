// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the HTTP routing configuration, middleware
// chains, and the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taxonomy/internal/handlers"
	"taxonomy/internal/metrics"
	"taxonomy/internal/store"
	"taxonomy/internal/taxonomy"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newTestRouter(m *metrics.Collector, db Pinger) http.Handler {
	opts := taxonomy.Options{}
	if m != nil {
		opts.Observer = m
	}
	svc := taxonomy.NewService(store.NewMemoryStore(), opts)
	return New(handlers.NewCategories(svc, 2), m, db)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
		want   string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", pingFunc(func(context.Context) error { return nil }), http.StatusOK, "ok"},
		{"database down", pingFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			healthHandler(tt.db)(w, httptest.NewRequest("GET", "/health", nil))

			resp := w.Result()
			if resp.StatusCode != tt.status {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.status)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type: got %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("status field: got %q, want %q", body["status"], tt.want)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(nil, nil)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/categories", "", http.StatusOK},
		{"GET", "/categories/", "", http.StatusOK},
		{"GET", "/categories/roots", "", http.StatusOK},
		{"POST", "/categories", `{"name":"Rings"}`, http.StatusCreated},
		{"GET", "/categories/slug/rings", "", http.StatusOK},
		{"GET", "/categories/00000000-0000-4000-8000-000000000001", "", http.StatusNotFound},
		{"PUT", "/categories/00000000-0000-4000-8000-000000000001", "", http.StatusMethodNotAllowed},
		{"GET", "/metrics", "", http.StatusNotFound},
		{"GET", "/admin", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.status {
				t.Errorf("status: got %d, want %d (body %s)", w.Code, tt.status, w.Body)
			}
		})
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	r := newTestRouter(nil, nil)
	req := httptest.NewRequest("GET", "/categories", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewCollector("taxonomy")
	r := newTestRouter(m, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/categories", strings.NewReader(`{"name":"Rings"}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`taxonomy_http_requests_total{method="POST",route="/categories",status="201"} 1`,
		`taxonomy_mutations_total{code="OK",op="create"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
