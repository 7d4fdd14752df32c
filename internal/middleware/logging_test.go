package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		handler    http.HandlerFunc
		wantStatus int
		wantRoute  string
	}{
		{
			name:   "explicit status",
			method: http.MethodPost,
			path:   "/categories",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			},
			wantStatus: http.StatusCreated,
			wantRoute:  "/categories",
		},
		{
			name:   "write without WriteHeader defaults to 200",
			method: http.MethodGet,
			path:   "/categories/7",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("hello"))
			},
			wantStatus: http.StatusOK,
			wantRoute:  "/categories/{id}",
		},
		{
			name:   "no body at all",
			method: http.MethodDelete,
			path:   "/categories/7",
			handler: func(w http.ResponseWriter, r *http.Request) {
			},
			wantStatus: http.StatusOK,
			wantRoute:  "/categories/{id}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &fakeObserver{}
			r := chi.NewRouter()
			r.Use(Logger(obs))
			r.Method(tt.method, tt.wantRoute, tt.handler)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			if len(obs.seen) != 1 {
				t.Fatalf("observed %d requests, want 1", len(obs.seen))
			}
			got := obs.seen[0]
			if got.status != tt.wantStatus || got.route != tt.wantRoute || got.method != tt.method {
				t.Errorf("observed %+v, want %s %s %d", got, tt.method, tt.wantRoute, tt.wantStatus)
			}
		})
	}
}

func TestLoggerUnmatchedRoute(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Logger(obs))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	if len(obs.seen) != 1 || obs.seen[0].route != "unmatched" {
		t.Errorf("observed %+v, want route \"unmatched\"", obs.seen)
	}
}

func TestLoggerNilObserver(t *testing.T) {
	h := Logger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("status: got %d, want 418", rr.Code)
	}
}
