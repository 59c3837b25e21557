package gateway

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/flemzord/recall/internal/security"
	"github.com/flemzord/recall/internal/security/securitytest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    AuthConfig
		header func(*http.Request)
		want   int
		event  security.EventType
	}{
		{
			name:   "valid bearer",
			cfg:    AuthConfig{BearerToken: "secret-token"},
			header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-token") },
			want:   http.StatusOK,
			event:  security.EventAuthSuccess,
		},
		{
			name:   "invalid bearer",
			cfg:    AuthConfig{BearerToken: "secret-token"},
			header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong-token") },
			want:   http.StatusUnauthorized,
			event:  security.EventAuthFailure,
		},
		{
			name:   "valid basic",
			cfg:    AuthConfig{BasicUser: "admin", BasicPass: "pass123"},
			header: func(r *http.Request) { r.SetBasicAuth("admin", "pass123") },
			want:   http.StatusOK,
			event:  security.EventAuthSuccess,
		},
		{
			name:   "invalid basic",
			cfg:    AuthConfig{BasicUser: "admin", BasicPass: "pass123"},
			header: func(r *http.Request) { r.SetBasicAuth("admin", "wrong") },
			want:   http.StatusUnauthorized,
			event:  security.EventAuthFailure,
		},
		{
			name:   "basic against bearer-only",
			cfg:    AuthConfig{BearerToken: "secret-token"},
			header: func(r *http.Request) { r.SetBasicAuth("admin", "secret-token") },
			want:   http.StatusUnauthorized,
			event:  security.EventAuthFailure,
		},
		{
			name:   "missing header",
			cfg:    AuthConfig{BearerToken: "secret-token"},
			header: func(*http.Request) {},
			want:   http.StatusUnauthorized,
			event:  security.EventAuthFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &securitytest.AuditRecorder{}
			handler := authMiddleware(tt.cfg, rec.Logger(), nil)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			tt.header(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if got := rec.Types(); !slices.Equal(got, []security.EventType{tt.event}) {
				t.Errorf("audit = %v, want [%s]", got, tt.event)
			}
		})
	}
}

func TestAuthMiddleware_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 2})
	handler := authMiddleware(AuthConfig{BearerToken: "secret-token"}, nil, limiter)(okHandler())

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes[i] = rr.Code
	}
	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	if !slices.Equal(codes, want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
}

func TestRouter_AuthOnlyGuardsAPI(t *testing.T) {
	t.Parallel()

	_, h := newTestGateway(t, newFakeMemory(), Config{Auth: AuthConfig{BearerToken: "secret-token"}}, nil)

	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("/health status = %d, want public", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/status", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("/api/status status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authorized status = %d", rr.Code)
	}
}
