package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/recall/internal/security"
)

// verify reports which credential scheme r satisfied. The reason is empty
// on success and names the failure otherwise.
func (a AuthConfig) verify(r *http.Request) (scheme, reason string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && a.BearerToken != "" && secretEqual(token, a.BearerToken) {
		return "bearer", ""
	}
	if a.BasicUser == "" || a.BasicPass == "" {
		return "", "invalid credentials"
	}
	// Both comparisons run so timing does not reveal which one failed.
	if user, pass, ok := r.BasicAuth(); ok {
		userOK := secretEqual(user, a.BasicUser)
		passOK := secretEqual(pass, a.BasicPass)
		if userOK && passOK {
			return "basic", ""
		}
	}
	return "", "invalid credentials"
}

// authMiddleware rejects requests that fail auth. Every attempt draws from
// the auth bucket of limiter first. audit and limiter may be nil.
func authMiddleware(auth AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Allow(security.BucketAuth); err != nil {
				recordAuth(audit, r, security.EventRateLimit, security.BucketAuth)
				writeError(w, err)
				return
			}
			scheme, reason := auth.verify(r)
			if reason != "" {
				recordAuth(audit, r, security.EventAuthFailure, reason)
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			recordAuth(audit, r, security.EventAuthSuccess, scheme)
			next.ServeHTTP(w, r)
		})
	}
}

func recordAuth(audit *security.AuditLogger, r *http.Request, typ security.EventType, detail string) {
	audit.Log(security.AuditEvent{
		Type:       typ,
		RemoteAddr: r.RemoteAddr,
		Detail:     detail,
		Metadata:   map[string]string{"method": r.Method, "path": r.URL.Path},
	})
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
