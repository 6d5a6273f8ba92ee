// Package httpapi wires the broker's REST surface: chi routing, API-key
// authentication, quota rate-limiting, and the dispatcher-backed entity
// endpoints.
package httpapi

import (
	"context"
	"net/http"

	"github.com/ashureev/worldbroker/internal/dispatch"
	"github.com/ashureev/worldbroker/internal/store"
)

// APIKeyHeader is the header every REST endpoint requires, per the
// broker's external interface contract.
const APIKeyHeader = "X-API-Key"

type contextKey int

const apiKeyContextKey contextKey = iota

// apiKeyFromContext extracts the validated API key injected by APIKeyAuth.
func apiKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// APIKeyAuth validates the X-API-Key header against store before letting a
// request reach the dispatcher, injecting the validated key into the
// request context for downstream middleware.
func APIKeyAuth(creds store.CredentialStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "MissingAPIKey", "")
				return
			}

			ok, err := creds.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "AuthBackendUnavailable", "")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "InvalidAPIKey", "")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit consults the quota adapter's per-key daily counter, rejecting
// with 429 once the caller's DailyQuota is exhausted. Must run after
// APIKeyAuth so apiKeyFromContext resolves.
func RateLimit(creds store.CredentialStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := apiKeyFromContext(r.Context())
			ok, err := creds.CheckAndIncrementQuota(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "AuthBackendUnavailable", "")
				return
			}
			if !ok {
				writeError(w, http.StatusTooManyRequests, "QuotaExceeded", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, errCode, suggestion string) {
	verr := dispatch.ValidationError{Error: errCode, Suggestion: suggestion}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(mustJSON(verr))
}
