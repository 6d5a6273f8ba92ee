package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/worldbroker/internal/store"
)

type fakeCredentialStore struct {
	validKeys map[string]bool
	quotaOK   bool
	quotaErr  error
	authErr   error
}

func (f *fakeCredentialStore) ValidateHeadlessSession(ctx context.Context, clientID, token string) bool {
	return false
}

func (f *fakeCredentialStore) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	if f.authErr != nil {
		return false, f.authErr
	}
	return f.validKeys[apiKey], nil
}

func (f *fakeCredentialStore) CheckAndIncrementQuota(ctx context.Context, apiKey string) (bool, error) {
	if f.quotaErr != nil {
		return false, f.quotaErr
	}
	return f.quotaOK, nil
}

func (f *fakeCredentialStore) ResetDailyCounters(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeCredentialStore) UpsertWorldCredential(ctx context.Context, cred store.WorldCredential) error {
	return nil
}
func (f *fakeCredentialStore) UpsertAPIKey(ctx context.Context, apiKey string, dailyQuota int64) error {
	return nil
}
func (f *fakeCredentialStore) Ping(ctx context.Context) error { return nil }
func (f *fakeCredentialStore) Close() error                  { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_MissingHeaderRejected(t *testing.T) {
	creds := &fakeCredentialStore{validKeys: map[string]bool{"good": true}}
	handler := APIKeyAuth(creds)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/entity/get", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAPIKeyAuth_InvalidKeyRejected(t *testing.T) {
	creds := &fakeCredentialStore{validKeys: map[string]bool{"good": true}}
	handler := APIKeyAuth(creds)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/entity/get", nil)
	req.Header.Set(APIKeyHeader, "bad")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAPIKeyAuth_ValidKeyPassesThrough(t *testing.T) {
	creds := &fakeCredentialStore{validKeys: map[string]bool{"good": true}}
	handler := APIKeyAuth(creds)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/entity/get", nil)
	req.Header.Set(APIKeyHeader, "good")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRateLimit_ExceededReturns429(t *testing.T) {
	creds := &fakeCredentialStore{quotaOK: false}
	handler := APIKeyAuth(&fakeCredentialStore{validKeys: map[string]bool{"good": true}})(
		RateLimit(creds)(okHandler()),
	)

	req := httptest.NewRequest(http.MethodGet, "/entity/get", nil)
	req.Header.Set(APIKeyHeader, "good")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestRateLimit_WithinQuotaPassesThrough(t *testing.T) {
	creds := &fakeCredentialStore{validKeys: map[string]bool{"good": true}, quotaOK: true}
	handler := APIKeyAuth(creds)(RateLimit(creds)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/entity/get", nil)
	req.Header.Set(APIKeyHeader, "good")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
