// Package store provides the broker's credential and quota persistence
// boundary.
package store

import (
	"context"
	"time"
)

// WorldCredential is the (clientId, token) pair a world presents at
// handshake time.
type WorldCredential struct {
	ClientID  string
	Token     string
	CreatedAt time.Time
}

// APIKeyRecord tracks one REST caller's daily request budget.
type APIKeyRecord struct {
	APIKey          string
	DailyQuota      int64
	RequestsToday   int64
	LastRequestDate string // YYYY-MM-DD, UTC
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CredentialStore is the storage boundary shared by the WebSocket handshake
// authenticator, the REST API-key middleware, and the daily quota-reset job.
type CredentialStore interface {
	// ValidateHeadlessSession reports whether token is the credential on
	// file for clientID. Satisfies registry.AuthValidator.
	ValidateHeadlessSession(ctx context.Context, clientID, token string) bool

	// ValidateAPIKey reports whether apiKey is a known credential.
	ValidateAPIKey(ctx context.Context, apiKey string) (bool, error)

	// CheckAndIncrementQuota atomically increments apiKey's request count
	// for today (rolling the counter over on a new day) and reports
	// whether the request is within DailyQuota.
	CheckAndIncrementQuota(ctx context.Context, apiKey string) (ok bool, err error)

	// ResetDailyCounters zeroes RequestsToday for every API key whose
	// LastRequestDate is not today. Invoked once per day by the quota
	// reset job.
	ResetDailyCounters(ctx context.Context) (usersReset int64, err error)

	// UpsertWorldCredential creates or updates a world's handshake token.
	UpsertWorldCredential(ctx context.Context, cred WorldCredential) error

	// UpsertAPIKey creates or updates a REST caller's quota record.
	UpsertAPIKey(ctx context.Context, apiKey string, dailyQuota int64) error

	Ping(ctx context.Context) error
	Close() error
}
