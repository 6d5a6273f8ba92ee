package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/worldbroker/internal/telemetry"
)

// SQLiteStore implements CredentialStore using SQLite with a WAL-mode,
// busy-timeout-tuned connection setup.
type SQLiteStore struct {
	db   *sql.DB
	sink telemetry.Sink
}

// NewSQLite opens (creating if necessary) the credential database at dbPath.
func NewSQLite(dbPath string, sink telemetry.Sink) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, sink: sink}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS world_credentials (
		client_id  TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS api_keys (
		api_key           TEXT PRIMARY KEY,
		daily_quota       INTEGER NOT NULL,
		requests_today    INTEGER NOT NULL DEFAULT 0,
		last_request_date TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// ValidateHeadlessSession reports whether token matches the credential on
// file for clientID. A lookup failure is treated as a rejection: a world
// never gets the benefit of the doubt.
func (s *SQLiteStore) ValidateHeadlessSession(ctx context.Context, clientID, token string) bool {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM world_credentials WHERE client_id = ?`, clientID,
	).Scan(&stored)
	if err != nil {
		if err != sql.ErrNoRows && s.sink != nil {
			s.sink.Warn("world credential lookup failed", "clientId", clientID, "error", err)
		}
		return false
	}
	return stored == token
}

// ValidateAPIKey reports whether apiKey names a known credential.
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM api_keys WHERE api_key = ?`, apiKey,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("validate api key: %w", err)
	}
	return true, nil
}

// CheckAndIncrementQuota rolls RequestsToday over on a new day, then
// increments and compares against DailyQuota within one transaction.
func (s *SQLiteStore) CheckAndIncrementQuota(ctx context.Context, apiKey string) (bool, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var ok bool
	err := withBusyRetry(ctx, 50*time.Millisecond, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin quota tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var quota, requestsToday int64
		var lastDate string
		err = tx.QueryRowContext(ctx,
			`SELECT daily_quota, requests_today, last_request_date FROM api_keys WHERE api_key = ?`, apiKey,
		).Scan(&quota, &requestsToday, &lastDate)
		if err != nil {
			return fmt.Errorf("load quota record: %w", err)
		}

		if lastDate != today {
			requestsToday = 0
		}
		requestsToday++
		ok = requestsToday <= quota

		_, err = tx.ExecContext(ctx,
			`UPDATE api_keys SET requests_today = ?, last_request_date = ?, updated_at = ? WHERE api_key = ?`,
			requestsToday, today, time.Now().Unix(), apiKey,
		)
		if err != nil {
			return fmt.Errorf("update quota record: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ResetDailyCounters zeroes RequestsToday for every key last touched on a
// prior day. Called once per day by the reset job under its distributed
// lock, so it does not need its own concurrency guard beyond SQLite's.
func (s *SQLiteStore) ResetDailyCounters(ctx context.Context) (int64, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var rows int64
	err := withBusyRetry(ctx, 100*time.Millisecond, func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE api_keys SET requests_today = 0, last_request_date = ?, updated_at = ?
			 WHERE last_request_date != ? AND requests_today != 0`,
			today, time.Now().Unix(), today,
		)
		if err != nil {
			return fmt.Errorf("reset daily counters: %w", err)
		}
		rows, err = result.RowsAffected()
		return err
	})
	return rows, err
}

// UpsertWorldCredential creates or updates a world's handshake token.
func (s *SQLiteStore) UpsertWorldCredential(ctx context.Context, cred WorldCredential) error {
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO world_credentials (client_id, token, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET token = excluded.token`,
		cred.ClientID, cred.Token, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert world credential: %w", err)
	}
	return nil
}

// UpsertAPIKey creates a fresh quota record for apiKey, or updates its quota
// ceiling if the key already exists.
func (s *SQLiteStore) UpsertAPIKey(ctx context.Context, apiKey string, dailyQuota int64) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (api_key, daily_quota, requests_today, last_request_date, created_at, updated_at)
		 VALUES (?, ?, 0, '', ?, ?)
		 ON CONFLICT(api_key) DO UPDATE SET daily_quota = excluded.daily_quota, updated_at = excluded.updated_at`,
		apiKey, dailyQuota, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}
