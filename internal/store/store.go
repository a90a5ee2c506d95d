package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/classpace/entitlement-sync/internal/entitlement"
)

// EntitlementStore persists derived entitlement records, backed by SQLite.
// The upsert key is user_id: last writer wins, rows are never deleted by
// reconciliation.
type EntitlementStore struct {
	db *sql.DB
}

// Open opens (or creates) the entitlement database in dir.
func Open(dir string) (*EntitlementStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "entitlements.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open entitlement db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &EntitlementStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *EntitlementStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id                TEXT PRIMARY KEY,
		tier                   TEXT NOT NULL,
		status                 TEXT NOT NULL DEFAULT 'active',
		stripe_customer_id     TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		current_period_end     INTEGER NOT NULL,
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_stripe_customer_id ON subscriptions(stripe_customer_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init entitlement schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *EntitlementStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *EntitlementStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or overwrites the record for rec.UserID. Repeated calls
// with the same input are idempotent: created_at is preserved and updated_at
// only moves when a field actually changed.
func (s *EntitlementStore) Upsert(rec *entitlement.Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if rec.UserID == "" {
		return fmt.Errorf("record missing user id")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO subscriptions (
			user_id, tier, status,
			stripe_customer_id, stripe_subscription_id,
			current_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tier                   = excluded.tier,
			status                 = excluded.status,
			stripe_customer_id     = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			current_period_end     = excluded.current_period_end,
			updated_at             = CASE WHEN
				tier = excluded.tier
				AND status = excluded.status
				AND stripe_customer_id = excluded.stripe_customer_id
				AND stripe_subscription_id = excluded.stripe_subscription_id
				AND current_period_end = excluded.current_period_end
			THEN updated_at ELSE excluded.updated_at END`,
		rec.UserID, string(rec.Tier), rec.Status,
		rec.StripeCustomerID, rec.StripeSubscriptionID,
		rec.CurrentPeriodEnd.UTC().Unix(), rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}
	return nil
}

const selectColumns = `user_id, tier, status,
	stripe_customer_id, stripe_subscription_id,
	current_period_end, created_at, updated_at`

// Get retrieves the record for a user ID, or nil if none exists.
func (s *EntitlementStore) Get(userID string) (*entitlement.Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM subscriptions WHERE user_id = ?`, userID)
	return scanRecord(row)
}

// GetByCustomerID retrieves the record for a Stripe customer ID, or nil.
func (s *EntitlementStore) GetByCustomerID(customerID string) (*entitlement.Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM subscriptions WHERE stripe_customer_id = ?`, customerID)
	return scanRecord(row)
}

// List returns all records ordered by user ID.
func (s *EntitlementStore) List() ([]*entitlement.Record, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var recs []*entitlement.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Count returns the number of entitlement records.
func (s *EntitlementStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entitlements: %w", err)
	}
	return n, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*entitlement.Record, error) {
	var rec entitlement.Record
	var tier string
	var periodEnd, createdAt, updatedAt int64

	err := s.Scan(
		&rec.UserID, &tier, &rec.Status,
		&rec.StripeCustomerID, &rec.StripeSubscriptionID,
		&periodEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entitlement: %w", err)
	}

	rec.Tier = entitlement.Tier(tier)
	rec.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}
