// Package postgres provides a PostgreSQL implementation of the relaypay.Storage interface.
// The paid transition is a single conditional UPDATE predicated on is_paid = FALSE,
// so concurrent confirmations of the same payment serialize in the database and
// exactly one caller observes rows_affected = 1.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Storage implements relaypay.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the payments and accounts tables if they do not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id                 TEXT PRIMARY KEY,
			pubkey             TEXT NOT NULL,
			tier               TEXT NOT NULL,
			billing_cycle      TEXT NOT NULL,
			price_cents        BIGINT NOT NULL,
			settlement_hash    TEXT NOT NULL,
			settlement_invoice TEXT NOT NULL,
			settlement_amount  BIGINT NOT NULL,
			is_paid            BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at            TIMESTAMPTZ,
			expires_at         TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			modified_at        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS payments_pubkey_idx ON payments (pubkey);
		CREATE TABLE IF NOT EXISTS accounts (
			pubkey        TEXT PRIMARY KEY,
			tier          TEXT NOT NULL,
			expires_at    TIMESTAMPTZ NOT NULL,
			features      TEXT[] NOT NULL DEFAULT '{}',
			storage_bytes BIGINT NOT NULL DEFAULT 0,
			updated_at    TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const paymentColumns = `id, pubkey, tier, billing_cycle, price_cents,
	settlement_hash, settlement_invoice, settlement_amount,
	is_paid, paid_at, expires_at, created_at, modified_at`

// CreatePayment implements relaypay.Storage
func (s *Storage) CreatePayment(ctx context.Context, p *relaypay.Payment) error {
	if p == nil || p.ID == "" || p.Pubkey == "" {
		return fmt.Errorf("invalid payment")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Pubkey, p.Tier, string(p.Cycle), p.PriceCents,
		p.SettlementHash, p.SettlementInvoice, p.SettlementAmount,
		p.IsPaid, p.PaidAt, p.ExpiresAt, p.CreatedAt, p.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relaypay.ErrPaymentExists
	}
	return nil
}

// GetPayment implements relaypay.Storage
func (s *Storage) GetPayment(ctx context.Context, id, pubkey string) (*relaypay.Payment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND pubkey = $2`,
		id, pubkey)

	p, err := scanPayment(row)
	if err == pgx.ErrNoRows {
		return nil, relaypay.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments implements relaypay.Storage
func (s *Storage) ListPayments(ctx context.Context, limit int) ([]*relaypay.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*relaypay.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return out, nil
}

// MarkPaid implements relaypay.Storage. The WHERE is_paid = FALSE
// predicate is the optimistic guard: of any number of concurrent
// callers exactly one update matches a row.
func (s *Storage) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments
			SET is_paid = TRUE, paid_at = $2, modified_at = $2
			WHERE id = $1 AND is_paid = FALSE`,
		id, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Zero rows means either a lost race or a missing payment;
	// distinguish so callers never treat a vanished row as paid.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment existence: %w", err)
	}
	if !exists {
		return false, relaypay.ErrPaymentNotFound
	}
	return false, nil
}

// GetAccount implements relaypay.Storage
func (s *Storage) GetAccount(ctx context.Context, pubkey string) (*relaypay.Account, error) {
	var acct relaypay.Account
	err := s.pool.QueryRow(ctx,
		`SELECT pubkey, tier, expires_at, features, storage_bytes, updated_at
			FROM accounts WHERE pubkey = $1`,
		pubkey).Scan(
		&acct.Pubkey,
		&acct.Tier,
		&acct.ExpiresAt,
		&acct.Entitlements.Features,
		&acct.Entitlements.StorageBytes,
		&acct.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, relaypay.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// UpsertAccount implements relaypay.Storage
func (s *Storage) UpsertAccount(ctx context.Context, acct *relaypay.Account) error {
	if acct == nil || acct.Pubkey == "" {
		return fmt.Errorf("invalid account")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (pubkey, tier, expires_at, features, storage_bytes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pubkey) DO UPDATE SET
				tier = EXCLUDED.tier,
				expires_at = EXCLUDED.expires_at,
				features = EXCLUDED.features,
				storage_bytes = EXCLUDED.storage_bytes,
				updated_at = EXCLUDED.updated_at`,
		acct.Pubkey, acct.Tier, acct.ExpiresAt,
		acct.Entitlements.Features, acct.Entitlements.StorageBytes, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// ScanPayments implements relaypay.Storage
func (s *Storage) ScanPayments(ctx context.Context, fn func(*relaypay.Payment) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at`)
	if err != nil {
		return fmt.Errorf("failed to scan payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanAccounts implements relaypay.Storage
func (s *Storage) ScanAccounts(ctx context.Context, fn func(*relaypay.Account) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT pubkey, tier, expires_at, features, storage_bytes, updated_at
			FROM accounts ORDER BY pubkey`)
	if err != nil {
		return fmt.Errorf("failed to scan accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var acct relaypay.Account
		if err := rows.Scan(
			&acct.Pubkey,
			&acct.Tier,
			&acct.ExpiresAt,
			&acct.Entitlements.Features,
			&acct.Entitlements.StorageBytes,
			&acct.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan account: %w", err)
		}
		if err := fn(&acct); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanPayment(row pgx.Row) (*relaypay.Payment, error) {
	var p relaypay.Payment
	var cycle string
	err := row.Scan(
		&p.ID,
		&p.Pubkey,
		&p.Tier,
		&cycle,
		&p.PriceCents,
		&p.SettlementHash,
		&p.SettlementInvoice,
		&p.SettlementAmount,
		&p.IsPaid,
		&p.PaidAt,
		&p.ExpiresAt,
		&p.CreatedAt,
		&p.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Cycle = relaypay.BillingCycle(cycle)
	return &p, nil
}
