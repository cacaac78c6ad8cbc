package relaypay

import (
	"context"
	"time"
)

// Storage defines the interface for payment and account persistence.
// All methods use concrete types from this package to avoid import cycles.
//
// The conditional semantics of MarkPaid are the correctness-critical
// property of the whole subsystem: multiple process instances coordinate
// through the store, not through memory, so implementations must make
// the paid transition atomic against concurrent callers.
type Storage interface {
	// CreatePayment stores a new payment row.
	// Returns ErrPaymentExists if the id is already taken.
	CreatePayment(ctx context.Context, p *Payment) error

	// GetPayment retrieves a payment by (id, pubkey). Ownership is part
	// of the lookup key; a payment owned by a different pubkey yields
	// ErrPaymentNotFound, never a different error.
	GetPayment(ctx context.Context, id, pubkey string) (*Payment, error)

	// ListPayments returns up to limit payments, newest first
	ListPayments(ctx context.Context, limit int) ([]*Payment, error)

	// MarkPaid flips IsPaid to true with a conditional write that only
	// applies while the stored IsPaid is still false. Returns true when
	// this caller won the transition, false when another caller already
	// did. PaidAt and ModifiedAt are set to paidAt on success.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)

	// GetAccount retrieves an account by pubkey.
	// Returns ErrAccountNotFound if the pubkey has no account.
	GetAccount(ctx context.Context, pubkey string) (*Account, error)

	// UpsertAccount creates or overwrites the account for acct.Pubkey
	// (last write wins)
	UpsertAccount(ctx context.Context, acct *Account) error

	// ScanPayments streams every stored payment through fn in unspecified
	// order, stopping on the first error fn returns. Used by offline
	// batch jobs, never by the request path.
	ScanPayments(ctx context.Context, fn func(*Payment) error) error

	// ScanAccounts streams every stored account through fn
	ScanAccounts(ctx context.Context, fn func(*Account) error) error
}
