// Package memory provides an in-memory implementation of the relaypay.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Storage implements relaypay.Storage using in-memory maps
type Storage struct {
	mu       sync.RWMutex
	payments map[string]*relaypay.Payment
	accounts map[string]*relaypay.Account
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		payments: make(map[string]*relaypay.Payment),
		accounts: make(map[string]*relaypay.Account),
	}
}

// CreatePayment implements relaypay.Storage
func (s *Storage) CreatePayment(ctx context.Context, p *relaypay.Payment) error {
	if p == nil || p.ID == "" || p.Pubkey == "" {
		return fmt.Errorf("invalid payment")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.ID]; ok {
		return relaypay.ErrPaymentExists
	}

	// Store a copy to prevent external mutations
	pCopy := *p
	s.payments[p.ID] = &pCopy
	return nil
}

// GetPayment implements relaypay.Storage
func (s *Storage) GetPayment(ctx context.Context, id, pubkey string) (*relaypay.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok || p.Pubkey != pubkey {
		return nil, relaypay.ErrPaymentNotFound
	}

	pCopy := *p
	return &pCopy, nil
}

// ListPayments implements relaypay.Storage
func (s *Storage) ListPayments(ctx context.Context, limit int) ([]*relaypay.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*relaypay.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		pCopy := *p
		out = append(out, &pCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkPaid implements relaypay.Storage. The whole check-and-set runs
// under the write lock, which is this backend's equivalent of the
// conditional UPDATE the durable backends use.
func (s *Storage) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return false, relaypay.ErrPaymentNotFound
	}
	if p.IsPaid {
		return false, nil
	}

	p.IsPaid = true
	t := paidAt
	p.PaidAt = &t
	p.ModifiedAt = paidAt
	return true, nil
}

// GetAccount implements relaypay.Storage
func (s *Storage) GetAccount(ctx context.Context, pubkey string) (*relaypay.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[pubkey]
	if !ok {
		return nil, relaypay.ErrAccountNotFound
	}

	acctCopy := *acct
	return &acctCopy, nil
}

// UpsertAccount implements relaypay.Storage
func (s *Storage) UpsertAccount(ctx context.Context, acct *relaypay.Account) error {
	if acct == nil || acct.Pubkey == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acctCopy := *acct
	s.accounts[acct.Pubkey] = &acctCopy
	return nil
}

// ScanPayments implements relaypay.Storage
func (s *Storage) ScanPayments(ctx context.Context, fn func(*relaypay.Payment) error) error {
	s.mu.RLock()
	snapshot := make([]*relaypay.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		pCopy := *p
		snapshot = append(snapshot, &pCopy)
	}
	s.mu.RUnlock()

	for _, p := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// ScanAccounts implements relaypay.Storage
func (s *Storage) ScanAccounts(ctx context.Context, fn func(*relaypay.Account) error) error {
	s.mu.RLock()
	snapshot := make([]*relaypay.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		aCopy := *a
		snapshot = append(snapshot, &aCopy)
	}
	s.mu.RUnlock()

	for _, a := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}
