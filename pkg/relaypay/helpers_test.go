package relaypay_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nostrhub/relaypay/pkg/relaypay"
	"github.com/nostrhub/relaypay/storage/memory"
)

const (
	testPubkey = "a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8"
	testTier   = "premium"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testConfig() relaypay.Config {
	return relaypay.Config{
		Tiers: map[string]relaypay.TierConfig{
			"basic": {
				Name: "basic",
				Prices: map[relaypay.BillingCycle]int64{
					relaypay.CycleMonthly: 500,
				},
				Entitlements: relaypay.Entitlements{
					Features:     []string{"relay_access"},
					StorageBytes: 1 << 30,
				},
			},
			"premium": {
				Name: "premium",
				Prices: map[relaypay.BillingCycle]int64{
					relaypay.CycleMonthly:   1000,
					relaypay.CycleQuarterly: 2700,
					relaypay.CycleYearly:    10000,
				},
				Entitlements: relaypay.Entitlements{
					Features:     []string{"relay_access", "media_hosting"},
					StorageBytes: 10 << 30,
				},
			},
		},
		InvoiceTTL: time.Hour,
		Now:        func() time.Time { return testNow },
	}
}

type stubRates struct {
	rate  float64
	err   error
	calls int32
}

func (s *stubRates) CurrentRate(ctx context.Context) (float64, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return 0, s.err
	}
	return s.rate, nil
}

type stubSettlement struct {
	mu sync.Mutex

	invoice   *relaypay.Invoice
	createErr error
	lastReq   *relaypay.InvoiceRequest

	settled     bool
	settledErr  error
	statusCalls int32
}

func (s *stubSettlement) CreateInvoice(ctx context.Context, req *relaypay.InvoiceRequest) (*relaypay.Invoice, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.invoice != nil {
		return s.invoice, nil
	}
	return &relaypay.Invoice{
		Invoice:    "lnbc1invoice" + req.ID,
		Hash:       "hash-" + req.ID,
		AmountSats: req.AmountSats,
	}, nil
}

func (s *stubSettlement) Settled(ctx context.Context, hash string) (bool, error) {
	atomic.AddInt32(&s.statusCalls, 1)
	if s.settledErr != nil {
		return false, s.settledErr
	}
	return s.settled, nil
}

// countingStore wraps the in-memory storage and counts account upserts,
// so tests can assert how many provisioning side effects happened.
type countingStore struct {
	*memory.Storage
	upserts int32
}

func newCountingStore() *countingStore {
	return &countingStore{Storage: memory.New()}
}

func (c *countingStore) UpsertAccount(ctx context.Context, acct *relaypay.Account) error {
	atomic.AddInt32(&c.upserts, 1)
	return c.Storage.UpsertAccount(ctx, acct)
}

func (c *countingStore) upsertCount() int {
	return int(atomic.LoadInt32(&c.upserts))
}
