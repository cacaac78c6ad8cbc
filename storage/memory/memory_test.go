package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testPayment(id, pubkey string, createdAt time.Time) *relaypay.Payment {
	return &relaypay.Payment{
		ID:                id,
		Pubkey:            pubkey,
		Tier:              "premium",
		Cycle:             relaypay.CycleMonthly,
		PriceCents:        1000,
		SettlementHash:    "hash-" + id,
		SettlementInvoice: "lnbc1" + id,
		SettlementAmount:  22222,
		ExpiresAt:         createdAt.Add(time.Hour),
		CreatedAt:         createdAt,
		ModifiedAt:        createdAt,
	}
}

func TestStorage_CreateGetPayment(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := testPayment("p1", "alice", baseTime)
	require.NoError(t, s.CreatePayment(ctx, p))

	// Duplicate ids are rejected
	assert.ErrorIs(t, s.CreatePayment(ctx, p), relaypay.ErrPaymentExists)

	got, err := s.GetPayment(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash-p1", got.SettlementHash)

	// Ownership is part of the lookup key
	_, err = s.GetPayment(ctx, "p1", "bob")
	assert.ErrorIs(t, err, relaypay.ErrPaymentNotFound)

	_, err = s.GetPayment(ctx, "p2", "alice")
	assert.ErrorIs(t, err, relaypay.ErrPaymentNotFound)
}

func TestStorage_GetPaymentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePayment(ctx, testPayment("p1", "alice", baseTime)))

	got, err := s.GetPayment(ctx, "p1", "alice")
	require.NoError(t, err)
	got.IsPaid = true

	again, err := s.GetPayment(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.False(t, again.IsPaid)
}

func TestStorage_ListPayments(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, id := range []string{"p1", "p2", "p3"} {
		p := testPayment(id, "alice", baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreatePayment(ctx, p))
	}

	out, err := s.ListPayments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	// Newest first
	assert.Equal(t, "p3", out[0].ID)
	assert.Equal(t, "p1", out[2].ID)

	limited, err := s.ListPayments(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStorage_MarkPaid(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePayment(ctx, testPayment("p1", "alice", baseTime)))

	paidAt := baseTime.Add(10 * time.Minute)
	won, err := s.MarkPaid(ctx, "p1", paidAt)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := s.GetPayment(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, paidAt, *got.PaidAt)
	assert.Equal(t, paidAt, got.ModifiedAt)

	// Second attempt loses the condition
	won, err = s.MarkPaid(ctx, "p1", paidAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, won)

	// PaidAt did not move
	got, err = s.GetPayment(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, paidAt, *got.PaidAt)

	_, err = s.MarkPaid(ctx, "missing", paidAt)
	assert.ErrorIs(t, err, relaypay.ErrPaymentNotFound)
}

func TestStorage_MarkPaid_SingleWinnerUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePayment(ctx, testPayment("p1", "alice", baseTime)))

	const callers = 100
	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.MarkPaid(ctx, "p1", baseTime.Add(time.Minute))
			if err == nil && won {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestStorage_Accounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, relaypay.ErrAccountNotFound)

	acct := &relaypay.Account{
		Pubkey:    "alice",
		Tier:      "basic",
		ExpiresAt: baseTime.Add(30 * 24 * time.Hour),
		Entitlements: relaypay.Entitlements{
			Features:     []string{"relay_access"},
			StorageBytes: 1 << 30,
		},
		UpdatedAt: baseTime,
	}
	require.NoError(t, s.UpsertAccount(ctx, acct))

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "basic", got.Tier)

	// Upsert overwrites in place
	acct.Tier = "premium"
	acct.Entitlements.StorageBytes = 10 << 30
	require.NoError(t, s.UpsertAccount(ctx, acct))

	got, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "premium", got.Tier)
	assert.Equal(t, int64(10<<30), got.Entitlements.StorageBytes)
}

func TestStorage_Scan(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreatePayment(ctx, testPayment("p1", "alice", baseTime)))
	require.NoError(t, s.CreatePayment(ctx, testPayment("p2", "bob", baseTime)))
	require.NoError(t, s.UpsertAccount(ctx, &relaypay.Account{Pubkey: "alice", Tier: "basic"}))

	var paymentIDs []string
	require.NoError(t, s.ScanPayments(ctx, func(p *relaypay.Payment) error {
		paymentIDs = append(paymentIDs, p.ID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"p1", "p2"}, paymentIDs)

	var accounts int
	require.NoError(t, s.ScanAccounts(ctx, func(a *relaypay.Account) error {
		accounts++
		return nil
	}))
	assert.Equal(t, 1, accounts)
}
