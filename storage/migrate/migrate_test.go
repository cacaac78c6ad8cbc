package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrhub/relaypay/pkg/relaypay"
	"github.com/nostrhub/relaypay/storage/memory"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func seedSource(t *testing.T, n int) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	src := memory.New()

	for i := 0; i < n; i++ {
		p := &relaypay.Payment{
			ID:                fmt.Sprintf("p%d", i),
			Pubkey:            fmt.Sprintf("pk%d", i),
			Tier:              "premium",
			Cycle:             relaypay.CycleMonthly,
			PriceCents:        1000,
			SettlementHash:    fmt.Sprintf("hash%d", i),
			SettlementInvoice: fmt.Sprintf("lnbc%d", i),
			SettlementAmount:  22222,
			ExpiresAt:         baseTime.Add(time.Hour),
			CreatedAt:         baseTime,
			ModifiedAt:        baseTime,
		}
		require.NoError(t, src.CreatePayment(ctx, p))
	}
	require.NoError(t, src.UpsertAccount(ctx, &relaypay.Account{
		Pubkey: "pk0", Tier: "premium", ExpiresAt: baseTime.Add(30 * 24 * time.Hour),
	}))
	return src
}

func TestMigrator_Run_CopiesEverything(t *testing.T) {
	ctx := context.Background()
	src := seedSource(t, 10)
	dst := memory.New()

	// A paid source row must land paid
	_, err := src.MarkPaid(ctx, "p3", baseTime.Add(time.Minute))
	require.NoError(t, err)

	m, err := New(src, dst, Options{Workers: 3})
	require.NoError(t, err)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, report.PaymentsCopied)
	assert.Equal(t, 0, report.PaymentsSkipped)
	assert.Equal(t, 1, report.AccountsCopied)

	got, err := dst.GetPayment(ctx, "p3", "pk3")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaidAt)

	acct, err := dst.GetAccount(ctx, "pk0")
	require.NoError(t, err)
	assert.Equal(t, "premium", acct.Tier)
}

func TestMigrator_Run_SkipExisting(t *testing.T) {
	ctx := context.Background()
	src := seedSource(t, 5)
	dst := memory.New()

	// Pre-copy two rows
	pre, err := src.GetPayment(ctx, "p0", "pk0")
	require.NoError(t, err)
	require.NoError(t, dst.CreatePayment(ctx, pre))
	pre, err = src.GetPayment(ctx, "p1", "pk1")
	require.NoError(t, err)
	require.NoError(t, dst.CreatePayment(ctx, pre))

	m, err := New(src, dst, Options{SkipExisting: true})
	require.NoError(t, err)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.PaymentsCopied)
	assert.Equal(t, 2, report.PaymentsSkipped)
}

func TestMigrator_Run_DryRun(t *testing.T) {
	ctx := context.Background()
	src := seedSource(t, 4)
	dst := memory.New()

	m, err := New(src, dst, Options{DryRun: true})
	require.NoError(t, err)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.PaymentsCopied)

	// Nothing was actually written
	payments, err := dst.ListPayments(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, payments)
	_, err = dst.GetAccount(ctx, "pk0")
	assert.ErrorIs(t, err, relaypay.ErrAccountNotFound)
}

func TestMigrator_Run_VerifiesSample(t *testing.T) {
	ctx := context.Background()
	src := seedSource(t, 8)
	dst := memory.New()

	m, err := New(src, dst, Options{VerifySample: 1.0})
	require.NoError(t, err)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Verified)
	assert.Equal(t, 0, report.Mismatched)
}

func TestMigrator_Run_ReportsMismatch(t *testing.T) {
	ctx := context.Background()
	src := seedSource(t, 3)
	dst := memory.New()

	m, err := New(src, dst, Options{VerifySample: 1.0})
	require.NoError(t, err)

	// First run copies, then the source diverges: a payment gets paid
	// after the copy. A second verification-only pass must flag it.
	_, err = m.Run(ctx)
	require.NoError(t, err)

	_, err = src.MarkPaid(ctx, "p1", baseTime.Add(time.Minute))
	require.NoError(t, err)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Mismatched)
}

func TestNew_Validation(t *testing.T) {
	src := memory.New()
	_, err := New(nil, src, Options{})
	assert.Error(t, err)
	_, err = New(src, src, Options{VerifySample: 1.5})
	assert.Error(t, err)
}
