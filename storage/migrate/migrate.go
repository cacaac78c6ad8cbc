// Package migrate copies payment and account data between two relaypay.Storage
// implementations. It is an offline batch job for live backend migrations and
// stays entirely outside the request path: it never mutates payment state,
// only replicates it.
package migrate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Options controls a migration run
type Options struct {
	// SkipExisting leaves rows that already exist in the destination
	// untouched instead of overwriting them
	SkipExisting bool

	// DryRun walks the source and reports what would be copied without
	// writing anything
	DryRun bool

	// VerifySample is the fraction of copied payments (0..1) to read
	// back from the destination and compare field by field
	VerifySample float64

	// Workers is the number of concurrent copy workers (default: 4)
	Workers int

	// Logger is used for structured logging (default: NoopLogger)
	Logger relaypay.Logger
}

// Report summarizes a migration run
type Report struct {
	PaymentsCopied  int
	PaymentsSkipped int
	AccountsCopied  int
	AccountsSkipped int
	Verified        int
	Mismatched      int
}

// Migrator copies rows from a source storage to a destination storage
type Migrator struct {
	src  relaypay.Storage
	dst  relaypay.Storage
	opts Options
}

// New creates a new migrator between the two storages
func New(src, dst relaypay.Storage, opts Options) (*Migrator, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("source and destination storage are required")
	}
	if opts.VerifySample < 0 || opts.VerifySample > 1 {
		return nil, fmt.Errorf("verify sample must be within [0,1]")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = &relaypay.NoopLogger{}
	}
	return &Migrator{src: src, dst: dst, opts: opts}, nil
}

// Run copies all payments and accounts, then verifies a sample of the
// copied payments if configured. The first error aborts the run; a
// partially migrated destination is safe because reruns with
// SkipExisting converge.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	copied, skipped, err := m.copyPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment copy failed: %w", err)
	}
	report.PaymentsCopied = copied
	report.PaymentsSkipped = skipped

	acctCopied, acctSkipped, err := m.copyAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("account copy failed: %w", err)
	}
	report.AccountsCopied = acctCopied
	report.AccountsSkipped = acctSkipped

	if !m.opts.DryRun && m.opts.VerifySample > 0 {
		verified, mismatched, err := m.verifyPayments(ctx)
		if err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		report.Verified = verified
		report.Mismatched = mismatched
	}

	m.opts.Logger.Info("migration run finished",
		relaypay.Field{Key: "payments_copied", Value: report.PaymentsCopied},
		relaypay.Field{Key: "payments_skipped", Value: report.PaymentsSkipped},
		relaypay.Field{Key: "accounts_copied", Value: report.AccountsCopied},
		relaypay.Field{Key: "accounts_skipped", Value: report.AccountsSkipped},
		relaypay.Field{Key: "verified", Value: report.Verified},
		relaypay.Field{Key: "mismatched", Value: report.Mismatched},
		relaypay.Field{Key: "dry_run", Value: m.opts.DryRun},
	)
	return report, nil
}

func (m *Migrator) copyPayments(ctx context.Context) (copied, skipped int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	payments := make(chan *relaypay.Payment)

	g.Go(func() error {
		defer close(payments)
		return m.src.ScanPayments(gctx, func(p *relaypay.Payment) error {
			select {
			case payments <- p:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	results := make(chan bool)
	for i := 0; i < m.opts.Workers; i++ {
		g.Go(func() error {
			for p := range payments {
				wrote, err := m.copyPayment(gctx, p)
				if err != nil {
					return err
				}
				select {
				case results <- wrote:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		for wrote := range results {
			if wrote {
				copied++
			} else {
				skipped++
			}
		}
		close(done)
	}()

	err = g.Wait()
	close(results)
	<-done
	if err != nil {
		return 0, 0, err
	}
	return copied, skipped, nil
}

func (m *Migrator) copyPayment(ctx context.Context, p *relaypay.Payment) (bool, error) {
	if m.opts.SkipExisting {
		_, err := m.dst.GetPayment(ctx, p.ID, p.Pubkey)
		if err == nil {
			return false, nil
		}
		if err != relaypay.ErrPaymentNotFound {
			return false, err
		}
	}
	if m.opts.DryRun {
		m.opts.Logger.Debug("would copy payment",
			relaypay.Field{Key: "payment_id", Value: p.ID})
		return true, nil
	}

	err := m.dst.CreatePayment(ctx, p)
	if err == relaypay.ErrPaymentExists {
		// Row appeared between the existence check and the write, or
		// SkipExisting is off and the destination already has it.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// CreatePayment writes rows as unpaid metadata plus flags as given;
	// a source row that is already paid must land paid in the
	// destination too.
	if p.IsPaid && p.PaidAt != nil {
		if _, err := m.dst.MarkPaid(ctx, p.ID, *p.PaidAt); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (m *Migrator) copyAccounts(ctx context.Context) (copied, skipped int, err error) {
	err = m.src.ScanAccounts(ctx, func(a *relaypay.Account) error {
		if m.opts.SkipExisting {
			_, getErr := m.dst.GetAccount(ctx, a.Pubkey)
			if getErr == nil {
				skipped++
				return nil
			}
			if getErr != relaypay.ErrAccountNotFound {
				return getErr
			}
		}
		if m.opts.DryRun {
			copied++
			return nil
		}
		if upsertErr := m.dst.UpsertAccount(ctx, a); upsertErr != nil {
			return upsertErr
		}
		copied++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return copied, skipped, nil
}

func (m *Migrator) verifyPayments(ctx context.Context) (verified, mismatched int, err error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	err = m.src.ScanPayments(ctx, func(want *relaypay.Payment) error {
		if rng.Float64() >= m.opts.VerifySample {
			return nil
		}
		got, getErr := m.dst.GetPayment(ctx, want.ID, want.Pubkey)
		if getErr == relaypay.ErrPaymentNotFound {
			mismatched++
			m.opts.Logger.Warn("verification miss: payment absent in destination",
				relaypay.Field{Key: "payment_id", Value: want.ID})
			return nil
		}
		if getErr != nil {
			return getErr
		}
		verified++
		if !paymentsEqual(want, got) {
			mismatched++
			m.opts.Logger.Warn("verification mismatch",
				relaypay.Field{Key: "payment_id", Value: want.ID})
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return verified, mismatched, nil
}

func paymentsEqual(a, b *relaypay.Payment) bool {
	if a.ID != b.ID || a.Pubkey != b.Pubkey || a.Tier != b.Tier ||
		a.Cycle != b.Cycle || a.PriceCents != b.PriceCents ||
		a.SettlementHash != b.SettlementHash ||
		a.SettlementInvoice != b.SettlementInvoice ||
		a.SettlementAmount != b.SettlementAmount ||
		a.IsPaid != b.IsPaid {
		return false
	}
	if (a.PaidAt == nil) != (b.PaidAt == nil) {
		return false
	}
	if a.PaidAt != nil && !a.PaidAt.Equal(*b.PaidAt) {
		return false
	}
	return a.ExpiresAt.Equal(b.ExpiresAt)
}
