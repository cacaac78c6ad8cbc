package relaypay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Issuer converts a tier purchase into a payable invoice on the
// settlement network and records the resulting payment locally.
type Issuer struct {
	storage    Storage
	rates      RateSource
	settlement SettlementService
	config     Config
}

// NewIssuer creates a new invoice issuer with the given collaborators
func NewIssuer(storage Storage, rates RateSource, settlement SettlementService, config Config) (*Issuer, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	if rates == nil {
		return nil, fmt.Errorf("rate source is required")
	}
	if settlement == nil {
		return nil, fmt.Errorf("settlement service is required")
	}
	config.normalize()

	return &Issuer{
		storage:    storage,
		rates:      rates,
		settlement: settlement,
		config:     config,
	}, nil
}

// Issue requests an invoice for the given tier and cycle and persists a
// pending payment owned by pubkey. Pubkey format is validated by the
// caller, not re-validated here.
//
// The payment row is only written after the settlement service has
// answered: an invoice is never recorded without a corresponding
// external invoice. If persistence fails after the external call
// succeeded the error is surfaced so the caller can retry creation
// under a fresh invoice id rather than treating the orphaned external
// invoice as success.
func (i *Issuer) Issue(ctx context.Context, pubkey, tier string, cycle BillingCycle) (*Payment, error) {
	priceCents, err := i.config.tierPrice(tier, cycle)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rate, err := i.rates.CurrentRate(ctx)
	i.config.Metrics.RecordOracleCall("rate", time.Since(start), err)
	if err != nil {
		i.config.Metrics.RecordInvoiceIssued(tier, cycle, false)
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	if rate <= 0 {
		i.config.Metrics.RecordInvoiceIssued(tier, cycle, false)
		return nil, fmt.Errorf("%w: non-positive rate %v", ErrRateUnavailable, rate)
	}

	id := uuid.NewString()
	sats := SatsForPrice(priceCents, rate)

	start = time.Now()
	inv, err := i.settlement.CreateInvoice(ctx, &InvoiceRequest{
		ID:         id,
		AmountSats: sats,
		Memo:       fmt.Sprintf("%s %s subscription", tier, cycle),
	})
	i.config.Metrics.RecordOracleCall("create_invoice", time.Since(start), err)
	if err != nil {
		i.config.Metrics.RecordInvoiceIssued(tier, cycle, false)
		return nil, fmt.Errorf("%w: %v", ErrSettlementService, err)
	}
	if inv.Invoice == "" || inv.Hash == "" || inv.AmountSats <= 0 {
		i.config.Metrics.RecordInvoiceIssued(tier, cycle, false)
		return nil, fmt.Errorf("%w: incomplete invoice response", ErrSettlementService)
	}

	now := i.config.Now()
	payment := &Payment{
		ID:                id,
		Pubkey:            pubkey,
		Tier:              tier,
		Cycle:             cycle,
		PriceCents:        priceCents,
		SettlementHash:    inv.Hash,
		SettlementInvoice: inv.Invoice,
		SettlementAmount:  inv.AmountSats,
		IsPaid:            false,
		ExpiresAt:         now.Add(i.config.InvoiceTTL),
		CreatedAt:         now,
		ModifiedAt:        now,
	}

	if err := i.storage.CreatePayment(ctx, payment); err != nil {
		i.config.Metrics.RecordInvoiceIssued(tier, cycle, false)
		i.config.Logger.Error("invoice issued externally but not recorded",
			Field{Key: "payment_id", Value: id},
			Field{Key: "settlement_hash", Value: inv.Hash},
			Field{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}

	i.config.Metrics.RecordInvoiceIssued(tier, cycle, true)
	i.config.Logger.Info("invoice issued",
		Field{Key: "payment_id", Value: id},
		Field{Key: "pubkey", Value: pubkey},
		Field{Key: "tier", Value: tier},
		Field{Key: "cycle", Value: string(cycle)},
		Field{Key: "amount_sats", Value: sats},
	)
	return payment, nil
}
