package relaypay

import (
	"context"
	"fmt"
	"time"
)

// Reconciler resolves a payment's lifecycle state against local state
// and the settlement network, and performs the at-most-once transition
// to paid.
type Reconciler struct {
	storage     Storage
	settlement  SettlementService
	provisioner *Provisioner
	config      Config
}

// NewReconciler creates a new payment reconciler
func NewReconciler(storage Storage, settlement SettlementService, provisioner *Provisioner, config Config) (*Reconciler, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	if settlement == nil {
		return nil, fmt.Errorf("settlement service is required")
	}
	if provisioner == nil {
		return nil, fmt.Errorf("provisioner is required")
	}
	config.normalize()

	return &Reconciler{
		storage:     storage,
		settlement:  settlement,
		provisioner: provisioner,
		config:      config,
	}, nil
}

// CheckStatus resolves the state of payment (id, pubkey) in fixed
// priority order:
//
//  1. Already paid: terminal, answered from local state alone. Safe
//     under arbitrary repetition regardless of oracle staleness.
//  2. Past ExpiresAt: terminal, answered without an oracle call. An
//     invoice that missed its window stays dead even if the network
//     later reports settlement; the rate was locked at issuance and
//     honoring a late clearance would reopen pricing.
//  3. Otherwise ask the settlement network. On clearance, flip the row
//     with a conditional write; only the winner provisions. A caller
//     that loses the race still answers paid and never re-provisions.
func (r *Reconciler) CheckStatus(ctx context.Context, id, pubkey string) (Status, error) {
	p, err := r.storage.GetPayment(ctx, id, pubkey)
	if err != nil {
		return "", err
	}

	if p.IsPaid {
		r.config.Metrics.RecordStatusCheck(StatusPaid)
		return StatusPaid, nil
	}

	now := r.config.Now()
	if now.After(p.ExpiresAt) {
		r.config.Metrics.RecordStatusCheck(StatusExpired)
		return StatusExpired, nil
	}

	start := time.Now()
	settled, err := r.settlement.Settled(ctx, p.SettlementHash)
	r.config.Metrics.RecordOracleCall("settlement_status", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSettlementService, err)
	}
	if !settled {
		r.config.Metrics.RecordStatusCheck(StatusPending)
		return StatusPending, nil
	}

	won, err := r.storage.MarkPaid(ctx, p.ID, now)
	if err != nil {
		return "", err
	}
	r.config.Metrics.RecordStatusCheck(StatusPaid)
	if !won {
		// Another caller committed the transition first. The outcome is
		// identical for this caller, minus the provisioning side effect.
		return StatusPaid, nil
	}

	p.IsPaid = true
	p.PaidAt = &now
	p.ModifiedAt = now

	if _, err := r.provisioner.Grant(ctx, p); err != nil {
		// The paid flag is already committed; payment truth is
		// authoritative over grant truth. Log the gap for out-of-band
		// retry of Grant alone, not of the whole payment flow.
		r.config.Metrics.RecordGrantGap(p.Tier)
		r.config.Logger.Error("entitlement grant gap: payment committed but grant failed",
			Field{Key: "payment_id", Value: p.ID},
			Field{Key: "pubkey", Value: p.Pubkey},
			Field{Key: "tier", Value: p.Tier},
			Field{Key: "error", Value: err.Error()},
		)
		return StatusPaid, nil
	}

	r.config.Logger.Info("payment confirmed",
		Field{Key: "payment_id", Value: p.ID},
		Field{Key: "pubkey", Value: p.Pubkey},
		Field{Key: "tier", Value: p.Tier},
	)
	return StatusPaid, nil
}
