package relaypay

import (
	"context"
	"fmt"
)

// Provisioner maps a paid payment onto the owning account's
// entitlements.
type Provisioner struct {
	storage Storage
	config  Config
}

// NewProvisioner creates a new entitlement provisioner
func NewProvisioner(storage Storage, config Config) (*Provisioner, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	config.normalize()

	return &Provisioner{
		storage: storage,
		config:  config,
	}, nil
}

// Grant upserts the account for payment.Pubkey with the tier's
// entitlement bundle. The subscription window starts at confirmation
// time (PaidAt), not at invoice creation.
//
// Grant is idempotent: invoking it twice with the same payment yields
// the same account state, which makes it the designated recovery path
// when a caller crashes between the paid transition committing and
// provisioning completing. An existing account is overwritten in place;
// quotas never stack across payments.
func (pr *Provisioner) Grant(ctx context.Context, payment *Payment) (*Account, error) {
	tierCfg, ok := pr.config.Tiers[payment.Tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTier, payment.Tier)
	}
	if !payment.Cycle.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCycle, payment.Cycle)
	}

	confirmedAt := pr.config.Now()
	if payment.PaidAt != nil {
		confirmedAt = *payment.PaidAt
	}

	acct := &Account{
		Pubkey:       payment.Pubkey,
		Tier:         payment.Tier,
		ExpiresAt:    confirmedAt.Add(payment.Cycle.Duration()),
		Entitlements: tierCfg.Entitlements,
		UpdatedAt:    pr.config.Now(),
	}

	if err := pr.storage.UpsertAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	pr.config.Logger.Info("entitlements granted",
		Field{Key: "pubkey", Value: acct.Pubkey},
		Field{Key: "tier", Value: acct.Tier},
		Field{Key: "expires_at", Value: acct.ExpiresAt},
	)
	return acct, nil
}
