package relaypay

import (
	"context"
	"time"
)

// BillingCycle defines the recurrence period of a subscription purchase
type BillingCycle string

const (
	// CycleMonthly renews 30 days after confirmation
	CycleMonthly BillingCycle = "monthly"
	// CycleQuarterly renews 90 days after confirmation
	CycleQuarterly BillingCycle = "quarterly"
	// CycleYearly renews 365 days after confirmation
	CycleYearly BillingCycle = "yearly"
)

// Duration returns the entitlement window granted by this cycle.
// Offsets are fixed day counts, not calendar months, so the grant
// window is identical regardless of when in the year it starts.
func (c BillingCycle) Duration() time.Duration {
	switch c {
	case CycleMonthly:
		return 30 * 24 * time.Hour
	case CycleQuarterly:
		return 90 * 24 * time.Hour
	case CycleYearly:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether c is a known billing cycle
func (c BillingCycle) Valid() bool {
	return c.Duration() > 0
}

// Status is the externally visible lifecycle state of a payment
type Status string

const (
	// StatusPending means the invoice is live and unsettled
	StatusPending Status = "pending"
	// StatusExpired means the invoice missed its window; terminal
	StatusExpired Status = "expired"
	// StatusPaid means the invoice settled and entitlements were granted; terminal
	StatusPaid Status = "paid"
)

// Payment is one row per issued invoice. All fields except IsPaid,
// PaidAt and ModifiedAt are immutable after creation, and rows are
// never deleted (they are the audit trail for every invoice issued).
type Payment struct {
	ID     string
	Pubkey string

	Tier       string
	Cycle      BillingCycle
	PriceCents int64

	// SettlementHash identifies the invoice on the settlement network;
	// SettlementInvoice is the serialized payment request handed to the
	// client; SettlementAmount is the invoice amount in sats.
	SettlementHash    string
	SettlementInvoice string
	SettlementAmount  int64

	// IsPaid transitions false -> true at most once and never reverts.
	IsPaid bool
	PaidAt *time.Time

	ExpiresAt  time.Time
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Status derives the lifecycle state from local fields alone, without
// consulting the settlement network. Paid wins over expired: a payment
// confirmed at the expiry boundary stays paid.
func (p *Payment) Status(now time.Time) Status {
	if p.IsPaid {
		return StatusPaid
	}
	if now.After(p.ExpiresAt) {
		return StatusExpired
	}
	return StatusPending
}

// Entitlements is the feature set and quota granted for a tier. It is
// snapshotted onto the Account at grant time so a later tier-table edit
// does not retroactively change already-granted accounts.
type Entitlements struct {
	Features     []string
	StorageBytes int64
}

// Account is the owning identity's current entitlement state. It is
// created on first successful payment and overwritten in place on
// subsequent ones (last write wins, no stacking).
type Account struct {
	Pubkey       string
	Tier         string
	ExpiresAt    time.Time
	Entitlements Entitlements
	UpdatedAt    time.Time
}

// TierConfig defines the purchasable prices and the entitlement bundle
// for a single tier.
type TierConfig struct {
	Name string

	// Prices maps billing cycles to the price in the billing currency's
	// minor unit (cents). A cycle absent from the map is not purchasable
	// for this tier.
	Prices map[BillingCycle]int64

	Entitlements Entitlements
}

// PriceCents returns the configured price for a cycle
func (t TierConfig) PriceCents(cycle BillingCycle) (int64, bool) {
	price, ok := t.Prices[cycle]
	return price, ok
}

// InvoiceRequest is the parameter set handed to the settlement service
// when requesting a new invoice. ID is caller-supplied so a failed
// persistence attempt can be retried under a fresh identifier.
type InvoiceRequest struct {
	ID         string
	AmountSats int64
	Memo       string
}

// Invoice is the settlement service's answer to an invoice request
type Invoice struct {
	Invoice    string
	Hash       string
	AmountSats int64
}

// RateSource fetches the current conversion rate (billing currency
// units per settlement unit, e.g. USD per BTC). One synchronous call,
// no retry; callers treat any failure as terminal for the invocation.
type RateSource interface {
	CurrentRate(ctx context.Context) (float64, error)
}

// SettlementService is the opaque external settlement network:
// invoice creation plus a clearance check keyed by settlement hash.
type SettlementService interface {
	CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error)

	// Settled reports whether the invoice behind hash has cleared.
	// The view may be eventually consistent; the reconciler's
	// conditional write is what keeps the grant at-most-once.
	Settled(ctx context.Context, hash string) (bool, error)
}

// Config holds the tier table and invoice TTL shared by the issuer,
// reconciler and provisioner.
type Config struct {
	// Tiers maps tier names to their prices and entitlement bundles
	Tiers map[string]TierConfig

	// InvoiceTTL is how long an unpaid invoice stays payable
	// (default: 1 hour)
	InvoiceTTL time.Duration

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking payment operations (default: NoopMetrics)
	Metrics Metrics

	// Now overrides the clock, for tests (default: time.Now)
	Now func() time.Time
}

// DefaultInvoiceTTL is applied when Config.InvoiceTTL is zero
const DefaultInvoiceTTL = time.Hour

func (c *Config) normalize() {
	if c.InvoiceTTL == 0 {
		c.InvoiceTTL = DefaultInvoiceTTL
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
}

// tierPrice resolves the tier and cycle against the configured table
func (c *Config) tierPrice(tier string, cycle BillingCycle) (int64, error) {
	tc, ok := c.Tiers[tier]
	if !ok {
		return 0, ErrInvalidTier
	}
	if !cycle.Valid() {
		return 0, ErrInvalidCycle
	}
	price, ok := tc.PriceCents(cycle)
	if !ok {
		return 0, ErrInvalidCycle
	}
	return price, nil
}
