package api

import (
	"fmt"
	"time"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Config holds configuration for the payment API handler
type Config struct {
	// Issuer creates invoices (required)
	Issuer *relaypay.Issuer

	// Reconciler resolves payment status (required)
	Reconciler *relaypay.Reconciler

	// Storage backs the admin listing endpoint (required)
	Storage relaypay.Storage

	// ValidatePubkey checks the identity format. Pubkey format rules
	// live with the account subsystem, so the check is injected rather
	// than re-implemented here.
	ValidatePubkey func(string) bool

	// AdminToken authorizes GET /payment. Empty disables the listing
	// endpoint entirely.
	AdminToken string

	// Logger is used for structured logging (default: NoopLogger)
	Logger relaypay.Logger

	// AdminRateLimit caps listing requests per IP per minute
	// (default: 60)
	AdminRateLimit int

	// Now overrides the clock, for tests (default: time.Now UTC)
	Now func() time.Time
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Issuer == nil {
		return fmt.Errorf("issuer is required")
	}
	if c.Reconciler == nil {
		return fmt.Errorf("reconciler is required")
	}
	if c.Storage == nil {
		return fmt.Errorf("storage is required")
	}
	if c.ValidatePubkey == nil {
		return fmt.Errorf("validatePubkey is required")
	}
	return nil
}
