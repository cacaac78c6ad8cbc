package relaypay

import "time"

// Metrics defines the interface for tracking payment operations.
type Metrics interface {
	// RecordInvoiceIssued records an invoice creation attempt.
	RecordInvoiceIssued(tier string, cycle BillingCycle, success bool)

	// RecordStatusCheck records the outcome of a status check.
	RecordStatusCheck(status Status)

	// RecordOracleCall records the duration and status of an external
	// oracle call ("rate", "create_invoice", "settlement_status").
	RecordOracleCall(oracle string, duration time.Duration, err error)

	// RecordGrantGap records a committed payment whose entitlement grant
	// failed and needs out-of-band repair.
	RecordGrantGap(tier string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordInvoiceIssued(tier string, cycle BillingCycle, success bool)  {}
func (n *NoopMetrics) RecordStatusCheck(status Status)                                    {}
func (n *NoopMetrics) RecordOracleCall(oracle string, duration time.Duration, err error)  {}
func (n *NoopMetrics) RecordGrantGap(tier string)                                         {}
