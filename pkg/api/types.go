package api

import "time"

// CreatePaymentRequest is the body of POST /payment
type CreatePaymentRequest struct {
	TierName     string `json:"tierName"`
	BillingCycle string `json:"billingCycle"`
	Pubkey       string `json:"pubkey"`
}

// PaymentResponse is the wire shape of a payment on every endpoint
type PaymentResponse struct {
	ID      string    `json:"id"`
	Invoice string    `json:"invoice"`
	Status  string    `json:"status"`
	Expires time.Time `json:"expires"`
}

// ErrorResponse carries a client-facing error message
type ErrorResponse struct {
	Error string `json:"error"`
}
