package relaypay

import "errors"

var (
	// ErrInvalidTier is returned for an unknown tier name
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidCycle is returned for a billing cycle the tier does not offer
	ErrInvalidCycle = errors.New("invalid billing cycle")

	// ErrRateUnavailable is returned when the rate oracle fails or
	// reports a missing, non-numeric or non-positive rate
	ErrRateUnavailable = errors.New("conversion rate unavailable")

	// ErrSettlementService is returned when the settlement network
	// rejects a call or answers with a malformed payload
	ErrSettlementService = errors.New("settlement service error")

	// ErrPaymentNotFound is returned when no payment exists for the
	// (id, pubkey) pair. Ownership is part of the lookup key so a
	// miss and a foreign-owner probe are indistinguishable.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrAccountNotFound is returned when a pubkey has no account yet
	ErrAccountNotFound = errors.New("account not found")

	// ErrPaymentExists is returned when creating a payment with an id
	// that is already stored
	ErrPaymentExists = errors.New("payment already exists")

	// ErrStorageUnavailable is returned when storage is missing or unreachable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
