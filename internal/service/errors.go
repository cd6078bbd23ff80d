package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSeller is returned when a seller-only operation is attempted
	// by anyone else.
	ErrNotSeller = errors.New("caller is not the order's seller")

	// ErrNotParticipant is returned when the caller is neither the buyer
	// nor the seller of the order.
	ErrNotParticipant = errors.New("caller is not a party to this order")

	// ErrInvalidTransition is returned when the requested status is not
	// reachable from the order's current status.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrOrderBusy is returned when another mutation for the same order
	// is already in flight.
	ErrOrderBusy = errors.New("order has another update in flight")

	// ErrCodeFormat is returned before any network call when the
	// submitted verification code is not a 6-digit numeric string.
	ErrCodeFormat = errors.New("verification code must be a 6-digit number")

	// ErrNotVerifiable is returned before any network call when the
	// order is not awaiting delivery verification.
	ErrNotVerifiable = errors.New("order is not awaiting verification")
)

// VerificationError carries the verifier's rejection message verbatim so
// the seller sees exactly what the backend reported.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	if e.Message == "" {
		return "verification failed"
	}
	return fmt.Sprintf("verification failed: %s", e.Message)
}

func invalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
