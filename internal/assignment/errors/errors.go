// Package errors defines the sentinel errors of the assignment engine.
// Callers match them with errors.Is; wrapped variants carry context.
package errors

import (
	"fmt"
)

var (
	// ErrNotFound is returned when a company, booking or service order
	// does not exist.
	ErrNotFound = fmt.Errorf("not found")

	// ErrNoActiveCompanies is returned by the queue when the active set
	// is empty. Recoverable: the booking stays pending until a company
	// becomes active again.
	ErrNoActiveCompanies = fmt.Errorf("no active companies in queue")

	// ErrDuplicateOrder marks an attempt to create a second service
	// order for the same booking. The factory treats it as success and
	// returns the existing order; the sentinel exists for logging.
	ErrDuplicateOrder = fmt.Errorf("service order already exists for booking")

	// ErrInvalidBookingState is returned when a booking is not in a
	// state that allows order creation.
	ErrInvalidBookingState = fmt.Errorf("invalid booking state")

	// ErrInvalidTransition is returned for service order status changes
	// the state machine does not allow.
	ErrInvalidTransition = fmt.Errorf("invalid status transition")

	// ErrTransientDB marks connectivity, timeout or lock-contention
	// failures. The operation is abandoned for this attempt; the next
	// scheduled sweep retries it.
	ErrTransientDB = fmt.Errorf("transient database error")

	// ErrQueueCorruption marks invalid or duplicate queue positions.
	// Self-repaired opportunistically, never fatal once repaired.
	ErrQueueCorruption = fmt.Errorf("queue position corruption")

	// ErrDuplicateReference is returned when a booking reference code
	// is already taken.
	ErrDuplicateReference = fmt.Errorf("duplicate reference code")

	ErrInvalidInput = fmt.Errorf("invalid input")
)
