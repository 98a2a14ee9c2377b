package order

import (
	"fmt"
	"time"

	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
)

// allowedTransitions is the service order state machine. Completed and
// cancelled are terminal.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderAssigned, models.OrderCancelled},
	models.OrderAssigned:   {models.OrderInProgress, models.OrderCancelled},
	models.OrderInProgress: {models.OrderCompleted, models.OrderCancelled},
	models.OrderCompleted:  {},
	models.OrderCancelled:  {},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// applyTransition mutates the order status and maintains the matching
// timestamp field. The order is untouched when the transition is
// rejected.
func applyTransition(order *models.ServiceOrder, to models.OrderStatus, now time.Time) error {
	if !CanTransition(order.Status, to) {
		return fmt.Errorf("%w: %s -> %s", e.ErrInvalidTransition, order.Status, to)
	}
	order.Status = to
	switch to {
	case models.OrderAssigned:
		order.AssignedAt = &now
	case models.OrderInProgress:
		order.StartedAt = &now
	case models.OrderCompleted:
		order.CompletedAt = &now
	case models.OrderCancelled:
		order.CancelledAt = &now
	}
	return nil
}
