package order

import (
	"testing"
	"time"

	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.OrderStatus
		to      models.OrderStatus
		allowed bool
	}{
		{"pending to assigned", models.OrderPending, models.OrderAssigned, true},
		{"pending to cancelled", models.OrderPending, models.OrderCancelled, true},
		{"assigned to in_progress", models.OrderAssigned, models.OrderInProgress, true},
		{"assigned to cancelled", models.OrderAssigned, models.OrderCancelled, true},
		{"in_progress to completed", models.OrderInProgress, models.OrderCompleted, true},
		{"in_progress to cancelled", models.OrderInProgress, models.OrderCancelled, true},
		{"pending to in_progress skips assigned", models.OrderPending, models.OrderInProgress, false},
		{"pending to completed", models.OrderPending, models.OrderCompleted, false},
		{"assigned back to pending", models.OrderAssigned, models.OrderPending, false},
		{"completed is terminal", models.OrderCompleted, models.OrderCancelled, false},
		{"cancelled is terminal", models.OrderCancelled, models.OrderAssigned, false},
		{"same state is not a transition", models.OrderAssigned, models.OrderAssigned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestApplyTransitionTimestamps(t *testing.T) {
	now := time.Now().UTC()
	order := &models.ServiceOrder{Status: models.OrderPending}

	require.NoError(t, applyTransition(order, models.OrderAssigned, now))
	assert.Equal(t, models.OrderAssigned, order.Status)
	require.NotNil(t, order.AssignedAt)
	assert.Equal(t, now, *order.AssignedAt)

	require.NoError(t, applyTransition(order, models.OrderInProgress, now))
	require.NotNil(t, order.StartedAt)

	require.NoError(t, applyTransition(order, models.OrderCompleted, now))
	require.NotNil(t, order.CompletedAt)
}

func TestApplyTransitionRejectedLeavesOrderUntouched(t *testing.T) {
	order := &models.ServiceOrder{Status: models.OrderPending}

	err := applyTransition(order, models.OrderCompleted, time.Now())
	assert.ErrorIs(t, err, e.ErrInvalidTransition)
	assert.Equal(t, models.OrderPending, order.Status, "Rejected transition must not mutate")
	assert.Nil(t, order.CompletedAt)
}
