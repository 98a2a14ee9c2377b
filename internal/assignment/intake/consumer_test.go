package intake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type stubIntake struct {
	inputs []order.IntakeInput
	stored bool
	err    error
}

func (s *stubIntake) IntakeBooking(ctx context.Context, in order.IntakeInput) (*models.Booking, *models.ServiceOrder, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		if s.stored {
			return &models.Booking{ID: uuid.New(), ReferenceCode: in.ReferenceCode}, nil, s.err
		}
		return nil, nil, s.err
	}
	return &models.Booking{ID: uuid.New(), ReferenceCode: in.ReferenceCode}, nil, nil
}

func newTestConsumer(intake BookingIntake, logger *zap.Logger) *Consumer {
	return &Consumer{intake: intake, logger: logger}
}

func TestHandleBookingMessage(t *testing.T) {
	stub := &stubIntake{}
	consumer := newTestConsumer(stub, zaptest.NewLogger(t))

	companyID := uuid.New()
	payload, err := json.Marshal(BookingMessage{
		ReferenceCode: "TRF-1",
		Origin:        "Airport",
		Destination:   "Hotel Plaza",
		TravelDate:    time.Now().Add(24 * time.Hour),
		CompanyID:     &companyID,
	})
	require.NoError(t, err)

	committable := consumer.handle(context.Background(), payload)

	assert.True(t, committable)
	require.Len(t, stub.inputs, 1)
	assert.Equal(t, "TRF-1", stub.inputs[0].ReferenceCode)
	require.NotNil(t, stub.inputs[0].CompanyID)
	assert.Equal(t, companyID, *stub.inputs[0].CompanyID)
}

func TestHandleMalformedMessage(t *testing.T) {
	stub := &stubIntake{}
	core, recorded := observer.New(zap.ErrorLevel)
	consumer := newTestConsumer(stub, zap.New(core))

	committable := consumer.handle(context.Background(), []byte("{not json"))

	assert.True(t, committable, "A payload that will never decode must not block the partition")
	assert.Empty(t, stub.inputs, "Malformed payloads never reach the pipeline")
	assert.Equal(t, 1, recorded.FilterMessage("Failed to parse booking message").Len())
}

func TestHandleDuplicateReferenceIsSkipped(t *testing.T) {
	stub := &stubIntake{err: e.ErrDuplicateReference}
	core, recorded := observer.New(zap.ErrorLevel)
	consumer := newTestConsumer(stub, zap.New(core))

	payload, err := json.Marshal(BookingMessage{ReferenceCode: "TRF-1"})
	require.NoError(t, err)
	committable := consumer.handle(context.Background(), payload)

	assert.True(t, committable)
	require.Len(t, stub.inputs, 1)
	assert.Zero(t, recorded.Len(), "Redelivery of a stored booking is not an error")
}

func TestHandleInvalidInputIsCommitted(t *testing.T) {
	stub := &stubIntake{err: e.ErrInvalidInput}
	consumer := newTestConsumer(stub, zaptest.NewLogger(t))

	payload, err := json.Marshal(BookingMessage{Origin: "Airport"})
	require.NoError(t, err)
	committable := consumer.handle(context.Background(), payload)

	assert.True(t, committable, "Validation failures are terminal, redelivery cannot fix them")
}

func TestHandleUnstoredBookingIsRedelivered(t *testing.T) {
	stub := &stubIntake{err: e.ErrTransientDB}
	core, recorded := observer.New(zap.ErrorLevel)
	consumer := newTestConsumer(stub, zap.New(core))

	payload, err := json.Marshal(BookingMessage{ReferenceCode: "TRF-1"})
	require.NoError(t, err)
	committable := consumer.handle(context.Background(), payload)

	assert.False(t, committable, "A booking that never reached the database must be redelivered")
	assert.Equal(t, 1, recorded.FilterMessage("Failed to take in booking").Len())
}

func TestHandleStoredBookingCommitsDespiteAssignmentError(t *testing.T) {
	stub := &stubIntake{stored: true, err: e.ErrTransientDB}
	consumer := newTestConsumer(stub, zaptest.NewLogger(t))

	payload, err := json.Marshal(BookingMessage{ReferenceCode: "TRF-1"})
	require.NoError(t, err)
	committable := consumer.handle(context.Background(), payload)

	assert.True(t, committable, "Once the row exists the sweep owns retries")
}
