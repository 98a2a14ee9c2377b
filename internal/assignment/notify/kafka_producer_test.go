package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockKafkaWriter implements kafka.Writer for testing
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestProducer(logger *zap.Logger, writer KafkaWriter) *Producer {
	return &Producer{
		writer:    writer,
		messages:  make(chan Message, 1000),
		logger:    logger,
		closeChan: make(chan struct{}),
	}
}

func TestProducerEnqueue(t *testing.T) {
	t.Run("successful enqueue", func(t *testing.T) {
		producer := newTestProducer(zaptest.NewLogger(t), nil)
		order := &models.ServiceOrder{ID: uuid.New()}

		producer.NotifyCompanyNewOrder(order)

		assert.Equal(t, 1, len(producer.messages))
	})

	t.Run("dropped message when queue full", func(t *testing.T) {
		core, recorded := observer.New(zap.WarnLevel)
		producer := newTestProducer(zap.New(core), nil)
		producer.messages = make(chan Message, 1) // Small buffer for test
		order := &models.ServiceOrder{ID: uuid.New()}

		// Fill the channel
		producer.NotifyCompanyNewOrder(order)
		producer.NotifyTripStarted(order) // This should be dropped

		assert.Equal(t, 1, recorded.FilterMessage("Notification queue full, dropping message").Len())
	})
}

func TestProducerSend(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := newTestProducer(zaptest.NewLogger(t), mockWriter)
	order := &models.ServiceOrder{ID: uuid.New(), DriverName: "Alice"}

	t.Run("successful send keyed by order", func(t *testing.T) {
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)

		msg := Message{Type: DriverAssigned, Order: order, DriverName: "Alice"}
		producer.send(context.Background(), msg)

		value, err := jsonMarshal(msg)
		assert.NoError(t, err)
		mockWriter.AssertCalled(t, "WriteMessages", mock.Anything, []kafka.Message{
			{
				Key:   []byte(order.ID.String()),
				Value: value,
			},
		})
	})

	t.Run("serialization error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		producer.logger = zap.New(core)

		oldMarshal := jsonMarshal
		jsonMarshal = func(_ interface{}) ([]byte, error) {
			return nil, errors.New("mock marshal error")
		}
		defer func() { jsonMarshal = oldMarshal }()

		producer.send(context.Background(), Message{Type: TripCompleted, Order: order})

		assert.Equal(t, 1, recorded.FilterMessage("Failed to serialize notification").Len())
	})

	t.Run("write error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		producer.logger = zap.New(core)
		mockWriter.ExpectedCalls = nil
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("kafka error"))

		producer.send(context.Background(), Message{Type: TripCompleted, Order: order})

		assert.Equal(t, 1, recorded.FilterMessage("Failed to publish notification").Len())
	})
}

func TestMessageKey(t *testing.T) {
	order := &models.ServiceOrder{ID: uuid.New()}
	booking := &models.Booking{ID: uuid.New()}

	assert.Equal(t, order.ID.String(), Message{Type: TripStarted, Order: order}.key())
	assert.Equal(t, booking.ID.String(), Message{Type: BookingConfirmed, Booking: booking}.key())
	assert.Equal(t, "queue", Message{Type: OpsAlert, Category: "queue"}.key())
	assert.Equal(t, string(OpsAlert), Message{Type: OpsAlert}.key())
}

func TestProducerAlert(t *testing.T) {
	producer := newTestProducer(zaptest.NewLogger(t), nil)

	producer.Alert("queue", "Queue repair failed repeatedly")

	msg := <-producer.messages
	assert.Equal(t, OpsAlert, msg.Type)
	assert.Equal(t, "queue", msg.Category)
	assert.Equal(t, "Queue repair failed repeatedly", msg.Text)
}

func TestProducerClose(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	mockWriter.On("Close").Return(nil)

	producer := newTestProducer(zaptest.NewLogger(t), mockWriter)

	producer.Close()

	select {
	case <-producer.closeChan:
	default:
		t.Error("closeChan not closed")
	}

	mockWriter.AssertCalled(t, "Close")
}

func TestProducerEventLoop(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)

	producer := newTestProducer(zaptest.NewLogger(t), mockWriter)
	producer.messages = make(chan Message, 1)

	go producer.eventLoop()

	producer.NotifyBookingConfirmed(&models.Booking{ID: uuid.New()})

	// Give time for processing
	time.Sleep(100 * time.Millisecond)

	mockWriter.AssertCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}
