// Package intake consumes bookings published by the external booking
// flow and feeds them into the assignment pipeline. Redelivery is
// harmless: a duplicate reference code means the booking is already
// stored, and order creation is idempotent per booking.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/order"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BookingMessage is the wire format published by the booking UI.
type BookingMessage struct {
	ReferenceCode string     `json:"reference_code"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	TravelDate    time.Time  `json:"travel_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	CompanyID     *uuid.UUID `json:"company_id,omitempty"`
}

// BookingIntake is the part of the order factory the consumer needs.
type BookingIntake interface {
	IntakeBooking(ctx context.Context, in order.IntakeInput) (*models.Booking, *models.ServiceOrder, error)
}

type Consumer struct {
	reader *kafka.Reader
	intake BookingIntake
	logger *zap.Logger
}

func NewConsumer(brokers []string, groupID, topic string, intake BookingIntake, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
			Dialer:  kafka.DefaultDialer,
		}),
		intake: intake,
		logger: logger.Named("booking_consumer"),
	}
}

// Start consumes until ctx is cancelled. Messages that fail to decode
// are committed and skipped; assignment failures leave the booking
// pending and commit, since the sweep will retry it. A message whose
// booking never reached the database is NOT committed, so Kafka
// redelivers it.
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("Failed to fetch message", zap.Error(err))
				continue
			}

			if !c.handle(ctx, msg.Value) {
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Failed to commit message", zap.Error(err))
			}
		}
	}()
}

// handle reports whether the message may be committed. Only a booking
// that is neither stored nor malformed holds the offset back: once the
// row exists the sweep owns retries, and a payload that cannot decode
// never will.
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var bm BookingMessage
	if err := json.Unmarshal(value, &bm); err != nil {
		c.logger.Error("Failed to parse booking message",
			zap.Error(err),
			zap.ByteString("value", value),
		)
		return true
	}

	booking, _, err := c.intake.IntakeBooking(ctx, order.IntakeInput{
		ReferenceCode: bm.ReferenceCode,
		Origin:        bm.Origin,
		Destination:   bm.Destination,
		TravelDate:    bm.TravelDate,
		ReturnDate:    bm.ReturnDate,
		CompanyID:     bm.CompanyID,
	})
	if err != nil {
		if errors.Is(err, e.ErrDuplicateReference) {
			c.logger.Info("Booking already stored, skipping",
				zap.String("reference_code", bm.ReferenceCode),
			)
			return true
		}
		if errors.Is(err, e.ErrInvalidInput) {
			c.logger.Error("Rejected invalid booking message",
				zap.Error(err),
				zap.String("reference_code", bm.ReferenceCode),
			)
			return true
		}
		c.logger.Error("Failed to take in booking",
			zap.Error(err),
			zap.String("reference_code", bm.ReferenceCode),
		)
		// Stored bookings are retried by the sweep; a booking that never
		// made it to the database needs Kafka to redeliver the message.
		return booking != nil
	}
	return true
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
