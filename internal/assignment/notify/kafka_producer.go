package notify

import (
	"context"
	"encoding/json"

	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

// KafkaWriter lets tests substitute the concrete kafka.Writer.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes notification messages to a Kafka topic through a
// buffered channel. When the buffer is full the message is dropped and
// logged; the assignment that produced it is already committed.
type Producer struct {
	writer    KafkaWriter
	messages  chan Message
	logger    *zap.Logger
	closeChan chan struct{}
}

func NewProducer(brokers []string, logger *zap.Logger, topic string) (*Producer, error) {
	// Create topic if it doesn't exist
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	topicConfigs := []kafka.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}

	if err := conn.CreateTopics(topicConfigs...); err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	p := &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
			Topic:    topic,
		},
		messages:  make(chan Message, 1000),
		logger:    logger.Named("notify_producer"),
		closeChan: make(chan struct{}),
	}

	go p.eventLoop()
	return p, nil
}

func (p *Producer) NotifyCompanyNewOrder(order *models.ServiceOrder) {
	p.enqueue(Message{Type: CompanyNewOrder, Order: order})
}

func (p *Producer) NotifyBookingConfirmed(booking *models.Booking) {
	p.enqueue(Message{Type: BookingConfirmed, Booking: booking})
}

func (p *Producer) NotifyDriverAssigned(order *models.ServiceOrder, driverName string) {
	p.enqueue(Message{Type: DriverAssigned, Order: order, DriverName: driverName})
}

func (p *Producer) NotifyTripStarted(order *models.ServiceOrder) {
	p.enqueue(Message{Type: TripStarted, Order: order})
}

func (p *Producer) NotifyTripCompleted(order *models.ServiceOrder) {
	p.enqueue(Message{Type: TripCompleted, Order: order})
}

// Alert publishes an operator-visible alert. Satisfies oplog.Alerter.
func (p *Producer) Alert(category, message string) {
	p.enqueue(Message{Type: OpsAlert, Category: category, Text: message})
}

func (p *Producer) enqueue(msg Message) {
	select {
	case p.messages <- msg:
	default:
		p.logger.Warn("Notification queue full, dropping message",
			zap.String("message_type", string(msg.Type)),
		)
	}
}

func (p *Producer) eventLoop() {
	for {
		select {
		case msg := <-p.messages:
			p.send(context.Background(), msg)
		case <-p.closeChan:
			return
		}
	}
}

func (p *Producer) send(ctx context.Context, msg Message) {
	value, err := jsonMarshal(msg)
	if err != nil {
		p.logger.Error("Failed to serialize notification",
			zap.Error(err),
			zap.String("message_type", string(msg.Type)),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.key()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to publish notification",
			zap.Error(err),
			zap.String("message_type", string(msg.Type)),
		)
	}
}

// key picks a partition key so messages about one order or booking keep
// their relative order.
func (m Message) key() string {
	switch {
	case m.Order != nil:
		return m.Order.ID.String()
	case m.Booking != nil:
		return m.Booking.ID.String()
	case m.Category != "":
		return m.Category
	}
	return string(m.Type)
}

func (p *Producer) Close() {
	close(p.closeChan)
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
