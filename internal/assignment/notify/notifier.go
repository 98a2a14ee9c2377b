// Package notify publishes notification triggers for downstream
// collaborators (company, driver and customer notifier services).
// Delivery is fire-and-forget: the assignment pipeline never fails or
// rolls back because a notification could not be published.
package notify

import (
	"github.com/ridelink/transferhub/internal/assignment/models"
)

// Notifier is the capability injected into the assignment core. The
// core calls these after its own state changes commit.
type Notifier interface {
	NotifyCompanyNewOrder(order *models.ServiceOrder)
	NotifyBookingConfirmed(booking *models.Booking)
	NotifyDriverAssigned(order *models.ServiceOrder, driverName string)
	NotifyTripStarted(order *models.ServiceOrder)
	NotifyTripCompleted(order *models.ServiceOrder)
}

// MessageType identifies what a published message announces.
type MessageType string

const (
	CompanyNewOrder  MessageType = "company_new_order"
	BookingConfirmed MessageType = "booking_confirmed"
	DriverAssigned   MessageType = "driver_assigned"
	TripStarted      MessageType = "trip_started"
	TripCompleted    MessageType = "trip_completed"
	OpsAlert         MessageType = "ops_alert"
)

// Message is the wire format consumed by the notifier services.
type Message struct {
	Type       MessageType          `json:"type"`
	Order      *models.ServiceOrder `json:"order,omitempty"`
	Booking    *models.Booking      `json:"booking,omitempty"`
	DriverName string               `json:"driver_name,omitempty"`
	Category   string               `json:"category,omitempty"`
	Text       string               `json:"text,omitempty"`
}
