// Package models defines the persisted domain entities of the assignment
// engine: transport companies and their queue state, customer bookings,
// and the service orders handed to companies for fulfillment.
// The structs carry GORM tags and are migrated by the db package.
package models

import (
	"time"

	"github.com/google/uuid"
)

// CompanyStatus is the lifecycle state of a transport company.
type CompanyStatus string

const (
	// CompanyActive companies participate in queue rotation.
	CompanyActive   CompanyStatus = "active"
	CompanyInactive CompanyStatus = "inactive"
	CompanyPending  CompanyStatus = "pending"
)

// BookingStatus is the lifecycle state of a customer booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// OrderStatus is the lifecycle state of a service order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderAssigned   OrderStatus = "assigned"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Company is a transport company registered on the platform.
//
// QueuePosition is nil (or zero) only while the row is corrupt; among
// active companies the positions form a set of distinct positive
// integers once the queue is healthy. Gaps are allowed. The queue
// engine is the only writer of QueuePosition and LastOrderAssigned.
type Company struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string        `gorm:"size:120;not null" json:"name"`
	Status            CompanyStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	QueuePosition     *int          `gorm:"index" json:"queue_position"`
	LastOrderAssigned *time.Time    `json:"last_order_assigned"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// HasValidPosition reports whether the company holds a usable queue
// position (non-nil, positive).
func (c *Company) HasValidPosition() bool {
	return c.QueuePosition != nil && *c.QueuePosition > 0
}

// Booking is a customer transfer request created by the external
// booking flow. The assignment pipeline is the only mutator of Status
// (pending to confirmed) and CompanyID; cancellation is external.
type Booking struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ReferenceCode string        `gorm:"size:32;uniqueIndex;not null" json:"reference_code"`
	Status        BookingStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	Origin        string        `gorm:"size:255;not null" json:"origin"`
	Destination   string        `gorm:"size:255;not null" json:"destination"`
	TravelDate    time.Time     `gorm:"not null" json:"travel_date"`
	ReturnDate    *time.Time    `json:"return_date,omitempty"`
	CompanyID     *uuid.UUID    `gorm:"type:uuid;index" json:"company_id,omitempty"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ServiceOrder is the fulfillment record a company works from.
//
// BookingID is nil for manually raised orders; when set it is unique,
// so the database itself guarantees at most one order per booking.
type ServiceOrder struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID   *uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"booking_id,omitempty"`
	CompanyID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"company_id"`
	DriverID    *uuid.UUID  `gorm:"type:uuid;index" json:"driver_id,omitempty"`
	DriverName  string      `gorm:"size:120" json:"driver_name,omitempty"`
	Status      OrderStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	Origin      string      `gorm:"size:255;not null" json:"origin"`
	Destination string      `gorm:"size:255;not null" json:"destination"`
	PickupDate  time.Time   `gorm:"not null" json:"pickup_date"`
	Notes       string      `gorm:"size:3000" json:"notes,omitempty"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	AssignedAt  *time.Time  `json:"assigned_at,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// ActivityLog is a persisted operational log entry. The diagnostics
// snapshot surfaces recent entries tagged with the queue category.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Category  string    `gorm:"size:16;index;not null" json:"category"`
	Severity  string    `gorm:"size:16;index;not null" json:"severity"`
	Message   string    `gorm:"size:2000;not null" json:"message"`
	Reference string    `gorm:"size:64" json:"reference,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
