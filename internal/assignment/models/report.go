package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueSlot is one company's place in the rotation, as reported by the
// diagnostics snapshot.
type QueueSlot struct {
	CompanyID         uuid.UUID     `json:"company_id"`
	Name              string        `json:"name"`
	Status            CompanyStatus `json:"status"`
	QueuePosition     *int          `json:"queue_position"`
	LastOrderAssigned *time.Time    `json:"last_order_assigned"`
}

// QueueReport is the read-only operational snapshot of the assignment
// engine, shaped for JSON consumption by admin tooling.
type QueueReport struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalCompanies   int64          `json:"total_companies"`
	ActiveCompanies  int64          `json:"active_companies"`
	InvalidPositions int64          `json:"invalid_positions"`
	Queue            []QueueSlot    `json:"queue"`
	RecentOrders     []ServiceOrder `json:"recent_orders"`
	PendingBookings  []Booking      `json:"pending_bookings"`
	RecentQueueLogs  []ActivityLog  `json:"recent_queue_logs"`
}
