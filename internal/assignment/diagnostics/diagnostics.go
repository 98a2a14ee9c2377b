// Package diagnostics builds the read-only operational snapshot of the
// assignment engine. It never mutates state; plain read consistency is
// enough.
package diagnostics

import (
	"context"
	"time"

	"github.com/ridelink/transferhub/internal/assignment/db"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"github.com/ridelink/transferhub/internal/assignment/queue"
)

// recentLimit bounds the lists in one snapshot.
const recentLimit = 10

type Reporter struct {
	repo *db.Repository
}

func NewReporter(repo *db.Repository) *Reporter {
	return &Reporter{repo: repo}
}

// Snapshot assembles the current queue report: company counts, the
// rotation in selection order, recent orders, recent pending bookings
// and recent queue log entries.
func (r *Reporter) Snapshot(ctx context.Context) (*models.QueueReport, error) {
	total, err := r.repo.CountCompanies(ctx)
	if err != nil {
		return nil, err
	}
	active, err := r.repo.CountActiveCompanies(ctx)
	if err != nil {
		return nil, err
	}
	invalid, err := r.repo.CountInvalidPositions(ctx)
	if err != nil {
		return nil, err
	}

	companies, err := r.repo.AllCompanies(ctx)
	if err != nil {
		return nil, err
	}
	queue.SortByRotation(companies)
	slots := make([]models.QueueSlot, 0, len(companies))
	for _, c := range companies {
		slots = append(slots, models.QueueSlot{
			CompanyID:         c.ID,
			Name:              c.Name,
			Status:            c.Status,
			QueuePosition:     c.QueuePosition,
			LastOrderAssigned: c.LastOrderAssigned,
		})
	}

	orders, err := r.repo.RecentServiceOrders(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	bookings, err := r.repo.RecentPendingBookings(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	logs, err := r.repo.RecentActivityLogs(ctx, oplog.CategoryQueue, recentLimit)
	if err != nil {
		return nil, err
	}

	return &models.QueueReport{
		GeneratedAt:      time.Now().UTC(),
		TotalCompanies:   total,
		ActiveCompanies:  active,
		InvalidPositions: invalid,
		Queue:            slots,
		RecentOrders:     orders,
		PendingBookings:  bookings,
		RecentQueueLogs:  logs,
	}, nil
}
