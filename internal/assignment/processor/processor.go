// Package processor drains pending bookings through the assignment
// pipeline. It is the self-healing path: bookings that could not be
// assigned synchronously (no active company at that instant, transient
// failures) are picked up by the next scheduled sweep. Safe to re-run
// arbitrarily often because order creation is idempotent per booking.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ridelink/transferhub/internal/assignment/db"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"go.uber.org/zap"
)

// DefaultBatchSize bounds one sweep when the caller does not.
const DefaultBatchSize = 25

// OrderFactory is the part of the order package the processor needs.
type OrderFactory interface {
	CreateFromBooking(ctx context.Context, booking *models.Booking) (*models.ServiceOrder, error)
}

type Processor struct {
	repo    *db.Repository
	factory OrderFactory
	log     *oplog.Sink
}

func New(repo *db.Repository, factory OrderFactory, log *oplog.Sink) *Processor {
	return &Processor{repo: repo, factory: factory, log: log}
}

// ProcessPending assigns up to batchSize pending bookings, oldest
// first. Per-booking failures are collected and the batch continues;
// one bad booking never blocks the rest. The exception is
// ErrNoActiveCompanies: nothing later in the batch can succeed either,
// so the sweep stops there and reports what it managed.
func (p *Processor) ProcessPending(ctx context.Context, batchSize int) (int, []error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	bookings, err := p.repo.PendingBookings(ctx, batchSize)
	if err != nil {
		return 0, []error{err}
	}
	if len(bookings) == 0 {
		return 0, nil
	}

	var processed int
	var errs []error
	for i := range bookings {
		booking := bookings[i]
		_, err := p.factory.CreateFromBooking(ctx, &booking)
		if err != nil {
			errs = append(errs, fmt.Errorf("booking %s: %w", booking.ReferenceCode, err))
			if errors.Is(err, e.ErrNoActiveCompanies) {
				p.log.Warn(ctx, oplog.CategoryQueue, "",
					"Stopping sweep, no active companies in queue",
					zap.Int("remaining", len(bookings)-i),
				)
				break
			}
			p.log.Error(ctx, oplog.CategoryBooking, booking.ID.String(),
				"Failed to assign pending booking",
				zap.Error(err),
			)
			continue
		}
		processed++
	}

	p.log.Info(ctx, oplog.CategoryBooking, "",
		"Pending booking sweep finished",
		zap.Int("processed", processed),
		zap.Int("failed", len(errs)),
	)
	return processed, errs
}
