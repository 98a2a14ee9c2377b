// Package order creates and advances service orders: the fulfillment
// records a transport company works from once a booking is assigned to
// it. Creation is idempotent per booking; the queue engine decides who
// receives the order.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/transferhub/internal/assignment/db"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/notify"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"github.com/ridelink/transferhub/internal/assignment/queue"
	"go.uber.org/zap"
)

// Factory turns bookings into service orders and drives the order
// state machine.
type Factory struct {
	repo     *db.Repository
	queue    *queue.Engine
	notifier notify.Notifier
	log      *oplog.Sink
}

func NewFactory(repo *db.Repository, q *queue.Engine, notifier notify.Notifier, log *oplog.Sink) *Factory {
	return &Factory{
		repo:     repo,
		queue:    q,
		notifier: notifier,
		log:      log,
	}
}

// IntakeInput is a booking as delivered by the external booking flow.
type IntakeInput struct {
	ReferenceCode string
	Origin        string
	Destination   string
	TravelDate    time.Time
	ReturnDate    *time.Time
	// CompanyID is set when the customer picked a company explicitly.
	CompanyID *uuid.UUID
}

// IntakeBooking stores an incoming booking and attempts synchronous
// assignment. When no company is available the booking simply stays
// pending for the next scheduled sweep; that is not an error.
func (f *Factory) IntakeBooking(ctx context.Context, in IntakeInput) (*models.Booking, *models.ServiceOrder, error) {
	if strings.TrimSpace(in.ReferenceCode) == "" {
		return nil, nil, fmt.Errorf("%w: reference code required", e.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Origin) == "" || strings.TrimSpace(in.Destination) == "" {
		return nil, nil, fmt.Errorf("%w: origin and destination required", e.ErrInvalidInput)
	}
	if in.TravelDate.IsZero() {
		return nil, nil, fmt.Errorf("%w: travel date required", e.ErrInvalidInput)
	}

	booking := &models.Booking{
		ID:            uuid.New(),
		ReferenceCode: strings.TrimSpace(in.ReferenceCode),
		Status:        models.BookingPending,
		Origin:        strings.TrimSpace(in.Origin),
		Destination:   strings.TrimSpace(in.Destination),
		TravelDate:    in.TravelDate,
		ReturnDate:    in.ReturnDate,
		CompanyID:     in.CompanyID,
	}
	if err := f.repo.CreateBooking(ctx, booking); err != nil {
		return nil, nil, err
	}
	f.log.Info(ctx, oplog.CategoryBooking, booking.ID.String(),
		"Booking received",
		zap.String("reference_code", booking.ReferenceCode),
	)

	order, err := f.CreateFromBooking(ctx, booking)
	if err != nil {
		if errors.Is(err, e.ErrNoActiveCompanies) {
			f.log.Info(ctx, oplog.CategoryBooking, booking.ID.String(),
				"No company available, booking left pending for next sweep")
			return booking, nil, nil
		}
		// Booking is stored and stays pending; the caller decides how
		// to surface the assignment failure.
		return booking, nil, err
	}
	return booking, order, nil
}

// AssignBooking runs the assignment pipeline for an already-stored
// booking.
func (f *Factory) AssignBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceOrder, error) {
	booking, err := f.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return f.CreateFromBooking(ctx, booking)
}

// CreateFromBooking creates the service order for a booking.
//
// Idempotent: when an order already references the booking, the
// existing order is returned with no error and the queue is left
// untouched. Otherwise the next company in line is selected, the order
// inserted, the booking confirmed and the company rotated to the back,
// all inside one transaction. Notifications fire after commit and
// never fail the assignment.
func (f *Factory) CreateFromBooking(ctx context.Context, booking *models.Booking) (*models.ServiceOrder, error) {
	existing, err := f.repo.OrderByBooking(ctx, booking.ID)
	if err == nil {
		f.log.Info(ctx, oplog.CategoryOrder, booking.ID.String(),
			fmt.Sprintf("%v, returning existing order", e.ErrDuplicateOrder),
			zap.String("order_id", existing.ID.String()),
		)
		return existing, nil
	}
	if !errors.Is(err, e.ErrNotFound) {
		return nil, err
	}

	if booking.Status != models.BookingPending && booking.Status != models.BookingConfirmed {
		f.log.Warn(ctx, oplog.CategoryBooking, booking.ID.String(),
			"Rejected order creation for booking in terminal state",
			zap.String("status", string(booking.Status)),
		)
		return nil, fmt.Errorf("%w: booking %s is %s", e.ErrInvalidBookingState, booking.ReferenceCode, booking.Status)
	}

	var order *models.ServiceOrder
	buildOrder := func(tx *db.Repository, company *models.Company) error {
		o := newOrderForBooking(booking, company.ID)
		if err := tx.CreateServiceOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ConfirmBooking(ctx, booking.ID, company.ID); err != nil {
			return err
		}
		order = o
		return nil
	}

	var company *models.Company
	if booking.CompanyID != nil {
		company, err = f.queue.AssignCompany(ctx, *booking.CompanyID, buildOrder)
	} else {
		company, err = f.queue.Assign(ctx, buildOrder)
	}
	if err != nil {
		if errors.Is(err, e.ErrDuplicateOrder) {
			// Lost the race to a concurrent attempt; the winner's order
			// is the result.
			if existing, readErr := f.repo.OrderByBooking(ctx, booking.ID); readErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	booking.Status = models.BookingConfirmed
	booking.CompanyID = &company.ID

	f.log.Info(ctx, oplog.CategoryOrder, order.ID.String(),
		"Service order created from booking",
		zap.String("booking_id", booking.ID.String()),
		zap.String("company_id", company.ID.String()),
	)

	f.notifier.NotifyCompanyNewOrder(order)
	f.notifier.NotifyBookingConfirmed(booking)
	return order, nil
}

// ForceAssign is the manual override: it hands the booking to the named
// company without consulting the queue and without rotating, so it
// sits outside the fairness guarantees. Operator use only.
func (f *Factory) ForceAssign(ctx context.Context, bookingID, companyID uuid.UUID) (*models.ServiceOrder, error) {
	booking, err := f.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing, err := f.repo.OrderByBooking(ctx, booking.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, e.ErrNotFound) {
		return nil, err
	}
	if booking.Status != models.BookingPending && booking.Status != models.BookingConfirmed {
		return nil, fmt.Errorf("%w: booking %s is %s", e.ErrInvalidBookingState, booking.ReferenceCode, booking.Status)
	}
	company, err := f.repo.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var order *models.ServiceOrder
	err = f.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		o := newOrderForBooking(booking, company.ID)
		if err := tx.CreateServiceOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ConfirmBooking(ctx, booking.ID, company.ID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, e.ErrDuplicateOrder) {
			if existing, readErr := f.repo.OrderByBooking(ctx, booking.ID); readErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	booking.Status = models.BookingConfirmed
	booking.CompanyID = &company.ID

	f.log.Warn(ctx, oplog.CategoryOrder, order.ID.String(),
		"Manual assignment bypassing queue rotation",
		zap.String("booking_id", booking.ID.String()),
		zap.String("company_id", company.ID.String()),
	)

	f.notifier.NotifyCompanyNewOrder(order)
	f.notifier.NotifyBookingConfirmed(booking)
	return order, nil
}

// AssignDriver moves a pending order to assigned and records the
// driver.
func (f *Factory) AssignDriver(ctx context.Context, orderID, driverID uuid.UUID, driverName string) (*models.ServiceOrder, error) {
	order, err := f.transition(ctx, orderID, models.OrderAssigned, func(o *models.ServiceOrder) {
		o.DriverID = &driverID
		o.DriverName = driverName
	})
	if err != nil {
		return nil, err
	}
	f.notifier.NotifyDriverAssigned(order, driverName)
	return order, nil
}

// StartTrip marks the order in progress.
func (f *Factory) StartTrip(ctx context.Context, orderID uuid.UUID) (*models.ServiceOrder, error) {
	order, err := f.transition(ctx, orderID, models.OrderInProgress, nil)
	if err != nil {
		return nil, err
	}
	f.notifier.NotifyTripStarted(order)
	return order, nil
}

// CompleteTrip marks the order completed.
func (f *Factory) CompleteTrip(ctx context.Context, orderID uuid.UUID) (*models.ServiceOrder, error) {
	order, err := f.transition(ctx, orderID, models.OrderCompleted, nil)
	if err != nil {
		return nil, err
	}
	f.notifier.NotifyTripCompleted(order)
	return order, nil
}

// CancelOrder cancels an order from any non-terminal state.
func (f *Factory) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.ServiceOrder, error) {
	return f.transition(ctx, orderID, models.OrderCancelled, nil)
}

// UpdateStatus applies an arbitrary state-machine transition, used by
// the admin API.
func (f *Factory) UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.ServiceOrder, error) {
	switch to {
	case models.OrderInProgress:
		return f.StartTrip(ctx, orderID)
	case models.OrderCompleted:
		return f.CompleteTrip(ctx, orderID)
	case models.OrderCancelled:
		return f.CancelOrder(ctx, orderID)
	default:
		return nil, fmt.Errorf("%w: cannot move order to %s directly", e.ErrInvalidTransition, to)
	}
}

func (f *Factory) transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, mutate func(*models.ServiceOrder)) (*models.ServiceOrder, error) {
	order, err := f.repo.GetServiceOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := applyTransition(order, to, time.Now().UTC()); err != nil {
		f.log.Warn(ctx, oplog.CategoryOrder, order.ID.String(),
			"Rejected status transition",
			zap.String("from", string(order.Status)),
			zap.String("to", string(to)),
		)
		return nil, err
	}
	if mutate != nil {
		mutate(order)
	}
	if err := f.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	f.log.Info(ctx, oplog.CategoryOrder, order.ID.String(),
		"Service order status updated",
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

func newOrderForBooking(booking *models.Booking, companyID uuid.UUID) *models.ServiceOrder {
	bookingID := booking.ID
	return &models.ServiceOrder{
		ID:          uuid.New(),
		BookingID:   &bookingID,
		CompanyID:   companyID,
		Status:      models.OrderPending,
		Origin:      booking.Origin,
		Destination: booking.Destination,
		PickupDate:  booking.TravelDate,
		Notes:       fmt.Sprintf("Booking %s", booking.ReferenceCode),
	}
}
