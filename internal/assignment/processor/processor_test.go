package processor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/transferhub/internal/assignment/db"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/notify"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"github.com/ridelink/transferhub/internal/assignment/order"
	"github.com/ridelink/transferhub/internal/assignment/queue"
	"github.com/ridelink/transferhub/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type nopNotifier struct{}

func (nopNotifier) NotifyCompanyNewOrder(*models.ServiceOrder)        {}
func (nopNotifier) NotifyBookingConfirmed(*models.Booking)            {}
func (nopNotifier) NotifyDriverAssigned(*models.ServiceOrder, string) {}
func (nopNotifier) NotifyTripStarted(*models.ServiceOrder)            {}
func (nopNotifier) NotifyTripCompleted(*models.ServiceOrder)          {}

var _ notify.Notifier = nopNotifier{}

func setupProcessor(t *testing.T) (*Processor, *db.Repository) {
	repo, err := db.NewSQLiteRepository(":memory:")
	require.NoError(t, err, "failed to open test database")
	sink := oplog.NewSink(repo, zaptest.NewLogger(t), nil)
	factory := order.NewFactory(repo, queue.NewEngine(repo, sink), nopNotifier{}, sink)
	return New(repo, factory, sink), repo
}

func seedCompany(t *testing.T, repo *db.Repository, pos int) *models.Company {
	t.Helper()
	company := &models.Company{
		ID:            uuid.New(),
		Name:          "Company",
		Status:        models.CompanyActive,
		QueuePosition: utils.Ptr(pos),
	}
	require.NoError(t, repo.CreateCompany(context.Background(), company))
	return company
}

func seedPendingBooking(t *testing.T, repo *db.Repository, ref string, createdAt time.Time) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:            uuid.New(),
		ReferenceCode: ref,
		Status:        models.BookingPending,
		Origin:        "Airport",
		Destination:   "Hotel Plaza",
		TravelDate:    time.Now().Add(24 * time.Hour),
		CreatedAt:     createdAt,
	}
	require.NoError(t, repo.CreateBooking(context.Background(), booking))
	return booking
}

func TestProcessPendingDrainsOldestFirst(t *testing.T) {
	proc, repo := setupProcessor(t)
	ctx := context.Background()

	companyA := seedCompany(t, repo, 1)
	companyB := seedCompany(t, repo, 2)

	base := time.Now().Add(-time.Hour)
	older := seedPendingBooking(t, repo, "TRF-OLD", base)
	newer := seedPendingBooking(t, repo, "TRF-NEW", base.Add(time.Minute))

	processed, errs := proc.ProcessPending(ctx, 10)
	assert.Equal(t, 2, processed)
	assert.Empty(t, errs)

	// Oldest booking got the front of the queue.
	oldOrder, err := repo.OrderByBooking(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, companyA.ID, oldOrder.CompanyID)

	newOrder, err := repo.OrderByBooking(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, companyB.ID, newOrder.CompanyID)
}

func TestProcessPendingPartialFailure(t *testing.T) {
	proc, repo := setupProcessor(t)
	ctx := context.Background()

	seedCompany(t, repo, 1)

	base := time.Now().Add(-time.Hour)
	good := seedPendingBooking(t, repo, "TRF-GOOD", base)
	// A booking pointing at a company that no longer exists fails its
	// own assignment without blocking the rest of the batch.
	bad := seedPendingBooking(t, repo, "TRF-BAD", base.Add(time.Minute))
	missing := uuid.New()
	require.NoError(t, repo.WithTransaction(ctx, func(tx *db.Repository) error {
		return tx.ConfirmBooking(ctx, bad.ID, missing)
	}))
	// Put it back to pending with the dangling company reference.
	requireBookingStatus(t, repo, bad.ID, models.BookingConfirmed)
	resetToPending(t, repo, bad.ID)
	alsoGood := seedPendingBooking(t, repo, "TRF-ALSO", base.Add(2*time.Minute))

	processed, errs := proc.ProcessPending(ctx, 10)
	assert.Equal(t, 2, processed, "Good bookings on both sides of the failure succeed")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], e.ErrNotFound)

	_, err := repo.OrderByBooking(ctx, good.ID)
	assert.NoError(t, err)
	_, err = repo.OrderByBooking(ctx, alsoGood.ID)
	assert.NoError(t, err)
	_, err = repo.OrderByBooking(ctx, bad.ID)
	assert.ErrorIs(t, err, e.ErrNotFound, "Failed booking has no order")
}

func TestProcessPendingNoActiveCompanies(t *testing.T) {
	proc, repo := setupProcessor(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	first := seedPendingBooking(t, repo, "TRF-1", base)
	seedPendingBooking(t, repo, "TRF-2", base.Add(time.Minute))

	processed, errs := proc.ProcessPending(ctx, 10)
	assert.Equal(t, 0, processed)
	require.Len(t, errs, 1, "Batch fails fast with a single error")
	assert.ErrorIs(t, errs[0], e.ErrNoActiveCompanies)

	requireBookingStatus(t, repo, first.ID, models.BookingPending)
}

func TestProcessPendingSelfHealing(t *testing.T) {
	proc, repo := setupProcessor(t)
	ctx := context.Background()

	booking := seedPendingBooking(t, repo, "TRF-1", time.Now().Add(-time.Hour))

	processed, errs := proc.ProcessPending(ctx, 10)
	assert.Equal(t, 0, processed)
	require.Len(t, errs, 1)

	// A company comes online; the next sweep picks the booking up.
	seedCompany(t, repo, 1)

	processed, errs = proc.ProcessPending(ctx, 10)
	assert.Equal(t, 1, processed)
	assert.Empty(t, errs)
	requireBookingStatus(t, repo, booking.ID, models.BookingConfirmed)

	// And a further sweep has nothing left to do.
	processed, errs = proc.ProcessPending(ctx, 10)
	assert.Equal(t, 0, processed)
	assert.Empty(t, errs)
}

func TestProcessPendingRespectsBatchSize(t *testing.T) {
	proc, repo := setupProcessor(t)
	ctx := context.Background()

	seedCompany(t, repo, 1)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		seedPendingBooking(t, repo, "TRF-"+uuid.NewString()[:8], base.Add(time.Duration(i)*time.Minute))
	}

	processed, errs := proc.ProcessPending(ctx, 3)
	assert.Equal(t, 3, processed)
	assert.Empty(t, errs)

	remaining, err := repo.PendingBookings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func requireBookingStatus(t *testing.T, repo *db.Repository, id uuid.UUID, want models.BookingStatus) {
	t.Helper()
	booking, err := repo.GetBooking(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, booking.Status)
}

func resetToPending(t *testing.T, repo *db.Repository, id uuid.UUID) {
	t.Helper()
	booking, err := repo.GetBooking(context.Background(), id)
	require.NoError(t, err)
	booking.Status = models.BookingPending
	require.NoError(t, repo.WithTransaction(context.Background(), func(tx *db.Repository) error {
		return tx.SaveBooking(context.Background(), booking)
	}))
}
