// Package db implements the GORM-backed repository for the assignment
// engine. The queue columns on companies (queue_position,
// last_order_assigned) are owned exclusively by the queue package; the
// locking helpers here exist so its select-and-rotate runs as one
// serialized unit.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func NewRepository(cfg *Config) (*Repository, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Company{},
		&models.Booking{},
		&models.ServiceOrder{},
		&models.ActivityLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewSQLiteRepository opens a SQLite-backed repository. Used by tests
// and local development; production runs on Postgres.
func NewSQLiteRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Company{},
		&models.Booking{},
		&models.ServiceOrder{},
		&models.ActivityLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// WithTransaction runs fn against a transaction-bound repository.
// Returning an error rolls the transaction back.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// forUpdate adds row-level locking on dialects that support it. SQLite
// serializes writers with a database-level lock, so the clause is
// skipped there.
func (r *Repository) forUpdate(tx *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// classify maps low-level failures onto the engine's error taxonomy.
// Timeouts and cancellations become ErrTransientDB so callers leave
// the work for the next scheduled sweep instead of retrying inline.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", e.ErrTransientDB, err)
	}
	return err
}

// --- companies ---

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	result := r.db.WithContext(ctx).Create(company)
	return classify(result.Error)
}

func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	result := r.db.WithContext(ctx).First(&company, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, classify(result.Error)
	}
	return &company, nil
}

func (r *Repository) SetCompanyStatus(ctx context.Context, id uuid.UUID, status models.CompanyStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// ActiveCompaniesForUpdate loads the active set under a row lock.
// Callers must hold a transaction; the lock is released on commit or
// rollback.
func (r *Repository) ActiveCompaniesForUpdate(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	tx := r.db.WithContext(ctx).Where("status = ?", models.CompanyActive)
	if result := r.forUpdate(tx).Find(&companies); result.Error != nil {
		return nil, classify(result.Error)
	}
	return companies, nil
}

// InvalidPositionCompaniesForUpdate loads companies whose queue
// position is null or zero, by id ascending so repair is deterministic.
func (r *Repository) InvalidPositionCompaniesForUpdate(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	tx := r.db.WithContext(ctx).
		Where("queue_position IS NULL OR queue_position = 0").
		Order("id asc")
	if result := r.forUpdate(tx).Find(&companies); result.Error != nil {
		return nil, classify(result.Error)
	}
	return companies, nil
}

// AllCompaniesByCreation loads every company ordered by created_at
// ascending (id breaks creation-time ties), for full queue resets.
func (r *Repository) AllCompaniesByCreation(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	tx := r.db.WithContext(ctx).Order("created_at asc, id asc")
	if result := r.forUpdate(tx).Find(&companies); result.Error != nil {
		return nil, classify(result.Error)
	}
	return companies, nil
}

func (r *Repository) AllCompanies(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	result := r.db.WithContext(ctx).Find(&companies)
	return companies, classify(result.Error)
}

// MaxQueuePosition returns the highest queue position over all
// companies, zero when none hold one.
func (r *Repository) MaxQueuePosition(ctx context.Context) (int, error) {
	var max int
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Select("COALESCE(MAX(queue_position), 0)").
		Scan(&max)
	return max, classify(result.Error)
}

func (r *Repository) SetQueuePosition(ctx context.Context, id uuid.UUID, position int) error {
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", id).
		Update("queue_position", position)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// RotateCompany moves a company to the given back-of-queue position and
// stamps last_order_assigned.
func (r *Repository) RotateCompany(ctx context.Context, id uuid.UUID, position int, assignedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"queue_position":      position,
			"last_order_assigned": assignedAt,
		})
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) CountCompanies(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Company{}).Count(&count)
	return count, classify(result.Error)
}

func (r *Repository) CountActiveCompanies(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("status = ?", models.CompanyActive).
		Count(&count)
	return count, classify(result.Error)
}

func (r *Repository) CountInvalidPositions(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("queue_position IS NULL OR queue_position = 0").
		Count(&count)
	return count, classify(result.Error)
}

// --- bookings ---

func (r *Repository) CreateBooking(ctx context.Context, booking *models.Booking) error {
	result := r.db.WithContext(ctx).Create(booking)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicateReference
		}
		return classify(result.Error)
	}
	return nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	result := r.db.WithContext(ctx).First(&booking, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, classify(result.Error)
	}
	return &booking, nil
}

func (r *Repository) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	result := r.db.WithContext(ctx).First(&booking, "reference_code = ?", reference)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, classify(result.Error)
	}
	return &booking, nil
}

// PendingBookings returns up to limit pending bookings, oldest first.
func (r *Repository) PendingBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	result := r.db.WithContext(ctx).
		Where("status = ?", models.BookingPending).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&bookings)
	return bookings, classify(result.Error)
}

// RecentPendingBookings returns the newest pending bookings for the
// diagnostics snapshot.
func (r *Repository) RecentPendingBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	result := r.db.WithContext(ctx).
		Where("status = ?", models.BookingPending).
		Order("created_at desc").
		Limit(limit).
		Find(&bookings)
	return bookings, classify(result.Error)
}

// ConfirmBooking marks the booking confirmed and records the assigned
// company.
func (r *Repository) ConfirmBooking(ctx context.Context, id uuid.UUID, companyID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.BookingConfirmed,
			"company_id": companyID,
		})
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// SaveBooking persists the full booking row.
func (r *Repository) SaveBooking(ctx context.Context, booking *models.Booking) error {
	result := r.db.WithContext(ctx).Save(booking)
	return classify(result.Error)
}

// --- service orders ---

func (r *Repository) CreateServiceOrder(ctx context.Context, order *models.ServiceOrder) error {
	result := r.db.WithContext(ctx).Create(order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicateOrder
		}
		return classify(result.Error)
	}
	return nil
}

func (r *Repository) GetServiceOrder(ctx context.Context, id uuid.UUID) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	result := r.db.WithContext(ctx).First(&order, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, classify(result.Error)
	}
	return &order, nil
}

// OrderByBooking returns the service order referencing the booking, or
// ErrNotFound when the booking has not been assigned yet.
func (r *Repository) OrderByBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	result := r.db.WithContext(ctx).First(&order, "booking_id = ?", bookingID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, classify(result.Error)
	}
	return &order, nil
}

// SaveOrder persists the full order row, used by status transitions.
func (r *Repository) SaveOrder(ctx context.Context, order *models.ServiceOrder) error {
	result := r.db.WithContext(ctx).Save(order)
	return classify(result.Error)
}

func (r *Repository) RecentServiceOrders(ctx context.Context, limit int) ([]models.ServiceOrder, error) {
	var orders []models.ServiceOrder
	result := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&orders)
	return orders, classify(result.Error)
}

// --- activity log ---

func (r *Repository) InsertActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	result := r.db.WithContext(ctx).Create(entry)
	return classify(result.Error)
}

func (r *Repository) RecentActivityLogs(ctx context.Context, category string, limit int) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	result := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&entries)
	return entries, classify(result.Error)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
