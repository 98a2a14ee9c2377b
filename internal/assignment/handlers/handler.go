// Package handlers exposes the assignment engine over HTTP: booking
// intake, queue administration and service order lifecycle endpoints,
// plus the read-only diagnostics report.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/order"
	"go.uber.org/zap"
)

// QueueAdmin covers the operator-facing queue maintenance operations.
type QueueAdmin interface {
	RepairInvalidPositions(ctx context.Context) (int, error)
	ResetAllPositions(ctx context.Context) (int, error)
}

// Reporter builds the diagnostics snapshot.
type Reporter interface {
	Snapshot(ctx context.Context) (*models.QueueReport, error)
}

// OrderService is the booking/order surface the handlers invoke.
type OrderService interface {
	IntakeBooking(ctx context.Context, in order.IntakeInput) (*models.Booking, *models.ServiceOrder, error)
	AssignBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceOrder, error)
	ForceAssign(ctx context.Context, bookingID, companyID uuid.UUID) (*models.ServiceOrder, error)
	AssignDriver(ctx context.Context, orderID, driverID uuid.UUID, driverName string) (*models.ServiceOrder, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.ServiceOrder, error)
}

// BatchProcessor triggers an on-demand sweep.
type BatchProcessor interface {
	ProcessPending(ctx context.Context, batchSize int) (int, []error)
}

// Request deadlines. Database work on behalf of a request is bounded so
// a stuck connection surfaces as ErrTransientDB instead of hanging the
// client; the on-demand sweep walks a whole batch and gets the same
// budget as the scheduled one.
const (
	requestTimeout = 5 * time.Second
	processTimeout = 30 * time.Second
)

type Handler struct {
	queue     QueueAdmin
	reporter  Reporter
	orders    OrderService
	processor BatchProcessor
	logger    *zap.Logger
}

func NewHandler(queue QueueAdmin, reporter Reporter, orders OrderService, processor BatchProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		queue:     queue,
		reporter:  reporter,
		orders:    orders,
		processor: processor,
		logger:    logger.Named("http_handler"),
	}
}

// Mux wires the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/queue/report", withTimeout(requestTimeout, h.queueReport))
	mux.HandleFunc("POST /v1/queue/repair", withTimeout(requestTimeout, h.repairQueue))
	mux.HandleFunc("POST /v1/queue/reset", withTimeout(requestTimeout, h.resetQueue))
	mux.HandleFunc("POST /v1/process", withTimeout(processTimeout, h.processPending))
	mux.HandleFunc("POST /v1/bookings", withTimeout(requestTimeout, h.createBooking))
	mux.HandleFunc("POST /v1/bookings/{id}/assign", withTimeout(requestTimeout, h.assignBooking))
	mux.HandleFunc("POST /v1/bookings/{id}/force-assign", withTimeout(requestTimeout, h.forceAssign))
	mux.HandleFunc("POST /v1/orders/{id}/driver", withTimeout(requestTimeout, h.assignDriver))
	mux.HandleFunc("POST /v1/orders/{id}/status", withTimeout(requestTimeout, h.updateOrderStatus))
	return mux
}

// withTimeout bounds everything the handler does on behalf of the
// request, database calls included.
func withTimeout(d time.Duration, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		fn(w, r.WithContext(ctx))
	}
}

type createBookingRequest struct {
	ReferenceCode string     `json:"reference_code"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	TravelDate    time.Time  `json:"travel_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	CompanyID     *uuid.UUID `json:"company_id,omitempty"`
}

type createBookingResponse struct {
	Booking  *models.Booking      `json:"booking"`
	Order    *models.ServiceOrder `json:"order,omitempty"`
	Assigned bool                 `json:"assigned"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, svcOrder, err := h.orders.IntakeBooking(r.Context(), order.IntakeInput{
		ReferenceCode: req.ReferenceCode,
		Origin:        req.Origin,
		Destination:   req.Destination,
		TravelDate:    req.TravelDate,
		ReturnDate:    req.ReturnDate,
		CompanyID:     req.CompanyID,
	})
	if err != nil {
		if booking != nil {
			// Stored but not assigned; report the pending booking.
			h.logger.Warn("Synchronous assignment failed, booking left pending",
				zap.Error(err),
				zap.String("booking_id", booking.ID.String()),
			)
			writeJSON(w, http.StatusAccepted, createBookingResponse{Booking: booking})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createBookingResponse{
		Booking:  booking,
		Order:    svcOrder,
		Assigned: svcOrder != nil,
	})
}

func (h *Handler) assignBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	svcOrder, err := h.orders.AssignBooking(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svcOrder)
}

type forceAssignRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
}

func (h *Handler) forceAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req forceAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CompanyID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "company_id required")
		return
	}
	svcOrder, err := h.orders.ForceAssign(r.Context(), id, req.CompanyID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svcOrder)
}

type assignDriverRequest struct {
	DriverID   uuid.UUID `json:"driver_id"`
	DriverName string    `json:"driver_name"`
}

func (h *Handler) assignDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req assignDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "driver_id required")
		return
	}
	svcOrder, err := h.orders.AssignDriver(r.Context(), id, req.DriverID, req.DriverName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svcOrder)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}
	svcOrder, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svcOrder)
}

func (h *Handler) queueReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type repairResponse struct {
	Fixed int `json:"fixed"`
}

func (h *Handler) repairQueue(w http.ResponseWriter, r *http.Request) {
	fixed, err := h.queue.RepairInvalidPositions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repairResponse{Fixed: fixed})
}

type resetResponse struct {
	Companies int `json:"companies"`
}

func (h *Handler) resetQueue(w http.ResponseWriter, r *http.Request) {
	count, err := h.queue.ResetAllPositions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Companies: count})
}

type processResponse struct {
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}

func (h *Handler) processPending(w http.ResponseWriter, r *http.Request) {
	processed, errs := h.processor.ProcessPending(r.Context(), 0)
	resp := processResponse{Processed: processed}
	for _, err := range errs {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps the engine's error taxonomy onto HTTP status
// codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, e.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, e.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, e.ErrDuplicateReference):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, e.ErrInvalidBookingState), errors.Is(err, e.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, e.ErrNoActiveCompanies):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, e.ErrTransientDB):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
