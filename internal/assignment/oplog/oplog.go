// Package oplog is the structured operational log sink of the
// assignment engine. Every entry goes to the zap logger and, best
// effort, to the activity_logs table so diagnostics can surface recent
// queue activity. Critical entries additionally raise an operator
// alert.
package oplog

import (
	"context"

	"github.com/ridelink/transferhub/internal/assignment/db"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"go.uber.org/zap"
)

// Log categories. One per owning subsystem.
const (
	CategoryQueue   = "queue"
	CategoryOrder   = "order"
	CategoryBooking = "booking"
)

// Severities persisted alongside each entry.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Alerter receives operator-visible alerts for critical entries.
type Alerter interface {
	Alert(category, message string)
}

// Sink writes operational log entries. A nil alerter disables alerts.
type Sink struct {
	repo    *db.Repository
	logger  *zap.Logger
	alerter Alerter
}

func NewSink(repo *db.Repository, logger *zap.Logger, alerter Alerter) *Sink {
	return &Sink{
		repo:    repo,
		logger:  logger.Named("oplog"),
		alerter: alerter,
	}
}

func (s *Sink) Info(ctx context.Context, category, reference, message string, fields ...zap.Field) {
	s.logger.Info(message, s.tag(category, reference, fields)...)
	s.persist(ctx, category, SeverityInfo, reference, message)
}

func (s *Sink) Warn(ctx context.Context, category, reference, message string, fields ...zap.Field) {
	s.logger.Warn(message, s.tag(category, reference, fields)...)
	s.persist(ctx, category, SeverityWarning, reference, message)
}

func (s *Sink) Error(ctx context.Context, category, reference, message string, fields ...zap.Field) {
	s.logger.Error(message, s.tag(category, reference, fields)...)
	s.persist(ctx, category, SeverityError, reference, message)
}

// Critical logs, persists and alerts. Reserved for conditions that need
// an operator, such as repeated transient failures or unrepairable
// queue state.
func (s *Sink) Critical(ctx context.Context, category, reference, message string, fields ...zap.Field) {
	s.logger.Error(message, s.tag(category, reference, fields)...)
	s.persist(ctx, category, SeverityCritical, reference, message)
	if s.alerter != nil {
		s.alerter.Alert(category, message)
	}
}

func (s *Sink) tag(category, reference string, fields []zap.Field) []zap.Field {
	tagged := make([]zap.Field, 0, len(fields)+2)
	tagged = append(tagged, zap.String("category", category))
	if reference != "" {
		tagged = append(tagged, zap.String("reference", reference))
	}
	return append(tagged, fields...)
}

// persist writes the entry to the activity log. Failures are logged and
// swallowed: losing a log row must never fail the operation that
// produced it.
func (s *Sink) persist(ctx context.Context, category, severity, reference, message string) {
	if s.repo == nil {
		return
	}
	entry := &models.ActivityLog{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Reference: reference,
	}
	if err := s.repo.InsertActivityLog(ctx, entry); err != nil {
		s.logger.Error("Failed to persist activity log entry", zap.Error(err))
	}
}
