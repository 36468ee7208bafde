// Package reporting implements the outbreak report workflow: create-or-update
// of reporters, patients and diseases, the report status gate, and read-side
// assembly of reports with their related records.
package reporting

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/encryption"
	"github.com/mesikahq/outbreak-exchange/internal/metrics"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// MaxPageSize caps ListReports.
const MaxPageSize = 20

type Service interface {
	UpsertReporter(ctx context.Context, principal model.Principal, id int64, patch model.ReporterPatch) (*model.Reporter, error)
	UpsertPatient(ctx context.Context, principal model.Principal, id int64, patch model.PatientPatch) (*model.Patient, error)
	UpsertDisease(ctx context.Context, principal model.Principal, id int64, patch model.DiseasePatch) (*model.Disease, error)

	CreateReport(ctx context.Context, principal model.Principal, patch model.ReportPatch) (*model.Report, error)
	UpdateReport(ctx context.Context, principal model.Principal, id int64, patch model.ReportPatch) (*model.Report, error)
	DeleteReport(ctx context.Context, principal model.Principal, id int64) error

	GetReport(ctx context.Context, id int64) (*model.ReportView, error)
	ListReports(ctx context.Context, offset, limit int) ([]model.ReportView, error)
	GetMostRecentSubmitted(ctx context.Context) (*model.ReportView, error)

	GetReporter(ctx context.Context, id int64) (*model.Reporter, error)
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	GetDisease(ctx context.Context, id int64) (*model.Disease, error)

	// GetHistory returns the audit events recorded for a report, newest first.
	// Deleted reports keep their history; ids that never held a report are
	// not found.
	GetHistory(ctx context.Context, id int64) ([]audit.AuditEvent, error)
}

type Option func(*service)

// WithClock replaces the wall clock used for stamps and derived ages.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) { s.metrics = m }
}

type service struct {
	store   store.Store
	encrypt encryption.Service
	audit   audit.Service
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(st store.Store, encrypt encryption.Service, auditService audit.Service, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:   st,
		encrypt: encrypt,
		audit:   auditService,
		logger:  logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) GetHistory(ctx context.Context, id int64) (events []audit.AuditEvent, err error) {
	defer s.observe("get_history", time.Now(), &err)

	events, err = s.audit.QueryEvents(ctx, map[string]interface{}{
		"resource":    string(model.KindReport),
		"resource_id": strconv.FormatInt(id, 10),
	}, 0, 100)
	if err != nil {
		s.logger.Error("Failed to query report history", zap.Int64("report_id", id), zap.Error(err))
		return nil, &StoreFailureError{Message: "audit trail unavailable", cause: err}
	}
	if len(events) > 0 {
		return events, nil
	}

	// No trail at all means the report never existed, unless the audit
	// backend lost its events.
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetReport(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(err, model.KindReport, id)
	}
	return events, nil
}

// record writes an audit event for a committed mutation. Audit failures are
// logged and never undo the mutation.
func (s *service) record(ctx context.Context, principal model.Principal, eventType audit.EventType, action string, kind model.Kind, id int64) {
	event := &audit.AuditEvent{
		EventType:   eventType,
		UserID:      strconv.FormatInt(principal.ID, 10),
		Username:    principal.Username,
		Action:      action,
		Resource:    string(kind),
		ResourceID:  strconv.FormatInt(id, 10),
		Status:      "success",
		Sensitivity: sensitivity(kind),
	}
	if info, ok := audit.RequestInfoFrom(ctx); ok {
		event.RequestID = info.RequestID
		event.IPAddress = info.IPAddress
		event.UserAgent = info.UserAgent
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to record audit event",
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
}

func sensitivity(kind model.Kind) string {
	if kind == model.KindPatient {
		return "PHI"
	}
	return "NORMAL"
}

// observe logs and counts the outcome of an operation. err points at the
// operation's named result.
func (s *service) observe(op string, start time.Time, err *error) {
	outcome := outcomeOf(*err)
	s.metrics.ObserveOperation(op, outcome, time.Since(start))

	switch outcome {
	case "ok":
	case "store_failure", "data_inconsistency":
		fields := []zap.Field{zap.String("operation", op), zap.Error(*err)}
		var sf *StoreFailureError
		if errors.As(*err, &sf) && sf.cause != nil {
			fields = append(fields, zap.NamedError("cause", sf.cause))
		}
		s.logger.Error("Operation failed", fields...)
	default:
		s.logger.Warn("Operation rejected", zap.String("operation", op), zap.Error(*err))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotModifiable):
		return "not_modifiable"
	case errors.Is(err, ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, ErrDataInconsistency):
		return "data_inconsistency"
	default:
		return "store_failure"
	}
}

func (s *service) sealPatient(p model.Patient) (model.Patient, error) {
	address, err := s.encrypt.Encrypt([]byte(p.PatientAddress))
	if err != nil {
		return p, err
	}
	p.PatientAddress = address
	if p.EmergencyContact != nil {
		contact, err := s.encrypt.Encrypt([]byte(*p.EmergencyContact))
		if err != nil {
			return p, err
		}
		p.EmergencyContact = &contact
	}
	p.Age = 0
	return p, nil
}

func (s *service) openPatient(p *model.Patient, now time.Time) error {
	address, err := s.encrypt.Decrypt(p.PatientAddress)
	if err != nil {
		return err
	}
	p.PatientAddress = string(address)
	if p.EmergencyContact != nil {
		contact, err := s.encrypt.Decrypt(*p.EmergencyContact)
		if err != nil {
			return err
		}
		c := string(contact)
		p.EmergencyContact = &c
	}
	p.Age = p.AgeAt(now)
	return nil
}
