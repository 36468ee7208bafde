package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventAccess EventType = "ACCESS"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
	EventLogin  EventType = "LOGIN"
)

type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp" bson:"timestamp"`
	EventType   EventType              `json:"event_type" bson:"event_type"`
	UserID      string                 `json:"user_id" bson:"user_id"`
	Username    string                 `json:"username,omitempty" bson:"username,omitempty"`
	Action      string                 `json:"action" bson:"action"`
	Resource    string                 `json:"resource" bson:"resource"`
	ResourceID  string                 `json:"resource_id" bson:"resource_id"`
	IPAddress   string                 `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	RequestID   string                 `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Status      string                 `json:"status" bson:"status"`
	Details     map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	Sensitivity string                 `json:"sensitivity" bson:"sensitivity"`
}

type Service interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
	// QueryEvents matches filters field by field and returns events newest first.
	QueryEvents(ctx context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error)
}

// backend is where events are indexed and searched.
type backend interface {
	index(ctx context.Context, event *AuditEvent) error
	search(ctx context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error)
}

type service struct {
	backend backend
	logger  *logrus.Logger
	now     func() time.Time
}

func newService(b backend) *service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	return &service{
		backend: b,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *service) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	if err := s.backend.index(ctx, event); err != nil {
		s.logger.WithError(err).Error("Failed to index audit event")
		return err
	}

	// Also log to system logger for redundancy
	s.logger.WithFields(logrus.Fields{
		"event_type":  event.EventType,
		"user_id":     event.UserID,
		"action":      event.Action,
		"resource":    event.Resource,
		"resource_id": event.ResourceID,
		"ip_address":  event.IPAddress,
		"request_id":  event.RequestID,
		"status":      event.Status,
		"sensitivity": event.Sensitivity,
	}).Info("Audit event logged")

	return nil
}

func (s *service) QueryEvents(ctx context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error) {
	if size <= 0 {
		size = 50
	}
	if from < 0 {
		from = 0
	}
	return s.backend.search(ctx, filters, from, size)
}

type requestInfoKey struct{}

// RequestInfo is the request metadata copied onto audit events.
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
