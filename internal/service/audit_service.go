package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-labs/token-api/internal/models"
	"github.com/halcyon-labs/token-api/internal/repository"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
	"github.com/halcyon-labs/token-api/pkg/export"
	"github.com/halcyon-labs/token-api/pkg/jobs"
)

// AuditService records token lifecycle events off the request path and
// serves administrative queries and exports over the trail.
type AuditService struct {
	store  repository.AuditStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// AuditServiceConfig sizes the background writer.
type AuditServiceConfig struct {
	Workers    int
	BufferSize int
}

// NewAuditService builds the service and its write queue. Start must be
// called before events are recorded.
func NewAuditService(store repository.AuditStore, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{store: store, logger: logger}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return s
}

// Start boots the background writer.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the writer.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an event without blocking protocol decisions on audit
// persistence. Failures are logged, never propagated.
func (s *AuditService) Record(event *models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: event.Action, Payload: event}); err != nil {
		s.logger.Warn("audit event dropped", zap.String("action", event.Action), zap.Error(err))
	}
}

// List returns audit events matching the filter.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	events, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "audit listing failed")
	}
	return events, nil
}

// Export renders matching events as csv or pdf bytes with a content type.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter, format string) ([]byte, string, error) {
	events, err := s.List(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	dataset := buildAuditDataset(events)
	switch format {
	case "pdf":
		body, err := export.PDF(dataset, "token audit trail")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf export failed")
		}
		return body, "application/pdf", nil
	case "", "csv":
		body, err := export.CSV(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv export failed")
		}
		return body, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.AuditEvent)
	if !ok {
		s.logger.Error("audit job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.store.Insert(ctx, event)
}

func buildAuditDataset(events []models.AuditEvent) export.Dataset {
	headers := []string{"time", "action", "owner_id", "family_id", "detail", "ip", "user_agent"}
	rows := make([]map[string]string, 0, len(events))
	for _, e := range events {
		owner := ""
		if e.OwnerID != nil {
			owner = *e.OwnerID
		}
		rows = append(rows, map[string]string{
			"time":       e.CreatedAt.UTC().Format(time.RFC3339),
			"action":     e.Action,
			"owner_id":   owner,
			"family_id":  e.FamilyID,
			"detail":     e.Detail,
			"ip":         e.IPAddress,
			"user_agent": e.UserAgent,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
