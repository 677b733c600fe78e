// Package exports produces XLSX roster exports and stores them in object storage.
package exports

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/queue"
	"github.com/blok13/clanportal/pkg/storage"
)

// Store persists export records.
type Store interface {
	CreateExport(ctx context.Context, eventID, requestedBy uuid.UUID) (*models.RosterExport, error)
	GetExport(ctx context.Context, id uuid.UUID) (*models.RosterExport, error)
	CompleteExport(ctx context.Context, id uuid.UUID, objectKey string) error
	FailExport(ctx context.Context, id uuid.UUID, reason string) error
}

// FeedLoader reads an event's roster.
type FeedLoader interface {
	Load(ctx context.Context, eventID uuid.UUID) (*models.EventFeed, error)
}

// ObjectStore uploads export files and signs download links.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Enqueuer hands an export to the worker.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, exportID, eventID uuid.UUID) (*queue.Job, error)
}

// Status is an export with its download link once completed.
type Status struct {
	models.RosterExport
	DownloadURL string `json:"download_url,omitempty"`
}

// Service requests, builds and serves roster exports.
type Service struct {
	store   Store
	feeds   FeedLoader
	objects ObjectStore
	jobs    Enqueuer
	logger  *zap.Logger
}

// NewService creates an export service. objects and jobs may be nil on processes that do not need them.
func NewService(store Store, feeds FeedLoader, objects ObjectStore, jobs Enqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, feeds: feeds, objects: objects, jobs: jobs, logger: logger}
}

// Request records a pending export and enqueues it.
func (s *Service) Request(ctx context.Context, eventID, requestedBy uuid.UUID) (*models.RosterExport, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("export queue not configured")
	}
	exp, err := s.store.CreateExport(ctx, eventID, requestedBy)
	if err != nil {
		return nil, err
	}
	if _, err := s.jobs.EnqueueExport(ctx, exp.ID, eventID); err != nil {
		if ferr := s.store.FailExport(ctx, exp.ID, "enqueue failed"); ferr != nil {
			s.logger.Warn("mark export failed", zap.Error(ferr), zap.String("export_id", exp.ID.String()))
		}
		return nil, fmt.Errorf("enqueue export: %w", err)
	}
	s.logger.Info("roster export requested", zap.String("export_id", exp.ID.String()), zap.String("event_id", eventID.String()))
	return exp, nil
}

// Status returns the export, with a presigned download URL when it has completed.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*Status, error) {
	exp, err := s.store.GetExport(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &Status{RosterExport: *exp}
	if exp.Status == models.ExportCompleted && exp.ObjectKey != "" && s.objects != nil {
		url, err := s.objects.PresignGet(ctx, exp.ObjectKey)
		if err != nil {
			return nil, err
		}
		st.DownloadURL = url
	}
	return st, nil
}

// Run builds and uploads one export. A completed export is left alone. An export whose event
// is gone, or that has no object storage to go to, is marked failed and not retried; other errors
// are returned for retry.
func (s *Service) Run(ctx context.Context, exportID, eventID uuid.UUID) error {
	exp, err := s.store.GetExport(ctx, exportID)
	if err != nil {
		if models.IsNotFound(err) {
			s.logger.Warn("export record missing, skipping", zap.String("export_id", exportID.String()))
			return nil
		}
		return err
	}
	if exp.Status == models.ExportCompleted {
		return nil
	}
	if s.objects == nil {
		s.logger.Warn("object storage not configured, failing export", zap.String("export_id", exportID.String()))
		return s.store.FailExport(ctx, exportID, "object storage not configured")
	}

	feed, err := s.feeds.Load(ctx, eventID)
	if err != nil {
		if models.IsNotFound(err) {
			return s.store.FailExport(ctx, exportID, "event not found")
		}
		return fmt.Errorf("load roster: %w", err)
	}
	data, err := BuildWorkbook(feed)
	if err != nil {
		return err
	}
	key := storage.ExportKey(eventID.String(), exportID.String())
	if err := s.objects.Upload(ctx, key, storage.ContentTypeXLSX, bytes.NewReader(data), int64(len(data))); err != nil {
		return err
	}
	if err := s.store.CompleteExport(ctx, exportID, key); err != nil {
		return err
	}
	s.logger.Info("roster export completed",
		zap.String("export_id", exportID.String()),
		zap.String("key", key),
		zap.Int("participants", len(feed.Participants)))
	return nil
}
