package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/formwatch/formwatch/internal/detect"
	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/fetch"
	"github.com/formwatch/formwatch/internal/observability/metrics"
	"github.com/formwatch/formwatch/internal/registry"
)

// DocumentService runs the fetch -> detect -> store cycle for a single
// document. The scheduler drives it per sweep candidate; the refresh
// endpoint drives it synchronously.
type DocumentService struct {
	pipeline *fetch.Pipeline
	store    domain.DocumentRepository
	registry *registry.Registry
	logger   *slog.Logger
}

// NewDocumentService wires the service
func NewDocumentService(pipeline *fetch.Pipeline, store domain.DocumentRepository, reg *registry.Registry, logger *slog.Logger) *DocumentService {
	return &DocumentService{pipeline: pipeline, store: store, registry: reg, logger: logger}
}

// Get returns the stored document and metadata for a key
func (s *DocumentService) Get(ctx context.Context, key domain.DocumentKey) (*domain.DocumentMetadata, *domain.DocumentContent, error) {
	return s.store.Get(ctx, key)
}

// Refresh performs one full fetch/detect/store cycle and returns the
// change outcome with the stored metadata. An archive-served result only
// bumps last_checked: nothing new was observed upstream.
func (s *DocumentService) Refresh(ctx context.Context, key domain.DocumentKey) (domain.ChangeType, *domain.DocumentMetadata, error) {
	start := time.Now()
	result, err := s.pipeline.FetchDocument(ctx, key.FormID, key.Jurisdiction, key.Agency)
	if err != nil {
		metrics.ObserveFetch("none", "error", time.Since(start))
		return "", nil, err
	}
	metrics.ObserveFetch(result.Source, "success", time.Since(start))

	stored, _, err := s.store.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", nil, err
	}

	if result.Source == fetch.SourceArchive {
		if stored != nil {
			if err := s.store.MarkChecked(ctx, key, time.Now().UTC()); err != nil {
				return "", nil, err
			}
		}
		metrics.ObserveChangeOutcome(string(domain.ChangeNone))
		return domain.ChangeNone, &result.Metadata, nil
	}

	s.enrich(&result.Metadata)
	outcome := detect.Detect(stored, result.Metadata)
	metrics.ObserveChangeOutcome(string(outcome))

	content := &result.Content
	if outcome == domain.ChangeNone {
		content = nil
	}
	updated, err := s.store.Upsert(ctx, result.Metadata, content, outcome)
	if err != nil {
		return "", nil, err
	}

	if outcome != domain.ChangeNone {
		s.logger.Info("document updated",
			slog.String("key", key.String()),
			slog.String("outcome", string(outcome)),
			slog.String("version", updated.CurrentVersion),
		)
	}
	return outcome, updated, nil
}

// enrich fills in registry-known fields the retrieval sources do not
// carry, like form type and sweep priority.
func (s *DocumentService) enrich(meta *domain.DocumentMetadata) {
	info, err := s.registry.FormInfo(meta.Key)
	if err != nil {
		return
	}
	if meta.FormType == "" {
		meta.FormType = info.Type
	}
	if meta.Title == "" {
		meta.Title = info.Title
	}
	if meta.Priority == 0 {
		meta.Priority = info.Priority
	}
}
