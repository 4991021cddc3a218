package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/reliability/retry"
	"github.com/formwatch/formwatch/internal/registry"
)

// Pipeline retrieves one document through the ordered fallback chain.
// Stateless per call: it never writes to the store, the caller owns
// persistence and caching.
type Pipeline struct {
	registry *registry.Registry
	api      *APIClient
	scrapers *ScraperRegistry
	archive  Archive
	limits   *limiters
	retryCfg *retry.Config
	logger   *slog.Logger
}

// NewPipeline wires the pipeline from an immutable source registry.
// ratePerSec is the fallback outbound budget for agencies that do not
// declare their own rate.
func NewPipeline(reg *registry.Registry, api *APIClient, scrapers *ScraperRegistry, archive Archive, ratePerSec float64, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		registry: reg,
		api:      api,
		scrapers: scrapers,
		archive:  archive,
		limits:   newLimiters(ratePerSec),
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

// SetRetryConfig overrides the transient-retry strategy, mainly for tests
func (p *Pipeline) SetRetryConfig(cfg *retry.Config) { p.retryCfg = cfg }

// FetchDocument retrieves one document, attempting in strict order:
// API (when configured), agency scraper, then last-known archive. API and
// scrape failures are soft; only an empty archive fails the call.
func (p *Pipeline) FetchDocument(ctx context.Context, formID, jurisdiction, agency string) (Result, error) {
	src, err := p.registry.Lookup(jurisdiction, agency)
	if err != nil {
		return Result{}, err
	}

	log := p.logger.With(
		slog.String("form_id", formID),
		slog.String("jurisdiction", jurisdiction),
		slog.String("agency", agency),
	)

	if src.APIEndpoint != "" {
		result, err := retry.Do(ctx, p.retryCfg, log, "api fetch", domain.IsTransient,
			func(ctx context.Context) (Result, error) {
				if err := p.limits.wait(ctx, src); err != nil {
					return Result{}, err
				}
				return p.api.Fetch(ctx, src, formID)
			})
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("api retrieval failed, falling back to scrape", slog.String("error", err.Error()))
	}

	scraper := p.scrapers.For(src.Agency)
	result, err := retry.Do(ctx, p.retryCfg, log, "scrape fetch", domain.IsTransient,
		func(ctx context.Context) (Result, error) {
			if err := p.limits.wait(ctx, src); err != nil {
				return Result{}, err
			}
			return scraper.ScrapeDocument(ctx, src, formID)
		})
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	log.Warn("scrape retrieval failed, falling back to archive", slog.String("error", err.Error()))

	return p.fromArchive(ctx, formID, jurisdiction, agency, log)
}

func (p *Pipeline) fromArchive(ctx context.Context, formID, jurisdiction, agency string, log *slog.Logger) (Result, error) {
	key := domain.DocumentKey{FormID: formID, Jurisdiction: jurisdiction, Agency: agency}
	meta, content, err := p.archive.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("%s: %w", key, domain.ErrDocumentUnavailable)
		}
		return Result{}, fmt.Errorf("archive lookup for %s: %w", key, err)
	}

	log.Info("serving document from archive", slog.Time("last_updated", meta.LastUpdated))
	archived := *meta
	archived.FromArchive = true
	archived.LastChecked = time.Now().UTC()

	result := Result{Source: SourceArchive, Metadata: archived}
	if content != nil {
		result.Content = *content
	}
	return result, nil
}
