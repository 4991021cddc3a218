// Package worker runs the scheduled re-verification sweeps over the
// tracked document set.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/observability/metrics"
	"github.com/formwatch/formwatch/internal/registry"
	"github.com/formwatch/formwatch/pkg/config"
)

// highPriorityFloor is the cutoff for the daily sweep's candidate set
const highPriorityFloor = 8

// Refresher runs one fetch/detect/store cycle for a document
type Refresher interface {
	Refresh(ctx context.Context, key domain.DocumentKey) (domain.ChangeType, *domain.DocumentMetadata, error)
}

// Reporter consumes the sweep report once, at sweep end
type Reporter interface {
	NotifyChange(ctx context.Context, report *domain.SweepReport)
}

// GuardLock is an optional cross-instance lock for sweep job classes.
// With a single scheduling authority it stays nil; multi-instance
// deployments back it with Redis SetNX.
type GuardLock interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// SweepWorker drives the daily/monthly/quarterly/annual sweeps. Each job
// class has an in-process guard: a re-entrant trigger while the class is
// already running is dropped, never queued.
type SweepWorker struct {
	store       domain.DocumentRepository
	refresher   Refresher
	reporter    Reporter
	registry    *registry.Registry
	guard       GuardLock
	concurrency int
	intervals   config.SweepIntervals
	logger      *slog.Logger

	running map[domain.JobClass]*atomic.Bool
}

// NewSweepWorker creates the worker. guard may be nil.
func NewSweepWorker(store domain.DocumentRepository, refresher Refresher, reporter Reporter, reg *registry.Registry, guard GuardLock, concurrency int, intervals config.SweepIntervals, logger *slog.Logger) *SweepWorker {
	if concurrency < 1 {
		concurrency = 8
	}
	if concurrency > 16 {
		concurrency = 16
	}
	running := map[domain.JobClass]*atomic.Bool{}
	for _, class := range []domain.JobClass{domain.SweepDaily, domain.SweepMonthly, domain.SweepQuarterly, domain.SweepAnnual} {
		running[class] = &atomic.Bool{}
	}
	return &SweepWorker{
		store:       store,
		refresher:   refresher,
		reporter:    reporter,
		registry:    reg,
		guard:       guard,
		concurrency: concurrency,
		intervals:   intervals,
		logger:      logger,
		running:     running,
	}
}

// Start launches one ticker loop per job class and blocks until ctx ends
func (w *SweepWorker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	schedule := map[domain.JobClass]time.Duration{
		domain.SweepDaily:     w.intervals.Daily,
		domain.SweepMonthly:   w.intervals.Monthly,
		domain.SweepQuarterly: w.intervals.Quarterly,
		domain.SweepAnnual:    w.intervals.Annual,
	}

	w.logger.Info("sweep worker started", slog.Int("concurrency", w.concurrency))
	for class, interval := range schedule {
		if interval <= 0 {
			continue
		}
		wg.Add(1)
		go func(class domain.JobClass, interval time.Duration) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					w.RunSweep(ctx, class)
				}
			}
		}(class, interval)
	}
	wg.Wait()
	w.logger.Info("sweep worker stopped")
}

// RunSweep executes one sweep of the given job class. A sweep already
// running for the class causes an immediate skip. Individual document
// failures are recorded in the report and never abort the sweep.
func (w *SweepWorker) RunSweep(ctx context.Context, class domain.JobClass) *domain.SweepReport {
	guard := w.running[class]
	if !guard.CompareAndSwap(false, true) {
		w.logger.Warn("sweep already running, dropping trigger", slog.String("class", string(class)))
		metrics.ObserveSweep(string(class), "skipped", 0)
		return nil
	}
	defer guard.Store(false)

	if w.guard != nil {
		name := "sweep:" + string(class)
		ok, err := w.guard.AcquireLock(ctx, name, time.Hour)
		if err != nil {
			w.logger.Error("sweep lock error", slog.String("class", string(class)), slog.String("error", err.Error()))
		} else if !ok {
			w.logger.Info("sweep held by another instance, skipping", slog.String("class", string(class)))
			metrics.ObserveSweep(string(class), "skipped", 0)
			return nil
		} else {
			defer w.guard.ReleaseLock(ctx, name)
		}
	}

	log := w.logger.With(slog.String("class", string(class)))
	report := &domain.SweepReport{Class: class, StartedAt: time.Now().UTC()}

	candidates, err := w.candidates(ctx, class)
	if err != nil {
		log.Error("candidate selection failed", slog.String("error", err.Error()))
		metrics.ObserveSweep(string(class), "error", 0)
		return nil
	}
	log.Info("sweep started", slog.Int("candidates", len(candidates)))

	var mu sync.Mutex
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, key := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(key domain.DocumentKey) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := domain.DocumentOutcome{Key: key}
			result, _, err := w.refresher.Refresh(ctx, key)
			if err != nil {
				outcome.Err = err.Error()
				log.Error("document sweep failed",
					slog.String("key", key.String()),
					slog.String("error", err.Error()),
				)
			} else {
				outcome.Outcome = result
			}

			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	metrics.ObserveSweep(string(class), "completed", report.FinishedAt.Sub(report.StartedAt))
	log.Info("sweep finished",
		slog.Int("documents", len(report.Outcomes)),
		slog.Int("changed", len(report.Changed())),
		slog.Int("errors", report.ErrorCount()),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if w.reporter != nil {
		w.reporter.NotifyChange(ctx, report)
	}
	return report
}

// candidates selects the document set per job class: high-priority for
// daily, all active for monthly, tax forms for quarterly, and the full
// registry for annual so never-fetched forms enter tracking.
func (w *SweepWorker) candidates(ctx context.Context, class domain.JobClass) ([]domain.DocumentKey, error) {
	switch class {
	case domain.SweepDaily:
		return w.storedKeys(ctx, domain.ListFilter{MinPriority: highPriorityFloor})
	case domain.SweepQuarterly:
		return w.storedKeys(ctx, domain.ListFilter{FormType: domain.FormTypeTax})
	case domain.SweepAnnual:
		var keys []domain.DocumentKey
		for _, src := range w.registry.All() {
			for _, form := range src.Forms {
				keys = append(keys, domain.DocumentKey{
					FormID:       form.ID,
					Jurisdiction: src.Jurisdiction,
					Agency:       src.Agency,
				})
			}
		}
		return keys, nil
	default:
		return w.storedKeys(ctx, domain.ListFilter{})
	}
}

func (w *SweepWorker) storedKeys(ctx context.Context, filter domain.ListFilter) ([]domain.DocumentKey, error) {
	docs, err := w.store.ListActive(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter == (domain.ListFilter{}) {
		metrics.SetTrackedDocuments(len(docs))
	}
	keys := make([]domain.DocumentKey, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, doc.Key)
	}
	return keys, nil
}
