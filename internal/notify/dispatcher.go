// Package notify fans change and compliance events out to registered
// webhooks and internal channels. Webhook delivery is at-least-once with
// bounded retry and is fully decoupled from the triggering operation: a
// slow subscriber can never stall a sweep.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/observability/metrics"
	"github.com/formwatch/formwatch/internal/reliability/retry"
)

// Payload is the webhook delivery body
type Payload struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ComplianceEvent reports a compliance status transition for an owner
type ComplianceEvent struct {
	OwnerKind domain.ChecklistOwnerKind `json:"ownerKind"`
	OwnerID   string                    `json:"ownerId"`
	Result    domain.ComplianceResult   `json:"result"`
}

type delivery struct {
	sub     *domain.WebhookSubscription
	payload Payload
}

// Dispatcher delivers events on its own bounded worker pool
type Dispatcher struct {
	webhooks       domain.WebhookRepository
	channels       []Channel
	client         *http.Client
	jobs           chan delivery
	wg             sync.WaitGroup
	attemptTimeout time.Duration
	retryCfg       *retry.Config
	logger         *slog.Logger

	closeOnce sync.Once
}

// NewDispatcher starts workers webhook delivery goroutines. Call Close to
// drain and stop them.
func NewDispatcher(webhooks domain.WebhookRepository, workers int, attemptTimeout time.Duration, maxAttempts int, logger *slog.Logger, channels ...Channel) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	d := &Dispatcher{
		webhooks: webhooks,
		channels: channels,
		client:   &http.Client{Timeout: attemptTimeout},
		jobs:     make(chan delivery, 256),
		retryCfg: &retry.Config{
			MaxAttempts:       maxAttempts,
			InitialBackoff:    time.Second,
			MaxBackoff:        time.Minute,
			BackoffMultiplier: 2.0,
		},
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Close stops accepting deliveries and waits for in-flight ones
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

// NotifyChange fans a finished sweep report out once, at sweep end. The
// report carries every outcome; subscribers digest the batch instead of a
// per-document flood.
func (d *Dispatcher) NotifyChange(ctx context.Context, report *domain.SweepReport) {
	changed := report.Changed()
	d.fanOut(ctx, domain.EventSweepCompleted, report)
	if len(changed) > 0 {
		d.fanOut(ctx, domain.EventDocumentChanged, changed)
	}
}

// NotifyComplianceEvent fans a compliance transition out
func (d *Dispatcher) NotifyComplianceEvent(ctx context.Context, event ComplianceEvent) {
	d.fanOut(ctx, domain.EventComplianceChanged, event)
}

func (d *Dispatcher) fanOut(ctx context.Context, event string, data any) {
	for _, ch := range d.channels {
		ch.Notify(ctx, event, data)
	}

	subs, err := d.webhooks.ListByEvent(ctx, event)
	if err != nil {
		d.logger.Error("list webhook subscriptions",
			slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	payload := Payload{Event: event, Data: data, Timestamp: time.Now().UTC()}
	for _, sub := range subs {
		select {
		case d.jobs <- delivery{sub: sub, payload: payload}:
		default:
			// The queue bound protects sweeps; losing a convenience
			// signal is preferable to blocking.
			metrics.ObserveWebhookDelivery("dropped")
			d.logger.Error("webhook queue full, dropping delivery",
				slog.String("event", event), slog.String("url", sub.URL))
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	log := d.logger.With(
		slog.String("event", job.payload.Event),
		slog.String("webhook_id", job.sub.ID),
		slog.String("url", job.sub.URL),
	)

	body, err := json.Marshal(job.payload)
	if err != nil {
		log.Error("marshal webhook payload", slog.String("error", err.Error()))
		return
	}
	signature := Sign(job.sub.Secret, body)

	_, err = retry.Do(context.Background(), d.retryCfg, log, "webhook delivery", nil,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.post(ctx, job.sub.URL, body, signature)
		})
	if err != nil {
		metrics.ObserveWebhookDelivery("failed")
		log.Error("webhook delivery dropped after retries", slog.String("error", err.Error()))
		return
	}
	metrics.ObserveWebhookDelivery("delivered")
	log.Debug("webhook delivered")
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
