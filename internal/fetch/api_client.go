package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/reliability/circuitbreaker"
	"github.com/formwatch/formwatch/internal/registry"
)

// apiDocument is the wire shape agency form APIs return
type apiDocument struct {
	FormID         string `json:"formId"`
	Title          string `json:"title"`
	Version        string `json:"version"`
	EffectiveDate  string `json:"effectiveDate"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	ContentType    string `json:"contentType"`
	Content        string `json:"content"` // base64
}

// APIClient retrieves documents from configured agency APIs. Each source
// runs behind its own circuit breaker so repeated failures fast-fail
// instead of burning a sweep's time budget.
type APIClient struct {
	httpClient *http.Client
	breakers   *circuitbreaker.Group
	logger     *slog.Logger
}

// NewAPIClient creates an API client with a bounded request timeout
func NewAPIClient(timeout time.Duration, logger *slog.Logger) *APIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		httpClient: &http.Client{Timeout: timeout},
		breakers:   circuitbreaker.NewGroup(5, 2, time.Minute),
		logger:     logger,
	}
}

// Fetch retrieves one document from the source's API endpoint. Network
// failures and 5xx responses come back as TransientFetchError; a 4xx or a
// malformed body is permanent and must not be retried.
func (c *APIClient) Fetch(ctx context.Context, src registry.SourceConfig, formID string) (Result, error) {
	breaker := c.breakers.For(src.Jurisdiction + "/" + src.Agency)
	if !breaker.Allow() {
		return Result{}, &domain.TransientFetchError{Source: SourceAPI, Err: circuitbreaker.ErrOpen}
	}

	endpoint, err := url.JoinPath(src.APIEndpoint, url.PathEscape(formID))
	if err != nil {
		return Result{}, fmt.Errorf("build api url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		breaker.RecordFailure()
		if isNetworkError(err) {
			return Result{}, &domain.TransientFetchError{Source: SourceAPI, Err: err}
		}
		return Result{}, fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		breaker.RecordFailure()
		return Result{}, &domain.TransientFetchError{
			Source: SourceAPI,
			Err:    fmt.Errorf("api returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		breaker.RecordFailure()
		return Result{}, fmt.Errorf("api returned %d for %s", resp.StatusCode, formID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		breaker.RecordFailure()
		return Result{}, &domain.TransientFetchError{Source: SourceAPI, Err: err}
	}

	var doc apiDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		breaker.RecordFailure()
		return Result{}, fmt.Errorf("malformed api response: %w", err)
	}
	if doc.Version == "" || doc.Content == "" {
		breaker.RecordFailure()
		return Result{}, fmt.Errorf("api response missing version or content for %s", formID)
	}

	raw, err := base64.StdEncoding.DecodeString(doc.Content)
	if err != nil {
		breaker.RecordFailure()
		return Result{}, fmt.Errorf("malformed api content: %w", err)
	}

	breaker.RecordSuccess()
	return buildResult(src, formID, doc, raw)
}

func buildResult(src registry.SourceConfig, formID string, doc apiDocument, raw []byte) (Result, error) {
	key := domain.DocumentKey{FormID: formID, Jurisdiction: src.Jurisdiction, Agency: src.Agency}

	effective, err := time.Parse("2006-01-02", doc.EffectiveDate)
	if err != nil {
		return Result{}, fmt.Errorf("malformed effectiveDate %q: %w", doc.EffectiveDate, err)
	}
	var expiration *time.Time
	if doc.ExpirationDate != "" {
		t, err := time.Parse("2006-01-02", doc.ExpirationDate)
		if err != nil {
			return Result{}, fmt.Errorf("malformed expirationDate %q: %w", doc.ExpirationDate, err)
		}
		expiration = &t
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	now := time.Now().UTC()

	return Result{
		Source: SourceAPI,
		Metadata: domain.DocumentMetadata{
			Key:            key,
			Title:          doc.Title,
			CurrentVersion: doc.Version,
			DocumentHash:   HashContent(raw),
			LastUpdated:    now,
			LastChecked:    now,
			EffectiveDate:  effective,
			ExpirationDate: expiration,
			IsActive:       true,
		},
		Content: domain.DocumentContent{
			Key:         key,
			ContentType: contentType,
			Body:        raw,
			FetchedAt:   now,
		},
	}, nil
}

const maxDocumentBytes = 32 << 20

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
