// Package fetch retrieves authoritative form documents through an ordered
// fallback chain: agency API, web scrape, then last-known archive.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/time/rate"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/registry"
)

// Source labels for results and logs
const (
	SourceAPI     = "api"
	SourceScrape  = "scrape"
	SourceArchive = "archive"
)

// Result is a successful retrieval from any source in the chain
type Result struct {
	Metadata domain.DocumentMetadata
	Content  domain.DocumentContent
	Source   string
}

// Archive is the read side of the Document Store used as the last
// fallback. The pipeline never writes; persistence is the caller's job.
type Archive interface {
	Get(ctx context.Context, key domain.DocumentKey) (*domain.DocumentMetadata, *domain.DocumentContent, error)
}

// HashContent digests document bytes for change detection
func HashContent(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// limiters hands out one outbound rate limiter per source so sweeps do not
// overwhelm agency endpoints.
type limiters struct {
	mu       sync.Mutex
	byAgency map[string]*rate.Limiter
	fallback rate.Limit
}

func newLimiters(defaultPerSec float64) *limiters {
	if defaultPerSec <= 0 {
		defaultPerSec = 1
	}
	return &limiters{
		byAgency: map[string]*rate.Limiter{},
		fallback: rate.Limit(defaultPerSec),
	}
}

// wait blocks until the source's limiter grants a slot or ctx is done
func (l *limiters) wait(ctx context.Context, src registry.SourceConfig) error {
	l.mu.Lock()
	key := src.Jurisdiction + "/" + src.Agency
	lim, ok := l.byAgency[key]
	if !ok {
		perSec := rate.Limit(src.RatePerSec)
		if perSec <= 0 {
			perSec = l.fallback
		}
		lim = rate.NewLimiter(perSec, 1)
		l.byAgency[key] = lim
	}
	l.mu.Unlock()
	return lim.Wait(ctx)
}
