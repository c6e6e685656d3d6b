// Package fetch retrieves complete GLPI result sets through successive
// windowed search calls.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"techrank/internal/glpi"
	"techrank/internal/telemetry"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Searcher issues one windowed search. *glpi.Session satisfies it.
type Searcher interface {
	Search(ctx context.Context, req glpi.SearchRequest) (*glpi.SearchResponse, error)
}

// Config bounds paging, retries and deadlines.
type Config struct {
	// PageSize is the number of rows requested per call.
	PageSize int
	// MaxRows is the safety ceiling for a single fetch.
	MaxRows int
	// MaxRetries bounds retries of one page after a transient failure.
	MaxRetries int
	// RetryInitial and RetryMax shape the exponential backoff.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// Timeout is the overall deadline of one fetch, across all pages.
	Timeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:     1000,
		MaxRows:      50000,
		MaxRetries:   3,
		RetryInitial: 500 * time.Millisecond,
		RetryMax:     5 * time.Second,
		Timeout:      2 * time.Minute,
	}
}

// Query is the filter of one fetch.
type Query struct {
	Resource  string
	Criteria  []glpi.Criterion
	Fields    []string
	SortField string
	// Label identifies the query in logs and errors, e.g. "technician:12".
	Label string
}

// Result is a fully retrieved result set.
type Result struct {
	Rows []glpi.Row
	// Pages is the number of successful calls needed.
	Pages int
	// Total is the row count reported by the upstream, when available.
	Total int
	// Truncated is set when MaxRows stopped the fetch early.
	Truncated bool
}

// Fetcher runs paginated fetches.
type Fetcher struct {
	cfg     Config
	metrics *telemetry.Recorder
}

// New creates a Fetcher; zero config fields fall back to DefaultConfig.
func New(cfg Config, metrics *telemetry.Recorder) *Fetcher {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = def.MaxRows
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Fetcher{cfg: cfg, metrics: metrics}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// Fetch retrieves every row matching q. Either the complete set comes back
// or a *PartialFetchError does; an incomplete set is never returned as
// success. Hitting MaxRows is the one exception and is flagged Truncated.
func (f *Fetcher) Fetch(ctx context.Context, s Searcher, q Query) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	res := &Result{Total: -1}
	start := 0

	for {
		size := f.cfg.PageSize
		if remaining := f.cfg.MaxRows - start; remaining < size {
			size = remaining
		}

		req := glpi.SearchRequest{
			Resource:  q.Resource,
			Criteria:  q.Criteria,
			Fields:    q.Fields,
			SortField: q.SortField,
			Window:    glpi.Window{Start: start, Size: size},
		}

		page, err := f.fetchPage(ctx, s, req, q.Label)
		if err != nil {
			f.metrics.FetchFailed()
			return nil, &PartialFetchError{
				Label:   q.Label,
				Page:    res.Pages + 1,
				Fetched: len(res.Rows),
				Err:     err,
			}
		}

		res.Pages++
		f.metrics.PageFetched()
		if page.TotalCount > 0 || res.Total < 0 {
			res.Total = page.TotalCount
		}
		if len(page.Data) == 0 && res.Total > start {
			f.metrics.FetchFailed()
			return nil, &PartialFetchError{Label: q.Label, Page: res.Pages, Fetched: len(res.Rows), Err: ErrShortRead}
		}
		res.Rows = append(res.Rows, page.Data...)
		start += len(page.Data)

		if len(page.Data) == 0 {
			break
		}
		if res.Total > 0 && start >= res.Total {
			break
		}
		// A short page ends the data unless the upstream reports more rows,
		// which happens when its own per-call cap is below PageSize.
		if len(page.Data) < size && start >= res.Total {
			break
		}
		if start >= f.cfg.MaxRows {
			if res.Total == 0 || res.Total > start {
				res.Truncated = true
				f.metrics.FetchTruncated()
				log.Warn().Str("query", q.Label).Int("rows", start).Int("total", res.Total).Msg("Fetch stopped at safety ceiling")
			}
			break
		}
	}

	if res.Total <= 0 {
		res.Total = len(res.Rows)
	}
	log.Debug().Str("query", q.Label).Int("rows", len(res.Rows)).Int("pages", res.Pages).Msg("Fetch complete")
	return res, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, s Searcher, req glpi.SearchRequest, label string) (*glpi.SearchResponse, error) {
	var page *glpi.SearchResponse
	attempt := 0

	op := func() error {
		attempt++
		resp, err := s.Search(ctx, req)
		if err == nil {
			page = resp
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("fetch deadline exceeded: %w", err))
		}
		if !glpi.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		f.metrics.PageRetried()
		log.Warn().Err(err).Str("query", label).Str("range", req.Window.Range()).
			Int("attempt", attempt).Dur("wait", wait).Msg("Transient upstream failure, retrying page")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.RetryInitial
	b.MaxInterval = f.cfg.RetryMax
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, glpi.ErrTimeout) {
			return nil, fmt.Errorf("fetch deadline exceeded after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return page, nil
}
