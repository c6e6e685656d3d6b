// Package ranking assembles technician rankings: it opens an upstream
// session, loads the technician roster, evaluates every technician on a
// bounded worker pool and orders the results.
package ranking

import (
	"context"
	"errors"
	"time"

	"techrank/internal/cache"
	"techrank/internal/clock"
	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/stats"
	"techrank/internal/telemetry"
	"techrank/internal/tier"

	"github.com/rs/zerolog/log"
)

// ErrUnknownTechnician is returned when an id matches no active technician.
var ErrUnknownTechnician = errors.New("unknown technician")

// Session is an open upstream session.
type Session interface {
	fetch.Searcher
	Close(ctx context.Context)
}

// Upstream opens sessions. Use FromClient for a GLPI client.
type Upstream interface {
	Open(ctx context.Context) (Session, error)
}

type clientUpstream struct{ client *glpi.Client }

func (u clientUpstream) Open(ctx context.Context) (Session, error) {
	sess, err := u.client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// FromClient adapts a GLPI client to Upstream.
func FromClient(c *glpi.Client) Upstream { return clientUpstream{client: c} }

// Fetcher retrieves complete result sets. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, s fetch.Searcher, q fetch.Query) (*fetch.Result, error)
}

// TierResolver assigns tiers. *tier.Resolver satisfies it.
type TierResolver interface {
	Resolve(ctx context.Context, s fetch.Searcher, tech glpi.Technician) tier.Resolution
}

// Options configures an Engine. Zero durations and counts take defaults.
type Options struct {
	Upstream Upstream
	Fetcher  Fetcher
	Resolver TierResolver

	Fields   glpi.Fields
	Statuses stats.StatusTable
	// TechnicianProfile is the GLPI profile id that makes a user a
	// technician.
	TechnicianProfile string
	// Location interprets GLPI datetimes.
	Location *time.Location

	Workers int

	// ShortTTL applies to technicians whose tickets fit in one page,
	// LongTTL to those that needed several.
	ShortTTL time.Duration
	LongTTL  time.Duration
	// TierTTL bounds how long a tier resolution is reused.
	TierTTL time.Duration
	// RankingTTL bounds how long a complete ranking is served as is.
	RankingTTL time.Duration
	// StaleGrace is how long expired metrics remain usable as fallback.
	StaleGrace time.Duration

	Clock   clock.Clock
	Metrics *telemetry.Recorder
}

// Defaults for Options.
const (
	DefaultWorkers           = 8
	DefaultShortTTL          = 5 * time.Minute
	DefaultLongTTL           = 30 * time.Minute
	DefaultTierTTL           = time.Hour
	DefaultRankingTTL        = 2 * time.Minute
	DefaultStaleGrace        = 24 * time.Hour
	DefaultTechnicianProfile = "6"
)

// Engine computes rankings, technician metrics and status summaries.
// It is safe for concurrent use; each call opens its own session.
type Engine struct {
	upstream Upstream
	fetcher  Fetcher
	resolver TierResolver

	fields   glpi.Fields
	statuses stats.StatusTable
	profile  string
	loc      *time.Location
	workers  int

	shortTTL   time.Duration
	longTTL    time.Duration
	tierTTL    time.Duration
	rankingTTL time.Duration

	clock   clock.Clock
	metrics *telemetry.Recorder

	technicians *cache.Cache[stats.TechnicianMetrics]
	tiers       *cache.Cache[tier.Resolution]
	rankings    *cache.Cache[Ranking]
	summaries   *cache.Cache[Summary]
}

// New builds an Engine.
func New(opts Options) *Engine {
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(fetch.DefaultConfig(), opts.Metrics)
	}
	if opts.Resolver == nil {
		opts.Resolver = tier.NewResolver(tier.Options{Metrics: opts.Metrics})
	}
	if opts.Fields == (glpi.Fields{}) {
		opts.Fields = glpi.DefaultFields()
	}
	if opts.Statuses.Resolved == nil && opts.Statuses.Pending == nil {
		opts.Statuses = stats.DefaultStatusTable()
	}
	if opts.TechnicianProfile == "" {
		opts.TechnicianProfile = DefaultTechnicianProfile
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	orDefault := func(d, def time.Duration) time.Duration {
		if d <= 0 {
			return def
		}
		return d
	}
	opts.ShortTTL = orDefault(opts.ShortTTL, DefaultShortTTL)
	opts.LongTTL = orDefault(opts.LongTTL, DefaultLongTTL)
	opts.TierTTL = orDefault(opts.TierTTL, DefaultTierTTL)
	opts.RankingTTL = orDefault(opts.RankingTTL, DefaultRankingTTL)
	opts.StaleGrace = orDefault(opts.StaleGrace, DefaultStaleGrace)
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	cacheOpts := func(name string, grace time.Duration) cache.Options {
		return cache.Options{Name: name, StaleGrace: grace, Clock: opts.Clock, Metrics: opts.Metrics}
	}

	return &Engine{
		upstream:    opts.Upstream,
		fetcher:     opts.Fetcher,
		resolver:    opts.Resolver,
		fields:      opts.Fields,
		statuses:    opts.Statuses,
		profile:     opts.TechnicianProfile,
		loc:         opts.Location,
		workers:     opts.Workers,
		shortTTL:    opts.ShortTTL,
		longTTL:     opts.LongTTL,
		tierTTL:     opts.TierTTL,
		rankingTTL:  opts.RankingTTL,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		technicians: cache.New[stats.TechnicianMetrics](cacheOpts("technicians", opts.StaleGrace)),
		tiers:       cache.New[tier.Resolution](cacheOpts("tiers", opts.StaleGrace)),
		rankings:    cache.New[Ranking](cacheOpts("rankings", 0)),
		summaries:   cache.New[Summary](cacheOpts("summaries", 0)),
	}
}

// ClearCache drops every cached result, including stale fallbacks, and
// returns how many entries were removed.
func (e *Engine) ClearCache() int {
	n := e.technicians.Len() + e.tiers.Len() + e.rankings.Len() + e.summaries.Len()
	e.technicians.Clear()
	e.tiers.Clear()
	e.rankings.Clear()
	e.summaries.Clear()
	log.Info().Int("entries", n).Msg("Engine caches cleared")
	return n
}

func (e *Engine) open(ctx context.Context) (Session, error) {
	if e.upstream == nil {
		return nil, errors.New("no upstream configured")
	}
	return e.upstream.Open(ctx)
}
