package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"techrank/internal/glpi"
	"techrank/internal/tier"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func rankingKey(f Filter) string { return "ranking:" + f.window() }

// outcome is what one worker produced for one technician.
type outcome struct {
	entry    *Entry
	warnings []Warning
	fatal    error
}

// Ranking returns technicians ordered by ticket volume. Technician-scoped
// failures degrade the result (see Ranking.Warnings); authentication and
// roster failures are returned as errors.
func (e *Engine) Ranking(ctx context.Context, f Filter) (*Ranking, error) {
	if f.Tier != 0 && !f.Tier.Valid() {
		return nil, fmt.Errorf("invalid tier filter %d", int(f.Tier))
	}

	key := rankingKey(f)
	if cached, ok := e.rankings.Get(key); ok {
		e.metrics.RankingRun("cached", 0)
		cached.Cached = true
		return view(&cached, f), nil
	}

	start := time.Now()
	r, err := e.run(ctx, f)
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.RankingRun("failed", elapsed)
		return nil, err
	}

	switch {
	case r.Canceled:
		e.metrics.RankingRun("canceled", elapsed)
	case r.Partial:
		e.metrics.RankingRun("partial", elapsed)
	default:
		e.metrics.RankingRun("complete", elapsed)
		e.rankings.Set(key, *r, e.rankingTTL)
	}

	log.Info().Str("run", r.RunID).Int("ranked", len(r.Entries)).Int("warnings", len(r.Warnings)).
		Bool("partial", r.Partial).Bool("canceled", r.Canceled).Dur("elapsed", elapsed).Msg("Ranking assembled")
	return view(r, f), nil
}

func (e *Engine) run(ctx context.Context, f Filter) (*Ranking, error) {
	r := &Ranking{
		RunID:       uuid.NewString(),
		GeneratedAt: e.clock.Now(),
		Filter:      Filter{From: f.From, To: f.To},
	}
	logger := log.With().Str("run", r.RunID).Logger()

	// 1. Authenticate
	sess, err := e.openLease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	defer sess.Close(context.WithoutCancel(ctx))

	// 2. Roster
	roster, truncated, err := e.roster(ctx, sess)
	if err != nil {
		return nil, err
	}
	r.Technicians = len(roster)
	if truncated {
		r.Warnings = append(r.Warnings, Warning{
			Message: fmt.Sprintf("technician roster truncated at %d technicians by the row ceiling", len(roster)),
		})
	}
	logger.Debug().Int("technicians", len(roster)).Int("workers", e.workers).Msg("Evaluating technicians")

	// 3. Evaluate on a bounded pool. Work already started finishes on a
	// context that ignores the caller's cancellation so its result is
	// cached for the next run.
	work := context.WithoutCancel(ctx)
	results := make([]outcome, len(roster))

	// A slot is held from scheduling until the worker returns; waiting
	// for one ends on cancellation.
	g := new(errgroup.Group)
	slots := make(chan struct{}, e.workers)
	for i, tech := range roster {
		if !acquire(ctx, slots) {
			r.Canceled = true
			logger.Warn().Int("scheduled", i).Int("technicians", len(roster)).Msg("Ranking canceled, not scheduling remaining technicians")
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			results[i] = e.evaluate(work, sess, tech, f)
			return nil
		})
	}
	_ = g.Wait()
	if !r.Canceled && ctx.Err() != nil {
		r.Canceled = true
	}

	// 4. Collect in roster order
	for _, res := range results {
		if res.fatal != nil {
			return nil, res.fatal
		}
		r.Warnings = append(r.Warnings, res.warnings...)
		if res.entry != nil {
			r.Entries = append(r.Entries, *res.entry)
		}
	}

	assemble(r)
	r.Partial = r.Canceled || len(r.Warnings) > 0
	return r, nil
}

// acquire takes a worker slot, or reports false once ctx is done.
func acquire(ctx context.Context, slots chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case slots <- struct{}{}:
	}
	if ctx.Err() != nil {
		<-slots
		return false
	}
	return true
}

// evaluate resolves the tier and metrics of one technician. A failed
// metrics fetch falls back to the last good value, or omits the technician.
// Only an authentication failure of this run's own session is fatal.
func (e *Engine) evaluate(ctx context.Context, s *lease, tech glpi.Technician, f Filter) outcome {
	var out outcome
	res := e.resolveTier(ctx, s, tech)
	if res.Degraded {
		out.warnings = append(out.warnings, Warning{
			Technician: tech.ID, Name: tech.Name,
			Message: fmt.Sprintf("tier %s from %s lookup: %s", res.Tier, res.Source, res.Reason),
		})
	}
	entry := &Entry{
		Technician: tech.ID,
		Login:      tech.Login,
		Name:       tech.Name,
		Tier:       res.Tier,
		TierSource: res.Source,
	}

	key := metricsKey(tech.ID, f)
	m, err := e.technicianMetrics(ctx, s, tech.ID, f)
	if err == nil {
		entry.Metrics = m
		entry.AsOf = e.clock.Now()
		if cached, ok := e.technicians.Lookup(key); ok {
			entry.AsOf = cached.StoredAt
		}
		out.entry = entry
		return out
	}

	if errors.Is(err, glpi.ErrAuth) && failedOn(err, s) {
		return outcome{fatal: fmt.Errorf("technician %s: %w", tech.ID, err)}
	}

	w := Warning{Technician: tech.ID, Name: tech.Name, Message: err.Error()}
	if stale, ok := e.technicians.Stale(key); ok {
		e.metrics.TechnicianFailed("stale")
		log.Warn().Err(err).Str("technician", tech.ID).Time("as_of", stale.StoredAt).Msg("Using last good metrics for technician")
		entry.Metrics = stale.Value
		entry.Stale = true
		entry.AsOf = stale.StoredAt
		w.Stale = true
		out.entry = entry
		out.warnings = append(out.warnings, w)
		return out
	}

	e.metrics.TechnicianFailed("omitted")
	log.Warn().Err(err).Str("technician", tech.ID).Msg("Technician omitted from ranking")
	out.warnings = append(out.warnings, w)
	return out
}

// assemble orders entries by total descending, keeping roster order for
// ties, and assigns overall and per-tier ranks.
func assemble(r *Ranking) {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		return r.Entries[i].Metrics.Total > r.Entries[j].Metrics.Total
	})

	perTier := make(map[tier.Tier]int, len(tier.All))
	for i := range r.Entries {
		r.Entries[i].Rank = i + 1
		perTier[r.Entries[i].Tier]++
		r.Entries[i].TierRank = perTier[r.Entries[i].Tier]
	}
	r.ByTier = groupByTier(r.Entries)
}

func groupByTier(entries []Entry) []TierGroup {
	groups := make([]TierGroup, 0, len(tier.All))
	for _, t := range tier.Descending {
		g := TierGroup{Tier: t, Entries: []Entry{}}
		for _, en := range entries {
			if en.Tier == t {
				g.Entries = append(g.Entries, en)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// view narrows a full ranking to the filter's tier. Ranks are reassigned
// inside the view so they stay dense.
func view(r *Ranking, f Filter) *Ranking {
	out := *r
	out.Entries = append([]Entry(nil), r.Entries...)
	out.Warnings = append([]Warning(nil), r.Warnings...)
	out.Filter.Tier = f.Tier
	if f.Tier == 0 {
		out.ByTier = make([]TierGroup, len(r.ByTier))
		for i, g := range r.ByTier {
			out.ByTier[i] = TierGroup{Tier: g.Tier, Entries: append([]Entry{}, g.Entries...)}
		}
		return &out
	}

	kept := out.Entries[:0]
	for _, en := range out.Entries {
		if en.Tier == f.Tier {
			en.Rank = en.TierRank
			kept = append(kept, en)
		}
	}
	out.Entries = kept
	out.ByTier = []TierGroup{{Tier: f.Tier, Entries: append([]Entry{}, kept...)}}
	return &out
}
