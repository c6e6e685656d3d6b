package ranking

import (
	"context"
	"fmt"
	"time"

	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/stats"
	"techrank/internal/tier"

	"github.com/rs/zerolog/log"
)

// Upstream itemtypes.
const (
	TicketResource = "Ticket"
	UserResource   = "User"
)

// roster returns the active, non-deleted technicians in id order, each
// listed once even when GLPI returns a user for several entities. The flag
// reports that the safety ceiling cut the roster short.
func (e *Engine) roster(ctx context.Context, s fetch.Searcher) ([]glpi.Technician, bool, error) {
	f := e.fields.User
	res, err := e.fetcher.Fetch(ctx, s, fetch.Query{
		Resource:  UserResource,
		Criteria:  []glpi.Criterion{glpi.Equals(f.Profile, e.profile)},
		Fields:    f.Columns(),
		SortField: f.ID,
		Label:     "roster",
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load technician roster: %w", err)
	}
	if res.Truncated {
		log.Warn().Int("rows", len(res.Rows)).Msg("Technician roster truncated by safety ceiling")
	}

	seen := make(map[string]bool, len(res.Rows))
	out := make([]glpi.Technician, 0, len(res.Rows))
	skipped := 0
	for _, row := range res.Rows {
		tech := glpi.MapTechnician(row, f)
		if tech.ID == "" || seen[tech.ID] {
			continue
		}
		seen[tech.ID] = true
		if !tech.Active || tech.Deleted {
			skipped++
			continue
		}
		out = append(out, tech)
	}
	log.Debug().Int("technicians", len(out)).Int("inactive", skipped).Msg("Roster loaded")
	return out, res.Truncated, nil
}

func (e *Engine) lookupTechnician(ctx context.Context, s fetch.Searcher, id string) (glpi.Technician, error) {
	f := e.fields.User
	res, err := e.fetcher.Fetch(ctx, s, fetch.Query{
		Resource: UserResource,
		Criteria: []glpi.Criterion{glpi.Equals(f.ID, id), glpi.Equals(f.Profile, e.profile)},
		Fields:   f.Columns(),
		Label:    "user:" + id,
	})
	if err != nil {
		return glpi.Technician{}, fmt.Errorf("failed to look up technician %s: %w", id, err)
	}
	for _, row := range res.Rows {
		tech := glpi.MapTechnician(row, f)
		if tech.ID == id && tech.Active && !tech.Deleted {
			return tech, nil
		}
	}
	return glpi.Technician{}, fmt.Errorf("%w: %s", ErrUnknownTechnician, id)
}

// ticketCriteria builds the ticket search for a scope and creation window.
func (e *Engine) ticketCriteria(scope Scope, f Filter) []glpi.Criterion {
	tf := e.fields.Ticket
	var criteria []glpi.Criterion
	if scope.Technician != "" {
		criteria = append(criteria, glpi.Equals(tf.Assignee, scope.Technician))
	}
	if scope.Group != "" {
		criteria = append(criteria, glpi.Equals(tf.Group, scope.Group))
	}
	if !f.From.IsZero() {
		criteria = append(criteria, glpi.Criterion{
			Link: "AND", Field: tf.Created, SearchType: "morethan",
			Value: inclusiveFrom(f.From).In(e.loc).Format(glpi.DateTimeLayout),
		})
	}
	if !f.To.IsZero() {
		criteria = append(criteria, glpi.Criterion{
			Link: "AND", Field: tf.Created, SearchType: "lessthan",
			Value: f.To.In(e.loc).Format(glpi.DateTimeLayout),
		})
	}
	if len(criteria) == 0 {
		// GLPI needs at least one criterion to apply forcedisplay.
		criteria = append(criteria, glpi.Criterion{Field: tf.ID, SearchType: "contains", Value: ""})
	}
	return criteria
}

// inclusiveFrom turns "created on or after from" into the bound of GLPI's
// strict morethan. GLPI dates have second precision.
func inclusiveFrom(from time.Time) time.Time {
	bound := from.Truncate(time.Second)
	if bound.Equal(from) {
		bound = bound.Add(-time.Second)
	}
	return bound
}

func (e *Engine) fetchTickets(ctx context.Context, s fetch.Searcher, scope Scope, f Filter, label string) ([]glpi.Ticket, *fetch.Result, error) {
	res, err := e.fetcher.Fetch(ctx, s, fetch.Query{
		Resource:  TicketResource,
		Criteria:  e.ticketCriteria(scope, f),
		Fields:    e.fields.Ticket.Columns(),
		SortField: e.fields.Ticket.ID,
		Label:     label,
	})
	if err != nil {
		return nil, nil, err
	}
	tickets := make([]glpi.Ticket, 0, len(res.Rows))
	for _, row := range res.Rows {
		tickets = append(tickets, glpi.MapTicket(row, e.fields.Ticket, e.loc))
	}
	return tickets, res, nil
}

func metricsKey(id string, f Filter) string { return "metrics:" + id + ":" + f.window() }

// technicianMetrics returns cached metrics for id, loading them at most
// once across concurrent callers. The TTL class follows the observed page
// count: multi-page technicians are expensive and kept longer.
func (e *Engine) technicianMetrics(ctx context.Context, l *lease, id string, f Filter) (stats.TechnicianMetrics, error) {
	return e.technicians.GetOrLoad(ctx, metricsKey(id, f), func(ctx context.Context) (stats.TechnicianMetrics, time.Duration, error) {
		var (
			m   stats.TechnicianMetrics
			ttl = e.shortTTL
		)
		err := e.withSession(ctx, l, func(s fetch.Searcher) error {
			tickets, res, err := e.fetchTickets(ctx, s, Scope{Technician: id}, f, "technician:"+id)
			if err != nil {
				return err
			}
			m = stats.Compute(id, tickets, e.statuses)
			m.Pages = res.Pages
			m.Truncated = res.Truncated
			if res.Pages > 1 {
				ttl = e.longTTL
			}
			return nil
		})
		if err != nil {
			return stats.TechnicianMetrics{}, 0, err
		}
		log.Debug().Str("technician", id).Int("total", m.Total).Int("pages", m.Pages).Dur("ttl", ttl).Msg("Technician metrics computed")
		return m, ttl, nil
	})
}

// resolveTier returns the cached tier of tech. Degraded resolutions are
// handed back but not stored, so the next run looks again.
func (e *Engine) resolveTier(ctx context.Context, l *lease, tech glpi.Technician) tier.Resolution {
	key := "tier:" + tech.ID + ":" + tech.Name
	res, err := e.tiers.GetOrLoad(ctx, key, func(ctx context.Context) (tier.Resolution, time.Duration, error) {
		var res tier.Resolution
		err := e.withSession(ctx, l, func(s fetch.Searcher) error {
			res = e.resolver.Resolve(ctx, s, tech)
			return nil
		})
		if err != nil {
			return res, 0, err
		}
		if res.Degraded {
			return res, 0, nil
		}
		return res, e.tierTTL, nil
	})
	if err != nil {
		// A waiter's own cancellation, or a late load that could not open
		// a session. The caller's session is still open here.
		return e.resolver.Resolve(context.WithoutCancel(ctx), l, tech)
	}
	return res
}

// TechnicianMetrics returns the metrics and tier of one technician. When
// the upstream fails and a last good value is cached, it is returned with
// Stale set.
func (e *Engine) TechnicianMetrics(ctx context.Context, id string, f Filter) (*TechnicianReport, error) {
	sess, err := e.openLease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	defer sess.Close(context.WithoutCancel(ctx))

	tech, err := e.lookupTechnician(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	report := &TechnicianReport{Technician: tech, Filter: f}
	report.Tier = e.resolveTier(ctx, sess, tech)

	key := metricsKey(id, f)
	m, err := e.technicianMetrics(ctx, sess, id, f)
	if err != nil {
		stale, ok := e.technicians.Stale(key)
		if !ok || ctx.Err() != nil {
			return nil, fmt.Errorf("failed to compute metrics for technician %s: %w", id, err)
		}
		log.Warn().Err(err).Str("technician", id).Time("as_of", stale.StoredAt).Msg("Serving stale technician metrics")
		report.Metrics, report.Stale, report.AsOf = stale.Value, true, stale.StoredAt
		return report, nil
	}

	report.Metrics = m
	report.AsOf = e.clock.Now()
	if entry, ok := e.technicians.Lookup(key); ok {
		report.AsOf = entry.StoredAt
	}
	return report, nil
}

// StatusSummary counts tickets per status within scope and window.
func (e *Engine) StatusSummary(ctx context.Context, scope Scope, f Filter) (*Summary, error) {
	key := "summary:" + scope.key() + ":" + f.window()
	if s, ok := e.summaries.Get(key); ok {
		return &s, nil
	}

	sess, err := e.openLease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	defer sess.Close(context.WithoutCancel(ctx))

	summary, err := e.summaries.GetOrLoad(ctx, key, func(ctx context.Context) (Summary, time.Duration, error) {
		var out Summary
		err := e.withSession(ctx, sess, func(s fetch.Searcher) error {
			tickets, res, err := e.fetchTickets(ctx, s, scope, f, "summary:"+scope.key())
			if err != nil {
				return err
			}
			out = Summary{
				Scope:         scope,
				Filter:        f,
				StatusSummary: stats.Summarize(tickets, e.statuses),
				Truncated:     res.Truncated,
				AsOf:          e.clock.Now(),
			}
			return nil
		})
		return out, e.shortTTL, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize tickets: %w", err)
	}
	return &summary, nil
}

// Location is the time zone GLPI datetimes and date-only filters use.
func (e *Engine) Location() *time.Location { return e.loc }
