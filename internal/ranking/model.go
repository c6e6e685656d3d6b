package ranking

import (
	"time"

	"techrank/internal/glpi"
	"techrank/internal/stats"
	"techrank/internal/tier"
)

// Filter narrows a ranking. Zero values mean "no bound".
type Filter struct {
	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`
	Tier tier.Tier `json:"tier,omitempty"`
}

// window identifies the ticket creation window; it keys cached metrics.
func (f Filter) window() string {
	from, to := "*", "*"
	if !f.From.IsZero() {
		from = f.From.UTC().Format(time.RFC3339)
	}
	if !f.To.IsZero() {
		to = f.To.UTC().Format(time.RFC3339)
	}
	return from + ".." + to
}

// Entry is one ranked technician.
type Entry struct {
	Rank       int         `json:"rank"`
	TierRank   int         `json:"tier_rank"`
	Technician string      `json:"technician_id"`
	Login      string      `json:"login"`
	Name       string      `json:"name"`
	Tier       tier.Tier   `json:"tier"`
	TierSource tier.Source `json:"tier_source"`

	Metrics stats.TechnicianMetrics `json:"metrics"`

	// Stale is set when the metrics come from the last good cache entry
	// because this run could not fetch them.
	Stale bool `json:"stale,omitempty"`
	// AsOf is when the metrics were computed.
	AsOf time.Time `json:"as_of"`
}

// TierGroup lists the entries of one tier in rank order.
type TierGroup struct {
	Tier    tier.Tier `json:"tier"`
	Entries []Entry   `json:"entries"`
}

// Warning describes a technician the run could not fully evaluate. A
// warning without a technician concerns the run as a whole.
type Warning struct {
	Technician string `json:"technician_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    string `json:"message"`
	// Stale is set when failed metrics were replaced by a cached value
	// instead of omitting the technician.
	Stale bool `json:"stale"`
}

// Ranking is the result of one run. An empty Entries with no warnings and
// Partial=false means the roster had no technicians.
type Ranking struct {
	RunID       string      `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Filter      Filter      `json:"filter"`
	Technicians int         `json:"technicians"`
	Entries     []Entry     `json:"entries"`
	ByTier      []TierGroup `json:"by_tier"`
	Warnings    []Warning   `json:"warnings,omitempty"`

	// Partial is set when the run carries warnings (a technician stale,
	// missing or tiered past a failed lookup, or a truncated roster) or was
	// canceled.
	Partial bool `json:"partial"`
	// Canceled is set when the caller's context ended before every
	// technician was scheduled.
	Canceled bool `json:"canceled"`
	// Cached is set when the ranking was served from cache.
	Cached bool `json:"cached"`
}

// Scope selects the tickets of a status summary. Empty fields mean all.
type Scope struct {
	Technician string `json:"technician_id,omitempty"`
	Group      string `json:"group_id,omitempty"`
}

func (s Scope) key() string {
	return "tech=" + s.Technician + ",group=" + s.Group
}

// Summary is a status breakdown over a scope.
type Summary struct {
	Scope  Scope  `json:"scope"`
	Filter Filter `json:"filter"`
	stats.StatusSummary
	Truncated bool      `json:"truncated,omitempty"`
	AsOf      time.Time `json:"as_of"`
}

// TechnicianReport is the metrics of one technician with its tier.
type TechnicianReport struct {
	Technician glpi.Technician         `json:"technician"`
	Tier       tier.Resolution         `json:"tier"`
	Metrics    stats.TechnicianMetrics `json:"metrics"`
	Filter     Filter                  `json:"filter"`
	Stale      bool                    `json:"stale,omitempty"`
	AsOf       time.Time               `json:"as_of"`
}
