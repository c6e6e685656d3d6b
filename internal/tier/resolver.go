package tier

import (
	"context"
	"strings"

	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// MembershipResource is the GLPI itemtype linking users to groups.
const MembershipResource = "Group_User"

// Fetcher retrieves complete result sets. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, s fetch.Searcher, q fetch.Query) (*fetch.Result, error)
}

// Options configures a Resolver.
type Options struct {
	Fetcher Fetcher
	Fields  glpi.MembershipFields
	// Groups holds the GLPI group id of each tier. Tiers without a group
	// can only be reached by name.
	Groups  map[Tier]string
	Names   NameSource
	Metrics *telemetry.Recorder
}

// Resolver maps technicians to tiers. It holds no per-technician state, so
// resolving the same technician against the same tables always yields the
// same result.
type Resolver struct {
	fetcher Fetcher
	fields  glpi.MembershipFields
	groups  map[string]Tier
	names   NameSource
	metrics *telemetry.Recorder
}

// NewResolver builds a Resolver. A nil Names source disables the name
// fallback.
func NewResolver(opts Options) *Resolver {
	if opts.Fields == (glpi.MembershipFields{}) {
		opts.Fields = glpi.DefaultFields().Membership
	}
	groups := make(map[string]Tier, len(opts.Groups))
	for t, id := range opts.Groups {
		if id = strings.TrimSpace(id); id != "" && t.Valid() {
			groups[id] = t
		}
	}
	return &Resolver{
		fetcher: opts.Fetcher,
		fields:  opts.Fields,
		groups:  groups,
		names:   opts.Names,
		metrics: opts.Metrics,
	}
}

// Resolve returns the tier of tech. It never fails: lookup errors degrade
// to the next source and the worst case is the Tier1 default. A result
// reached past a failed lookup is marked Degraded.
func (r *Resolver) Resolve(ctx context.Context, s fetch.Searcher, tech glpi.Technician) Resolution {
	logger := log.With().Str("technician", tech.ID).Str("name", tech.Name).Logger()

	// 1. Group membership
	groupTier, byGroup, groupErr := r.lookupGroups(ctx, s, tech)

	// 2. Name directory
	nameTier, byName, nameErr := r.lookupName(ctx, tech)

	var res Resolution
	switch {
	case byGroup:
		if byName && nameTier != groupTier {
			logger.Warn().Stringer("group_tier", groupTier).Stringer("name_tier", nameTier).
				Msg("Tier conflict between group membership and name directory; group wins")
		}
		res = Resolution{Tier: groupTier, Source: SourceGroup}
	case byName:
		res = Resolution{Tier: nameTier, Source: SourceName}
	default:
		logger.Warn().Msg("Technician matches no tier group or name, defaulting to Tier1")
		res = Resolution{Tier: Tier1, Source: SourceDefault}
	}

	switch {
	case groupErr != nil && !byGroup:
		res.Degraded, res.Reason = true, "group lookup failed: "+groupErr.Error()
	case nameErr != nil && !byGroup && !byName:
		res.Degraded, res.Reason = true, "name directory unavailable: "+nameErr.Error()
	}

	r.metrics.TierResolved(string(res.Source))
	logger.Debug().Stringer("tier", res.Tier).Str("source", string(res.Source)).Msg("Tier resolved")
	return res
}

func (r *Resolver) lookupGroups(ctx context.Context, s fetch.Searcher, tech glpi.Technician) (Tier, bool, error) {
	if len(r.groups) == 0 || r.fetcher == nil || s == nil {
		return 0, false, nil
	}

	res, err := r.fetcher.Fetch(ctx, s, fetch.Query{
		Resource:  MembershipResource,
		Criteria:  []glpi.Criterion{glpi.Equals(r.fields.User, tech.ID)},
		Fields:    []string{r.fields.User, r.fields.Group},
		SortField: r.fields.Group,
		Label:     "memberships:" + tech.ID,
	})
	if err != nil {
		log.Warn().Err(err).Str("technician", tech.ID).Msg("Group lookup failed, falling back to name directory")
		return 0, false, err
	}

	var (
		best    Tier
		matched = map[Tier]bool{}
	)
	for _, row := range res.Rows {
		for _, gid := range row.Strings(r.fields.Group) {
			t, ok := r.groups[gid]
			if !ok {
				continue
			}
			matched[t] = true
			if t > best {
				best = t
			}
		}
	}
	if len(matched) > 1 {
		tiers := make([]string, 0, len(matched))
		for _, t := range All {
			if matched[t] {
				tiers = append(tiers, t.String())
			}
		}
		log.Warn().Str("technician", tech.ID).Strs("tiers", tiers).Stringer("chosen", best).
			Msg("Technician belongs to several tier groups; highest tier wins")
	}
	return best, best.Valid(), nil
}

func (r *Resolver) lookupName(ctx context.Context, tech glpi.Technician) (Tier, bool, error) {
	if r.names == nil {
		return 0, false, nil
	}
	table, err := r.names.Names(ctx)
	if err != nil {
		log.Warn().Err(err).Str("technician", tech.ID).Msg("Name directory unavailable")
		return 0, false, err
	}
	t, ok := table.Lookup(tech.Name)
	return t, ok, nil
}
