package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"techrank/internal/ranking"
	"techrank/internal/tier"
	"techrank/internal/visuals"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleRanking(ctx context.Context, _ *mcp.CallToolRequest, in RankingInput) (*mcp.CallToolResult, any, error) {
	f, err := ParseFilter(in.From, in.To, in.Tier, s.engine.Location())
	if err != nil {
		return errorResult(err), nil, nil
	}
	r, err := s.engine.Ranking(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("get_technician_ranking failed")
		return errorResult(err), nil, nil
	}
	res := textResult(r)
	if in.Chart {
		withChart(res, visuals.RankingChart(r))
	}
	return res, nil, nil
}

func (s *Server) handleTechnicianMetrics(ctx context.Context, _ *mcp.CallToolRequest, in MetricsInput) (*mcp.CallToolResult, any, error) {
	id := strings.TrimSpace(in.TechnicianID)
	if id == "" {
		return errorResult(fmt.Errorf("technician_id is required")), nil, nil
	}
	f, err := ParseFilter(in.From, in.To, "", s.engine.Location())
	if err != nil {
		return errorResult(err), nil, nil
	}
	rep, err := s.engine.TechnicianMetrics(ctx, id, f)
	if err != nil {
		log.Error().Err(err).Str("technician", id).Msg("get_technician_metrics failed")
		return errorResult(err), nil, nil
	}
	return textResult(rep), nil, nil
}

func (s *Server) handleStatusSummary(ctx context.Context, _ *mcp.CallToolRequest, in SummaryInput) (*mcp.CallToolResult, any, error) {
	f, err := ParseFilter(in.From, in.To, "", s.engine.Location())
	if err != nil {
		return errorResult(err), nil, nil
	}
	scope := ranking.Scope{Technician: strings.TrimSpace(in.TechnicianID), Group: strings.TrimSpace(in.GroupID)}
	sum, err := s.engine.StatusSummary(ctx, scope, f)
	if err != nil {
		log.Error().Err(err).Msg("get_ticket_status_summary failed")
		return errorResult(err), nil, nil
	}
	res := textResult(sum)
	if in.Chart {
		withChart(res, visuals.StatusChart(sum.StatusSummary))
	}
	return res, nil, nil
}

func (s *Server) handleClearCache(_ context.Context, _ *mcp.CallToolRequest, _ ClearCacheInput) (*mcp.CallToolResult, any, error) {
	n := s.engine.ClearCache()
	return textResult(map[string]any{"cleared": n}), nil, nil
}

func withChart(res *mcp.CallToolResult, chart string) {
	if chart == "" || res.IsError {
		return
	}
	res.Content = append(res.Content, &mcp.TextContent{Text: chart})
}

// ParseFilter builds a ranking filter from text arguments. Dates accept
// YYYY-MM-DD (midnight in loc, the GLPI time zone) or RFC 3339; tier
// accepts anything tier.Parse does. Empty arguments leave the bound open.
// From is inclusive, To exclusive.
func ParseFilter(from, to, tierName string, loc *time.Location) (ranking.Filter, error) {
	if loc == nil {
		loc = time.Local
	}
	var f ranking.Filter
	var err error
	if f.From, err = parseDate("from", from, loc); err != nil {
		return f, err
	}
	if f.To, err = parseDate("to", to, loc); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, fmt.Errorf("from (%s) must be before to (%s)", from, to)
	}
	if strings.TrimSpace(tierName) != "" {
		if f.Tier, err = tier.Parse(tierName); err != nil {
			return f, err
		}
	}
	return f, nil
}

func parseDate(name, v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", name, v)
	}
	return t, nil
}
