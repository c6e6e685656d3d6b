package mcp

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RankingInput filters get_technician_ranking.
type RankingInput struct {
	From  string `json:"from,omitempty" jsonschema:"Only count tickets created on or after this date (YYYY-MM-DD in the GLPI time zone, or RFC 3339)"`
	To    string `json:"to,omitempty" jsonschema:"Only count tickets created before this date (YYYY-MM-DD or RFC 3339)"`
	Tier  string `json:"tier,omitempty" jsonschema:"Restrict the ranking to one tier: Tier1, Tier2, Tier3 or Tier4"`
	Chart bool   `json:"chart,omitempty" jsonschema:"Also return a Mermaid bar chart of the top technicians"`
}

// MetricsInput selects get_technician_metrics.
type MetricsInput struct {
	TechnicianID string `json:"technician_id" jsonschema:"GLPI user id of the technician"`
	From         string `json:"from,omitempty" jsonschema:"Window start (YYYY-MM-DD or RFC 3339)"`
	To           string `json:"to,omitempty" jsonschema:"Window end (YYYY-MM-DD or RFC 3339)"`
}

// SummaryInput scopes get_ticket_status_summary.
type SummaryInput struct {
	TechnicianID string `json:"technician_id,omitempty" jsonschema:"Optional: only tickets assigned to this technician"`
	GroupID      string `json:"group_id,omitempty" jsonschema:"Optional: only tickets assigned to this group"`
	From         string `json:"from,omitempty" jsonschema:"Window start (YYYY-MM-DD or RFC 3339)"`
	To           string `json:"to,omitempty" jsonschema:"Window end (YYYY-MM-DD or RFC 3339)"`
	Chart        bool   `json:"chart,omitempty" jsonschema:"Also return a Mermaid pie chart of the status counts"`
}

// ClearCacheInput takes no arguments.
type ClearCacheInput struct{}

func schemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("invalid tool schema for %T: %v", *new(T), err))
	}
	return schema
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_technician_ranking",
		Description: "Rank active technicians by ticket volume, with resolution rate and service tier. " +
			"Check 'partial' and 'warnings' before drawing conclusions: technicians that could not be fetched are " +
			"either served from the last good value (stale) or left out.",
		InputSchema: schemaFor[RankingInput](),
	}, s.handleRanking)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_technician_metrics",
		Description: "Get ticket counts (total, resolved, pending, other), resolution rate and tier of one technician.",
		InputSchema: schemaFor[MetricsInput](),
	}, s.handleTechnicianMetrics)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_ticket_status_summary",
		Description: "Count tickets per status, optionally for one technician or group and a creation window.",
		InputSchema: schemaFor[SummaryInput](),
	}, s.handleStatusSummary)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached result, including last good values, so the next call refetches from GLPI.",
		InputSchema: schemaFor[ClearCacheInput](),
	}, s.handleClearCache)
}
