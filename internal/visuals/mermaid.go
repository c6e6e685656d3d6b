// Package visuals renders engine results as Mermaid charts for MCP clients
// that display markdown.
package visuals

import (
	"fmt"
	"math"
	"strings"

	"techrank/internal/ranking"
	"techrank/internal/stats"
)

// maxBars keeps ranking charts readable.
const maxBars = 20

// RankingChart creates a Mermaid xychart-beta with ticket totals of the top
// technicians as bars and their resolved counts as a line.
func RankingChart(r *ranking.Ranking) string {
	if r == nil || len(r.Entries) == 0 {
		return ""
	}
	entries := r.Entries
	if len(entries) > maxBars {
		entries = entries[:maxBars]
	}

	var labels, totals, resolved []string
	maxVal := 0
	for _, e := range entries {
		labels = append(labels, fmt.Sprintf("%q", chartLabel(e)))
		totals = append(totals, fmt.Sprintf("%d", e.Metrics.Total))
		resolved = append(resolved, fmt.Sprintf("%d", e.Metrics.Resolved))
		if e.Metrics.Total > maxVal {
			maxVal = e.Metrics.Total
		}
	}

	title := "Technician Ranking"
	if r.Filter.Tier != 0 {
		title += " (" + r.Filter.Tier.String() + ")"
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title %q\n", title))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Tickets\" 0 --> %d\n", maxVal+int(math.Max(1, float64(maxVal)*0.2))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(totals, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(resolved, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// StatusChart creates a Mermaid pie chart of tickets per status.
func StatusChart(s stats.StatusSummary) string {
	if s.Total == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie showData\n")
	sb.WriteString("    title \"Tickets by Status\"\n")
	for _, c := range s.ByStatus {
		if c.Count == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %q : %d\n", c.Label, c.Count))
	}
	sb.WriteString("```")
	return sb.String()
}

func chartLabel(e ranking.Entry) string {
	name := e.Name
	if name == "" {
		name = e.Login
	}
	// Mermaid has no escape for quotes inside labels.
	name = strings.ReplaceAll(name, `"`, "'")
	if e.Stale {
		name += "*"
	}
	return name
}
