package visuals

import (
	"strings"
	"testing"

	"techrank/internal/ranking"
	"techrank/internal/stats"
	"techrank/internal/tier"
)

func TestRankingChart(t *testing.T) {
	if got := RankingChart(&ranking.Ranking{}); got != "" {
		t.Errorf("empty ranking should render nothing, got %q", got)
	}

	r := &ranking.Ranking{
		Filter: ranking.Filter{Tier: tier.Tier3},
		Entries: []ranking.Entry{
			{Name: `Ana "Ninja" Souza`, Metrics: stats.TechnicianMetrics{Total: 40, Resolved: 30}},
			{Login: "bia", Stale: true, Metrics: stats.TechnicianMetrics{Total: 10, Resolved: 9}},
		},
	}
	got := RankingChart(r)
	for _, want := range []string{
		"xychart-beta",
		`title "Technician Ranking (Tier3)"`,
		`x-axis ["Ana 'Ninja' Souza", "bia*"]`,
		`y-axis "Tickets" 0 --> 48`,
		"bar [40, 10]",
		"line [30, 9]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("chart missing %q:\n%s", want, got)
		}
	}
}

func TestRankingChart_CapsBars(t *testing.T) {
	r := &ranking.Ranking{}
	for i := 0; i < 30; i++ {
		r.Entries = append(r.Entries, ranking.Entry{Login: "t", Metrics: stats.TechnicianMetrics{Total: 1}})
	}
	bars := strings.Count(RankingChart(r), `"t"`)
	if bars != maxBars {
		t.Errorf("bars = %d, want %d", bars, maxBars)
	}
}

func TestStatusChart(t *testing.T) {
	s := stats.Summarize(nil, stats.DefaultStatusTable())
	if StatusChart(s) != "" {
		t.Error("empty summary should render nothing")
	}

	s = stats.StatusSummary{Total: 3, ByStatus: []stats.StatusCount{
		{Code: 1, Label: "New", Count: 1},
		{Code: 6, Label: "Closed", Count: 2},
	}}
	got := StatusChart(s)
	if !strings.Contains(got, `"New" : 1`) || !strings.Contains(got, `"Closed" : 2`) {
		t.Errorf("unexpected chart:\n%s", got)
	}
}
