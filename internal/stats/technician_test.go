package stats

import (
	"testing"

	"techrank/internal/glpi"
)

func tickets(statuses ...int) []glpi.Ticket {
	out := make([]glpi.Ticket, len(statuses))
	for i, s := range statuses {
		out[i] = glpi.Ticket{Status: s}
	}
	return out
}

func repeat(status, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = status
	}
	return out
}

func TestCompute(t *testing.T) {
	table := DefaultStatusTable()

	tests := []struct {
		name    string
		tickets []glpi.Ticket
		want    TechnicianMetrics
	}{
		{
			name:    "NoTickets",
			tickets: nil,
			want:    TechnicianMetrics{TechnicianID: "t", Total: 0, ResolutionRate: 0},
		},
		{
			name:    "SinglePending",
			tickets: tickets(StatusWaiting),
			want:    TechnicianMetrics{TechnicianID: "t", Total: 1, Pending: 1, ResolutionRate: 0},
		},
		{
			name:    "HighVolume",
			tickets: tickets(append(repeat(StatusSolved, 3000), append(repeat(StatusClosed, 1000), repeat(StatusWaiting, 1000)...)...)...),
			want:    TechnicianMetrics{TechnicianID: "t", Total: 5000, Resolved: 4000, Pending: 1000, ResolutionRate: 0.8},
		},
		{
			name:    "OpenAndUnknownAreOther",
			tickets: tickets(StatusNew, StatusAssigned, StatusPlanned, 42, StatusSolved),
			want:    TechnicianMetrics{TechnicianID: "t", Total: 5, Resolved: 1, Other: 4, ResolutionRate: 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute("t", tt.tickets, table)
			if got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
			if got.Resolved+got.Pending+got.Other != got.Total {
				t.Errorf("classes do not partition the total: %+v", got)
			}
		})
	}
}

func TestRate_ZeroTotal(t *testing.T) {
	if got := Rate(0, 0); got != 0 {
		t.Errorf("Rate(0, 0) = %v, want 0", got)
	}
	if got := Rate(3, 4); got != 0.75 {
		t.Errorf("Rate(3, 4) = %v, want 0.75", got)
	}
}

func TestNewStatusTable_ResolvedWins(t *testing.T) {
	table := NewStatusTable([]int{5}, []int{4, 5})
	if got := table.Classify(5); got != ClassResolved {
		t.Errorf("Classify(5) = %s, want resolved", got)
	}
	if got := table.Classify(4); got != ClassPending {
		t.Errorf("Classify(4) = %s, want pending", got)
	}
	if got := table.Classify(1); got != ClassOther {
		t.Errorf("Classify(1) = %s, want other", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(tickets(StatusSolved, StatusNew, StatusSolved, StatusWaiting, 9), DefaultStatusTable())

	if s.Total != 5 || s.Resolved != 2 || s.Pending != 1 || s.Other != 2 {
		t.Errorf("unexpected totals %+v", s)
	}
	if len(s.ByStatus) != 4 {
		t.Fatalf("len(ByStatus) = %d, want 4", len(s.ByStatus))
	}
	first := s.ByStatus[0]
	if first.Code != StatusNew || first.Label != "New" || first.Count != 1 {
		t.Errorf("unexpected first bucket %+v", first)
	}
	if last := s.ByStatus[3]; last.Code != 9 || last.Label != "Unknown" || last.Class != ClassOther {
		t.Errorf("unexpected last bucket %+v", last)
	}
}
