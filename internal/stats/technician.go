package stats

import (
	"techrank/internal/glpi"
)

// Class buckets a ticket status for performance metrics.
type Class string

const (
	ClassResolved Class = "resolved"
	ClassPending  Class = "pending"
	ClassOther    Class = "other"
)

// GLPI ticket status codes.
const (
	StatusNew      = 1
	StatusAssigned = 2
	StatusPlanned  = 3
	StatusWaiting  = 4
	StatusSolved   = 5
	StatusClosed   = 6
)

// StatusTable maps status codes to classes. Codes in neither set are Other.
type StatusTable struct {
	Resolved map[int]bool
	Pending  map[int]bool
}

// DefaultStatusTable classifies Solved and Closed as resolved and the
// Pending status as pending.
func DefaultStatusTable() StatusTable {
	return NewStatusTable([]int{StatusSolved, StatusClosed}, []int{StatusWaiting})
}

// NewStatusTable builds a table from code lists. A code listed in both is
// treated as resolved.
func NewStatusTable(resolved, pending []int) StatusTable {
	t := StatusTable{Resolved: make(map[int]bool), Pending: make(map[int]bool)}
	for _, c := range resolved {
		t.Resolved[c] = true
	}
	for _, c := range pending {
		if !t.Resolved[c] {
			t.Pending[c] = true
		}
	}
	return t
}

// Classify returns the class of a status code.
func (t StatusTable) Classify(code int) Class {
	switch {
	case t.Resolved[code]:
		return ClassResolved
	case t.Pending[code]:
		return ClassPending
	default:
		return ClassOther
	}
}

// TechnicianMetrics is the performance summary of one technician's tickets
// within one run.
type TechnicianMetrics struct {
	TechnicianID   string  `json:"technician_id"`
	Total          int     `json:"total"`
	Resolved       int     `json:"resolved"`
	Pending        int     `json:"pending"`
	Other          int     `json:"other"`
	ResolutionRate float64 `json:"resolution_rate"`

	// Pages is how many windowed calls the ticket set needed.
	Pages int `json:"pages"`
	// Truncated is set when the fetch hit its safety ceiling.
	Truncated bool `json:"truncated,omitempty"`
}

// Compute reduces a complete ticket set into metrics. It has no side effects.
func Compute(technicianID string, tickets []glpi.Ticket, table StatusTable) TechnicianMetrics {
	m := TechnicianMetrics{TechnicianID: technicianID, Total: len(tickets)}

	for _, t := range tickets {
		switch table.Classify(t.Status) {
		case ClassResolved:
			m.Resolved++
		case ClassPending:
			m.Pending++
		default:
			m.Other++
		}
	}

	m.ResolutionRate = Rate(m.Resolved, m.Total)
	return m
}

// Rate returns part/total, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
