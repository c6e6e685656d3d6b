package stats

import (
	"slices"

	"techrank/internal/glpi"
)

var statusLabels = map[int]string{
	StatusNew:      "New",
	StatusAssigned: "Processing (assigned)",
	StatusPlanned:  "Processing (planned)",
	StatusWaiting:  "Pending",
	StatusSolved:   "Solved",
	StatusClosed:   "Closed",
}

// StatusLabel returns the display name of a GLPI status code.
func StatusLabel(code int) string {
	if l, ok := statusLabels[code]; ok {
		return l
	}
	return "Unknown"
}

// StatusCount is the number of tickets in one status.
type StatusCount struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
	Class Class  `json:"class"`
	Count int    `json:"count"`
}

// StatusSummary is the dashboard breakdown of a ticket set by status.
type StatusSummary struct {
	Total    int           `json:"total"`
	Resolved int           `json:"resolved"`
	Pending  int           `json:"pending"`
	Other    int           `json:"other"`
	ByStatus []StatusCount `json:"by_status"`
}

// Summarize counts tickets per status, ordered by status code.
func Summarize(tickets []glpi.Ticket, table StatusTable) StatusSummary {
	counts := make(map[int]int)
	for _, t := range tickets {
		counts[t.Status]++
	}

	s := StatusSummary{Total: len(tickets)}
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		class := table.Classify(code)
		n := counts[code]
		switch class {
		case ClassResolved:
			s.Resolved += n
		case ClassPending:
			s.Pending += n
		default:
			s.Other += n
		}
		s.ByStatus = append(s.ByStatus, StatusCount{
			Code:  code,
			Label: StatusLabel(code),
			Class: class,
			Count: n,
		})
	}
	return s
}
