package glpi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchResponse is the body of GET /search/{itemtype}.
type SearchResponse struct {
	TotalCount int   `json:"totalcount"`
	Count      int   `json:"count"`
	Data       []Row `json:"data"`
}

// Row is one search result keyed by search-option id ("2", "12", ...).
// Values keep their JSON form; numbers are decoded as json.Number.
type Row map[string]any

// multiValueSeparator joins multi-valued columns in GLPI search output.
const multiValueSeparator = "$#$"

// String returns the column as text, or "" when absent or null.
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, multiValueSeparator)
	default:
		return fmt.Sprint(t)
	}
}

// Strings splits a multi-valued column into its members.
func (r Row) Strings(field string) []string {
	v, ok := r[field]
	if !ok || v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		out := make([]string, 0, len(arr))
		for _, p := range arr {
			if s := strings.TrimSpace(fmt.Sprint(p)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var out []string
	for _, s := range strings.Split(r.String(field), multiValueSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Int parses the column as an integer.
func (r Row) Int(field string) (int, bool) {
	s := strings.TrimSpace(r.String(field))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// Bool parses 0/1 and true/false columns.
func (r Row) Bool(field string) bool {
	switch strings.ToLower(strings.TrimSpace(r.String(field))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Time parses a GLPI datetime ("2006-01-02 15:04:05") in loc.
func (r Row) Time(field string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(r.String(field))
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{DateTimeLayout, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateTimeLayout is the datetime format GLPI uses in search output and criteria.
const DateTimeLayout = "2006-01-02 15:04:05"

// Criterion is one field/operator/value triple of a search.
type Criterion struct {
	Link       string // AND, OR, AND NOT; empty for the first criterion
	Field      string
	SearchType string // equals, notequals, contains, morethan, lessthan, under
	Value      string
}

// Equals builds an "equals" criterion.
func Equals(field, value string) Criterion {
	return Criterion{Field: field, SearchType: "equals", Value: value}
}

// Window is a row range [Start, Start+Size).
type Window struct {
	Start int
	Size  int
}

// Range renders the window as GLPI's inclusive "a-b" range parameter.
func (w Window) Range() string {
	end := w.Start + w.Size - 1
	if end < w.Start {
		end = w.Start
	}
	return fmt.Sprintf("%d-%d", w.Start, end)
}

// SearchRequest describes one windowed search call.
type SearchRequest struct {
	Resource string
	Criteria []Criterion
	Fields   []string
	Window   Window
	// SortField orders results so consecutive windows do not overlap.
	SortField string
}
