// Package glpitest runs an in-process fake of the GLPI REST endpoints the
// engine uses: initSession, killSession and search, with range windows,
// server-side row caps and failure injection.
package glpitest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"techrank/internal/glpi"
)

// Default credentials accepted by a new Server.
const (
	UserToken = "test-user-token"
	AppToken  = "test-app-token"
)

// Call records one search request received by the fake.
type Call struct {
	Seq      int
	Resource string
	Token    string
	Start    int
	End      int
	Criteria []glpi.Criterion
}

// Server is a fake GLPI instance.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// MaxRange caps rows per response like GLPI's list_limit_max; 0 disables.
	MaxRange int

	// Fail returns a status code to fail the call with, or 0 to serve it.
	Fail func(Call) int
	// Delay stalls a call before it is served.
	Delay func(Call) time.Duration

	rows         map[string][]glpi.Row
	sessions     map[string]bool
	calls        []Call
	initSessions int
	killSessions int
	nextToken    int
	nextTicket   int
}

// New starts a fake GLPI server on a random local port. Close it with
// Server.Close.
func New() *Server {
	s := newServer()
	s.Server = httptest.NewServer(s.routes())
	return s
}

// NewAt starts a fake GLPI server listening on addr, e.g. "127.0.0.1:8090".
func NewAt(addr string) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := newServer()
	s.Server = httptest.NewUnstartedServer(s.routes())
	s.Server.Listener.Close()
	s.Server.Listener = l
	s.Server.Start()
	return s, nil
}

func newServer() *Server {
	return &Server{
		rows:       make(map[string][]glpi.Row),
		sessions:   make(map[string]bool),
		nextTicket: 1,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/initSession", s.handleInit)
	mux.HandleFunc("/killSession", s.handleKill)
	mux.HandleFunc("/search/", s.handleSearch)
	return mux
}

// Config returns a client configuration pointing at the fake.
func (s *Server) Config() glpi.Config {
	return glpi.Config{
		BaseURL:     s.URL,
		AppToken:    AppToken,
		UserToken:   UserToken,
		CallTimeout: 2 * time.Second,
	}
}

// AddTechnician registers a User row with the technician profile "6".
func (s *Server) AddTechnician(id, login, firstName, realName string, active bool) {
	f := glpi.DefaultFields().User
	activeFlag := 0
	if active {
		activeFlag = 1
	}
	s.AddRows("User", glpi.Row{
		f.ID:        mustInt(id),
		f.Login:     login,
		f.FirstName: firstName,
		f.RealName:  realName,
		f.Active:    activeFlag,
		f.Profile:   6,
	})
}

// AddMembership registers a Group_User row.
func (s *Server) AddMembership(userID, groupID string) {
	f := glpi.DefaultFields().Membership
	s.AddRows("Group_User", glpi.Row{f.User: mustInt(userID), f.Group: mustInt(groupID)})
}

// AddTickets registers n tickets assigned to technician, with statuses
// chosen by status(i). Creation dates start at created and advance an hour
// per ticket.
func (s *Server) AddTickets(technician, group string, n int, created time.Time, status func(i int) int) {
	f := glpi.DefaultFields().Ticket
	rows := make([]glpi.Row, 0, n)
	s.mu.Lock()
	for i := 0; i < n; i++ {
		row := glpi.Row{
			f.ID:       s.nextTicket,
			f.Status:   status(i),
			f.Assignee: mustInt(technician),
			f.Created:  created.Add(time.Duration(i) * time.Hour).Format(glpi.DateTimeLayout),
		}
		if group != "" {
			row[f.Group] = mustInt(group)
		}
		s.nextTicket++
		rows = append(rows, row)
	}
	s.mu.Unlock()
	s.AddRows("Ticket", rows...)
}

// AddRows appends raw rows to a resource.
func (s *Server) AddRows(resource string, rows ...glpi.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[resource] = append(s.rows[resource], rows...)
}

// Calls returns the search calls received for resource ("" for all).
func (s *Server) Calls(resource string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if resource == "" || c.Resource == resource {
			out = append(out, c)
		}
	}
	return out
}

// CallsFor returns ticket search calls filtered on the given assignee.
func (s *Server) CallsFor(technician string) []Call {
	field := glpi.DefaultFields().Ticket.Assignee
	var out []Call
	for _, c := range s.Calls("Ticket") {
		for _, cr := range c.Criteria {
			if cr.Field == field && cr.Value == technician {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// InitSessions reports how many sessions were opened.
func (s *Server) InitSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initSessions
}

// KillSessions reports how many sessions were closed.
func (s *Server) KillSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killSessions
}

// ExpireSessions invalidates every open session token.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token := range s.sessions {
		s.sessions[token] = false
	}
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("App-Token") != AppToken {
		writeError(w, http.StatusBadRequest, "ERROR_WRONG_APP_TOKEN_PARAMETER", "missing app token")
		return
	}
	if r.Header.Get("Authorization") != "user_token "+UserToken {
		writeError(w, http.StatusUnauthorized, "ERROR_GLPI_LOGIN_USER_TOKEN", "parameter user_token seems invalid")
		return
	}

	s.mu.Lock()
	s.initSessions++
	s.nextToken++
	token := "session-" + strconv.Itoa(s.nextToken)
	s.sessions[token] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"session_token": token})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := r.Header.Get("Session-Token")
	if _, ok := s.sessions[token]; !ok {
		writeError(w, http.StatusUnauthorized, "ERROR_SESSION_TOKEN_INVALID", "session_token seems invalid")
		return
	}
	delete(s.sessions, token)
	s.killSessions++
	writeJSON(w, http.StatusOK, []string{})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimPrefix(r.URL.Path, "/search/")
	token := r.Header.Get("Session-Token")

	q := r.URL.Query()
	call := Call{Resource: resource, Token: token, Criteria: parseCriteria(q)}
	call.Start, call.End = parseRange(q.Get("range"))

	s.mu.Lock()
	call.Seq = len(s.calls) + 1
	s.calls = append(s.calls, call)
	valid := s.sessions[token]
	fail, delay := s.Fail, s.Delay
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "ERROR_SESSION_TOKEN_INVALID", "session_token seems invalid")
		return
	}
	if delay != nil {
		if d := delay(call); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
	}
	if fail != nil {
		if code := fail(call); code != 0 {
			writeError(w, code, "ERROR", "injected failure")
			return
		}
	}

	s.mu.Lock()
	matched := filterRows(s.rows[resource], call.Criteria)
	maxRange := s.MaxRange
	s.mu.Unlock()

	if field := q.Get("sort"); field != "" {
		sortRows(matched, field)
	}

	total := len(matched)
	if total > 0 && call.Start >= total {
		writeError(w, http.StatusBadRequest, "ERROR_RANGE_EXCEED_TOTAL", "provided range exceed total count of data")
		return
	}

	end := call.End + 1
	if maxRange > 0 && end-call.Start > maxRange {
		end = call.Start + maxRange
	}
	if end > total {
		end = total
	}
	page := []glpi.Row{}
	if call.Start < end {
		page = matched[call.Start:end]
	}

	status := http.StatusOK
	if end < total {
		status = http.StatusPartialContent
	}
	w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", call.Start, end-1, total))
	writeJSON(w, status, glpi.SearchResponse{TotalCount: total, Count: len(page), Data: page})
}

func parseCriteria(q map[string][]string) []glpi.Criterion {
	var out []glpi.Criterion
	for i := 0; ; i++ {
		prefix := "criteria[" + strconv.Itoa(i) + "]"
		field := first(q[prefix+"[field]"])
		if field == "" {
			return out
		}
		out = append(out, glpi.Criterion{
			Link:       first(q[prefix+"[link]"]),
			Field:      field,
			SearchType: first(q[prefix+"[searchtype]"]),
			Value:      first(q[prefix+"[value]"]),
		})
	}
}

func parseRange(v string) (int, int) {
	if v == "" {
		return 0, 49
	}
	parts := strings.SplitN(v, "-", 2)
	start, _ := strconv.Atoi(parts[0])
	end := start + 49
	if len(parts) == 2 {
		end, _ = strconv.Atoi(parts[1])
	}
	return start, end
}

func filterRows(rows []glpi.Row, criteria []glpi.Criterion) []glpi.Row {
	var out []glpi.Row
	for _, row := range rows {
		if matches(row, criteria) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row glpi.Row, criteria []glpi.Criterion) bool {
	for _, c := range criteria {
		got := row.String(c.Field)
		ok := true
		switch c.SearchType {
		case "equals":
			ok = got == c.Value
		case "notequals":
			ok = got != c.Value
		case "contains":
			ok = strings.Contains(strings.ToLower(got), strings.ToLower(c.Value))
		case "morethan":
			ok = got > c.Value
		case "lessthan":
			ok = got < c.Value
		}
		if !ok {
			return false
		}
	}
	return true
}

func sortRows(rows []glpi.Row, field string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := rows[i].Int(field)
		b, bok := rows[j].Int(field)
		if aok && bok {
			return a < b
		}
		return rows[i].String(field) < rows[j].String(field)
	})
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, []string{kind, msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func mustInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		panic(fmt.Sprintf("glpitest: id %q is not numeric", s))
	}
	return n
}
