package glpi

import (
	"strings"
	"time"
)

// Ticket is the read-only view of a GLPI ticket the engine consumes.
type Ticket struct {
	ID         string    `json:"id"`
	Status     int       `json:"status"`
	AssigneeID string    `json:"assignee_id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Technician is a GLPI user with a technician profile.
type Technician struct {
	ID      string `json:"id"`
	Login   string `json:"login"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Deleted bool   `json:"deleted"`
}

// TicketFields are the search-option ids of the Ticket columns we read.
type TicketFields struct {
	ID       string `koanf:"id"`
	Status   string `koanf:"status"`
	Assignee string `koanf:"assignee"`
	Group    string `koanf:"group"`
	Created  string `koanf:"created"`
}

// UserFields are the search-option ids of the User columns we read.
// Deleted may be empty when the instance does not expose it.
type UserFields struct {
	ID        string `koanf:"id"`
	Login     string `koanf:"login"`
	FirstName string `koanf:"first_name"`
	RealName  string `koanf:"real_name"`
	Active    string `koanf:"active"`
	Deleted   string `koanf:"deleted"`
	Profile   string `koanf:"profile"`
}

// MembershipFields are the Group_User search-option ids.
type MembershipFields struct {
	User  string `koanf:"user"`
	Group string `koanf:"group"`
}

// Fields groups every search-option id the engine relies on.
type Fields struct {
	Ticket     TicketFields     `koanf:"ticket"`
	User       UserFields       `koanf:"user"`
	Membership MembershipFields `koanf:"membership"`
}

// DefaultFields returns the ids of a stock GLPI 9.5/10 installation.
func DefaultFields() Fields {
	return Fields{
		Ticket: TicketFields{
			ID:       "2",
			Status:   "12",
			Assignee: "5",
			Group:    "8",
			Created:  "15",
		},
		User: UserFields{
			ID:        "2",
			Login:     "1",
			FirstName: "9",
			RealName:  "34",
			Active:    "8",
			Profile:   "20",
		},
		Membership: MembershipFields{
			User:  "4",
			Group: "3",
		},
	}
}

// Columns lists the columns to request for tickets.
func (f TicketFields) Columns() []string {
	return nonEmpty(f.ID, f.Status, f.Assignee, f.Group, f.Created)
}

// Columns lists the columns to request for users.
func (f UserFields) Columns() []string {
	return nonEmpty(f.ID, f.Login, f.FirstName, f.RealName, f.Active, f.Deleted)
}

// MapTicket converts a search row into a Ticket.
func MapTicket(row Row, f TicketFields, loc *time.Location) Ticket {
	t := Ticket{
		ID:         row.String(f.ID),
		AssigneeID: row.String(f.Assignee),
		GroupID:    row.String(f.Group),
	}
	if status, ok := row.Int(f.Status); ok {
		t.Status = status
	}
	if created, ok := row.Time(f.Created, loc); ok {
		t.CreatedAt = created
	}
	return t
}

// MapTechnician converts a User search row into a Technician.
// The display name is "First Real" when either is set, the login otherwise.
func MapTechnician(row Row, f UserFields) Technician {
	tech := Technician{
		ID:     row.String(f.ID),
		Login:  row.String(f.Login),
		Active: f.Active == "" || row.Bool(f.Active),
	}
	if f.Deleted != "" {
		tech.Deleted = row.Bool(f.Deleted)
	}
	name := strings.TrimSpace(strings.Join(nonEmpty(
		strings.TrimSpace(row.String(f.FirstName)),
		strings.TrimSpace(row.String(f.RealName)),
	), " "))
	if name == "" {
		name = tech.Login
	}
	tech.Name = name
	return tech
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
