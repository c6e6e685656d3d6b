// Package tier assigns every technician a service tier. Group membership
// is authoritative; a name directory is the fallback; Tier1 is the default.
package tier

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is a service level ordinal, Tier1 lowest to Tier4 highest.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
	Tier4
)

// All lists tiers from lowest to highest.
var All = []Tier{Tier1, Tier2, Tier3, Tier4}

// Descending lists tiers from highest to lowest, the order name lists are
// consulted in.
var Descending = []Tier{Tier4, Tier3, Tier2, Tier1}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool { return t >= Tier1 && t <= Tier4 }

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return "Tier" + strconv.Itoa(int(t))
}

// Parse accepts "Tier3", "tier3", "t3", "N3" or "3".
func Parse(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{"tier", "t", "n"} {
		if strings.HasPrefix(v, prefix) {
			v = strings.TrimSpace(strings.TrimPrefix(v, prefix))
			break
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil || !Tier(n).Valid() {
		return 0, fmt.Errorf("unknown tier %q", s)
	}
	return Tier(n), nil
}

// MarshalText renders the tier as "Tier2".
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts anything Parse does.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Source names where a resolution came from.
type Source string

const (
	SourceGroup   Source = "group"
	SourceName    Source = "name"
	SourceDefault Source = "default"
)

// Resolution is the outcome of resolving one technician.
type Resolution struct {
	Tier   Tier   `json:"tier"`
	Source Source `json:"source"`
	// Degraded is set when a lookup failed and a lower-precedence source
	// decided instead. Reason holds the failure.
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
