package glpi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRow_Accessors(t *testing.T) {
	row := Row{
		"2":  json.Number("42"),
		"12": "5",
		"8":  []any{"Support N1", "Support N2"},
		"15": "2024-02-03 04:05:06",
		"9":  nil,
		"30": true,
	}

	if got := row.String("2"); got != "42" {
		t.Errorf("String(2) = %q", got)
	}
	if n, ok := row.Int("12"); !ok || n != 5 {
		t.Errorf("Int(12) = %d, %v", n, ok)
	}
	if _, ok := row.Int("9"); ok {
		t.Error("Int on null should report false")
	}
	if got := row.Strings("8"); len(got) != 2 || got[1] != "Support N2" {
		t.Errorf("Strings(8) = %v", got)
	}
	if ts, ok := row.Time("15", time.UTC); !ok || ts.Day() != 3 || ts.Hour() != 4 {
		t.Errorf("Time(15) = %v, %v", ts, ok)
	}
	if !row.Bool("30") {
		t.Error("Bool(30) should be true")
	}
}

func TestRow_StringsSeparator(t *testing.T) {
	row := Row{"3": "12$#$14$#$"}
	got := row.Strings("3")
	if len(got) != 2 || got[0] != "12" || got[1] != "14" {
		t.Errorf("Strings = %v", got)
	}
}

func TestMapTechnician_NameFallsBackToLogin(t *testing.T) {
	f := DefaultFields().User
	tech := MapTechnician(Row{f.ID: "3", f.Login: "jdoe", f.Active: "1"}, f)
	if tech.Name != "jdoe" || !tech.Active || tech.Deleted {
		t.Errorf("unexpected technician %+v", tech)
	}

	tech = MapTechnician(Row{f.ID: "4", f.Login: "asilva", f.FirstName: " Ana ", f.RealName: "Silva", f.Active: "0"}, f)
	if tech.Name != "Ana Silva" || tech.Active {
		t.Errorf("unexpected technician %+v", tech)
	}
}

func TestWindow_Range(t *testing.T) {
	tests := []struct {
		w    Window
		want string
	}{
		{Window{Start: 0, Size: 1000}, "0-999"},
		{Window{Start: 1000, Size: 1000}, "1000-1999"},
		{Window{Start: 5, Size: 1}, "5-5"},
	}
	for _, tt := range tests {
		if got := tt.w.Range(); got != tt.want {
			t.Errorf("%+v.Range() = %q, want %q", tt.w, got, tt.want)
		}
	}
}

func TestEncodeSearch(t *testing.T) {
	params := encodeSearch(SearchRequest{
		Resource: "Ticket",
		Criteria: []Criterion{
			Equals("5", "7"),
			{Field: "15", SearchType: "morethan", Value: "2024-01-01 00:00:00"},
		},
		Fields:    []string{"2", "12"},
		Window:    Window{Start: 0, Size: 500},
		SortField: "2",
	})

	want := map[string]string{
		"criteria[0][field]":      "5",
		"criteria[0][searchtype]": "equals",
		"criteria[0][value]":      "7",
		"criteria[1][link]":       "AND",
		"criteria[1][searchtype]": "morethan",
		"forcedisplay[1]":         "12",
		"range":                   "0-499",
		"sort":                    "2",
	}
	for k, v := range want {
		if got := params.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if params.Has("criteria[0][link]") {
		t.Error("first criterion must not carry a link")
	}
}
