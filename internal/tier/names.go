package tier

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// NameTable maps each tier to the full names listed for it.
type NameTable map[Tier][]string

// NameSource supplies the name fallback table. Implementations must be
// safe for concurrent use.
type NameSource interface {
	Names(ctx context.Context) (NameTable, error)
}

// NormalizeName folds case and collapses whitespace so "  Ana  Souza" and
// "ana souza" compare equal.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup checks the table from Tier4 down to Tier1 and returns the first
// tier that lists name.
func (nt NameTable) Lookup(name string) (Tier, bool) {
	needle := NormalizeName(name)
	if needle == "" {
		return 0, false
	}
	for _, t := range Descending {
		for _, candidate := range nt[t] {
			if NormalizeName(candidate) == needle {
				return t, true
			}
		}
	}
	return 0, false
}

// Static is a fixed, in-memory NameSource.
type Static NameTable

// Names returns the table itself.
func (s Static) Names(context.Context) (NameTable, error) { return NameTable(s), nil }

// Directory is the on-disk layout of the tier directory file:
//
//	groups:
//	  Tier1: "12"
//	  Tier2: "13"
//	names:
//	  Tier4: ["Ana Souza"]
type Directory struct {
	Groups map[string]string   `yaml:"groups"`
	Names  map[string][]string `yaml:"names"`
}

// GroupTable returns the group ids keyed by tier.
func (d Directory) GroupTable() (map[Tier]string, error) {
	out := make(map[Tier]string, len(d.Groups))
	for k, v := range d.Groups {
		t, err := Parse(k)
		if err != nil {
			return nil, fmt.Errorf("groups: %w", err)
		}
		if v = strings.TrimSpace(v); v != "" {
			out[t] = v
		}
	}
	return out, nil
}

// NameTable returns the name lists keyed by tier.
func (d Directory) NameTable() (NameTable, error) {
	out := make(NameTable, len(d.Names))
	for k, v := range d.Names {
		t, err := Parse(k)
		if err != nil {
			return nil, fmt.Errorf("names: %w", err)
		}
		out[t] = append(out[t], v...)
	}
	return out, nil
}

// ReadDirectory parses a tier directory file.
func ReadDirectory(path string) (Directory, error) {
	var d Directory
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("failed to read tier directory: %w", err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse tier directory %s: %w", path, err)
	}
	return d, nil
}

// File is a NameSource backed by a tier directory file. The file is
// re-read when its modification time changes, so lists can be edited
// without a restart.
type File struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	table   NameTable
}

// NewFile returns a NameSource reading path lazily.
func NewFile(path string) *File {
	return &File{path: path}
}

// Names returns the current table, reloading it if the file changed. When a
// reload fails after a successful one, the previous table is kept.
func (f *File) Names(context.Context) (NameTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if f.table != nil {
			log.Warn().Err(err).Str("path", f.path).Msg("Tier directory unavailable, keeping previous names")
			return f.table, nil
		}
		return nil, fmt.Errorf("failed to stat tier directory: %w", err)
	}
	if f.table != nil && info.ModTime().Equal(f.modTime) {
		return f.table, nil
	}

	d, err := ReadDirectory(f.path)
	if err == nil {
		var table NameTable
		if table, err = d.NameTable(); err == nil {
			f.table = table
			f.modTime = info.ModTime()
			log.Info().Str("path", f.path).Int("tiers", len(table)).Msg("Tier directory loaded")
			return f.table, nil
		}
	}
	if f.table != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("Tier directory reload failed, keeping previous names")
		return f.table, nil
	}
	return nil, err
}
