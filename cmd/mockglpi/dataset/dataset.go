// Package dataset fills a fake GLPI server with a plausible service desk:
// technicians in tier groups, a name directory and tickets in every status.
package dataset

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"techrank/internal/glpi/glpitest"
	"techrank/internal/stats"
	"techrank/internal/tier"

	"gopkg.in/yaml.v3"
)

// Scenarios.
const (
	Mild   = "mild"   // small ticket sets, one page each
	Volume = "volume" // a few technicians need several pages
	Chaos  = "chaos"  // volume plus random upstream failures
)

type Config struct {
	Scenario    string
	Technicians int
	Seed        int64
	// FailureRate is the share of ticket searches failed with a 500 in the
	// chaos scenario.
	FailureRate float64
	Now         time.Time
}

// GroupID returns the GLPI group id used for t.
func GroupID(t tier.Tier) string { return strconv.Itoa(10 + int(t)) }

var (
	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elisa", "Fabio", "Gabriela", "Hugo", "Iris", "Joao", "Karen", "Lucas"}
	lastNames  = []string{"Souza", "Lima", "Dias", "Rocha", "Melo", "Reis", "Paz", "Neves", "Luz", "Cruz", "Alves", "Prado"}
)

// Summary reports what Generate created.
type Summary struct {
	Technicians int
	Inactive    int
	Tickets     int
	ByTier      map[tier.Tier]int
	NameOnly    int
	Untiered    int
}

// Generate populates srv and returns the tier directory that matches it.
func Generate(srv *glpitest.Server, cfg Config) (tier.Directory, Summary) {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.Technicians <= 0 {
		cfg.Technicians = 12
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	dir := tier.Directory{Groups: map[string]string{}, Names: map[string][]string{}}
	for _, t := range tier.All {
		dir.Groups[t.String()] = GroupID(t)
	}
	sum := Summary{ByTier: map[tier.Tier]int{}}

	for i := 0; i < cfg.Technicians; i++ {
		id := strconv.Itoa(100 + i)
		first := firstNames[i%len(firstNames)]
		last := lastNames[(i/len(firstNames)+i*7)%len(lastNames)]
		login := fmt.Sprintf("%s.%s", first, last)
		t := tier.All[rng.Intn(len(tier.All))]

		// 1. Identity; every tenth technician has left
		active := i%10 != 9
		srv.AddTechnician(id, login, first, last, active)
		sum.Technicians++
		if !active {
			sum.Inactive++
			continue
		}

		// 2. Tier: mostly by group, some only by name, a few nowhere
		switch roll := rng.Float64(); {
		case roll < 0.7:
			srv.AddMembership(id, GroupID(t))
			sum.ByTier[t]++
		case roll < 0.9:
			dir.Names[t.String()] = append(dir.Names[t.String()], first+" "+last)
			sum.ByTier[t]++
			sum.NameOnly++
		default:
			sum.ByTier[tier.Tier1]++
			sum.Untiered++
		}

		// 3. Tickets over the last 90 days
		n := ticketCount(rng, cfg.Scenario, i)
		weights := statusWeights(rng)
		start := cfg.Now.AddDate(0, 0, -90)
		srv.AddTickets(id, GroupID(t), n, start, func(int) int { return pickStatus(rng, weights) })
		sum.Tickets += n
	}

	if cfg.Scenario == Chaos {
		rate := cfg.FailureRate
		if rate <= 0 {
			rate = 0.05
		}
		var mu sync.Mutex
		failRng := rand.New(rand.NewSource(cfg.Seed + 1))
		srv.Fail = func(c glpitest.Call) int {
			if c.Resource != "Ticket" {
				return 0
			}
			mu.Lock()
			defer mu.Unlock()
			if failRng.Float64() < rate {
				return http.StatusInternalServerError
			}
			return 0
		}
	}
	return dir, sum
}

func ticketCount(rng *rand.Rand, scenario string, i int) int {
	switch scenario {
	case Volume, Chaos:
		if i%4 == 0 {
			return 1500 + rng.Intn(3500)
		}
	}
	return rng.Intn(300)
}

func statusWeights(rng *rand.Rand) []float64 {
	resolved := 0.5 + rng.Float64()*0.4
	pending := (1 - resolved) / 2
	rest := (1 - resolved - pending) / 3
	// New, Assigned, Planned, Waiting, Solved, Closed
	return []float64{rest, rest, rest, pending, resolved * 0.3, resolved * 0.7}
}

func pickStatus(rng *rand.Rand, weights []float64) int {
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return stats.StatusNew + i
		}
		r -= w
	}
	return stats.StatusClosed
}

// WriteDirectory saves dir as YAML at path.
func WriteDirectory(path string, dir tier.Directory) error {
	data, err := yaml.Marshal(dir)
	if err != nil {
		return fmt.Errorf("failed to encode tier directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
