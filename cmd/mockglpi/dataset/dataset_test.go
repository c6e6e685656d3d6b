package dataset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/glpi/glpitest"
	"techrank/internal/ranking"
	"techrank/internal/tier"
)

func TestGenerate_RankingEndToEnd(t *testing.T) {
	srv := glpitest.New()
	defer srv.Close()

	dir, sum := Generate(srv, Config{Scenario: Volume, Technicians: 20, Seed: 7, Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	if sum.Technicians != 20 || sum.Inactive != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := WriteDirectory(path, dir); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	read, err := tier.ReadDirectory(path)
	if err != nil {
		t.Fatalf("ReadDirectory: %v", err)
	}
	groups, err := read.GroupTable()
	if err != nil || len(groups) != 4 {
		t.Fatalf("groups = %v, %v", groups, err)
	}

	fetcher := fetch.New(fetch.Config{PageSize: 1000}, nil)
	engine := ranking.New(ranking.Options{
		Upstream: ranking.FromClient(glpi.NewClient(srv.Config())),
		Fetcher:  fetcher,
		Resolver: tier.NewResolver(tier.Options{Fetcher: fetcher, Groups: groups, Names: tier.NewFile(path)}),
		Location: time.UTC,
	})

	r, err := engine.Ranking(context.Background(), ranking.Filter{})
	if err != nil {
		t.Fatalf("Ranking: %v", err)
	}
	if r.Partial || len(r.Entries) != sum.Technicians-sum.Inactive {
		t.Fatalf("ranked %d of %d active technicians (partial=%v)", len(r.Entries), sum.Technicians-sum.Inactive, r.Partial)
	}

	total, bySource := 0, map[tier.Source]int{}
	perTier := map[tier.Tier]int{}
	for _, e := range r.Entries {
		total += e.Metrics.Total
		bySource[e.TierSource]++
		perTier[e.Tier]++
	}
	if total != sum.Tickets {
		t.Errorf("ranked tickets = %d, generated %d", total, sum.Tickets)
	}
	if bySource[tier.SourceName] != sum.NameOnly || bySource[tier.SourceDefault] != sum.Untiered {
		t.Errorf("sources = %v, summary = %+v", bySource, sum)
	}
	for _, tr := range tier.All {
		if perTier[tr] != sum.ByTier[tr] {
			t.Errorf("%v: ranked %d, generated %d", tr, perTier[tr], sum.ByTier[tr])
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, b := glpitest.New(), glpitest.New()
	defer a.Close()
	defer b.Close()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, sa := Generate(a, Config{Scenario: Mild, Technicians: 8, Seed: 3, Now: now})
	_, sb := Generate(b, Config{Scenario: Mild, Technicians: 8, Seed: 3, Now: now})
	if sa.Tickets != sb.Tickets || sa.NameOnly != sb.NameOnly {
		t.Errorf("same seed produced %+v and %+v", sa, sb)
	}
}
