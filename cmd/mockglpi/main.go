// Command mockglpi serves a generated GLPI dataset for local runs of
// techrank.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"techrank/cmd/mockglpi/dataset"
	"techrank/internal/glpi/glpitest"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8090", "Listen address")
	scenario := flag.String("scenario", dataset.Mild, "Scenario to generate: mild, volume, chaos")
	count := flag.Int("technicians", 12, "Number of technicians to generate")
	seed := flag.Int64("seed", 1, "Random seed")
	maxRange := flag.Int("max-range", 0, "Cap rows per response like GLPI's list_limit_max (0 = none)")
	tiersOut := flag.String("tiers-out", "", "Write the matching tier directory YAML to this path")
	flag.Parse()

	srv, err := glpitest.NewAt(*addr)
	if err != nil {
		fmt.Printf("Failed to listen on %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer srv.Close()
	srv.MaxRange = *maxRange

	dir, sum := dataset.Generate(srv, dataset.Config{
		Scenario:    *scenario,
		Technicians: *count,
		Seed:        *seed,
		Now:         time.Now(),
	})

	if *tiersOut != "" {
		if err := dataset.WriteDirectory(*tiersOut, dir); err != nil {
			fmt.Printf("Failed to write tier directory: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Scenario '%s': %d technicians (%d inactive), %d tickets\n", *scenario, sum.Technicians, sum.Inactive, sum.Tickets)
	fmt.Printf("TECHRANK_GLPI__BASE_URL=%s\n", srv.URL)
	fmt.Printf("TECHRANK_GLPI__APP_TOKEN=%s\n", glpitest.AppToken)
	fmt.Printf("TECHRANK_GLPI__USER_TOKEN=%s\n", glpitest.UserToken)
	if *tiersOut != "" {
		fmt.Printf("TECHRANK_TIERS__DIRECTORY_FILE=%s\n", *tiersOut)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	fmt.Println("Done.")
}
