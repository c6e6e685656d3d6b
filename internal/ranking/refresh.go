package ranking

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresh recomputes the ranking for f every interval until ctx ends,
// keeping the caches warm for interactive callers. The first run starts
// immediately. Failed runs are logged and retried on the next tick.
func (e *Engine) Refresh(ctx context.Context, interval time.Duration, f Filter) error {
	if interval <= 0 {
		interval = e.rankingTTL
	}
	log.Info().Dur("interval", interval).Msg("Periodic ranking refresh started")

	for {
		e.rankings.Delete(rankingKey(f))
		if r, err := e.Ranking(ctx, f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Scheduled ranking refresh failed")
		} else {
			log.Debug().Str("run", r.RunID).Int("ranked", len(r.Entries)).Msg("Scheduled ranking refresh done")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Periodic ranking refresh stopped")
			return nil
		case <-e.clock.After(interval):
		}
	}
}

// Snapshot file names inside a cache directory.
const (
	technicianSnapshot = "technicians.jsonl"
	tierSnapshot       = "tiers.jsonl"
)

// SaveSnapshot persists the technician metrics and tier caches to dir so a
// restart keeps its last good values.
func (e *Engine) SaveSnapshot(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := e.technicians.SaveSnapshot(filepath.Join(dir, technicianSnapshot)); err != nil {
		return err
	}
	return e.tiers.SaveSnapshot(filepath.Join(dir, tierSnapshot))
}

// LoadSnapshot restores caches written by SaveSnapshot. Missing files are
// ignored.
func (e *Engine) LoadSnapshot(dir string) error {
	if err := e.technicians.LoadSnapshot(filepath.Join(dir, technicianSnapshot)); err != nil {
		return err
	}
	return e.tiers.LoadSnapshot(filepath.Join(dir, tierSnapshot))
}
