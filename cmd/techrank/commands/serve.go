package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"techrank/internal/mcp"
	"techrank/internal/ranking"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	refresh     bool
	metricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ranking tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		// 1. Warm the caches from the last snapshot
		if err := engine.LoadSnapshot(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("Failed to load cache snapshot")
		}
		defer func() {
			if err := engine.SaveSnapshot(cfg.CacheDir); err != nil {
				log.Error().Err(err).Str("dir", cfg.CacheDir).Msg("Failed to save cache snapshot")
			}
		}()

		// 2. Optional Prometheus endpoint
		if metricsAddr != "" {
			srv := startMetrics(metricsAddr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		// 3. Optional background refresh
		if refresh {
			go func() {
				_ = engine.Refresh(ctx, cfg.Engine.RefreshInterval, ranking.Filter{})
			}()
		}

		// 4. MCP stdio loop
		err := mcp.NewServer(engine, Version).Serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func startMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics endpoint stopped")
		}
	}()
	return srv
}

func init() {
	serveCmd.Flags().BoolVar(&refresh, "refresh", false, "recompute the default ranking periodically (engine.refresh_interval)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
}
