package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"techrank/internal/config"
	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/logging"
	"techrank/internal/ranking"
	"techrank/internal/telemetry"
	"techrank/internal/tier"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	recorder *telemetry.Recorder
	engine   *ranking.Engine
)

var rootCmd = &cobra.Command{
	Use:   "techrank",
	Short: "Technician metrics and ranking engine for GLPI",
	Long: `techrank reads tickets from the GLPI REST API, resolves each technician's service tier,
and ranks technicians by ticket volume and resolution rate. Results are cached so
dashboards and MCP clients can query them cheaply.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logging.Init(logging.Options{Verbose: verbose}); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		engine, err = newEngine(cfg)
		if err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("glpi", cfg.GLPI.BaseURL).
			Msg("techrank starting")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(serveCmd, rankingCmd, metricsCmd, summaryCmd)
}

func newEngine(c *config.AppConfig) (*ranking.Engine, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	groups, err := c.TierGroups()
	if err != nil {
		return nil, err
	}

	recorder = telemetry.New()
	client := glpi.NewClient(c.ClientConfig(), glpi.WithRecorder(recorder))
	fetcher := fetch.New(c.FetcherConfig(), recorder)
	resolver := tier.NewResolver(tier.Options{
		Fetcher: fetcher,
		Fields:  c.Fields.Membership,
		Groups:  groups,
		Names:   c.NameSource(),
		Metrics: recorder,
	})
	if len(groups) == 0 {
		log.Warn().Msg("No tier groups configured; tiers come from the name directory or default to Tier1")
	}

	return ranking.New(ranking.Options{
		Upstream:          ranking.FromClient(client),
		Fetcher:           fetcher,
		Resolver:          resolver,
		Fields:            c.Fields,
		Statuses:          c.StatusTable(),
		TechnicianProfile: c.Engine.TechnicianProfile,
		Location:          loc,
		Workers:           c.Engine.Workers,
		ShortTTL:          c.Engine.ShortTTL,
		LongTTL:           c.Engine.LongTTL,
		TierTTL:           c.Engine.TierTTL,
		RankingTTL:        c.Engine.RankingTTL,
		StaleGrace:        c.Engine.StaleGrace,
		Metrics:           recorder,
	}), nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
