package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"techrank/internal/mcp"
	"techrank/internal/ranking"
	"techrank/internal/visuals"

	"github.com/spf13/cobra"
)

var (
	fromFlag   string
	toFlag     string
	tierFlag   string
	groupFlag  string
	jsonOutput bool
	mermaid    bool
)

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "Print the technician ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mcp.ParseFilter(fromFlag, toFlag, tierFlag, engine.Location())
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		r, err := engine.Ranking(ctx, f)
		if err != nil {
			return err
		}
		switch {
		case jsonOutput:
			return writeJSON(cmd.OutOrStdout(), r)
		case mermaid:
			_, err := fmt.Fprintln(cmd.OutOrStdout(), visuals.RankingChart(r))
			return err
		}
		return writeRanking(cmd.OutOrStdout(), r)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <technician-id>",
	Short: "Print the metrics of one technician",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mcp.ParseFilter(fromFlag, toFlag, "", engine.Location())
		if err != nil {
			return err
		}
		rep, err := engine.TechnicianMetrics(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rep)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print ticket counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mcp.ParseFilter(fromFlag, toFlag, "", engine.Location())
		if err != nil {
			return err
		}
		technician, _ := cmd.Flags().GetString("technician")
		sum, err := engine.StatusSummary(cmd.Context(), ranking.Scope{Technician: technician, Group: groupFlag}, f)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), sum)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRanking(w io.Writer, r *ranking.Ranking) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTIER\tTECHNICIAN\tTOTAL\tRESOLVED\tPENDING\tRATE\t")
	for _, e := range r.Entries {
		name := e.Name
		if e.Stale {
			name += " (stale)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%.1f%%\t\n",
			e.Rank, e.Tier, name, e.Metrics.Total, e.Metrics.Resolved, e.Metrics.Pending, e.Metrics.ResolutionRate*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warn := range r.Warnings {
		if warn.Technician == "" {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warn.Message)
			continue
		}
		fmt.Fprintf(os.Stderr, "warning: technician %s: %s\n", warn.Technician, warn.Message)
	}
	if r.Canceled {
		fmt.Fprintln(os.Stderr, "warning: run canceled before every technician was evaluated")
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{rankingCmd, metricsCmd, summaryCmd} {
		c.Flags().StringVar(&fromFlag, "from", "", "count tickets created on or after this date (YYYY-MM-DD in the engine time zone)")
		c.Flags().StringVar(&toFlag, "to", "", "count tickets created before this date (YYYY-MM-DD)")
	}
	rankingCmd.Flags().StringVar(&tierFlag, "tier", "", "restrict to one tier (Tier1..Tier4)")
	rankingCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	rankingCmd.Flags().BoolVar(&mermaid, "mermaid", false, "print a Mermaid chart instead of a table")
	summaryCmd.Flags().String("technician", "", "only tickets assigned to this technician id")
	summaryCmd.Flags().StringVar(&groupFlag, "group", "", "only tickets assigned to this group id")
}
