package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/journal"
	"github.com/steveyegge/treewatch/internal/ui"
)

var journalCmd = &cobra.Command{
	Use:     "journal",
	GroupID: "journal",
	Short:   "Inspect events recorded with --record",
	Long: `Inspect and maintain the event journal.

'treewatch watch --record' and 'treewatch serve --record' append every
reported event to a local SQLite database (default in the user cache
directory, see 'treewatch config show').`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded events, newest first",
	Long: `List recorded events, newest first.

Times accept RFC 3339, a duration meaning "that long ago", or plain English.

Examples:
  treewatch journal list --since "2 hours ago"
  treewatch journal list --since yesterday --kind file_deleted,dir_deleted
  treewatch journal list --path ./src --limit 0 --format json`,
	Run: func(cmd *cobra.Command, args []string) {
		now := time.Now()
		sinceFlag, _ := cmd.Flags().GetString("since")
		untilFlag, _ := cmd.Flags().GetString("until")
		kindFlags, _ := cmd.Flags().GetStringSlice("kind")
		pathFlag, _ := cmd.Flags().GetString("path")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := journal.Filter{Limit: limit}
		var err error
		if filter.Since, err = parseWhen(sinceFlag, now); err != nil {
			fmt.Fprintf(os.Stderr, "Error: --since: %v\n", err)
			os.Exit(1)
		}
		if filter.Until, err = parseWhen(untilFlag, now); err != nil {
			fmt.Fprintf(os.Stderr, "Error: --until: %v\n", err)
			os.Exit(1)
		}
		if filter.Kinds, err = parseKinds(kindFlags); err != nil {
			fmt.Fprintf(os.Stderr, "Error: --kind: %v\n", err)
			os.Exit(1)
		}
		if pathFlag != "" {
			if filter.PathPrefix, err = filepath.Abs(pathFlag); err != nil {
				fmt.Fprintf(os.Stderr, "Error: --path: %v\n", err)
				os.Exit(1)
			}
		}

		j := openJournal()
		defer j.Close()

		entries, err := j.QueryContext(cmd.Context(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying journal: %v\n", err)
			os.Exit(1)
		}

		out := newPrinter(os.Stdout, cfg.Format)
		defer out.Close()
		for _, e := range entries {
			if err := out.Entry(e); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
				os.Exit(1)
			}
		}
		if len(entries) == 0 && ui.IsTerminal(os.Stdout) {
			fmt.Printf("%s No matching events in %s\n", ui.RenderWarn("⚠"), j.Path())
		}
	},
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events recorded before a point in time",
	Long: `Delete events recorded before --before.

Examples:
  treewatch journal prune --before "7 days ago"
  treewatch journal prune --before 2026-01-01T00:00:00Z`,
	Run: func(cmd *cobra.Command, args []string) {
		beforeFlag, _ := cmd.Flags().GetString("before")
		cutoff, err := parseWhen(beforeFlag, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --before: %v\n", err)
			os.Exit(1)
		}
		if cutoff.IsZero() {
			fmt.Fprintf(os.Stderr, "Error: --before is required\n")
			os.Exit(1)
		}

		j := openJournal()
		defer j.Close()

		removed, err := j.Prune(cmd.Context(), cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning journal: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Pruned %d events recorded before %s\n",
			ui.RenderPass("✓"), removed, cutoff.Format("2006-01-02 15:04:05"))
	},
}

func openJournal() *journal.Journal {
	if _, err := os.Stat(cfg.Journal); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "%s No journal at %s\n", ui.RenderWarn("⚠"), cfg.Journal)
		fmt.Fprintf(os.Stderr, "   Run 'treewatch watch --record' to start one\n")
		os.Exit(1)
	}
	j, err := journal.OpenContext(context.Background(), cfg.Journal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	return j
}

func init() {
	journalCmd.PersistentFlags().String("journal", "", "Journal database path")

	journalListCmd.Flags().String("since", "", "Only events recorded at or after this time")
	journalListCmd.Flags().String("until", "", "Only events recorded before this time")
	journalListCmd.Flags().StringSlice("kind", nil, "Only these event kinds")
	journalListCmd.Flags().String("path", "", "Only events at or below this path")
	journalListCmd.Flags().IntP("limit", "n", 50, "Maximum number of events (0 for all)")
	journalListCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")

	journalPruneCmd.Flags().String("before", "", "Delete events recorded before this time (required)")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}
