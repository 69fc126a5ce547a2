package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/benchmark"
	"github.com/steveyegge/treewatch/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Measure event delivery latency on this machine",
	Long: `Create files across watched directories and measure the delay from each
write to its file_created callback.

Examples:
  treewatch bench                          # 1000 files over 10 directories
  treewatch bench --files 10000 --dirs 100
  treewatch bench --backend fsnotify       # Compare with the portable source`,
	Run: func(cmd *cobra.Command, args []string) {
		config := benchmark.DefaultConfig()
		config.Backend = cfg.Backend
		config.Files, _ = cmd.Flags().GetInt("files")
		config.Dirs, _ = cmd.Flags().GetInt("dirs")
		config.Dir, _ = cmd.Flags().GetString("dir")
		config.Timeout, _ = cmd.Flags().GetDuration("timeout")

		fmt.Printf("%s Creating %d files...\n", ui.RenderAccent("⏱"), config.Files)
		result, err := benchmark.Run(cmd.Context(), config, newLogger("[bench] "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		benchmark.PrintResult(os.Stdout, result)
		if !result.Success {
			fmt.Fprintf(os.Stderr, "%s %d events did not arrive\n", ui.RenderWarn("⚠"), result.Missed)
			os.Exit(1)
		}
	},
}

func init() {
	defaults := benchmark.DefaultConfig()
	benchCmd.Flags().Int("files", defaults.Files, "Number of files to create")
	benchCmd.Flags().Int("dirs", defaults.Dirs, "Number of watched directories to spread them over")
	benchCmd.Flags().String("dir", "", "Work directory (default: a temporary directory)")
	benchCmd.Flags().Duration("timeout", defaults.Timeout, "How long to wait for outstanding events")
	benchCmd.Flags().String("backend", "auto", "Watch source: auto, inotify or fsnotify")

	rootCmd.AddCommand(benchCmd)
}
