package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/journal"
	"github.com/steveyegge/treewatch/internal/ui"
	"github.com/steveyegge/treewatch/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch [path...]",
	GroupID: "watch",
	Short:   "Print lifecycle events for files and directory trees",
	Long: `Watch the given paths (default: the current directory) and print one line
per lifecycle event until interrupted.

Directories are watched recursively. Entries created inside a watched
directory are picked up automatically, and renames within the watched tree
are reported as a single moved event.

Examples:
  treewatch watch                         # Watch the current directory
  treewatch watch src docs --watched      # Also list entries found at startup
  treewatch watch --only file_created,file_deleted
  treewatch watch --format json | jq .    # One JSON object per event
  treewatch watch --record                # Also append events to the journal`,
	Run: func(cmd *cobra.Command, args []string) {
		paths := args
		if len(paths) == 0 {
			paths = []string{"."}
		}

		kinds, err := cfg.Kinds()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var j *journal.Journal
		if cfg.Record {
			if j, err = journal.Open(cfg.Journal); err != nil {
				fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
				os.Exit(1)
			}
			defer j.Close()
		}

		out := newPrinter(os.Stdout, cfg.Format)
		defer out.Close()

		logger := newLogger("[watch] ")
		sel := newSelection(kinds, cfg.Watched)
		handle := eventSink(sel, out, j, logger)

		wcfg := watcherConfig()
		w, err := watcher.NewWithConfig(wcfg, events.Func(handle, sel.Subscribed()...), paths...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if ui.IsTerminal(os.Stderr) {
			fmt.Fprintf(os.Stderr, "%s Watching %s under %v (Ctrl+C to stop)\n",
				ui.RenderAccent("👀"), summarize(w.Walk), paths)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		select {
		case <-ctx.Done():
		case <-w.Done():
		}

		stats := w.Stats()
		if err := w.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		if ui.IsTerminal(os.Stderr) {
			fmt.Fprintf(os.Stderr, "\n%s Stopped with %d entries watched\n", ui.RenderPass("✓"), stats.Nodes)
		}
	},
}

// watcherConfig builds the watcher configuration from the loaded settings.
func watcherConfig() *watcher.Config {
	c := watcher.DefaultConfig()
	c.Logger = newLogger("[watcher] ")
	c.Backend = cfg.Backend
	c.Debug = cfg.Verbose
	return c
}

// eventSink returns the dispatch callback shared by watch and serve: print
// the selected kinds and journal everything that was printed. It runs on the
// watcher's single dispatch goroutine.
func eventSink(sel selection, out *printer, j *journal.Journal, logger *log.Logger) func(events.Event) {
	return func(ev events.Event) {
		if !sel.Wants(ev.Kind) {
			return
		}
		if out != nil {
			if err := out.Event(ev); err != nil {
				logger.Printf("failed to print %s: %v", ev, err)
			}
		}
		if j != nil {
			if err := j.Record(ev); err != nil {
				logger.Printf("failed to record %s: %v", ev, err)
			}
		}
	}
}

func init() {
	watchCmd.Flags().String("backend", "auto", "Watch source: auto, inotify or fsnotify")
	watchCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	watchCmd.Flags().StringSlice("only", nil, "Only print these event kinds (see 'treewatch kinds')")
	watchCmd.Flags().Bool("watched", false, "Print entries found at startup as *_watched events")
	watchCmd.Flags().Bool("record", false, "Append printed events to the journal")
	watchCmd.Flags().String("journal", "", "Journal database path")

	rootCmd.AddCommand(watchCmd)
}
