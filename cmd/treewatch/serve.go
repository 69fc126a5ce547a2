package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/dashboard"
	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/journal"
	"github.com/steveyegge/treewatch/internal/metrics"
	"github.com/steveyegge/treewatch/internal/ui"
	"github.com/steveyegge/treewatch/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve [path...]",
	GroupID: "watch",
	Short:   "Stream lifecycle events to WebSocket clients",
	Long: `Watch the given paths (default: the current directory) and stream every
event to WebSocket clients until interrupted.

WebSocket messages:
- event: one lifecycle event {"kind", "path", "new_path"}
- stats: running totals by kind plus the watcher's node count and backlog

Endpoints:
  ws://localhost:8080/ws        event stream
  http://localhost:8080/health  server and watcher status
  http://localhost:8080/metrics Prometheus metrics

Example usage:
  treewatch serve                 # Start on default port 8080
  treewatch serve src --port 9000 # Start on custom port
  treewatch serve --record        # Also append events to the journal`,
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

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.New(registry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error registering metrics: %v\n", err)
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

		var current atomic.Pointer[watcher.Watcher]
		server := dashboard.NewServer(&dashboard.Config{
			Port:     cfg.Serve.Port,
			Logger:   newLogger("[dashboard] "),
			Gatherer: registry,
			Health: func() any {
				if w := current.Load(); w != nil {
					return w.Stats()
				}
				return nil
			},
		})
		handler := dashboard.NewHandler(server, newLogger("[events] "))

		// Start serving first so the initial scan reaches connected clients.
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		sel := newSelection(kinds, cfg.Watched)
		record := eventSink(sel, nil, j, newLogger("[serve] "))
		forward := func(ev events.Event) {
			if sel.Wants(ev.Kind) {
				handler.OnEvent(ev)
			}
			record(ev)
		}

		wcfg := watcherConfig()
		wcfg.Metrics = m
		w, err := watcher.NewWithConfig(wcfg, events.Func(forward, sel.Subscribed()...), paths...)
		if err != nil {
			_ = server.Stop()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		current.Store(w)
		handler.SetSnapshot(w.Stats)

		addr := server.GetAddr()
		fmt.Printf("%s Watching %s under %v\n", ui.RenderAccent("👀"), summarize(w.Walk), paths)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		fmt.Printf("Metrics: http://%s/metrics\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		select {
		case <-ctx.Done():
		case <-w.Done():
		}

		fmt.Println("\nShutting down...")
		if err := w.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing watcher: %v\n", err)
		}
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("backend", "auto", "Watch source: auto, inotify or fsnotify")
	serveCmd.Flags().StringSlice("only", nil, "Only stream these event kinds (see 'treewatch kinds')")
	serveCmd.Flags().Bool("watched", false, "Stream entries found at startup as *_watched events")
	serveCmd.Flags().Bool("record", false, "Append streamed events to the journal")
	serveCmd.Flags().String("journal", "", "Journal database path")

	rootCmd.AddCommand(serveCmd)
}
