// Package benchmark measures how quickly a watcher reports filesystem
// changes: files are created across a set of watched directories and the
// delay from each write to its file_created callback is recorded.
package benchmark

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
	"github.com/steveyegge/treewatch/internal/watcher"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// Files is the number of files to create
	Files int

	// Dirs spreads the files over this many watched subdirectories (0 uses
	// the root only)
	Dirs int

	// Backend selects the watch source
	Backend string

	// Dir is the directory to work in. Empty uses a temporary directory that
	// is removed afterwards.
	Dir string

	// Timeout bounds the wait for outstanding events
	Timeout time.Duration
}

// DefaultConfig returns a benchmark configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Files:   1000,
		Dirs:    10,
		Backend: inotify.BackendAuto,
		Timeout: 30 * time.Second,
	}
}

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config

	// Latency from write to callback
	Latency LatencyMetrics

	Throughput ThroughputMetrics
	Resources  ResourceMetrics

	// Nodes is the watch tree size after the run
	Nodes int

	// Missed counts files whose event did not arrive before the timeout
	Missed int

	TotalDuration time.Duration
	Success       bool
}

// LatencyMetrics captures delivery latency statistics.
type LatencyMetrics struct {
	Min  time.Duration
	P50  time.Duration // Median
	Mean time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	// Raw durations for analysis
	Durations []time.Duration
}

// ThroughputMetrics captures events-per-second metrics.
type ThroughputMetrics struct {
	EventsPerSecond float64
	TotalEvents     int
}

// ResourceMetrics captures memory usage.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64
	MemoryAfterBytes  uint64
	MemoryPeakBytes   uint64
	MemoryDeltaBytes  uint64
}

// Run executes one benchmark. It returns an error only when the setup
// fails; missing events are reported through Result.Missed.
func Run(ctx context.Context, config Config, logger *log.Logger) (Result, error) {
	if config.Files <= 0 {
		return Result{}, fmt.Errorf("benchmark needs at least one file")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	root := config.Dir
	if root == "" {
		tmp, err := os.MkdirTemp("", "treewatch-bench")
		if err != nil {
			return Result{}, fmt.Errorf("failed to create work directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		root = tmp
	}

	dirs := []string{root}
	if config.Dirs > 0 {
		dirs = dirs[:0]
		for i := 0; i < config.Dirs; i++ {
			dir := filepath.Join(root, fmt.Sprintf("d%04d", i))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return Result{}, fmt.Errorf("failed to create %s: %w", dir, err)
			}
			dirs = append(dirs, dir)
		}
	}

	var (
		mu        sync.Mutex
		sent      = make(map[string]time.Time, config.Files)
		latencies = make([]time.Duration, 0, config.Files)
		done      = make(chan struct{})
	)
	handlers := events.Handlers{
		FileCreated: func(path string) {
			mu.Lock()
			defer mu.Unlock()
			at, ok := sent[path]
			if !ok {
				return
			}
			delete(sent, path)
			latencies = append(latencies, time.Since(at))
			if len(latencies) == config.Files {
				close(done)
			}
		},
	}

	w, err := watcher.NewWithConfig(&watcher.Config{
		Logger:  logger,
		Backend: config.Backend,
	}, handlers, root)
	if err != nil {
		return Result{}, err
	}
	defer w.Close()

	before := GetMemoryStats()
	start := time.Now()

	for i := 0; i < config.Files; i++ {
		path := filepath.Join(dirs[i%len(dirs)], fmt.Sprintf("f%06d", i))
		mu.Lock()
		sent[path] = time.Now()
		mu.Unlock()
		if err := os.WriteFile(path, nil, 0644); err != nil {
			return Result{}, fmt.Errorf("failed to create %s: %w", path, err)
		}
	}

	timer := time.NewTimer(config.Timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logger.Printf("timed out waiting for events")
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	elapsed := time.Since(start)

	mu.Lock()
	received := append([]time.Duration(nil), latencies...)
	mu.Unlock()

	result := Result{
		Config:        config,
		Latency:       ComputeStats(received),
		Resources:     CompareMemoryStats(before, GetMemoryStats()),
		Nodes:         w.Stats().Nodes,
		Missed:        config.Files - len(received),
		TotalDuration: elapsed,
	}
	result.Throughput = ThroughputMetrics{
		TotalEvents:     len(received),
		EventsPerSecond: float64(len(received)) / elapsed.Seconds(),
	}
	result.Success = result.Missed == 0

	if err := w.Close(); err != nil {
		return result, err
	}
	return result, nil
}

// ComputeStats calculates statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Min:       sorted[0],
		P50:       sorted[len(sorted)*50/100],
		Mean:      sum / time.Duration(len(sorted)),
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// GetMemoryStats returns current memory usage statistics.
func GetMemoryStats() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		MemoryBeforeBytes: m.Alloc,
		MemoryAfterBytes:  m.Alloc,
		MemoryPeakBytes:   m.Sys,
	}
}

// CompareMemoryStats computes the delta between before and after memory stats.
// A shrinking heap reports a zero delta.
func CompareMemoryStats(before, after ResourceMetrics) ResourceMetrics {
	var delta uint64
	if after.MemoryAfterBytes > before.MemoryBeforeBytes {
		delta = after.MemoryAfterBytes - before.MemoryBeforeBytes
	}

	return ResourceMetrics{
		MemoryBeforeBytes: before.MemoryBeforeBytes,
		MemoryAfterBytes:  after.MemoryAfterBytes,
		MemoryPeakBytes:   after.MemoryPeakBytes,
		MemoryDeltaBytes:  delta,
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintResult writes a formatted benchmark result.
func PrintResult(w io.Writer, result Result) {
	backend := result.Config.Backend
	if backend == "" {
		backend = inotify.BackendAuto
	}
	fmt.Fprintf(w, "\n=== Watch Benchmark (%s backend) ===\n\n", backend)

	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Files:             %d\n", result.Config.Files)
	fmt.Fprintf(w, "  Directories:       %d\n", result.Config.Dirs)
	fmt.Fprintf(w, "  Watched Nodes:     %d\n", result.Nodes)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Latency (write to callback):\n")
	fmt.Fprintf(w, "  Min:       %s\n", FormatDuration(result.Latency.Min))
	fmt.Fprintf(w, "  P50:       %s\n", FormatDuration(result.Latency.P50))
	fmt.Fprintf(w, "  Mean:      %s\n", FormatDuration(result.Latency.Mean))
	fmt.Fprintf(w, "  P95:       %s\n", FormatDuration(result.Latency.P95))
	fmt.Fprintf(w, "  P99:       %s\n", FormatDuration(result.Latency.P99))
	fmt.Fprintf(w, "  Max:       %s\n", FormatDuration(result.Latency.Max))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Throughput:\n")
	fmt.Fprintf(w, "  Events/sec:        %.2f\n", result.Throughput.EventsPerSecond)
	fmt.Fprintf(w, "  Total Events:      %d\n", result.Throughput.TotalEvents)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Resources:\n")
	fmt.Fprintf(w, "  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Fprintf(w, "  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Fprintf(w, "  Memory Peak:       %s\n", FormatBytes(result.Resources.MemoryPeakBytes))
	fmt.Fprintf(w, "  Memory Delta:      %s\n", FormatBytes(result.Resources.MemoryDeltaBytes))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Overall:\n")
	fmt.Fprintf(w, "  Total Duration:    %s\n", FormatDuration(result.TotalDuration))
	fmt.Fprintf(w, "  Missed Events:     %d\n", result.Missed)
	fmt.Fprintf(w, "  Success:           %v\n", result.Success)
	fmt.Fprintf(w, "\n")
}
