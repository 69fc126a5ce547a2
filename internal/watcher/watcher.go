package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
	"github.com/steveyegge/treewatch/internal/metrics"
	"github.com/steveyegge/treewatch/internal/tree"
)

// Config holds configuration for a Watcher.
type Config struct {
	// Logger for loop errors and registration failures
	Logger *log.Logger

	// Backend selects the raw source: "auto", "inotify" or "fsnotify"
	Backend string

	// Metrics is optional
	Metrics *metrics.Collector

	// Debug logs every raw record and event
	Debug bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger:  log.New(os.Stderr, "[watcher] ", log.LstdFlags),
		Backend: inotify.BackendAuto,
	}
}

// sourceErrorPause throttles the translate loop when the source keeps
// failing.
const sourceErrorPause = 50 * time.Millisecond

// Stats is a point-in-time view of a watcher.
type Stats struct {
	Nodes  int  `json:"nodes"`
	Queued int  `json:"queued"`
	Closed bool `json:"closed"`
}

// Watcher watches paths and dispatches lifecycle events until closed.
type Watcher struct {
	config     *Config
	tree       *tree.Tree
	queue      *events.Queue
	dispatcher *events.Dispatcher

	group     errgroup.Group
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New watches paths with the default configuration.
func New(handlers events.Handlers, paths ...string) (*Watcher, error) {
	return NewWithConfig(DefaultConfig(), handlers, paths...)
}

// NewWithConfig creates a watcher with custom configuration.
//
// Every path is registered before New returns. Entries are reported as
// watched when handlers has a FileWatched or DirWatched callback, and as
// created otherwise. If any path cannot be watched, everything is released
// and the error is returned.
func NewWithConfig(config *Config, handlers events.Handlers, paths ...string) (*Watcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}

	source, err := inotify.New(config.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch source: %w", err)
	}

	queue := events.NewQueue()
	t := tree.New(source, queue, tree.Options{
		Logger:        config.Logger,
		Metrics:       config.Metrics,
		WatchedEvents: handlers.HasWatched(),
		Debug:         config.Debug,
	})
	for _, path := range paths {
		if err := t.RegisterPath(path, true); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	w := &Watcher{
		config:     config,
		tree:       t,
		queue:      queue,
		dispatcher: events.NewDispatcher(handlers, config.Logger, config.Metrics),
		done:       make(chan struct{}),
	}
	w.group.Go(func() error {
		w.loop("translate", w.translate)
		return nil
	})
	w.group.Go(func() error {
		w.loop("dispatch", w.dispatch)
		return nil
	})
	return w, nil
}

// loop runs step until it reports completion. Errors and panics are logged
// and the loop continues.
func (w *Watcher) loop(name string, step func() (bool, error)) {
	for {
		done, err := w.safeStep(step)
		if err != nil {
			w.config.Metrics.LoopError(name)
			w.config.Logger.Printf("%s: %v", name, err)
		}
		if done {
			return
		}
	}
}

func (w *Watcher) safeStep(step func() (bool, error)) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return step()
}

// translate drains one batch from the source.
func (w *Watcher) translate() (bool, error) {
	err := w.tree.Drain()
	if errors.Is(err, inotify.ErrClosed) {
		return true, nil
	}
	if err != nil && !errors.Is(err, tree.ErrProtocolViolation) {
		time.Sleep(sourceErrorPause)
	}
	return false, err
}

// dispatch delivers events until the queue sentinel, so events queued
// before Close are still delivered.
func (w *Watcher) dispatch() (bool, error) {
	w.dispatcher.Run(w.queue)
	return true, nil
}

// Close stops the watcher and waits for both loops to exit. It is safe to
// call more than once and from several goroutines. Close must not be called
// from inside a handler.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.queue.Close()
		if err := w.tree.Close(); err != nil {
			w.closeErr = fmt.Errorf("failed to close watch source: %w", err)
		}
		w.group.Wait()
		close(w.done)
	})
	return w.closeErr
}

// Done returns a channel closed once the watcher has fully stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the watcher is closed. It reports false only when
// timeout is positive and elapses first. Wait never closes the watcher.
func (w *Watcher) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-w.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		return false
	}
}

// Closed reports whether Close has been called.
func (w *Watcher) Closed() bool {
	return w.closed.Load()
}

// Stats returns the current tree size and dispatch backlog.
func (w *Watcher) Stats() Stats {
	return Stats{
		Nodes:  w.tree.Len(),
		Queued: w.queue.Len(),
		Closed: w.closed.Load(),
	}
}

// Walk visits every watched entry, parents before children. Returning false
// from fn skips the entry's children.
func (w *Watcher) Walk(fn func(tree.Node) bool) {
	w.tree.Walk(fn)
}

// Roots returns the top-level watched entries.
func (w *Watcher) Roots() []tree.Node {
	return w.tree.Roots()
}

// Watch runs a watcher until ctx is done, then closes it. The watcher is
// always closed before Watch returns.
func Watch(ctx context.Context, config *Config, handlers events.Handlers, paths ...string) error {
	w, err := NewWithConfig(config, handlers, paths...)
	if err != nil {
		return err
	}
	defer w.Close()

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	return w.Close()
}
