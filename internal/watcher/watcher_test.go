//go:build linux

package watcher

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
	"github.com/steveyegge/treewatch/internal/tree"
)

const eventTimeout = 3 * time.Second

// collector receives events from the dispatch goroutine.
type collector struct {
	ch chan events.Event
}

func newCollector() *collector {
	return &collector{ch: make(chan events.Event, 256)}
}

func (c *collector) handle(ev events.Event) {
	c.ch <- ev
}

// next returns the next event or fails the test on timeout.
func (c *collector) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-c.ch:
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timeout waiting for event")
		return events.Event{}
	}
}

func (c *collector) expect(t *testing.T, want ...events.Event) {
	t.Helper()
	var got []events.Event
	for range want {
		got = append(got, c.next(t))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// until discards events until one matches.
func (c *collector) until(t *testing.T, match func(events.Event) bool) []events.Event {
	t.Helper()
	var seen []events.Event
	for {
		ev := c.next(t)
		seen = append(seen, ev)
		if match(ev) {
			return seen
		}
	}
}

func (c *collector) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-c.ch:
		t.Errorf("unexpected event %v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Logger:  log.New(testWriter{t}, "[watcher] ", 0),
		Backend: inotify.BackendInotify,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func startWatcher(t *testing.T, handlers events.Handlers, paths ...string) *Watcher {
	t.Helper()
	w, err := NewWithConfig(testConfig(t), handlers, paths...)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestCreateFileInEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	startWatcher(t, events.Handlers{FileCreated: func(path string) {
		c.handle(events.New(events.FileCreated, path))
	}}, root)

	if err := os.WriteFile(filepath.Join(root, "child_file"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c.expect(t, events.New(events.FileCreated, filepath.Join(root, "child_file")))
	c.expectQuiet(t)
}

func TestCreateNestedPath(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	startWatcher(t, events.Func(c.handle, events.DirCreated, events.FileCreated), root)

	c.expect(t, events.New(events.DirCreated, root))

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "f"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c.expect(t,
		events.New(events.DirCreated, filepath.Join(root, "a")),
		events.New(events.DirCreated, filepath.Join(root, "a", "b")),
		events.New(events.DirCreated, nested),
		events.New(events.FileCreated, filepath.Join(nested, "f")),
	)
	c.expectQuiet(t)
}

func TestDeleteWatchedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "watched_file")
	if err := os.WriteFile(file, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := newCollector()
	w := startWatcher(t, events.Func(c.handle), file)
	c.expect(t, events.New(events.FileWatched, file))

	if err := os.Remove(file); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	c.expect(t,
		events.New(events.FileUpdated, file),
		events.New(events.FileDeleted, file),
	)

	deadline := time.Now().Add(eventTimeout)
	for w.Stats().Nodes != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("node not removed, Stats() = %+v", w.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchedVersusCreated(t *testing.T) {
	t.Run("watched handler", func(t *testing.T) {
		root := t.TempDir()
		c := newCollector()
		startWatcher(t, events.Handlers{
			DirWatched: func(path string) { c.handle(events.New(events.DirWatched, path)) },
			DirCreated: func(path string) { c.handle(events.New(events.DirCreated, path)) },
		}, root)

		c.expect(t, events.New(events.DirWatched, root))
		c.expectQuiet(t)
	})

	t.Run("created handler only", func(t *testing.T) {
		root := t.TempDir()
		c := newCollector()
		startWatcher(t, events.Handlers{
			DirCreated: func(path string) { c.handle(events.New(events.DirCreated, path)) },
		}, root)

		c.expect(t, events.New(events.DirCreated, root))
		c.expectQuiet(t)
	})
}

func TestMoveWithinTree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "d"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "d", "f"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := newCollector()
	startWatcher(t, events.Func(c.handle), root)
	c.expect(t,
		events.New(events.DirWatched, root),
		events.New(events.DirWatched, filepath.Join(root, "d")),
		events.New(events.FileWatched, filepath.Join(root, "d", "f")),
	)

	if err := os.Rename(filepath.Join(root, "d"), filepath.Join(root, "e")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	c.until(t, func(ev events.Event) bool { return ev.Kind == events.DirMoved })

	moved := filepath.Join(root, "e", "f")
	if err := os.WriteFile(moved, []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	seen := c.until(t, func(ev events.Event) bool {
		return ev.Kind == events.FileModified && ev.Path == moved
	})
	for _, ev := range seen {
		if filepath.Dir(ev.Path) == filepath.Join(root, "d") {
			t.Errorf("event %v still uses the old path", ev)
		}
	}
}

func TestMoveOutOfTree(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	c := newCollector()
	w := startWatcher(t, events.Func(c.handle, events.DirGone, events.DirMoved, events.DirDeleted), root)

	if err := os.Rename(filepath.Join(root, "sub"), filepath.Join(base, "outside")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	c.expect(t, events.New(events.DirGone, filepath.Join(root, "sub")))
	c.expectQuiet(t)

	if got := w.Stats().Nodes; got != 1 {
		t.Errorf("Stats().Nodes = %d, want 1", got)
	}
}

func TestRenameOntoWatchedFile(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	x := filepath.Join(root, "x")
	if err := os.WriteFile(x, []byte("old"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	y := filepath.Join(base, "y")
	if err := os.WriteFile(y, []byte("new"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := newCollector()
	w := startWatcher(t, events.Func(c.handle, events.FileCreated, events.FileModified), root)
	c.expect(t, events.New(events.FileCreated, x))

	if err := os.Rename(y, x); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	c.expect(t, events.New(events.FileCreated, x))

	if err := os.WriteFile(x, []byte("newer"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c.until(t, func(ev events.Event) bool {
		return ev == events.New(events.FileModified, x)
	})

	if got := w.Stats().Nodes; got != 2 {
		t.Errorf("Stats().Nodes = %d, want 2", got)
	}
}

func TestHardLinkReportsCreated(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a")
	if err := os.WriteFile(a, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := newCollector()
	startWatcher(t, events.Func(c.handle, events.FileCreated), root)
	c.expect(t, events.New(events.FileCreated, a))

	b := filepath.Join(root, "b")
	if err := os.Link(a, b); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	c.expect(t, events.New(events.FileCreated, b))
	c.expectQuiet(t)
}

func TestWalkVisitsWatchedEntries(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "f"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	w := startWatcher(t, events.Handlers{}, root)
	var got []string
	w.Walk(func(n tree.Node) bool {
		got = append(got, n.Path)
		return true
	})

	want := []string{root, filepath.Join(root, "sub"), filepath.Join(root, "sub", "f")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	var mu sync.Mutex
	created := make(chan string, 4)

	config := testConfig(t)
	config.Logger = log.New(&lockedWriter{w: &buf, mu: &mu}, "", 0)
	w, err := NewWithConfig(config, events.Handlers{
		FileCreated: func(path string) {
			if filepath.Base(path) == "bad" {
				panic("handler exploded")
			}
			created <- path
		},
	}, root)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer w.Close()

	for _, name := range []string{"bad", "good"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	select {
	case path := <-created:
		if filepath.Base(path) != "good" {
			t.Errorf("created %s, want good", path)
		}
	case <-time.After(eventTimeout):
		t.Fatal("dispatch stopped after a handler panic")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Contains(buf.Bytes(), []byte("handler exploded")) {
		t.Errorf("panic was not logged: %q", buf.String())
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestCloseIsIdempotent(t *testing.T) {
	w := startWatcher(t, events.Handlers{}, t.TempDir())

	if w.Wait(50 * time.Millisecond) {
		t.Error("Wait() returned true before Close()")
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Close(); err != nil {
				t.Errorf("Close() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Errorf("Close() after close failed: %v", err)
	}
	if !w.Wait(0) {
		t.Error("Wait() returned false after Close()")
	}
	if !w.Closed() || !w.Stats().Closed {
		t.Error("watcher does not report closed")
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done() not closed after Close()")
	}
}

func TestCloseFromHandlerGoroutine(t *testing.T) {
	root := t.TempDir()
	var w *Watcher
	ready := make(chan struct{})
	w = startWatcher(t, events.Handlers{
		FileCreated: func(string) {
			<-ready
			go w.Close()
		},
	}, root)
	close(ready)

	if err := os.WriteFile(filepath.Join(root, "trigger"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !w.Wait(eventTimeout) {
		t.Fatal("watcher did not close from a handler goroutine")
	}
}

func TestEventsQueuedBeforeCloseAreDispatched(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	var mu sync.Mutex
	var got []string
	w, err := NewWithConfig(testConfig(t), events.Handlers{
		FileWatched: func(path string) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			got = append(got, filepath.Base(path))
			mu.Unlock()
		},
	}, root)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, got); diff != "" {
		t.Errorf("dispatched mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFailsForMissingPath(t *testing.T) {
	_, err := NewWithConfig(testConfig(t), events.Handlers{}, filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("NewWithConfig() error = %v, want ErrNotExist", err)
	}
	if _, err := NewWithConfig(testConfig(t), events.Handlers{}); err == nil {
		t.Error("NewWithConfig() without paths should fail")
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, testConfig(t), events.Func(c.handle, events.DirCreated), root)
	}()
	c.expect(t, events.New(events.DirCreated, root))
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Watch() failed: %v", err)
		}
	case <-time.After(eventTimeout):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestFsnotifyBackend(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	config := testConfig(t)
	config.Backend = inotify.BackendFsnotify

	w, err := NewWithConfig(config, events.Func(c.handle, events.FileCreated, events.FileDeleted), root)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer w.Close()

	file := filepath.Join(root, "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c.expect(t, events.New(events.FileCreated, file))

	if err := os.Remove(file); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	c.expect(t, events.New(events.FileDeleted, file))
}
