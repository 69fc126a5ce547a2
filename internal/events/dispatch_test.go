package events

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHandlersFor(t *testing.T) {
	var got []string
	h := Handlers{
		FileCreated: func(path string) { got = append(got, "created "+path) },
		DirMoved:    func(oldPath, newPath string) { got = append(got, "moved "+oldPath+" "+newPath) },
	}

	if fn := h.For(FileDeleted); fn != nil {
		t.Error("For(FileDeleted) should be nil when the slot is unset")
	}
	if fn := h.For(FileMoved); fn != nil {
		t.Error("For(FileMoved) should be nil when the slot is unset")
	}

	h.For(FileCreated)(New(FileCreated, "/x"))
	h.For(DirMoved)(NewMove(true, "/a", "/b"))

	want := []string{"created /x", "moved /a /b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlersHasWatched(t *testing.T) {
	if (Handlers{FileCreated: func(string) {}}).HasWatched() {
		t.Error("HasWatched() = true without watched handlers")
	}
	if !(Handlers{DirWatched: func(string) {}}).HasWatched() {
		t.Error("HasWatched() = false with DirWatched set")
	}
}

func TestFuncRoutesKinds(t *testing.T) {
	var got []Event
	h := Func(func(ev Event) { got = append(got, ev) }, FileCreated, DirMoved)

	if h.HasWatched() {
		t.Error("HasWatched() should be false")
	}
	if h.For(FileDeleted) != nil {
		t.Error("unrouted kind should have no handler")
	}

	h.For(FileCreated)(New(FileCreated, "/f"))
	h.For(DirMoved)(NewMove(true, "/a", "/b"))

	want := []Event{New(FileCreated, "/f"), NewMove(true, "/a", "/b")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	all := Func(func(Event) {})
	for _, k := range AllKinds() {
		if all.For(k) == nil {
			t.Errorf("Func() with no kinds left %v unrouted", k)
		}
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	var seen []string
	d := NewDispatcher(Handlers{
		FileCreated: func(path string) {
			if path == "/bad" {
				panic("boom")
			}
			seen = append(seen, path)
		},
	}, log.New(&buf, "", 0), nil)

	err := d.Dispatch(New(FileCreated, "/bad"))
	var herr *HandlerError
	if !errors.As(err, &herr) {
		t.Fatalf("Dispatch() error = %v, want *HandlerError", err)
	}
	if herr.Value != "boom" {
		t.Errorf("HandlerError.Value = %v", herr.Value)
	}

	if err := d.Dispatch(New(FileCreated, "/good")); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if err := d.Dispatch(New(DirGone, "/unhandled")); err != nil {
		t.Fatalf("Dispatch() of an unhandled kind failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != "/good" {
		t.Errorf("seen = %v", seen)
	}
}

func TestDispatcherRunContinuesAfterPanic(t *testing.T) {
	var buf bytes.Buffer
	var seen []string
	d := NewDispatcher(Func(func(ev Event) {
		if ev.Path == "/2" {
			panic("handler failure")
		}
		seen = append(seen, ev.Path)
	}), log.New(&buf, "", 0), nil)

	q := NewQueue()
	for _, p := range []string{"/1", "/2", "/3"} {
		q.Push(New(FileModified, p))
	}
	q.Close()
	d.Run(q)

	if diff := cmp.Diff([]string{"/1", "/3"}, seen); diff != "" {
		t.Errorf("dispatched paths mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "handler failure") {
		t.Errorf("log output missing panic value: %q", buf.String())
	}
}
