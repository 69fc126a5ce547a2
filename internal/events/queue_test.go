package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	var want []Event
	for i := 0; i < 5; i++ {
		ev := New(FileCreated, fmt.Sprintf("/f%d", i))
		want = append(want, ev)
		if !q.Push(ev) {
			t.Fatalf("Push(%v) returned false on an open queue", ev)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	var got []Event
	for i := 0; i < 5; i++ {
		ev, ok := q.Pop()
		if !ok {
			t.Fatal("Pop() returned false before the sentinel")
		}
		got = append(got, ev)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pop order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueCloseDrainsPending(t *testing.T) {
	q := NewQueue()
	q.Push(New(DirCreated, "/a"))
	q.Push(New(FileCreated, "/a/f"))
	q.Close()
	q.Close()

	if q.Push(New(FileDeleted, "/a/f")) {
		t.Error("Push() after Close() should return false")
	}

	for _, want := range []string{"/a", "/a/f"} {
		ev, ok := q.Pop()
		if !ok || ev.Path != want {
			t.Fatalf("Pop() = %v, %v; want %s, true", ev, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() after the sentinel should return false")
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() should keep returning false once closed and drained")
	}
}

func TestQueueCloseWakesPop(t *testing.T) {
	q := NewQueue()
	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop() on an empty closed queue returned true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not wake a blocked Pop()")
	}
}

func TestQueueConcurrentHandoff(t *testing.T) {
	q := NewQueue()
	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			q.Push(New(FileModified, fmt.Sprintf("/f%d", i)))
		}
		q.Close()
	}()

	i := 0
	for {
		ev, ok := q.Pop()
		if !ok {
			break
		}
		if want := fmt.Sprintf("/f%d", i); ev.Path != want {
			t.Fatalf("event %d = %s, want %s", i, ev.Path, want)
		}
		i++
	}
	if i != n {
		t.Errorf("popped %d events, want %d", i, n)
	}
}
