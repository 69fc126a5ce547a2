package events

import (
	"encoding/json"
	"testing"
)

func TestKindNames(t *testing.T) {
	want := []string{
		"file_watched", "file_created", "file_updated", "file_modified",
		"file_moved", "file_deleted", "file_gone",
		"dir_watched", "dir_created", "dir_updated", "dir_modified",
		"dir_moved", "dir_deleted", "dir_gone",
	}

	kinds := AllKinds()
	if len(kinds) != len(want) {
		t.Fatalf("AllKinds() returned %d kinds, want %d", len(kinds), len(want))
	}
	for i, k := range kinds {
		if k.String() != want[i] {
			t.Errorf("kind %d = %q, want %q", i, k.String(), want[i])
		}
		parsed, err := ParseKind(want[i])
		if err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", want[i], err)
		}
		if parsed != k {
			t.Errorf("ParseKind(%q) = %v, want %v", want[i], parsed, k)
		}
	}
}

func TestParseKindUnknown(t *testing.T) {
	for _, name := range []string{"", "file_renamed", "dir", "created"} {
		if _, err := ParseKind(name); err == nil {
			t.Errorf("ParseKind(%q) should fail", name)
		}
	}
}

func TestScoped(t *testing.T) {
	tests := []struct {
		isDir  bool
		action Action
		want   Kind
	}{
		{false, Watched, FileWatched},
		{false, Moved, FileMoved},
		{false, Gone, FileGone},
		{true, Created, DirCreated},
		{true, Modified, DirModified},
		{true, Deleted, DirDeleted},
	}
	for _, tt := range tests {
		got := Scoped(tt.isDir, tt.action)
		if got != tt.want {
			t.Errorf("Scoped(%v, %v) = %v, want %v", tt.isDir, tt.action, got, tt.want)
		}
		if got.IsDir() != tt.isDir {
			t.Errorf("%v.IsDir() = %v", got, got.IsDir())
		}
		if got.Action() != tt.action {
			t.Errorf("%v.Action() = %v, want %v", got, got.Action(), tt.action)
		}
	}
}

func TestKindInvalid(t *testing.T) {
	k := Kind(99)
	if k.Valid() {
		t.Error("Kind(99) should be invalid")
	}
	if k.String() != "kind(99)" {
		t.Errorf("String() = %q", k.String())
	}
	if _, err := k.MarshalText(); err == nil {
		t.Error("MarshalText() should fail for an invalid kind")
	}
}

func TestEventJSON(t *testing.T) {
	ev := NewMove(true, "/a/x", "/a/y")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	want := `{"kind":"dir_moved","path":"/a/x","new_path":"/a/y"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	data, err = json.Marshal(New(FileCreated, "/a/f"))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if string(data) != `{"kind":"file_created","path":"/a/f"}` {
		t.Errorf("Marshal() = %s", data)
	}

	var back Event
	if err := json.Unmarshal([]byte(want), &back); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if back != ev {
		t.Errorf("Unmarshal() = %+v, want %+v", back, ev)
	}
}

func TestEventPaths(t *testing.T) {
	if got := New(DirDeleted, "/d").Paths(); len(got) != 1 || got[0] != "/d" {
		t.Errorf("Paths() = %v", got)
	}
	if got := NewMove(false, "/a", "/b").Paths(); len(got) != 2 || got[1] != "/b" {
		t.Errorf("Paths() = %v", got)
	}
	if got := NewMove(false, "/a", "/b").String(); got != "file_moved(/a -> /b)" {
		t.Errorf("String() = %q", got)
	}
}
