//go:build linux

package inotify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNativeCreateRecord(t *testing.T) {
	dir := t.TempDir()

	src, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative() failed: %v", err)
	}
	defer src.Close()

	wd, err := src.AddWatch(dir)
	if err != nil {
		t.Fatalf("AddWatch() failed: %v", err)
	}

	if err := os.Mkdir(filepath.Join(dir, "child_dir"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	select {
	case res := <-readAsync(src):
		if res.err != nil {
			t.Fatalf("Read() failed: %v", res.err)
		}
		if len(res.records) != 1 {
			t.Fatalf("got %d records, want 1: %v", len(res.records), res.records)
		}
		got := res.records[0]
		if got.Descriptor != wd {
			t.Errorf("Descriptor = %d, want %d", got.Descriptor, wd)
		}
		if got.Mask != Create|IsDir {
			t.Errorf("Mask = %s, want CREATE|ISDIR", got.Mask)
		}
		if got.Name != "child_dir" {
			t.Errorf("Name = %q, want child_dir", got.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for create record")
	}
}

func TestNativeDeleteSelfThenIgnored(t *testing.T) {
	file := filepath.Join(t.TempDir(), "parent_file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	src, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative() failed: %v", err)
	}
	defer src.Close()

	if _, err := src.AddWatch(file); err != nil {
		t.Fatalf("AddWatch() failed: %v", err)
	}
	if err := os.Remove(file); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var masks []Flag
	deadline := time.After(2 * time.Second)
	for len(masks) < 3 {
		select {
		case res := <-readAsync(src):
			if res.err != nil {
				t.Fatalf("Read() failed: %v", res.err)
			}
			for _, r := range res.records {
				masks = append(masks, r.Mask)
			}
		case <-deadline:
			t.Fatalf("timeout, got %v", masks)
		}
	}

	want := []Flag{Attrib, DeleteSelf, Ignored}
	for i := range want {
		if masks[i] != want[i] {
			t.Errorf("record %d mask = %s, want %s", i, masks[i], want[i])
		}
	}
}

func TestNativeCloseWakesRead(t *testing.T) {
	src, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative() failed: %v", err)
	}
	if _, err := src.AddWatch(t.TempDir()); err != nil {
		t.Fatalf("AddWatch() failed: %v", err)
	}

	pending := readAsync(src)
	time.Sleep(50 * time.Millisecond)

	if err := src.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	select {
	case res := <-pending:
		if !errors.Is(res.err, ErrClosed) {
			t.Errorf("Read() error = %v, want ErrClosed", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not wake the blocked Read()")
	}

	if !src.Closed() {
		t.Error("Closed() should be true")
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if _, err := src.AddWatch(t.TempDir()); !errors.Is(err, ErrClosed) {
		t.Errorf("AddWatch() after Close error = %v, want ErrClosed", err)
	}
}

func TestNativeMovePairSharesCookie(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "child_file")
	if err := os.WriteFile(oldPath, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	src, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative() failed: %v", err)
	}
	defer src.Close()

	if _, err := src.AddWatch(dir); err != nil {
		t.Fatalf("AddWatch() failed: %v", err)
	}
	if err := os.Rename(oldPath, filepath.Join(dir, "new_file")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	select {
	case res := <-readAsync(src):
		if res.err != nil {
			t.Fatalf("Read() failed: %v", res.err)
		}
		if len(res.records) != 2 {
			t.Fatalf("got %d records, want 2: %v", len(res.records), res.records)
		}
		from, to := res.records[0], res.records[1]
		if !from.Mask.Has(MovedFrom) || !to.Mask.Has(MovedTo) {
			t.Fatalf("unexpected masks %s, %s", from.Mask, to.Mask)
		}
		if from.Cookie == 0 || from.Cookie != to.Cookie {
			t.Errorf("cookies = %d, %d; want equal and non-zero", from.Cookie, to.Cookie)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for move records")
	}
}
