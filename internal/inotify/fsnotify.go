package inotify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Fsnotify is a portable Source built on fsnotify.
//
// fsnotify reports path-named operations rather than descriptor records, so
// this source hands out its own descriptors and synthesizes records:
//
//   - fsnotify.Create → Create on the parent descriptor
//   - fsnotify.Write  → Modify on the entry descriptor
//   - fsnotify.Chmod  → Attrib on the entry descriptor
//   - fsnotify.Remove → DeleteSelf, then Ignored, on the entry descriptor
//   - fsnotify.Rename → an unpaired MovedFrom on the parent (the new name
//     arrives as a separate Create), or MoveSelf for a root
//
// Only directories and root files are registered with fsnotify itself; files
// inside a watched directory are observed through their parent.
type Fsnotify struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
	done    chan struct{}
	wake    chan struct{}

	nextDescriptor int
	nextCookie     uint32
	byPath         map[string]int
	paths          map[int]string
	native         map[string]bool
	pending        []Record
}

var _ Source = (*Fsnotify)(nil)

// NewFsnotify creates a portable source.
func NewFsnotify() (*Fsnotify, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Fsnotify{
		watcher:        watcher,
		done:           make(chan struct{}),
		wake:           make(chan struct{}, 1),
		nextDescriptor: 1,
		byPath:         make(map[string]int),
		paths:          make(map[int]string),
		native:         make(map[string]bool),
	}, nil
}

// AddWatch registers path, returning the existing descriptor if it is
// already watched.
func (f *Fsnotify) AddWatch(path string) (int, error) {
	path = filepath.Clean(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return -1, ErrClosed
	}
	if wd, ok := f.byPath[path]; ok {
		return wd, nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		return -1, err
	}
	_, parentWatched := f.byPath[filepath.Dir(path)]
	if info.IsDir() || !parentWatched {
		if err := f.watcher.Add(path); err != nil {
			return -1, fmt.Errorf("fsnotify add %s: %w", path, err)
		}
		f.native[path] = true
	}

	wd := f.nextDescriptor
	f.nextDescriptor++
	f.byPath[path] = wd
	f.paths[wd] = path
	return wd, nil
}

// RemoveWatch unregisters a descriptor and queues its Ignored record.
func (f *Fsnotify) RemoveWatch(descriptor int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	path, ok := f.paths[descriptor]
	if !ok {
		return fmt.Errorf("remove watch %d: unknown descriptor", descriptor)
	}
	f.forgetLocked(descriptor, path)
	f.pending = append(f.pending, Record{Descriptor: descriptor, Mask: Ignored})

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *Fsnotify) forgetLocked(descriptor int, path string) {
	delete(f.paths, descriptor)
	delete(f.byPath, path)
	if f.native[path] {
		delete(f.native, path)
		// fsnotify drops watches on deleted paths by itself.
		_ = f.watcher.Remove(path)
	}
}

// Read blocks until fsnotify reports something that maps onto a watched
// descriptor, then returns that batch.
func (f *Fsnotify) Read() ([]Record, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, ErrClosed
		}
		if len(f.pending) > 0 {
			records := f.pending
			f.pending = nil
			f.mu.Unlock()
			return records, nil
		}
		f.mu.Unlock()

		select {
		case <-f.done:
			return nil, ErrClosed
		case <-f.wake:
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil, ErrClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return []Record{{Descriptor: -1, Mask: QueueOverflow}}, nil
			}
			return nil, err
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil, ErrClosed
			}
			batch := f.collect(event)
			if len(batch) > 0 {
				return batch, nil
			}
		}
	}
}

// collect converts event and every event already queued behind it,
// dropping consecutive duplicates the way the kernel coalesces them.
func (f *Fsnotify) collect(first fsnotify.Event) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	var batch []Record
	appendRecords := func(event fsnotify.Event) {
		for _, record := range f.convertLocked(event) {
			if n := len(batch); n > 0 && batch[n-1] == record {
				continue
			}
			batch = append(batch, record)
		}
	}

	appendRecords(first)
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return batch
			}
			appendRecords(event)
		default:
			batch = append(batch, f.pending...)
			f.pending = nil
			return batch
		}
	}
}

func (f *Fsnotify) convertLocked(event fsnotify.Event) []Record {
	name := filepath.Clean(event.Name)
	selfWD, selfWatched := f.byPath[name]
	parentWD, parentWatched := f.byPath[filepath.Dir(name)]

	var records []Record
	switch {
	case event.Has(fsnotify.Create):
		if parentWatched {
			records = append(records, Record{Descriptor: parentWD, Mask: Create, Name: filepath.Base(name)})
		}
	case event.Has(fsnotify.Remove):
		if selfWatched {
			f.forgetLocked(selfWD, name)
			records = append(records,
				Record{Descriptor: selfWD, Mask: DeleteSelf},
				Record{Descriptor: selfWD, Mask: Ignored},
			)
		}
	case event.Has(fsnotify.Rename):
		if parentWatched {
			f.nextCookie++
			records = append(records, Record{Descriptor: parentWD, Mask: MovedFrom, Cookie: f.nextCookie, Name: filepath.Base(name)})
		} else if selfWatched {
			records = append(records, Record{Descriptor: selfWD, Mask: MoveSelf})
		}
	case event.Has(fsnotify.Write):
		if selfWatched {
			records = append(records, Record{Descriptor: selfWD, Mask: Modify})
		}
	case event.Has(fsnotify.Chmod):
		if selfWatched {
			records = append(records, Record{Descriptor: selfWD, Mask: Attrib})
		}
	}
	return records
}

// Close stops the fsnotify watcher and wakes any blocked Read.
func (f *Fsnotify) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()

	if err := f.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (f *Fsnotify) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
