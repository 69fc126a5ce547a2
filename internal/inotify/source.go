// Package inotify provides raw filesystem notification sources.
//
// A Source registers watches on paths and hands back batches of raw Records
// in the order the kernel queued them. Two implementations exist:
//
//   - the native Linux source, built directly on inotify(7) via golang.org/x/sys/unix
//   - a portable source built on fsnotify, used on other platforms or on request
//
// The native source reports everything the kernel does, including rename
// cookies. The portable source synthesizes records from fsnotify's reduced
// event model; renames surface as a deletion followed by a creation.
package inotify

import (
	"errors"
	"fmt"
)

// Common errors returned by sources.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, inotify.ErrClosed) {
//	    // the source was closed, stop reading
//	}
var (
	// ErrClosed is returned by every operation on a source after Close.
	ErrClosed = errors.New("watch source closed")

	// ErrUnsupported is returned when the requested backend is not
	// available on this platform.
	ErrUnsupported = errors.New("watch backend not supported on this platform")
)

// Backend names accepted by New.
const (
	BackendAuto     = "auto"
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// Source is the raw notification capability consumed by the watch tree.
type Source interface {
	// AddWatch registers a watch on path and returns its descriptor. Adding
	// an already watched path returns the existing descriptor.
	AddWatch(path string) (int, error)

	// RemoveWatch unregisters a watch. The source later reports an Ignored
	// record for the descriptor.
	RemoveWatch(descriptor int) error

	// Read blocks until records are available or the source is closed, then
	// returns every record currently queued, in arrival order. After Close it
	// returns ErrClosed.
	Read() ([]Record, error)

	// Close wakes any blocked Read and releases the source. Idempotent.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool
}

// New opens a source for the named backend. An empty name or BackendAuto
// picks the native backend where one exists.
func New(backend string) (Source, error) {
	switch backend {
	case "", BackendAuto:
		if nativeSupported {
			return newNative()
		}
		return NewFsnotify()
	case BackendInotify:
		if !nativeSupported {
			return nil, fmt.Errorf("%s: %w", backend, ErrUnsupported)
		}
		return newNative()
	case BackendFsnotify:
		return NewFsnotify()
	default:
		return nil, fmt.Errorf("unknown watch backend %q", backend)
	}
}
