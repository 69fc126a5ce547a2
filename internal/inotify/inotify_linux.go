//go:build linux

package inotify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const nativeSupported = true

// readBufferSize fits 4096 records without names, so a rename's MovedFrom
// and MovedTo halves practically always arrive in the same batch.
const readBufferSize = unix.SizeofInotifyEvent * 4096

// Native is the Linux inotify source. The inotify descriptor is non-blocking
// and multiplexed with an eventfd so that Close can wake a blocked Read.
type Native struct {
	mu      sync.Mutex
	fd      int
	wakeFd  int
	closed  bool
	reading bool
	buf     []byte
}

var _ Source = (*Native)(nil)

func newNative() (Source, error) {
	return NewNative()
}

// NewNative opens an inotify instance.
func NewNative() (*Native, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Native{
		fd:     fd,
		wakeFd: wakeFd,
		buf:    make([]byte, readBufferSize),
	}, nil
}

// AddWatch registers path with the full event mask. Symbolic links are
// watched themselves, not their targets.
func (n *Native) AddWatch(path string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return -1, ErrClosed
	}
	wd, err := unix.InotifyAddWatch(n.fd, path, uint32(AllEvents)|unix.IN_DONT_FOLLOW)
	if err != nil {
		return -1, fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}
	return wd, nil
}

// RemoveWatch unregisters a descriptor. The kernel answers with an Ignored record.
func (n *Native) RemoveWatch(descriptor int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if _, err := unix.InotifyRmWatch(n.fd, uint32(descriptor)); err != nil {
		return fmt.Errorf("inotify_rm_watch %d: %w", descriptor, err)
	}
	return nil
}

// Read blocks in poll(2) on the inotify and wake descriptors, then decodes one
// buffer of records.
func (n *Native) Read() ([]Record, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	n.reading = true
	n.mu.Unlock()

	records, err := n.poll()

	n.mu.Lock()
	n.reading = false
	closed := n.closed
	n.mu.Unlock()

	if closed {
		n.release()
		return nil, ErrClosed
	}
	return records, err
}

func (n *Native) poll() ([]Record, error) {
	fds := []unix.PollFd{
		{Fd: int32(n.fd), Events: unix.POLLIN},
		{Fd: int32(n.wakeFd), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("poll: %w", err)
		}
		if fds[1].Revents != 0 {
			return nil, nil
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		count, err := unix.Read(n.fd, n.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("read inotify: %w", err)
		}
		if count < unix.SizeofInotifyEvent {
			return nil, fmt.Errorf("short inotify read: %d bytes", count)
		}
		return decode(n.buf[:count]), nil
	}
}

func decode(buf []byte) []Record {
	var records []Record
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		start := offset + unix.SizeofInotifyEvent
		end := start + int(raw.Len)
		if end > len(buf) {
			break
		}
		records = append(records, Record{
			Descriptor: int(raw.Wd),
			Mask:       Flag(raw.Mask),
			Cookie:     raw.Cookie,
			Name:       strings.TrimRight(string(buf[start:end]), "\x00"),
		})
		offset = end
	}
	return records
}

// Close wakes a blocked Read, which then releases the descriptors. Without a
// reader the descriptors are released immediately.
func (n *Native) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	if n.reading {
		// Written under the lock so the reader cannot release wakeFd first.
		_, err := unix.Write(n.wakeFd, []byte{1, 0, 0, 0, 0, 0, 0, 0})
		n.mu.Unlock()
		if err != nil {
			return fmt.Errorf("wake inotify reader: %w", err)
		}
		return nil
	}
	n.mu.Unlock()
	n.release()
	return nil
}

// Closed reports whether Close has been called.
func (n *Native) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *Native) release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fd >= 0 {
		_ = unix.Close(n.fd)
		n.fd = -1
	}
	if n.wakeFd >= 0 {
		_ = unix.Close(n.wakeFd)
		n.wakeFd = -1
	}
}
