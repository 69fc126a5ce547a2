// Package events defines the typed lifecycle events emitted by the watch tree,
// the unbounded queue that carries them, and the dispatcher that hands them to
// user callbacks.
package events

import (
	"fmt"
	"strings"
)

// Action is the unscoped lifecycle step of a watched entry.
type Action int

const (
	// Watched is reported for entries found while registering the initial paths.
	Watched Action = iota
	// Created is reported for entries that appeared after the watch started.
	Created
	// Updated is reported for metadata changes (permissions, ownership, link count).
	Updated
	// Modified is reported for content writes.
	Modified
	// Moved is reported when an entry is renamed within the watched tree.
	Moved
	// Deleted is reported when an entry is removed.
	Deleted
	// Gone is reported when a watch is lost without an observed deletion.
	Gone
)

var actionNames = [...]string{"watched", "created", "updated", "modified", "moved", "deleted", "gone"}

// String returns a human-readable representation of the action.
func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Kind is an action scoped to a file or a directory.
type Kind int

const (
	FileWatched Kind = iota
	FileCreated
	FileUpdated
	FileModified
	FileMoved
	FileDeleted
	FileGone
	DirWatched
	DirCreated
	DirUpdated
	DirModified
	DirMoved
	DirDeleted
	DirGone
)

// kindCount is the number of kinds; kinds are contiguous from FileWatched.
const kindCount = int(DirGone) + 1

// Scoped returns the kind for action applied to a file or directory.
func Scoped(isDir bool, action Action) Kind {
	if isDir {
		return DirWatched + Kind(action)
	}
	return FileWatched + Kind(action)
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= FileWatched && k <= DirGone
}

// IsDir reports whether the kind is directory scoped.
func (k Kind) IsDir() bool {
	return k >= DirWatched && k <= DirGone
}

// Action returns the unscoped action.
func (k Kind) Action() Action {
	if k.IsDir() {
		return Action(k - DirWatched)
	}
	return Action(k - FileWatched)
}

// IsMove reports whether events of this kind carry two paths.
func (k Kind) IsMove() bool {
	return k == FileMoved || k == DirMoved
}

// String returns the handler name, e.g. "file_created".
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	scope := "file"
	if k.IsDir() {
		scope = "dir"
	}
	return scope + "_" + k.Action().String()
}

// ParseKind parses a handler name such as "dir_moved".
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range AllKinds() {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
