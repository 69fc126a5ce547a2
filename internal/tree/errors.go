package tree

import (
	"errors"
	"fmt"

	"github.com/steveyegge/treewatch/internal/inotify"
)

// Common errors returned by the watch tree.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, tree.ErrProtocolViolation) {
//	    // the source reported something the tree cannot reconcile
//	}
var (
	// ErrProtocolViolation is returned when a raw record contradicts the
	// tree's state, such as a record on an unknown descriptor or a
	// DeleteSelf on a directory that still has watched children.
	ErrProtocolViolation = errors.New("watch protocol violation")

	// ErrNotWatched is returned when a node or path is not in the tree.
	ErrNotWatched = errors.New("not watched")
)

// ProtocolError describes the record that violated the tree's invariants.
type ProtocolError struct {
	Record inotify.Record
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrProtocolViolation, e.Reason, e.Record)
}

// Unwrap returns ErrProtocolViolation.
func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

func violation(rec inotify.Record, reason string) error {
	return &ProtocolError{Record: rec, Reason: reason}
}
