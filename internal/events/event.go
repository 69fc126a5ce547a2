package events

import "fmt"

// Event is one typed lifecycle event for a watched entry.
type Event struct {
	// Kind is the scoped action.
	Kind Kind `json:"kind" yaml:"kind"`
	// Path is the entry's path when the event happened. For moves it is the
	// old path.
	Path string `json:"path" yaml:"path"`
	// NewPath is the destination of a move, empty for every other kind.
	NewPath string `json:"new_path,omitempty" yaml:"new_path,omitempty"`
}

// New returns a single-path event.
func New(kind Kind, path string) Event {
	return Event{Kind: kind, Path: path}
}

// NewMove returns a moved event scoped by isDir.
func NewMove(isDir bool, oldPath, newPath string) Event {
	return Event{Kind: Scoped(isDir, Moved), Path: oldPath, NewPath: newPath}
}

// Paths returns the event's positional handler arguments.
func (e Event) Paths() []string {
	if e.Kind.IsMove() {
		return []string{e.Path, e.NewPath}
	}
	return []string{e.Path}
}

func (e Event) String() string {
	if e.Kind.IsMove() {
		return fmt.Sprintf("%s(%s -> %s)", e.Kind, e.Path, e.NewPath)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
}
