package events

// Handlers holds one optional callback per event kind. A nil slot means the
// kind is not of interest and its events are dropped at dispatch.
type Handlers struct {
	FileWatched  func(path string)
	FileCreated  func(path string)
	FileUpdated  func(path string)
	FileModified func(path string)
	FileMoved    func(oldPath, newPath string)
	FileDeleted  func(path string)
	FileGone     func(path string)

	DirWatched  func(path string)
	DirCreated  func(path string)
	DirUpdated  func(path string)
	DirModified func(path string)
	DirMoved    func(oldPath, newPath string)
	DirDeleted  func(path string)
	DirGone     func(path string)
}

// HasWatched reports whether any watched handler is set. When none is, the
// initial registration reports entries as created instead.
func (h Handlers) HasWatched() bool {
	return h.FileWatched != nil || h.DirWatched != nil
}

// For returns a callback invoking the handler for ev's kind with ev's paths,
// or nil if no handler is set.
func (h Handlers) For(kind Kind) func(Event) {
	if kind.IsMove() {
		fn := h.FileMoved
		if kind == DirMoved {
			fn = h.DirMoved
		}
		if fn == nil {
			return nil
		}
		return func(ev Event) { fn(ev.Path, ev.NewPath) }
	}

	var fn func(string)
	switch kind {
	case FileWatched:
		fn = h.FileWatched
	case FileCreated:
		fn = h.FileCreated
	case FileUpdated:
		fn = h.FileUpdated
	case FileModified:
		fn = h.FileModified
	case FileDeleted:
		fn = h.FileDeleted
	case FileGone:
		fn = h.FileGone
	case DirWatched:
		fn = h.DirWatched
	case DirCreated:
		fn = h.DirCreated
	case DirUpdated:
		fn = h.DirUpdated
	case DirModified:
		fn = h.DirModified
	case DirDeleted:
		fn = h.DirDeleted
	case DirGone:
		fn = h.DirGone
	}
	if fn == nil {
		return nil
	}
	return func(ev Event) { fn(ev.Path) }
}

// Func builds Handlers that route every kind in kinds to fn. With no kinds,
// every kind is routed.
func Func(fn func(Event), kinds ...Kind) Handlers {
	if len(kinds) == 0 {
		kinds = AllKinds()
	}
	var h Handlers
	for _, kind := range kinds {
		kind := kind
		one := func(path string) { fn(Event{Kind: kind, Path: path}) }
		switch kind {
		case FileWatched:
			h.FileWatched = one
		case FileCreated:
			h.FileCreated = one
		case FileUpdated:
			h.FileUpdated = one
		case FileModified:
			h.FileModified = one
		case FileMoved:
			h.FileMoved = func(oldPath, newPath string) { fn(Event{Kind: kind, Path: oldPath, NewPath: newPath}) }
		case FileDeleted:
			h.FileDeleted = one
		case FileGone:
			h.FileGone = one
		case DirWatched:
			h.DirWatched = one
		case DirCreated:
			h.DirCreated = one
		case DirUpdated:
			h.DirUpdated = one
		case DirModified:
			h.DirModified = one
		case DirMoved:
			h.DirMoved = func(oldPath, newPath string) { fn(Event{Kind: kind, Path: oldPath, NewPath: newPath}) }
		case DirDeleted:
			h.DirDeleted = one
		case DirGone:
			h.DirGone = one
		}
	}
	return h
}
