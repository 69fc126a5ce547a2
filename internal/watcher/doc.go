// Package watcher turns raw filesystem notifications into lifecycle events
// delivered to user callbacks.
//
// # Architecture
//
// A Watcher owns four pieces:
//
//   - an inotify.Source: the kernel watch capability (native inotify on Linux, fsnotify elsewhere)
//   - a tree.Tree: the watched paths, translated records, and move correlation
//   - an events.Queue: the unbounded ordered handoff between the two loops
//   - an events.Dispatcher: one optional callback per event kind
//
// Construction registers every path synchronously, so the initial watched
// (or created) events are queued before any raw record is read. Two
// goroutines then run until Close:
//
//	translate: source.Read -> tree.Translate -> queue.Push
//	dispatch:  queue.Pop   -> handler
//
// Both loops log and survive errors: a record the tree cannot reconcile or
// a panicking handler never stops the watcher.
//
// # Usage
//
//	w, err := watcher.New(events.Handlers{
//	    FileCreated: func(path string) { fmt.Println("created", path) },
//	    FileMoved:   func(oldPath, newPath string) { fmt.Println("moved", oldPath, newPath) },
//	}, "/srv/data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
// Or scoped to a context:
//
//	err := watcher.Watch(ctx, nil, handlers, "/srv/data")
//
// # Shutdown
//
// Close raises the closed flag, appends the queue sentinel, and wakes the
// translate loop, then waits for both loops. Every event queued before Close
// is still dispatched. Close must not be called synchronously from a
// handler since it waits for the dispatch loop; use go w.Close() instead.
package watcher
