// Package tree maintains the set of watched paths as a tree that mirrors the
// filesystem, and translates raw notification records into lifecycle events.
//
// Nodes live in an arena addressed by NodeID. Each node stores only its own
// path segment; full paths are computed by walking parents, so renaming a
// directory implicitly renames everything below it.
package tree

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
	"github.com/steveyegge/treewatch/internal/metrics"
)

// Sink receives translated events in order.
type Sink interface {
	Push(ev events.Event) bool
}

// Options configures a Tree.
type Options struct {
	// Logger receives registration failures and warnings. Nil discards.
	Logger *log.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// WatchedEvents makes initial registration report entries as watched
	// instead of created.
	WatchedEvents bool

	// Debug logs every raw record and emitted event.
	Debug bool

	// Lstat overrides os.Lstat, for tests.
	Lstat func(path string) (fs.FileInfo, error)
}

// Tree owns every watched node. All methods are safe for concurrent use,
// but the tree is designed for a single writer: the goroutine calling Drain.
type Tree struct {
	source  inotify.Source
	sink    Sink
	logger  *log.Logger
	metrics *metrics.Collector
	debug   bool
	watched bool
	lstat   func(string) (fs.FileInfo, error)

	mu           sync.Mutex
	nodes        []node
	free         []NodeID
	roots        []NodeID
	byDescriptor map[int]NodeID
	// retired holds descriptors whose node is already gone but whose
	// Ignored record has not arrived yet.
	retired map[int]struct{}
	pending *pendingMove
}

// New returns an empty tree reading from source and pushing to sink.
func New(source inotify.Source, sink Sink, opts Options) *Tree {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	lstat := opts.Lstat
	if lstat == nil {
		lstat = os.Lstat
	}
	return &Tree{
		source:       source,
		sink:         sink,
		logger:       logger,
		metrics:      opts.Metrics,
		debug:        opts.Debug,
		watched:      opts.WatchedEvents,
		lstat:        lstat,
		byDescriptor: make(map[int]NodeID),
		retired:      make(map[int]struct{}),
	}
}

// RegisterPath watches path and, for directories, everything below it.
//
// An entry is reported as watched when initial is set and the tree was
// built with WatchedEvents, and as created otherwise. Parents are always
// registered before their children; siblings are visited in name order.
// Failures below path are logged and skipped. Registering a path that is
// already watched is a no-op. A second path to an already watched inode
// is reported but shares the first path's node.
func (t *Tree) RegisterPath(path string, initial bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.register(abs, initial)
	return err
}

func (t *Tree) register(path string, initial bool) (NodeID, error) {
	if id, ok := t.lookupPath(path); ok {
		return id, nil
	}

	info, err := t.lstat(path)
	if err != nil {
		return NoNode, fmt.Errorf("stat %s: %w", path, err)
	}
	descriptor, err := t.source.AddWatch(path)
	if err != nil {
		return NoNode, fmt.Errorf("watch %s: %w", path, err)
	}
	action := events.Created
	if initial && t.watched {
		action = events.Watched
	}
	if existing, ok := t.byDescriptor[descriptor]; ok {
		// Another path to the same inode, such as a hard link. It is
		// reported, but later records name the first path.
		t.debugf("%s shares descriptor %d with %s", path, descriptor, t.fullPath(existing))
		t.emit(events.New(events.Scoped(info.IsDir(), action), path))
		return existing, nil
	}
	delete(t.retired, descriptor)

	n := node{descriptor: descriptor, isDir: info.IsDir(), segment: path, parent: NoNode}
	parent, ok := t.lookupPath(filepath.Dir(path))
	if ok && t.nodes[parent].isDir && filepath.Dir(path) != path {
		n.segment = filepath.Base(path)
	} else {
		parent = NoNode
	}
	id := t.alloc(n)
	t.attach(id, parent)
	t.byDescriptor[descriptor] = id
	t.metrics.SetNodes(len(t.byDescriptor))

	t.emit(events.New(events.Scoped(n.isDir, action), path))

	if n.isDir {
		entries, err := os.ReadDir(path)
		if err != nil {
			t.logger.Printf("list %s: %v", path, err)
		}
		for _, entry := range entries {
			child := filepath.Join(path, entry.Name())
			if _, err := t.register(child, initial); err != nil {
				t.logger.Printf("register %s: %v", child, err)
			}
		}
	}
	return id, nil
}

// LookupPath returns the node currently tracking path.
func (t *Tree) LookupPath(path string) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.lookupPath(filepath.Clean(path))
	if !ok {
		return Node{}, false
	}
	return t.view(id), true
}

// lookupPath descends from each root by segment. Roots may nest when the
// caller registered a path inside another root before the outer root.
func (t *Tree) lookupPath(path string) (NodeID, bool) {
	for _, root := range t.roots {
		rel, err := filepath.Rel(t.nodes[root].segment, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		id := root
		found := true
		if rel != "." {
			for _, segment := range strings.Split(rel, string(filepath.Separator)) {
				child, ok := t.childBySegment(id, segment)
				if !ok {
					found = false
					break
				}
				id = child
			}
		}
		if found {
			return id, true
		}
	}
	return NoNode, false
}

// LookupDescriptor returns the node owning descriptor.
func (t *Tree) LookupDescriptor(descriptor int) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byDescriptor[descriptor]
	if !ok {
		return Node{}, false
	}
	return t.view(id), true
}

// RemoveNode removes id and all its descendants, descendants first, and
// returns the removed nodes in removal order. Watches are left to the
// source; this only forgets them.
func (t *Tree) RemoveNode(id NodeID) ([]Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(id) {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotWatched)
	}
	return t.remove(id, nil), nil
}

func (t *Tree) remove(id NodeID, removed []Node) []Node {
	children := append([]NodeID(nil), t.nodes[id].children...)
	for _, c := range children {
		removed = t.remove(c, removed)
	}

	removed = append(removed, t.view(id))
	n := t.nodes[id]
	t.detach(id)
	if owner, ok := t.byDescriptor[n.descriptor]; ok && owner == id {
		delete(t.byDescriptor, n.descriptor)
	}
	t.release(id)
	t.metrics.SetNodes(len(t.byDescriptor))
	return removed
}

// unwatch removes id's subtree and asks the source to drop each watch.
// Records still queued for those descriptors are discarded until their
// Ignored record arrives.
func (t *Tree) unwatch(id NodeID) {
	for _, n := range t.remove(id, nil) {
		t.retired[n.Descriptor] = struct{}{}
		if err := t.source.RemoveWatch(n.Descriptor); err != nil {
			t.debugf("remove watch %d (%s): %v", n.Descriptor, n.Path, err)
		}
	}
}

// Len returns the number of watched nodes.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byDescriptor)
}

// Roots returns the top-level nodes in registration order.
func (t *Tree) Roots() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	roots := make([]Node, 0, len(t.roots))
	for _, id := range t.roots {
		roots = append(roots, t.view(id))
	}
	return roots
}

// Walk visits every node depth first, parents before children. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(fn func(Node) bool) {
	type entry struct {
		node Node
		end  int
	}

	t.mu.Lock()
	var order []entry
	var collect func(NodeID)
	collect = func(id NodeID) {
		i := len(order)
		order = append(order, entry{node: t.view(id)})
		for _, c := range t.nodes[id].children {
			collect(c)
		}
		order[i].end = len(order)
	}
	for _, root := range t.roots {
		collect(root)
	}
	t.mu.Unlock()

	for i := 0; i < len(order); {
		if fn(order[i].node) {
			i++
		} else {
			i = order[i].end
		}
	}
}

// Close closes the source, waking a blocked Drain. Idempotent.
func (t *Tree) Close() error {
	return t.source.Close()
}

func (t *Tree) emit(ev events.Event) {
	t.metrics.EventTranslated(ev.Kind.String())
	t.debugf("emit %s", ev)
	if !t.sink.Push(ev) {
		t.debugf("sink closed, dropped %s", ev)
	}
}

func (t *Tree) debugf(format string, args ...any) {
	if t.debug {
		t.logger.Printf(format, args...)
	}
}
