package tree

import "path/filepath"

// NodeID addresses a node slot in the tree's arena. IDs of removed nodes
// are reused.
type NodeID int

// NoNode is the parent of every root.
const NoNode NodeID = -1

// node is one arena slot. Roots store an absolute segment, every other
// node stores a single path component relative to its parent.
type node struct {
	live       bool
	descriptor int
	isDir      bool
	segment    string
	parent     NodeID
	children   []NodeID
}

// Node is a read-only snapshot of a watched entry.
type Node struct {
	ID         NodeID
	Descriptor int
	IsDir      bool
	Path       string
	Parent     NodeID
	Children   []NodeID
}

// IsRoot reports whether the node was registered without a watched parent.
func (n Node) IsRoot() bool {
	return n.Parent == NoNode
}

func (t *Tree) alloc(n node) NodeID {
	n.live = true
	if len(t.free) > 0 {
		id := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) release(id NodeID) {
	t.nodes[id] = node{}
	t.free = append(t.free, id)
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && t.nodes[id].live
}

// fullPath joins segments from the root down to id. It is never cached so
// renames of an ancestor are reflected immediately.
func (t *Tree) fullPath(id NodeID) string {
	var segments []string
	for cur := id; cur != NoNode; cur = t.nodes[cur].parent {
		segments = append(segments, t.nodes[cur].segment)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return filepath.Join(segments...)
}

func (t *Tree) view(id NodeID) Node {
	n := t.nodes[id]
	return Node{
		ID:         id,
		Descriptor: n.descriptor,
		IsDir:      n.isDir,
		Path:       t.fullPath(id),
		Parent:     n.parent,
		Children:   append([]NodeID(nil), n.children...),
	}
}

func (t *Tree) childBySegment(parent NodeID, segment string) (NodeID, bool) {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].segment == segment {
			return c, true
		}
	}
	return NoNode, false
}

func (t *Tree) attach(id, parent NodeID) {
	t.nodes[id].parent = parent
	if parent == NoNode {
		t.roots = append(t.roots, id)
		return
	}
	t.nodes[parent].children = append(t.nodes[parent].children, id)
}

func (t *Tree) detach(id NodeID) {
	parent := t.nodes[id].parent
	if parent == NoNode {
		t.roots = without(t.roots, id)
		return
	}
	t.nodes[parent].children = without(t.nodes[parent].children, id)
	t.nodes[id].parent = NoNode
}

func without(ids []NodeID, id NodeID) []NodeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
