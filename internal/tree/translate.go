package tree

import (
	"errors"
	"path/filepath"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
)

// pendingMove is a MovedFrom waiting for its MovedTo.
type pendingMove struct {
	cookie uint32
	parent NodeID
	name   string
}

// Drain blocks until the source has records, translates them in arrival
// order and resolves a move left unpaired at the end of the batch. Protocol
// violations do not stop the batch; they are joined into the returned
// error. Once the source is closed Drain returns inotify.ErrClosed.
func (t *Tree) Drain() error {
	records, err := t.source.Read()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, rec := range records {
		if err := t.translate(rec); err != nil {
			errs = append(errs, err)
		}
	}
	t.resolvePending()
	return errors.Join(errs...)
}

// Translate applies a single record. A MovedFrom stays pending until the
// next record; call Flush to resolve it when no record follows.
func (t *Tree) Translate(rec inotify.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.translate(rec)
}

// Flush resolves a pending MovedFrom as a move out of the tree.
func (t *Tree) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolvePending()
}

func (t *Tree) translate(rec inotify.Record) error {
	t.metrics.RecordDrained(primaryFlag(rec.Mask))
	t.debugf("record %s", rec)

	err := t.apply(rec)
	if err != nil {
		t.metrics.ProtocolError()
	}
	return err
}

func (t *Tree) apply(rec inotify.Record) error {
	if p := t.pending; p != nil {
		if rec.Mask.Has(inotify.MovedTo) && rec.Cookie == p.cookie {
			t.pending = nil
			return t.completeMove(p, rec)
		}
		t.resolvePending()
	}

	switch {
	case rec.Mask.Has(inotify.QueueOverflow):
		t.metrics.Overflow()
		t.logger.Printf("kernel event queue overflowed, some changes were lost")
		return nil

	case rec.Mask.Has(inotify.Ignored):
		if rec.Name != "" {
			return violation(rec, "ignored record with a name")
		}
		delete(t.retired, rec.Descriptor)
		if id, ok := t.byDescriptor[rec.Descriptor]; ok {
			t.remove(id, nil)
		}
		return nil
	}

	if _, ok := t.retired[rec.Descriptor]; ok {
		return nil
	}
	owner, ok := t.byDescriptor[rec.Descriptor]
	if !ok {
		return violation(rec, "unknown descriptor")
	}
	isDir := t.nodes[owner].isDir

	switch {
	case rec.Mask.Has(inotify.Unmount):
		if rec.Name != "" {
			return violation(rec, "unmount record with a name")
		}
		t.emit(events.New(events.Scoped(isDir, events.Gone), t.fullPath(owner)))
		t.retire(owner)

	case rec.Mask.Has(inotify.Create):
		if rec.Name == "" {
			return violation(rec, "create record without a name")
		}
		t.registerChild(owner, rec.Name)

	case rec.Mask.Has(inotify.MovedFrom):
		if rec.Name == "" {
			return violation(rec, "moved-from record without a name")
		}
		t.pending = &pendingMove{cookie: rec.Cookie, parent: owner, name: rec.Name}

	case rec.Mask.Has(inotify.MovedTo):
		if rec.Name == "" {
			return violation(rec, "moved-to record without a name")
		}
		t.registerChild(owner, rec.Name)

	case rec.Mask.Has(inotify.Attrib) && rec.Name == "":
		t.emit(events.New(events.Scoped(isDir, events.Updated), t.fullPath(owner)))

	case rec.Mask.Has(inotify.Modify) && rec.Name == "":
		t.emit(events.New(events.Scoped(isDir, events.Modified), t.fullPath(owner)))

	case rec.Mask.Has(inotify.DeleteSelf):
		if rec.Name != "" {
			return violation(rec, "delete-self record with a name")
		}
		if len(t.nodes[owner].children) > 0 {
			return violation(rec, "delete-self on a node with watched children")
		}
		t.emit(events.New(events.Scoped(isDir, events.Deleted), t.fullPath(owner)))
		t.retire(owner)

	case rec.Mask.Has(inotify.MoveSelf):
		if rec.Name != "" {
			return violation(rec, "move-self record with a name")
		}
		// A moved child was already handled through its parent's records.
		if t.nodes[owner].parent == NoNode {
			t.emit(events.New(events.Scoped(isDir, events.Gone), t.fullPath(owner)))
			t.unwatch(owner)
		}
	}
	return nil
}

// retire forgets id's subtree whose watches the kernel is dropping itself.
func (t *Tree) retire(id NodeID) {
	for _, n := range t.remove(id, nil) {
		t.retired[n.Descriptor] = struct{}{}
	}
}

// registerChild registers parent/name as created. A watched child of the
// same name whose inode changed underneath it, through a rename from outside
// the tree or an unlink and recreate, is reported deleted first.
func (t *Tree) registerChild(parent NodeID, name string) {
	path := filepath.Join(t.fullPath(parent), name)
	if existing, ok := t.childBySegment(parent, name); ok {
		descriptor, err := t.source.AddWatch(path)
		if err != nil {
			t.debugf("recheck %s: %v", path, err)
			return
		}
		if descriptor == t.nodes[existing].descriptor {
			return
		}
		t.emit(events.New(events.Scoped(t.nodes[existing].isDir, events.Deleted), path))
		t.unwatch(existing)
	}
	if _, err := t.register(path, false); err != nil {
		t.logger.Printf("register %s: %v", path, err)
	}
}

// completeMove applies a MovedFrom/MovedTo pair.
func (t *Tree) completeMove(p *pendingMove, rec inotify.Record) error {
	if rec.Name == "" {
		t.moveOut(p)
		return violation(rec, "moved-to record without a name")
	}
	if _, ok := t.retired[rec.Descriptor]; ok {
		t.moveOut(p)
		return nil
	}
	target, ok := t.byDescriptor[rec.Descriptor]
	if !ok {
		t.moveOut(p)
		return violation(rec, "unknown descriptor")
	}

	child, ok := t.validChild(p.parent, p.name)
	if !ok {
		t.registerChild(target, rec.Name)
		return nil
	}

	if replaced, ok := t.childBySegment(target, rec.Name); ok && replaced != child {
		t.emit(events.New(events.Scoped(t.nodes[replaced].isDir, events.Deleted), t.fullPath(replaced)))
		t.unwatch(replaced)
	}

	oldPath := t.fullPath(child)
	t.detach(child)
	t.nodes[child].segment = rec.Name
	t.attach(child, target)
	t.emit(events.NewMove(t.nodes[child].isDir, oldPath, t.fullPath(child)))
	return nil
}

func (t *Tree) resolvePending() {
	if p := t.pending; p != nil {
		t.pending = nil
		t.moveOut(p)
	}
}

// moveOut handles an entry renamed to somewhere outside the tree.
func (t *Tree) moveOut(p *pendingMove) {
	child, ok := t.validChild(p.parent, p.name)
	if !ok {
		return
	}
	t.emit(events.New(events.Scoped(t.nodes[child].isDir, events.Gone), t.fullPath(child)))
	t.unwatch(child)
}

func (t *Tree) validChild(parent NodeID, name string) (NodeID, bool) {
	if !t.valid(parent) {
		return NoNode, false
	}
	return t.childBySegment(parent, name)
}

var flagOrder = []inotify.Flag{
	inotify.QueueOverflow, inotify.Ignored, inotify.Unmount, inotify.Create,
	inotify.MovedFrom, inotify.MovedTo, inotify.Delete, inotify.DeleteSelf,
	inotify.MoveSelf, inotify.Attrib, inotify.Modify, inotify.CloseWrite,
	inotify.CloseNowrite, inotify.Open, inotify.Access,
}

// primaryFlag names the most significant flag of mask, for metric labels.
func primaryFlag(mask inotify.Flag) string {
	for _, f := range flagOrder {
		if mask.Has(f) {
			return f.String()
		}
	}
	return "OTHER"
}
