package transaction

import (
	"github.com/cplane-io/tinyxs/kv/store"
)

// None is the reserved transaction id denoting non-transactional access.
// Operations issued under None apply to the live store immediately.
const None uint64 = 0

type mode int

const (
	// modeDirect binds the transaction to the live store itself. Every
	// operation commits at call time; there is nothing to reconcile later.
	modeDirect mode = iota
	// modeIsolated binds the transaction to a private structural copy taken
	// at open time, plus the live root captured for the commit-time
	// interference test.
	modeIsolated
)

// Transaction is a bounded unit of store access, either trivial (direct) or
// snapshot isolated. It exists from Open until the commit decision returns;
// an abandoned transaction needs no teardown beyond dropping the reference.
type Transaction struct {
	id      uint64
	mode    mode
	root    store.Root
	store   *store.Store
	effects SideEffects
	journal Journal
}

// Open binds a new transaction to live. Id None selects direct mode; any
// other id captures live's current root and a structural copy of the tree
// and quota, giving the transaction a snapshot to mutate in isolation.
func Open(id uint64, live *store.Store) *Transaction {
	if id == None {
		return &Transaction{
			id:    id,
			mode:  modeDirect,
			store: live,
		}
	}
	// Capture the root before taking the copy: a mutation slipping between
	// the two reads then surfaces as a conflict at commit time, never as a
	// lost update.
	root := live.Root()
	return &Transaction{
		id:    id,
		mode:  modeIsolated,
		root:  root,
		store: live.Copy(),
	}
}

// ID returns the transaction id, None for direct transactions.
func (t *Transaction) ID() uint64 {
	return t.id
}

// Isolated reports whether the transaction runs against a private snapshot.
func (t *Transaction) Isolated() bool {
	switch t.mode {
	case modeDirect:
		return false
	case modeIsolated:
		return true
	}
	panic("unknown transaction mode")
}

// SideEffects exposes the transaction's accumulated effects. The caller must
// forward them to the watch and persistence collaborators only after a
// successful commit, and discard them entirely on conflict.
func (t *Transaction) SideEffects() *SideEffects {
	return &t.effects
}

// RecordOperation appends a request/response pair to the operation journal.
func (t *Transaction) RecordOperation(req, resp interface{}) {
	t.journal.Record(req, resp)
}

// DrainOperations returns the journal in request-issued order.
func (t *Transaction) DrainOperations() []Operation {
	return t.journal.Drain()
}

// ensurePath creates every missing node along path, walking from the root
// down. Implicit creations are logged to the write log but deliberately
// produce no watch events.
func (t *Transaction) ensurePath(c store.Cred, path string) error {
	if path == "/" || t.store.Exists(path) {
		return nil
	}
	for _, p := range append(store.Ancestors(path), path) {
		if t.store.Exists(p) {
			continue
		}
		if err := t.store.Mkdir(c, p); err != nil {
			return err
		}
		t.effects.addWrite(p)
	}
	return nil
}

// Mkdir creates the node at path along with any missing ancestors. Only the
// leaf creation emits a watch event. Creating an existing path is a no-op.
func (t *Transaction) Mkdir(c store.Cred, path string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if t.store.Exists(path) {
		return nil
	}
	if err := t.ensurePath(c, store.Dirname(path)); err != nil {
		return err
	}
	if err := t.store.Mkdir(c, path); err != nil {
		return err
	}
	t.effects.addWrite(path)
	t.effects.addWatch(WatchOpMkdir, path)
	return nil
}

// Write sets the value at path, creating missing ancestors first. Store
// errors (permission, quota) propagate unchanged.
func (t *Transaction) Write(c store.Cred, path string, value []byte) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if err := t.ensurePath(c, store.Dirname(path)); err != nil {
		return err
	}
	if err := t.store.Write(c, path, value); err != nil {
		return err
	}
	t.effects.addWrite(path)
	t.effects.addWatch(WatchOpWrite, path)
	return nil
}

// Rm removes the subtree rooted at path. The removed path is recorded in
// both the write log and the delete log, so collaborators that persist
// committed paths can tell deletions apart from writes.
func (t *Transaction) Rm(c store.Cred, path string) error {
	if err := t.store.Rm(c, path); err != nil {
		return err
	}
	t.effects.addWrite(path)
	t.effects.addDelete(path)
	t.effects.addWatch(WatchOpRm, path)
	return nil
}

// SetPerms replaces the permission list of the node at path.
func (t *Transaction) SetPerms(c store.Cred, path string, perms []store.Perm) error {
	if err := t.store.SetPerms(c, path, perms); err != nil {
		return err
	}
	t.effects.addWrite(path)
	t.effects.addWatch(WatchOpSetPerms, path)
	return nil
}

// Exists reports whether path names a node in the transaction's view.
func (t *Transaction) Exists(path string) bool {
	return t.store.Exists(path)
}

// Read returns the value at path in the transaction's view.
func (t *Transaction) Read(c store.Cred, path string) ([]byte, error) {
	return t.store.Read(c, path)
}

// Ls returns the direct children of path in the transaction's view.
func (t *Transaction) Ls(c store.Cred, path string) ([]string, error) {
	return t.store.Ls(c, path)
}

// GetPerms returns the permission list at path in the transaction's view.
func (t *Transaction) GetPerms(c store.Cred, path string) ([]store.Perm, error) {
	return t.store.GetPerms(c, path)
}
