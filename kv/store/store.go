package store

import (
	"strings"
	"sync"

	"github.com/google/btree"
	"go.uber.org/atomic"
)

const btreeDegree = 16

// node is one entry of the tree, keyed by its full path. Nodes are immutable
// once inserted; mutation replaces the node with a fresh one so that clones
// sharing the subtree never observe the change.
type node struct {
	path  string
	value []byte
	perms []Perm
}

func (n *node) Less(than btree.Item) bool {
	return n.path < than.(*node).path
}

// Root identifies a generation of the store. It changes on every mutation of
// the live tree and on every published commit, which makes generation
// equality a cheap whole-store interference test. A Root is only ever
// compared for equality, never dereferenced.
type Root uint64

// Store is the hierarchical tree of configuration entries. Copy is a lazy
// structural copy, so a per-transaction snapshot is cheap: only the paths a
// transaction touches are forked privately.
type Store struct {
	mu    sync.Mutex
	tree  *btree.BTree
	quota *Quota
	gen   *atomic.Uint64
}

// New returns a store containing only the root directory, owned by domain 0.
func New(q *Quota) *Store {
	t := btree.New(btreeDegree)
	t.ReplaceOrInsert(&node{path: "/", perms: []Perm{{ID: 0, Access: AccessNone}}})
	return &Store{
		tree:  t,
		quota: q,
		gen:   atomic.NewUint64(0),
	}
}

// Root returns the store's current generation marker.
func (s *Store) Root() Root {
	return Root(s.gen.Load())
}

// Quota returns the store's quota accounting.
func (s *Store) Quota() *Quota {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

// OwnedNodes returns a copy of the per-domain owned-node counts, taken under
// the store lock so it is safe against concurrent mutations.
func (s *Store) OwnedNodes() map[uint32]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota.Counts()
}

// Copy returns a structural copy of the store. The copy and the original can
// be mutated independently; unmodified subtrees stay shared.
func (s *Store) Copy() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Store{
		tree:  s.tree.Clone(),
		quota: s.quota.Copy(),
		gen:   atomic.NewUint64(s.gen.Load()),
	}
}

// Publish installs the tree and quota of a committing transaction's private
// store, provided the live generation still equals the one captured when the
// transaction was opened. Comparison and swap happen under the same lock
// every mutation takes, so a write landing between the snapshot and the
// commit always surfaces as a conflict, never as a lost update. The private
// store is owned by the committing transaction alone and needs no locking.
func (s *Store) Publish(captured Root, from *Store) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if Root(s.gen.Load()) != captured {
		return false
	}
	s.tree = from.tree
	s.quota = from.quota
	s.gen.Add(1)
	return true
}

func (s *Store) get(path string) *node {
	item := s.tree.Get(&node{path: path})
	if item == nil {
		return nil
	}
	return item.(*node)
}

// Exists reports whether path names a node.
func (s *Store) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(path) != nil
}

// Read returns the value stored at path.
func (s *Store) Read(c Cred, path string) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.get(path)
	if n == nil {
		return nil, ErrNotFound
	}
	if err := checkRead(c, n.perms); err != nil {
		return nil, err
	}
	return append([]byte(nil), n.value...), nil
}

// Ls returns the names of the direct children of path, sorted.
func (s *Store) Ls(c Cred, path string) ([]string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.get(path)
	if n == nil {
		return nil, ErrNotFound
	}
	if err := checkRead(c, n.perms); err != nil {
		return nil, err
	}
	prefix := path + "/"
	if path == "/" {
		prefix = "/"
	}
	var names []string
	s.tree.AscendGreaterOrEqual(&node{path: prefix}, func(item btree.Item) bool {
		p := item.(*node).path
		if !strings.HasPrefix(p, prefix) {
			return false
		}
		if p != "/" && Dirname(p) == path {
			names = append(names, Basename(p))
		}
		return true
	})
	return names, nil
}

// GetPerms returns the permission list of the node at path.
func (s *Store) GetPerms(c Cred, path string) ([]Perm, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.get(path)
	if n == nil {
		return nil, ErrNotFound
	}
	if err := checkRead(c, n.perms); err != nil {
		return nil, err
	}
	return clonePerms(n.perms), nil
}

// Write sets the value at path. The parent must already exist; the
// transaction layer is responsible for creating missing ancestors. A new node
// is owned by the writing domain and charged against its quota.
func (s *Store) Write(c Cred, path string, value []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.quota.CheckSize(len(value)); err != nil {
		return err
	}
	if existing := s.get(path); existing != nil {
		if err := checkWrite(c, existing.perms); err != nil {
			return err
		}
		s.tree.ReplaceOrInsert(&node{
			path:  path,
			value: append([]byte(nil), value...),
			perms: existing.perms,
		})
		s.gen.Add(1)
		return nil
	}
	if path == "/" {
		return ErrInvalidPath
	}
	parent := s.get(Dirname(path))
	if parent == nil {
		return ErrNotFound
	}
	if err := checkWrite(c, parent.perms); err != nil {
		return err
	}
	if err := s.quota.Charge(c.Dom); err != nil {
		return err
	}
	s.tree.ReplaceOrInsert(&node{
		path:  path,
		value: append([]byte(nil), value...),
		perms: []Perm{{ID: c.Dom, Access: AccessNone}},
	})
	s.gen.Add(1)
	return nil
}

// Mkdir creates an empty node at path. It is a no-op if the node already
// exists. The parent must exist.
func (s *Store) Mkdir(c Cred, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.get(path) != nil {
		return nil
	}
	parent := s.get(Dirname(path))
	if parent == nil {
		return ErrNotFound
	}
	if err := checkWrite(c, parent.perms); err != nil {
		return err
	}
	if err := s.quota.Charge(c.Dom); err != nil {
		return err
	}
	s.tree.ReplaceOrInsert(&node{
		path:  path,
		perms: []Perm{{ID: c.Dom, Access: AccessNone}},
	})
	s.gen.Add(1)
	return nil
}

// Rm removes the node at path together with its whole subtree, releasing the
// quota charged to each removed node's owner. The root is irremovable.
func (s *Store) Rm(c Cred, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if path == "/" {
		return ErrRootRm
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.get(path)
	if n == nil {
		return ErrNotFound
	}
	if err := checkWrite(c, n.perms); err != nil {
		return err
	}
	prefix := path + "/"
	doomed := []*node{n}
	s.tree.AscendGreaterOrEqual(&node{path: prefix}, func(item btree.Item) bool {
		d := item.(*node)
		if !strings.HasPrefix(d.path, prefix) {
			return false
		}
		doomed = append(doomed, d)
		return true
	})
	for _, d := range doomed {
		s.tree.Delete(d)
		if len(d.perms) > 0 {
			s.quota.Release(d.perms[0].ID)
		}
	}
	s.gen.Add(1)
	return nil
}

// SetPerms replaces the permission list of the node at path. Only the owner
// or a privileged domain may change permissions, and the new list must name
// an owner.
func (s *Store) SetPerms(c Cred, path string, perms []Perm) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if len(perms) == 0 {
		return ErrNoOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.get(path)
	if n == nil {
		return ErrNotFound
	}
	if err := checkOwner(c, n.perms); err != nil {
		return err
	}
	s.tree.ReplaceOrInsert(&node{
		path:  path,
		value: n.value,
		perms: clonePerms(perms),
	})
	s.gen.Add(1)
	return nil
}
