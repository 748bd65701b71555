package server

import (
	"sync"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/cplane-io/tinyxs/kv/config"
	"github.com/cplane-io/tinyxs/kv/metrics"
	"github.com/cplane-io/tinyxs/kv/persist"
	"github.com/cplane-io/tinyxs/kv/store"
	"github.com/cplane-io/tinyxs/kv/transaction"
	"github.com/cplane-io/tinyxs/kv/watch"
)

var (
	ErrUnknownTxn  = errors.New("unknown transaction id")
	ErrTooManyTxns = errors.New("too many open transactions")
)

// Request is the journal form of one client operation. The wire encoding
// itself lives outside this server; the journal only needs enough to let an
// external validator replay the operation.
type Request struct {
	Op    string
	Path  string
	Value []byte
}

// Response is the journal form of one operation's result. Query operations
// record the result they observed so a replay can check that the same
// response would still be produced.
type Response struct {
	Value []byte
	Names []string
	Found bool
	Perms []store.Perm
	Err   string
}

// Validator consumes the operation journal of a finished transaction. Replay
// validation is external; the server only hands the journal over.
type Validator func(id uint64, committed bool, ops []transaction.Operation)

// Session is one connected domain's view of the server: its credentials and
// its table of open transactions.
type Session struct {
	id   uint64
	cred store.Cred

	mu   sync.Mutex
	txns map[uint64]*transaction.Transaction
}

// Cred returns the principal bound to the session.
func (s *Session) Cred() store.Cred {
	return s.cred
}

// Server is the session layer above the transaction engine. It owns the
// committer, routes client operations into transactions, and forwards the
// effects of committed transactions to the watch and persistence
// collaborators. Conflicted and aborted transactions are discarded whole.
type Server struct {
	conf      *config.Config
	committer *transaction.Committer
	dispatch  *watch.Dispatcher
	plog      *persist.Log
	validator Validator

	mu       sync.Mutex
	sessions map[uint64]*Session
	nextSess uint64
	nextTxn  uint64
}

// NewServer assembles the session layer. dispatch, plog and validator may be
// nil, disabling watch delivery, persistence, or replay validation.
func NewServer(conf *config.Config, committer *transaction.Committer, dispatch *watch.Dispatcher, plog *persist.Log, validator Validator) *Server {
	return &Server{
		conf:      conf,
		committer: committer,
		dispatch:  dispatch,
		plog:      plog,
		validator: validator,
		sessions:  make(map[uint64]*Session),
	}
}

// OpenSession registers a new session for the given principal.
func (s *Server) OpenSession(cred store.Cred) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSess++
	sess := &Session{
		id:   s.nextSess,
		cred: cred,
		txns: make(map[uint64]*transaction.Transaction),
	}
	s.sessions[sess.id] = sess
	log.Debugf("session %d opened for domain %d", sess.id, cred.Dom)
	return sess
}

// CloseSession drops the session, abandoning its open transactions. An
// abandoned transaction needs no teardown; its snapshot and logs just become
// garbage.
func (s *Server) CloseSession(sess *Session) {
	sess.mu.Lock()
	n := len(sess.txns)
	sess.txns = make(map[uint64]*transaction.Transaction)
	sess.mu.Unlock()
	metrics.OpenTxnGauge.Sub(float64(n))

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	log.Debugf("session %d closed, %d transactions abandoned", sess.id, n)
}

// Begin opens a snapshot-isolated transaction and returns its id.
func (s *Server) Begin(sess *Session) (uint64, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.txns) >= s.conf.MaxTxnPerSession {
		return 0, ErrTooManyTxns
	}
	s.mu.Lock()
	s.nextTxn++
	id := s.nextTxn
	s.mu.Unlock()

	sess.txns[id] = transaction.Open(id, s.committer.Live())
	metrics.OpenTxnGauge.Inc()
	return id, nil
}

// End finishes the transaction with the given id. With abort set the
// transaction is discarded unconditionally and End reports true; otherwise
// the commit protocol decides, and false means the client must retry the
// whole transaction from a fresh snapshot.
func (s *Server) End(sess *Session, id uint64, abort bool) (bool, error) {
	sess.mu.Lock()
	txn, ok := sess.txns[id]
	if ok {
		delete(sess.txns, id)
	}
	sess.mu.Unlock()
	if !ok {
		return false, ErrUnknownTxn
	}
	metrics.OpenTxnGauge.Dec()

	if abort {
		return true, nil
	}
	return s.finish(sess, txn), nil
}

// finish runs the commit protocol and routes the outcome. Side effects are
// forwarded only on commit; on conflict everything the transaction recorded
// is discarded so the client observes a transaction that never happened.
func (s *Server) finish(sess *Session, txn *transaction.Transaction) bool {
	committed := s.committer.Commit(sess.cred, txn)
	ops := txn.DrainOperations()
	if committed {
		se := txn.SideEffects()
		if s.plog != nil && !se.Empty() {
			if err := s.plog.Append(s.committer.Live(), se); err != nil {
				log.Errorf("persisting committed paths of txn %d: %v", txn.ID(), err)
			}
		}
		if s.dispatch != nil {
			s.dispatch.Deliver(se.Watches)
		}
	}
	if s.validator != nil {
		s.validator(txn.ID(), committed, ops)
	}
	return committed
}

// lookup resolves the transaction an operation runs in. Id None yields a
// transient direct transaction which is finished as soon as the operation
// returns.
func (s *Server) lookup(sess *Session, id uint64) (*transaction.Transaction, bool, error) {
	if id == transaction.None {
		return transaction.Open(transaction.None, s.committer.Live()), true, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	txn, ok := sess.txns[id]
	if !ok {
		return nil, false, ErrUnknownTxn
	}
	return txn, false, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Write sets the value at path within the given transaction.
func (s *Server) Write(sess *Session, id uint64, path string, value []byte) error {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return err
	}
	err = txn.Write(sess.cred, path, value)
	txn.RecordOperation(&Request{Op: "write", Path: path, Value: value}, &Response{Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return err
}

// Mkdir creates the node at path within the given transaction.
func (s *Server) Mkdir(sess *Session, id uint64, path string) error {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return err
	}
	err = txn.Mkdir(sess.cred, path)
	txn.RecordOperation(&Request{Op: "mkdir", Path: path}, &Response{Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return err
}

// Rm removes the subtree at path within the given transaction.
func (s *Server) Rm(sess *Session, id uint64, path string) error {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return err
	}
	err = txn.Rm(sess.cred, path)
	txn.RecordOperation(&Request{Op: "rm", Path: path}, &Response{Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return err
}

// SetPerms replaces the permissions at path within the given transaction.
func (s *Server) SetPerms(sess *Session, id uint64, path string, perms []store.Perm) error {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return err
	}
	err = txn.SetPerms(sess.cred, path, perms)
	txn.RecordOperation(&Request{Op: "setperms", Path: path}, &Response{Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return err
}

// Read returns the value at path as seen by the given transaction.
func (s *Server) Read(sess *Session, id uint64, path string) ([]byte, error) {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return nil, err
	}
	val, err := txn.Read(sess.cred, path)
	txn.RecordOperation(&Request{Op: "read", Path: path}, &Response{Value: val, Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return val, err
}

// Ls returns the children of path as seen by the given transaction.
func (s *Server) Ls(sess *Session, id uint64, path string) ([]string, error) {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return nil, err
	}
	names, err := txn.Ls(sess.cred, path)
	txn.RecordOperation(&Request{Op: "ls", Path: path}, &Response{Names: names, Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return names, err
}

// Exists reports whether path names a node as seen by the given transaction.
func (s *Server) Exists(sess *Session, id uint64, path string) (bool, error) {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return false, err
	}
	found := txn.Exists(path)
	txn.RecordOperation(&Request{Op: "exists", Path: path}, &Response{Found: found})
	if transient {
		s.finish(sess, txn)
	}
	return found, nil
}

// GetPerms returns the permissions at path as seen by the given transaction.
func (s *Server) GetPerms(sess *Session, id uint64, path string) ([]store.Perm, error) {
	txn, transient, err := s.lookup(sess, id)
	if err != nil {
		return nil, err
	}
	perms, err := txn.GetPerms(sess.cred, path)
	txn.RecordOperation(&Request{Op: "getperms", Path: path}, &Response{Perms: perms, Err: errString(err)})
	if transient {
		s.finish(sess, txn)
	}
	return perms, nil
}
