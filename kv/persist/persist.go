package persist

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pingcap/badger"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/cplane-io/tinyxs/kv/metrics"
	"github.com/cplane-io/tinyxs/kv/store"
	"github.com/cplane-io/tinyxs/kv/transaction"
)

const pathPrefix = "p_"

var seqKey = []byte("m_seq")

func pathKey(p string) []byte {
	return append([]byte(pathPrefix), p...)
}

// Log is the on-disk record of committed paths. Each successful commit
// appends its written paths with their post-commit values, tombstones its
// deleted paths, and advances the commit sequence. Conflicted transactions
// must never reach the log.
type Log struct {
	db  *badger.DB
	dir string
}

// Open creates or reopens the committed-path log under dbPath.
func Open(dbPath string) (*Log, error) {
	dir := filepath.Join(dbPath, "persist")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Log{db: db, dir: dir}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append records one committed transaction's effects. Written paths are read
// back from the post-commit live store; a path that no longer exists there
// was shadowed by a later delete in the same transaction and is skipped.
func (l *Log) Append(live *store.Store, se *transaction.SideEffects) error {
	deleted := make(map[string]bool, len(se.Deletes))
	for _, p := range se.Deletes {
		deleted[p] = true
	}
	err := l.db.Update(func(txn *badger.Txn) error {
		for _, p := range se.Deletes {
			if err := txn.Delete(pathKey(p)); err != nil {
				return err
			}
			metrics.PersistedPathCounter.WithLabelValues("delete").Inc()
		}
		for _, p := range se.Writes {
			if deleted[p] {
				continue
			}
			val, err := live.Read(store.Cred{Dom: 0}, p)
			if err != nil {
				log.Debugf("skipping persisted path %q: %v", p, err)
				continue
			}
			if err := txn.Set(pathKey(p), val); err != nil {
				return err
			}
			metrics.PersistedPathCounter.WithLabelValues("write").Inc()
		}
		seq, err := seqFromTxn(txn)
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], seq+1)
		return txn.Set(seqKey, buf[:])
	})
	return errors.WithStack(err)
}

// ReadPath returns the last persisted value of p, with ok false if the path
// was never persisted or was tombstoned.
func (l *Log) ReadPath(p string) (val []byte, ok bool, err error) {
	err = l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(p))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err = item.Value()
		ok = true
		return err
	})
	return val, ok, errors.WithStack(err)
}

// Seq returns the number of commits recorded so far.
func (l *Log) Seq() (uint64, error) {
	var seq uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = seqFromTxn(txn)
		return err
	})
	return seq, errors.WithStack(err)
}

func seqFromTxn(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(seqKey)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	val, err := item.Value()
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}
