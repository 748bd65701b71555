package transaction

import (
	"sync"

	"github.com/ngaut/log"

	"github.com/cplane-io/tinyxs/kv/metrics"
	"github.com/cplane-io/tinyxs/kv/store"
)

// Audit receives a report of every commit attempt, whatever the outcome. A
// conflicted commit is never silently dropped.
type Audit interface {
	Committed(id uint64, c store.Cred)
	Conflicted(id uint64, c store.Cred)
}

// LogAudit reports commit attempts through the process log. It is the
// default audit sink.
type LogAudit struct{}

func (LogAudit) Committed(id uint64, c store.Cred) {
	log.Debugf("txn %d committed for domain %d", id, c.Dom)
}

func (LogAudit) Conflicted(id uint64, c store.Cred) {
	log.Infof("txn %d conflicted for domain %d", id, c.Dom)
}

// Committer owns the optimistic-concurrency commit decision for one live
// store. All commits against the store must go through the same Committer:
// its mutex serializes commit decisions, and the store makes the root
// comparison and the publish one atomic step against mutations that bypass
// the Committer entirely. Out of N transactions snapshotted from the same
// root at most one can publish, because publishing changes the root every
// later attempt is compared against.
type Committer struct {
	mu     sync.Mutex
	live   *store.Store
	audit  Audit
	policy ConflictPolicy
}

// NewCommitter returns a Committer for live. A nil audit falls back to
// LogAudit; a nil policy never injects conflicts.
func NewCommitter(live *store.Store, audit Audit, policy ConflictPolicy) *Committer {
	if audit == nil {
		audit = LogAudit{}
	}
	return &Committer{
		live:   live,
		audit:  audit,
		policy: policy,
	}
}

// Live returns the live store the Committer publishes into.
func (c *Committer) Live() *store.Store {
	return c.live
}

// Commit decides the transaction's fate and returns true if it committed.
// On success with recorded writes or deletes the private tree and quota are
// published into the live store; a read-only transaction commits without
// touching the live root. On conflict nothing is published and the caller
// must discard the transaction's side effects and journal. The attempt is
// reported to the audit sink either way.
func (c *Committer) Commit(cred store.Cred, t *Transaction) bool {
	c.mu.Lock()
	committed := c.decide(t)
	c.mu.Unlock()

	if committed {
		c.audit.Committed(t.id, cred)
		metrics.CommitCounter.WithLabelValues("commit").Inc()
	} else {
		c.audit.Conflicted(t.id, cred)
		metrics.CommitCounter.WithLabelValues("conflict").Inc()
	}
	return committed
}

func (c *Committer) decide(t *Transaction) bool {
	switch t.mode {
	case modeDirect:
		// Every operation already took effect on the live store.
		return true
	case modeIsolated:
		if c.policy != nil && c.policy.ForceConflict() {
			return false
		}
		if t.effects.Empty() {
			// Nothing to publish; the transaction commits iff nobody else
			// changed the store since its snapshot was taken.
			return t.root == c.live.Root()
		}
		return c.live.Publish(t.root, t.store)
	}
	panic("unknown transaction mode")
}
