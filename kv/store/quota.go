package store

// Quota tracks how many nodes each domain owns and enforces the per-domain
// node limit and per-entry size limit. A transaction forks the quota together
// with the tree so its own writes are charged against its own view.
type Quota struct {
	maxNodes  int
	maxSize   int
	privByDom map[uint32]int
}

// NewQuota returns quota accounting with the given per-domain node limit and
// per-entry size limit. A non-positive limit disables the check.
func NewQuota(maxNodes, maxSize int) *Quota {
	return &Quota{
		maxNodes:  maxNodes,
		maxSize:   maxSize,
		privByDom: make(map[uint32]int),
	}
}

// Copy forks the accounting so that a transaction's charges never leak into
// the live store until commit publishes them.
func (q *Quota) Copy() *Quota {
	c := &Quota{
		maxNodes:  q.maxNodes,
		maxSize:   q.maxSize,
		privByDom: make(map[uint32]int, len(q.privByDom)),
	}
	for dom, n := range q.privByDom {
		c.privByDom[dom] = n
	}
	return c
}

// Owned returns the number of nodes currently charged to dom.
func (q *Quota) Owned(dom uint32) int {
	return q.privByDom[dom]
}

// Counts returns a copy of the per-domain owned-node counts.
func (q *Quota) Counts() map[uint32]int {
	out := make(map[uint32]int, len(q.privByDom))
	for dom, n := range q.privByDom {
		out[dom] = n
	}
	return out
}

// Charge records one more node owned by dom, failing if the domain is at its
// node limit. Domain 0 is never limited.
func (q *Quota) Charge(dom uint32) error {
	if dom != 0 && q.maxNodes > 0 && q.privByDom[dom] >= q.maxNodes {
		return ErrQuotaExceeded
	}
	q.privByDom[dom]++
	return nil
}

// Release returns one node owned by dom.
func (q *Quota) Release(dom uint32) {
	if q.privByDom[dom] > 0 {
		q.privByDom[dom]--
	}
}

// CheckSize fails if an entry of n bytes exceeds the per-entry size limit.
func (q *Quota) CheckSize(n int) error {
	if q.maxSize > 0 && n > q.maxSize {
		return ErrQuotaExceeded
	}
	return nil
}
