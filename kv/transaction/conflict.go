package transaction

import (
	"go.uber.org/atomic"
)

// ConflictPolicy decides whether an otherwise successful commit should be
// forced into conflict. It exists to exercise retry logic in calling code and
// is injected into the Committer rather than toggled through process-wide
// state, so parallel tests cannot contaminate each other. A nil policy never
// forces a conflict.
type ConflictPolicy interface {
	ForceConflict() bool
}

// RatioPolicy forces every Nth otherwise successful commit into conflict.
// With N == 3 roughly one in three commits is rejected.
type RatioPolicy struct {
	N        uint64
	attempts atomic.Uint64
}

// NewRatioPolicy returns a policy rejecting every nth commit.
func NewRatioPolicy(n uint64) *RatioPolicy {
	return &RatioPolicy{N: n}
}

func (p *RatioPolicy) ForceConflict() bool {
	if p.N == 0 {
		return false
	}
	return p.attempts.Add(1)%p.N == 0
}
