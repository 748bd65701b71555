package transaction

// Operation is one request/response pair observed during a transaction's
// lifetime. The journal exists for an external replay validator, which can
// re-execute the requests against the post-commit store and check that the
// same responses would still be produced. That catches semantic conflicts
// which root identity comparison cannot see. This package only stages the
// journal; it never interprets it.
type Operation struct {
	Request  interface{}
	Response interface{}
}

// Journal is the ordered record of every operation a transaction performed.
// It accumulates independently of the side-effect log: a transaction with no
// store effects may still have a non-empty journal.
type Journal struct {
	ops []Operation
}

// Record appends one request/response pair.
func (j *Journal) Record(req, resp interface{}) {
	j.ops = append(j.ops, Operation{Request: req, Response: resp})
}

// Drain returns the journal in the order the requests were issued and leaves
// the journal empty.
func (j *Journal) Drain() []Operation {
	ops := j.ops
	j.ops = nil
	return ops
}

// Len returns the number of recorded operations.
func (j *Journal) Len() int {
	return len(j.ops)
}
