package vhd

// txStatus distinguishes a transaction that only needs a bitmap commit
// from one that must also commit a new BAT entry before it can
// finalize.
type txStatus int

const (
	txLive txStatus = iota
	txUpdateBAT
)

// transaction is the unit of write atomicity visible to callers: a
// group of data writes (plus, for a newly allocated block, a
// zero-bitmap write and a BAT write) whose completions are gated
// collectively. started/finished track membership so the transaction
// knows when every member's I/O has landed; closed marks that no more
// members will join.
type transaction struct {
	err      error
	closed   bool
	started  int
	finished int
	status   txStatus

	requests []*Request

	// zeroBMPending/zeroBMDone and batDone track the two metadata
	// operations a BAT-and-bitmap tx waits on in addition to its data
	// writes.
	zeroBMPending bool
	zeroBMDone    bool
	batDone       bool

	// batScheduled guards against scheduling the BAT write twice: the
	// zero-bm write and the data writes land independently, and either
	// one can be the side that observes readiness last.
	batScheduled bool
}

func newTransaction() *transaction {
	return &transaction{}
}

// join enrolls req in the transaction. Safe to call both before and
// after the tx closes to data writes is the caller's responsibility --
// the scheduler only joins while !closed.
func (tx *transaction) join(req *Request) {
	req.tx = tx
	tx.requests = append(tx.requests, req)
	tx.started++
}

// dataWriteComplete records one data write's completion. Once every
// member currently joined has finished, the transaction closes itself
// to further joins -- the scheduler diverts any later write for the
// same bitmap into the queue instead. The return value signals
// whether the data-transaction finisher should run now: closed, every
// data write landed, and (for an allocating tx) the zero-bm write
// also landed.
func (tx *transaction) dataWriteComplete() bool {
	tx.finished++
	if tx.started != tx.finished {
		return false
	}
	tx.closed = true
	if tx.status == txUpdateBAT && tx.zeroBMPending && !tx.zeroBMDone {
		return false
	}
	return true
}

// complete reports whether every member's I/O has landed -- every
// joined data write and, for an allocating tx, its zero-bitmap write --
// and the tx has been closed to new members (`started == finished &&
// closed`, with the zero-bitmap write counted as a member).
func (tx *transaction) complete() bool {
	if tx.status == txUpdateBAT && tx.zeroBMPending && !tx.zeroBMDone {
		return false
	}
	return tx.closed && tx.started == tx.finished
}

// batReady reports whether a BAT-and-bitmap tx's data writes and its
// zero-bitmap write have both landed, so its (still-unscheduled) BAT
// write may be scheduled now -- never while either is still pending.
func (tx *transaction) batReady() bool {
	return tx.status == txUpdateBAT && !tx.batScheduled && tx.zeroBMDone && tx.complete()
}

func (tx *transaction) setError(err error) {
	if tx.err == nil {
		tx.err = err
	}
}
