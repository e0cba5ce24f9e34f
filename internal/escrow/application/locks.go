package application

import (
	"sync"

	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

// recordLocks serializes transitions per record address. The ledger model
// gives single-call atomicity only; racing callers on the same record must
// observe each other's committed state, so each transition runs snapshot,
// compute, commit under the record's lock. Losers re-read the terminal
// status and fail their state guard instead of double-disbursing.
type recordLocks struct {
	mu    sync.Mutex
	locks map[escrow.Address]*sync.Mutex
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[escrow.Address]*sync.Mutex)}
}

// acquire locks the record address and returns the unlock function.
func (r *recordLocks) acquire(address escrow.Address) func() {
	r.mu.Lock()
	lock := r.locks[address]
	if lock == nil {
		lock = &sync.Mutex{}
		r.locks[address] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
