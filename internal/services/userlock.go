// Package services – per-user serialization.
//
// The engine never takes a global lock across users: two users' billing ticks
// must not contend. What it does need is that all mutations touching one
// user's state (a top-up credit racing a billing debit, a client stop racing
// a billing-exhaustion stop) apply one at a time. userLocks is that boundary:
// a lazily populated table of one mutex per user id.
//
// WalletService and SessionService each own a table: one serializes balance
// mutations, the other session transitions. Lock order: a holder of a user's
// session lock may acquire the same user's wallet lock (the billing tick
// does); the reverse never happens. Entries are never evicted; the table
// grows with the distinct users seen by one process.
package services

import "sync"

// userLocks hands out one mutex per key. The zero value is not usable; use
// newUserLocks.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for key, creating it on first use.
func (u *userLocks) get(key string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[key]
	if !ok {
		l = &sync.Mutex{}
		u.locks[key] = l
	}
	return l
}

// Lock acquires the per-key mutex and returns its unlock function.
func (u *userLocks) Lock(key string) func() {
	l := u.get(key)
	l.Lock()
	return l.Unlock
}
