package ledger

import "sync"

// UserLocks serializes balance updates per user across all ledgers that
// share it, so two sessions of the same user never interleave a
// read-modify-write of the balance.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUserLocks creates an empty lock table.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for user and returns its release func.
func (u *UserLocks) Lock(user string) func() {
	u.mu.Lock()
	l, ok := u.locks[user]
	if !ok {
		l = &sync.Mutex{}
		u.locks[user] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
