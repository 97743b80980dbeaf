package intake

import "sync"

// participantLocks serialises the events of one participant. go-telegram/bot
// runs every update in its own goroutine, so two taps on the same button can
// arrive together. Entries are dropped once nobody holds or waits for them.
type participantLocks struct {
	mu    sync.Mutex
	locks map[int64]*participantLock
}

type participantLock struct {
	mu   sync.Mutex
	refs int
}

func newParticipantLocks() *participantLocks {
	return &participantLocks{locks: make(map[int64]*participantLock)}
}

// lock blocks until the participant is free and returns the unlock function.
func (l *participantLocks) lock(participantID int64) func() {
	l.mu.Lock()
	pl, ok := l.locks[participantID]
	if !ok {
		pl = &participantLock{}
		l.locks[participantID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, participantID)
		}
		l.mu.Unlock()
	}
}

func (l *participantLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
