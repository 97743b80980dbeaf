package intake

import (
	"sync"

	"github.com/ad/go-telegram-contest/internal/fsm"
)

// Tracker remembers the phase each participant's dialogue is in on this
// process. It is a cache: after a restart it is empty while the durable
// checkpoints are not.
type Tracker struct {
	mu     sync.RWMutex
	phases map[int64]fsm.Phase
}

func NewTracker() *Tracker {
	return &Tracker{phases: make(map[int64]fsm.Phase)}
}

func (t *Tracker) Get(participantID int64) fsm.Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.phases[participantID]
	if !ok {
		return fsm.PhaseIdle
	}
	return p
}

func (t *Tracker) Set(participantID int64, phase fsm.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if phase == fsm.PhaseIdle {
		delete(t.phases, participantID)
		return
	}
	t.phases[participantID] = phase
}

func (t *Tracker) Clear(participantID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.phases, participantID)
}
