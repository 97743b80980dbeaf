package intake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantLocksSerialiseOneParticipant(t *testing.T) {
	locks := newParticipantLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer locks.lock(7)()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Zero(t, locks.len())
}

func TestParticipantLocksDoNotBlockOthers(t *testing.T) {
	locks := newParticipantLocks()
	unlock := locks.lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		locks.lock(2)()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("participant 2 waited for participant 1")
	}
	require.Equal(t, 1, locks.len())
}
