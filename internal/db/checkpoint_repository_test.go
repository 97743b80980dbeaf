package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCheckpointGetWithoutRowIsIdle(t *testing.T) {
	repo := NewCheckpointRepository(newTestStore(t))

	cp, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseIdle, cp.Phase)
	require.Empty(t, cp.Data)
	require.Equal(t, int64(42), cp.ParticipantID)
}

func TestCheckpointSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewCheckpointRepository(store)
	now := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)

	cp := models.NewCheckpoint(7, now)
	require.NoError(t, repo.Save(ctx, cp))

	next := cp.Advance(fsm.FieldLink, "http://ex.com/1", now.Add(time.Minute))
	next.LastPromptRef = 311
	require.NoError(t, repo.Save(ctx, next))

	rows, err := store.Rows(ctx, TableCheckpoints)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseAwaitingDate, got.Phase)
	require.Equal(t, "http://ex.com/1", got.Data[fsm.FieldLink])
	require.Equal(t, 311, got.LastPromptRef)
	require.True(t, got.StartedAt.Equal(now))
}

func TestCheckpointClear(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(newTestStore(t))

	cleared := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Clear(ctx, 5, cleared), "clearing a missing row is a no-op")

	cp := models.NewCheckpoint(5, time.Now()).Advance(fsm.FieldLink, "http://a.b", time.Now())
	require.NoError(t, repo.Save(ctx, cp))
	require.NoError(t, repo.Clear(ctx, 5, cleared))

	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseIdle, got.Phase)
	require.Empty(t, got.Data)
	require.True(t, got.StartedAt.IsZero())
	require.True(t, got.UpdatedAt.Equal(cleared))
}

func TestCheckpointSetPromptRef(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(newTestStore(t))
	started := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)

	stored, err := repo.SetPromptRef(ctx, 9, started, fsm.PhaseAwaitingLink, 41)
	require.NoError(t, err)
	require.False(t, stored, "no row yet")

	require.NoError(t, repo.Save(ctx, models.NewCheckpoint(9, started)))

	tests := []struct {
		name    string
		started time.Time
		phase   fsm.Phase
		want    bool
	}{
		{"other phase", started, fsm.PhaseAwaitingDate, false},
		{"other draft", started.Add(time.Minute), fsm.PhaseAwaitingLink, false},
		{"same draft", started, fsm.PhaseAwaitingLink, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := repo.SetPromptRef(ctx, 9, tt.started, tt.phase, 100+i)
			require.NoError(t, err)
			require.Equal(t, tt.want, stored)
		})
	}

	got, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 102, got.LastPromptRef)
}

func TestCheckpointSetPromptRefAfterClearKeepsIdle(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(newTestStore(t))
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, models.NewCheckpoint(3, started)))
	require.NoError(t, repo.Clear(ctx, 3, started.Add(25*time.Hour)))

	stored, err := repo.SetPromptRef(ctx, 3, started, fsm.PhaseAwaitingLink, 77)
	require.NoError(t, err)
	require.False(t, stored)

	got, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseIdle, got.Phase)
	require.Zero(t, got.LastPromptRef)
}

func TestCheckpointConcurrentSavesKeepOneRow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewCheckpointRepository(store)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Save(ctx, models.NewCheckpoint(4, time.Now()))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := store.Rows(ctx, TableCheckpoints)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCheckpointGetAllSkipsBrokenRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewCheckpointRepository(store)

	require.NoError(t, repo.Save(ctx, models.NewCheckpoint(1, time.Now())))
	require.NoError(t, store.Append(ctx, TableCheckpoints, []string{"2", "awaiting_date", "{not json"}))
	require.NoError(t, store.Append(ctx, TableCheckpoints, []string{}))

	all, broken, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, broken, 1)
}

func TestProperty5_CheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(newTestStore(t))

	rapid.Check(t, func(rt *rapid.T) {
		pid := rapid.Int64Range(1, 1<<40).Draw(rt, "participantID")
		started := time.Unix(rapid.Int64Range(1_700_000_000, 1_800_000_000).Draw(rt, "started"), 0).UTC()

		cp := models.NewCheckpoint(pid, started)
		steps := rapid.IntRange(0, 4).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			field, _ := cp.Phase.Collects()
			cp = cp.Advance(field, rapid.String().Draw(rt, string(field)), started)
		}

		if err := repo.Save(ctx, cp); err != nil {
			rt.Fatal(err)
		}
		got, err := repo.Get(ctx, pid)
		if err != nil {
			rt.Fatal(err)
		}
		if got.Phase != cp.Phase {
			rt.Fatalf("Expected phase %s, got %s", cp.Phase, got.Phase)
		}
		if err := got.Validate(); err != nil {
			rt.Fatalf("Stored draft is inconsistent: %v", err)
		}
		for f, v := range cp.Data {
			if got.Data[f] != v {
				rt.Fatalf("Field %s: expected %q, got %q", f, v, got.Data[f])
			}
		}
	})
}
