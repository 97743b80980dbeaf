package sweeper

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/intake"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/alicebob/miniredis/v2"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

// 12:00 UTC, outside the default quiet hours.
var sweepNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newCheckpoints(t testing.TB) *db.CheckpointRepository {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}
	return db.NewCheckpointRepository(db.NewSQLiteStore(db.NewDBQueueForTest(sqlDB)))
}

func newLedger(t testing.TB) (*RedisLedger, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLedger(client), mr
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SendDelay = 0
	return cfg
}

func draft(t testing.TB, store *db.CheckpointRepository, pid int64, age time.Duration) {
	cp := models.NewCheckpoint(pid, sweepNow.Add(-age))
	cp = cp.Advance(fsm.FieldLink, "http://ex.com/1", sweepNow.Add(-age))
	if err := store.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
}

func newSweeper(store CheckpointStore, rec *transport.Recorder, ledger Ledger, cfg Config) *Sweeper {
	s := New(store, rec, ledger, cfg, zerolog.Nop())
	s.SetClock(func() time.Time { return sweepNow })
	return s
}

func TestSweepOnceNudgesAndExpires(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	rec := transport.NewRecorder()

	draft(t, store, 1, 30*time.Minute)
	draft(t, store, 2, 90*time.Minute)
	draft(t, store, 3, 5*time.Hour)
	draft(t, store, 4, 25*time.Hour)
	require.NoError(t, store.Save(ctx, models.IdleCheckpoint(5)))

	report := newSweeper(store, rec, nil, testConfig()).SweepOnce(ctx)

	require.Equal(t, Report{Scanned: 5, InProgress: 4, Nudged: 1, Expired: 1}, report)

	nudge, ok := rec.Last(2)
	require.True(t, ok)
	require.Equal(t, textNudge, nudge.Text)
	require.Equal(t, []string{intake.CallbackResume, intake.CallbackCancel}, transport.CallbackData(nudge.Markup))

	cp, err := store.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseAwaitingDate, cp.Phase, "nudges never mutate the checkpoint")

	cp, err = store.Get(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseIdle, cp.Phase)
	expired, _ := rec.Last(4)
	require.Equal(t, textExpired, expired.Text)

	require.Empty(t, rec.SentTo(1))
	require.Empty(t, rec.SentTo(3))
}

func TestQuietHoursSuppressNudgesOnly(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	rec := transport.NewRecorder()
	draft(t, store, 1, 90*time.Minute)
	draft(t, store, 2, 30*time.Hour)

	cfg := testConfig()
	cfg.QuietStart, cfg.QuietEnd = 10, 14

	report := newSweeper(store, rec, nil, cfg).SweepOnce(ctx)
	require.Equal(t, 1, report.QuietSkipped)
	require.Equal(t, 0, report.Nudged)
	require.Equal(t, 1, report.Expired)
	require.Empty(t, rec.SentTo(1))
}

func TestQuietWindow(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	tests := []struct {
		name       string
		start, end int
		at         time.Time
		want       bool
	}{
		{"disabled", 0, 0, sweepNow, false},
		{"inside wrapped window late", 22, 9, time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC), true},
		{"inside wrapped window early", 22, 9, time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC), true},
		{"end is exclusive", 22, 9, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), false},
		{"plain window", 13, 15, time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC), true},
		{"local time zone", 22, 9, time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.QuietStart, cfg.QuietEnd = tt.start, tt.end
			if tt.name == "local time zone" {
				cfg.Location = msk
			}
			s := New(nil, nil, nil, cfg, zerolog.Nop())
			if got := s.quiet(tt.at); got != tt.want {
				t.Errorf("quiet(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestLedgerPreventsRepeatedNudges(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	rec := transport.NewRecorder()
	ledger, mr := newLedger(t)
	draft(t, store, 1, 70*time.Minute)

	s := newSweeper(store, rec, ledger, testConfig())
	first := s.SweepOnce(ctx)
	second := s.SweepOnce(ctx)

	require.Equal(t, 1, first.Nudged)
	require.Equal(t, 0, second.Nudged)
	require.Equal(t, 1, second.AlreadyNudged)
	require.Len(t, rec.SentTo(1), 1)

	key := nudgeKey(1, sweepNow.Add(-70*time.Minute))
	require.True(t, mr.Exists(key))
	require.Equal(t, 24*time.Hour, mr.TTL(key))
}

func TestFailedNudgeReleasesLedger(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	rec := transport.NewRecorder()
	rec.FailChat(1)
	ledger, mr := newLedger(t)
	draft(t, store, 1, 70*time.Minute)
	draft(t, store, 2, 70*time.Minute)

	report := newSweeper(store, rec, ledger, testConfig()).SweepOnce(ctx)

	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Nudged, "one failing participant does not stop the sweep")
	require.False(t, mr.Exists(nudgeKey(1, sweepNow.Add(-70*time.Minute))))
}

func TestLedgerOutageCountsFailure(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	ledger, mr := newLedger(t)
	draft(t, store, 1, 70*time.Minute)
	mr.Close()

	report := newSweeper(store, transport.NewRecorder(), ledger, testConfig()).SweepOnce(ctx)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 0, report.Nudged)
}

type failingClear struct {
	*db.CheckpointRepository
}

func (failingClear) Clear(context.Context, int64, time.Time) error {
	return context.DeadlineExceeded
}

func TestExpireFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	store := newCheckpoints(t)
	rec := transport.NewRecorder()
	draft(t, store, 1, 48*time.Hour)

	report := newSweeper(failingClear{store}, rec, nil, testConfig()).SweepOnce(ctx)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 0, report.Expired)
	require.Empty(t, rec.SentTo(1))
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newCheckpoints(t)
	rec := transport.NewRecorder()
	draft(t, store, 1, 48*time.Hour)

	cfg := testConfig()
	cfg.Interval = time.Hour
	s := newSweeper(store, rec, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.SentTo(1)) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestProperty13_OldDraftsAreIdleAfterOneSweep(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := newCheckpoints(t)
		rec := transport.NewRecorder()

		n := rapid.IntRange(1, 8).Draw(rt, "drafts")
		ages := make(map[int64]time.Duration, n)
		for i := 0; i < n; i++ {
			pid := int64(i + 1)
			hours := rapid.IntRange(0, 72).Draw(rt, "hours")
			ages[pid] = time.Duration(hours)*time.Hour + time.Minute
			draft(t, store, pid, ages[pid])
		}

		newSweeper(store, rec, nil, testConfig()).SweepOnce(ctx)

		for pid, age := range ages {
			cp, err := store.Get(ctx, pid)
			if err != nil {
				rt.Fatal(err)
			}
			if age > 24*time.Hour && cp.Phase != fsm.PhaseIdle {
				rt.Fatalf("draft of age %s survived the sweep", age)
			}
			if age <= 24*time.Hour && cp.Phase == fsm.PhaseIdle {
				rt.Fatalf("draft of age %s was expired early", age)
			}
		}
	})
}

// stampedMessenger records when each message went out and can cancel the
// sweep after the first one.
type stampedMessenger struct {
	*transport.Recorder
	mu     sync.Mutex
	sentAt []time.Time
	cancel context.CancelFunc
}

func (m *stampedMessenger) Send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	m.mu.Lock()
	m.sentAt = append(m.sentAt, time.Now())
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	return m.Recorder.Send(ctx, chatID, text, markup)
}

func TestSendsAreSpacedBySendDelay(t *testing.T) {
	store := newCheckpoints(t)
	for pid := int64(1); pid <= 3; pid++ {
		draft(t, store, pid, 48*time.Hour)
	}

	cfg := testConfig()
	cfg.SendDelay = 30 * time.Millisecond
	msgr := &stampedMessenger{Recorder: transport.NewRecorder()}
	s := New(store, msgr, nil, cfg, zerolog.Nop())
	s.SetClock(func() time.Time { return sweepNow })

	report := s.SweepOnce(context.Background())
	require.Equal(t, 3, report.Expired)
	require.Len(t, msgr.sentAt, 3)
	for i := 1; i < len(msgr.sentAt); i++ {
		require.GreaterOrEqual(t, msgr.sentAt[i].Sub(msgr.sentAt[i-1]), cfg.SendDelay)
	}
}

func TestCancelDuringPauseStopsSweep(t *testing.T) {
	store := newCheckpoints(t)
	for pid := int64(1); pid <= 3; pid++ {
		draft(t, store, pid, 48*time.Hour)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.SendDelay = time.Hour
	msgr := &stampedMessenger{Recorder: transport.NewRecorder(), cancel: cancel}
	s := New(store, msgr, nil, cfg, zerolog.Nop())
	s.SetClock(func() time.Time { return sweepNow })

	done := make(chan Report)
	go func() { done <- s.SweepOnce(ctx) }()

	var report Report
	select {
	case report = <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep kept waiting after cancel")
	}
	require.Equal(t, 1, report.Expired)
	require.Len(t, msgr.sentAt, 1)

	inProgress := 0
	for pid := int64(1); pid <= 3; pid++ {
		cp, err := store.Get(context.Background(), pid)
		require.NoError(t, err)
		if cp.InProgress() {
			inProgress++
		}
	}
	require.Equal(t, 2, inProgress, "drafts after the cancel are left for the next sweep")
}
