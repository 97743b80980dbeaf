package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type contestFixture struct {
	store        db.RowStore
	submissions  *db.SubmissionRepository
	participants *db.ParticipantRepository
	rec          *transport.Recorder
}

func newContestFixture(t *testing.T) *contestFixture {
	store := setupTestStore(t)
	return &contestFixture{
		store:        store,
		submissions:  db.NewSubmissionRepository(store),
		participants: db.NewParticipantRepository(store),
		rec:          transport.NewRecorder(),
	}
}

func (f *contestFixture) submit(t *testing.T, pid int64, name string, at time.Time, score *int) *models.Submission {
	ctx := context.Background()
	require.NoError(t, f.participants.Touch(ctx, &models.Participant{ID: pid, Username: name, FullName: name}, at))
	s := &models.Submission{
		ID:            models.NewSubmissionID(pid, at),
		ParticipantID: pid,
		Username:      name,
		FullName:      name,
		Link:          "https://ex.com/" + name + at.Format("150405"),
		Date:          "15.04.2025",
		Location:      "Town",
		Name:          "Memorial <" + name + ">",
		SubmittedAt:   at,
		Score:         score,
	}
	require.NoError(t, f.submissions.Create(ctx, s))
	return s
}

func intPtr(v int) *int { return &v }

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"8", 8, true},
		{" 4 ", 4, true},
		{"0", 0, true},
		{"", 0, false},
		{"-3", 0, false},
		{"8.5", 0, false},
		{"восемь", 0, false},
		{"1001", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScore(tt.in)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
				return
			}
			require.ErrorIs(t, err, ErrInvalidScore)
		})
	}
}

func TestSetScoreUpdatesTotalAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newContestFixture(t)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	f.submit(t, 7, "alice", base, intPtr(4))
	second := f.submit(t, 7, "alice", base.Add(time.Hour), nil)

	sm := NewScoringManager(f.submissions, f.participants, f.rec, zerolog.Nop())
	sub, err := sm.SetScore(ctx, second.ID, 8, "")
	require.NoError(t, err)
	require.Equal(t, 8, sub.Points())

	p, err := f.participants.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 12, p.Score)

	msg, ok := f.rec.Last(7)
	require.True(t, ok)
	require.Contains(t, msg.Text, "8 балл")
	require.Contains(t, msg.Text, "&lt;alice&gt;")

	// Scoring again overwrites rather than adds.
	_, err = sm.SetScore(ctx, second.ID, 6, "повторная оценка")
	require.NoError(t, err)
	subs, total, err := sm.MyScores(ctx, 7)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, 10, total)
}

func TestSetScoreUnknownSubmission(t *testing.T) {
	f := newContestFixture(t)
	sm := NewScoringManager(f.submissions, f.participants, f.rec, zerolog.Nop())

	_, err := sm.SetScore(context.Background(), "1_1", 5, "")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "1_1", nf.SubmissionID)
	require.Empty(t, f.rec.Messages())
}

func TestSetScoreSurvivesNotificationFailure(t *testing.T) {
	f := newContestFixture(t)
	s := f.submit(t, 9, "bob", time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC), nil)
	f.rec.FailChat(9)

	sm := NewScoringManager(f.submissions, f.participants, f.rec, zerolog.Nop())
	_, err := sm.SetScore(context.Background(), s.ID, 4, "")
	require.NoError(t, err)

	stored, err := f.submissions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, 4, stored.Points())
}

func TestMyScoresEmpty(t *testing.T) {
	f := newContestFixture(t)
	sm := NewScoringManager(f.submissions, f.participants, f.rec, zerolog.Nop())
	subs, total, err := sm.MyScores(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, subs)
	require.Zero(t, total)
}
