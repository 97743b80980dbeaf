package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/rs/zerolog"
)

const maxScore = 1000

var ErrInvalidScore = errors.New("score must be a whole number")

// NotFoundError is returned when an admin scores an unknown submission.
type NotFoundError struct {
	SubmissionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("submission %s not found", e.SubmissionID)
}

// ParseScore accepts digits only.
func ParseScore(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrInvalidScore
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, ErrInvalidScore
		}
	}
	score, err := strconv.Atoi(text)
	if err != nil || score > maxScore {
		return 0, fmt.Errorf("%w: at most %d", ErrInvalidScore, maxScore)
	}
	return score, nil
}

type ScoringManager struct {
	submissions  *db.SubmissionRepository
	participants *db.ParticipantRepository
	messenger    transport.Messenger
	logger       zerolog.Logger
}

func NewScoringManager(
	submissions *db.SubmissionRepository,
	participants *db.ParticipantRepository,
	messenger transport.Messenger,
	logger zerolog.Logger,
) *ScoringManager {
	return &ScoringManager{
		submissions:  submissions,
		participants: participants,
		messenger:    messenger,
		logger:       logger,
	}
}

// SetScore overwrites the score of a submission, refreshes the participant's
// cached total and tells the participant. Only the store write can fail the
// call.
func (sm *ScoringManager) SetScore(ctx context.Context, submissionID string, score int, comment string) (*models.Submission, error) {
	sub, err := sm.submissions.SetScore(ctx, submissionID, score, comment)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &NotFoundError{SubmissionID: submissionID}
	}
	if err != nil {
		return nil, fmt.Errorf("set score: %w", err)
	}
	metrics.ScoredSubmissions().Inc()

	log := sm.logger.With().Str("submission_id", sub.ID).Int64("participant_id", sub.ParticipantID).Logger()

	_, total, err := sm.MyScores(ctx, sub.ParticipantID)
	if err != nil {
		log.Error().Err(err).Msg("recompute participant score")
	} else if err := sm.participants.SetScore(ctx, sub.ParticipantID, total); err != nil {
		log.Warn().Err(err).Msg("update participant score cache")
	}

	text := fmt.Sprintf("🎉 Ваша заявка «%s» подтверждена!\nВам начислено %d балл(ов).", html.EscapeString(sub.Name), score)
	if comment != "" {
		text += "\n💬 " + html.EscapeString(comment)
	}
	if _, err := sm.messenger.Send(ctx, sub.ParticipantID, text, nil); err != nil {
		log.Warn().Err(err).Msg("notify participant about score")
	}

	log.Info().Int("score", score).Msg("submission scored")
	return sub, nil
}

// MyScores lists the participant's submissions and their point total.
func (sm *ScoringManager) MyScores(ctx context.Context, participantID int64) ([]*models.Submission, int, error) {
	subs, err := sm.submissions.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, s := range subs {
		total += s.Points()
	}
	return subs, total, nil
}
