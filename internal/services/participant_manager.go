package services

import (
	"context"
	"time"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/rs/zerolog"
)

type ParticipantManager struct {
	repo   *db.ParticipantRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewParticipantManager(repo *db.ParticipantRepository, logger zerolog.Logger) *ParticipantManager {
	return &ParticipantManager{repo: repo, logger: logger, now: time.Now}
}

// Touch registers the user on first contact and refreshes the profile on
// later ones. Failures are logged and swallowed; they must not block the
// dialogue.
func (pm *ParticipantManager) Touch(ctx context.Context, id int64, username, fullName string) *models.Participant {
	p := &models.Participant{ID: id, Username: username, FullName: fullName}
	if err := pm.repo.Touch(ctx, p, pm.now()); err != nil {
		pm.logger.Warn().Err(err).Int64("user_id", id).Msg("touch participant")
	}
	return p
}

// Recipients returns the ids of every registered participant.
func (pm *ParticipantManager) Recipients(ctx context.Context) ([]int64, error) {
	all, err := pm.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
