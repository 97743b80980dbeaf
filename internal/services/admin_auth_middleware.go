package services

import (
	"context"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/rs/zerolog"
)

// AdminAuthMiddleware answers who may use the admin panel. A lookup failure
// denies access.
type AdminAuthMiddleware struct {
	configRepo *db.AdminConfigRepository
	logger     zerolog.Logger
}

func NewAdminAuthMiddleware(configRepo *db.AdminConfigRepository, logger zerolog.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		configRepo: configRepo,
		logger:     logger,
	}
}

func (m *AdminAuthMiddleware) IsAuthorized(ctx context.Context, userID int64) bool {
	isAdmin, err := m.configRepo.IsAdmin(ctx, userID)
	if err != nil {
		m.logger.Error().Err(err).Int64("user_id", userID).Msg("admin lookup failed")
		return false
	}
	return isAdmin
}

// Admins lists the administrator ids to notify.
func (m *AdminAuthMiddleware) Admins(ctx context.Context) ([]int64, error) {
	config, err := m.configRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	return config.AdminIDs, nil
}
