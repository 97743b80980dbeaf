package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ad/go-telegram-contest/internal/db"
)

var ErrLastAdmin = errors.New("cannot remove the last administrator")

// SettingsManager edits the administrator list at runtime.
type SettingsManager struct {
	configRepo *db.AdminConfigRepository
}

func NewSettingsManager(configRepo *db.AdminConfigRepository) *SettingsManager {
	return &SettingsManager{configRepo: configRepo}
}

func (sm *SettingsManager) AddAdmin(ctx context.Context, adminID int64) error {
	if adminID <= 0 {
		return fmt.Errorf("invalid admin id %d", adminID)
	}
	return sm.configRepo.AddAdmin(ctx, adminID)
}

func (sm *SettingsManager) RemoveAdmin(ctx context.Context, adminID int64) error {
	admins, err := sm.GetAdmins(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 1 && admins[0] == adminID {
		return ErrLastAdmin
	}
	return sm.configRepo.RemoveAdmin(ctx, adminID)
}

func (sm *SettingsManager) GetAdmins(ctx context.Context) ([]int64, error) {
	config, err := sm.configRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return config.AdminIDs, nil
}

// Seed registers the configured administrators that are not stored yet.
func (sm *SettingsManager) Seed(ctx context.Context, adminIDs []int64) error {
	return sm.configRepo.Seed(ctx, adminIDs)
}
