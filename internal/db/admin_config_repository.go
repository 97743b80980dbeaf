package db

import (
	"context"
	"strconv"

	"github.com/ad/go-telegram-contest/internal/models"
)

// AdminConfigRepository stores administrator ids in the Admins table, one id
// per row. Removing an admin blanks the row since tables cannot shrink.
type AdminConfigRepository struct {
	store RowStore
}

func NewAdminConfigRepository(store RowStore) *AdminConfigRepository {
	return &AdminConfigRepository{store: store}
}

func (r *AdminConfigRepository) Get(ctx context.Context) (*models.AdminConfig, error) {
	rows, err := r.store.Rows(ctx, TableAdmins)
	if err != nil {
		return nil, err
	}

	config := &models.AdminConfig{AdminIDs: []int64{}}
	for _, row := range rows {
		if id, err := strconv.ParseInt(cell(row, 0), 10, 64); err == nil {
			config.AdminIDs = append(config.AdminIDs, id)
		}
	}
	return config, nil
}

func (r *AdminConfigRepository) AddAdmin(ctx context.Context, adminID int64) error {
	rows, err := r.store.Rows(ctx, TableAdmins)
	if err != nil {
		return err
	}
	if findRow(rows, 0, formatID(adminID)) >= 0 {
		return nil
	}
	if blank := findRow(rows, 0, ""); blank >= 0 {
		return r.store.Update(ctx, TableAdmins, blank, []string{formatID(adminID)})
	}
	return r.store.Append(ctx, TableAdmins, []string{formatID(adminID)})
}

func (r *AdminConfigRepository) RemoveAdmin(ctx context.Context, adminID int64) error {
	rows, err := r.store.Rows(ctx, TableAdmins)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if cell(row, 0) == formatID(adminID) {
			if err := r.store.Update(ctx, TableAdmins, i, []string{""}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *AdminConfigRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	rows, err := r.store.Rows(ctx, TableAdmins)
	if err != nil {
		return false, err
	}
	return findRow(rows, 0, formatID(userID)) >= 0, nil
}

// Seed adds every id that is not registered yet.
func (r *AdminConfigRepository) Seed(ctx context.Context, adminIDs []int64) error {
	for _, id := range adminIDs {
		if err := r.AddAdmin(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
