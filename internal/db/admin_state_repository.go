package db

import (
	"context"
	"sync"

	"github.com/ad/go-telegram-contest/internal/models"
)

const (
	adminStateColUserID = iota
	adminStateColState
	adminStateColSubmissionID
	adminStateColLastBotMessageID
)

type AdminStateRepository struct {
	store RowStore
	mu    sync.Mutex
}

func NewAdminStateRepository(store RowStore) *AdminStateRepository {
	return &AdminStateRepository{store: store}
}

func (r *AdminStateRepository) Save(ctx context.Context, state *models.AdminState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableAdminStates)
	if err != nil {
		return err
	}
	row := []string{
		formatID(state.UserID),
		state.CurrentState,
		state.SubmissionID,
		formatLastMessage(state.LastBotMessageID),
	}
	if idx := findRow(rows, adminStateColUserID, formatID(state.UserID)); idx >= 0 {
		return r.store.Update(ctx, TableAdminStates, idx, row)
	}
	return r.store.Append(ctx, TableAdminStates, row)
}

// Get returns ErrNotFound when the admin has no active dialogue.
func (r *AdminStateRepository) Get(ctx context.Context, userID int64) (*models.AdminState, error) {
	rows, err := r.store.Rows(ctx, TableAdminStates)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, adminStateColUserID, formatID(userID))
	if idx < 0 || cell(rows[idx], adminStateColState) == "" {
		return nil, ErrNotFound
	}
	row := rows[idx]
	return &models.AdminState{
		UserID:           userID,
		CurrentState:     cell(row, adminStateColState),
		SubmissionID:     cell(row, adminStateColSubmissionID),
		LastBotMessageID: parseInt(cell(row, adminStateColLastBotMessageID)),
	}, nil
}

func (r *AdminStateRepository) Clear(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableAdminStates)
	if err != nil {
		return err
	}
	idx := findRow(rows, adminStateColUserID, formatID(userID))
	if idx < 0 {
		return nil
	}
	return r.store.Update(ctx, TableAdminStates, idx, []string{formatID(userID), "", "", ""})
}

func formatLastMessage(id int) string {
	if id == 0 {
		return ""
	}
	return formatID(int64(id))
}
