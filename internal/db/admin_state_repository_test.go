package db

import (
	"context"
	"errors"
	"testing"

	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/models"
	"pgregory.net/rapid"
)

func TestAdminStateRepository_GetNonExistentState(t *testing.T) {
	repo := NewAdminStateRepository(newTestStore(t))

	_, err := repo.Get(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for non-existent state, got %v", err)
	}
}

func TestProperty9_CancelStateReset(t *testing.T) {
	ctx := context.Background()
	repo := NewAdminStateRepository(newTestStore(t))

	rapid.Check(t, func(t *rapid.T) {
		adminUserID := rapid.Int64Range(1, 1000000).Draw(t, "adminUserID")

		states := []string{
			fsm.StateAdminPanel,
			fsm.StateAdminAwaitScore,
			fsm.StateAdminAwaitNews,
		}

		state := &models.AdminState{
			UserID:           adminUserID,
			CurrentState:     rapid.SampledFrom(states).Draw(t, "currentState"),
			SubmissionID:     rapid.StringMatching(`[0-9]{1,10}_[0-9]{13}`).Draw(t, "submissionID"),
			LastBotMessageID: rapid.IntRange(0, 100000).Draw(t, "lastBotMessageID"),
		}

		if err := repo.Save(ctx, state); err != nil {
			t.Fatalf("Failed to save state: %v", err)
		}

		got, err := repo.Get(ctx, adminUserID)
		if err != nil {
			t.Fatalf("Failed to get state: %v", err)
		}
		if *got != *state {
			t.Fatalf("Expected %+v, got %+v", state, got)
		}

		if err := repo.Clear(ctx, adminUserID); err != nil {
			t.Fatalf("Failed to clear state: %v", err)
		}

		if _, err := repo.Get(ctx, adminUserID); err == nil {
			t.Fatal("Expected error after clearing state, got nil")
		}
	})
}
