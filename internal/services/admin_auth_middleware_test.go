package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

func setupTestStore(t *testing.T) db.RowStore {
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	testDB.SetMaxOpenConns(1)
	t.Cleanup(func() { testDB.Close() })

	if err := db.InitSchema(testDB); err != nil {
		t.Fatal(err)
	}
	return db.NewSQLiteStore(db.NewDBQueueForTest(testDB))
}

func setupAdminAuthTest(t *testing.T) (*db.AdminConfigRepository, *AdminAuthMiddleware) {
	repo := db.NewAdminConfigRepository(setupTestStore(t))
	return repo, NewAdminAuthMiddleware(repo, zerolog.Nop())
}

func TestProperty7_AdminAuthorizationCheck(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		repo, middleware := setupAdminAuthTest(t)

		numAdmins := rapid.IntRange(1, 10).Draw(rt, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000).Draw(rt, "adminID")
		}

		if err := repo.Seed(ctx, adminIDs); err != nil {
			rt.Fatal(err)
		}

		for _, adminID := range adminIDs {
			if !middleware.IsAuthorized(ctx, adminID) {
				rt.Fatalf("Expected admin ID %d to be authorized", adminID)
			}
		}
	})
}

func TestProperty8_NonAdminRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		repo, middleware := setupAdminAuthTest(t)

		numAdmins := rapid.IntRange(1, 10).Draw(rt, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000).Draw(rt, "adminID")
		}
		if err := repo.Seed(ctx, adminIDs); err != nil {
			rt.Fatal(err)
		}

		nonAdminID := rapid.Int64Range(1000001, 2000000).Draw(rt, "nonAdminID")

		if middleware.IsAuthorized(ctx, nonAdminID) {
			rt.Fatalf("Expected non-admin ID %d to not be authorized", nonAdminID)
		}
	})
}

func TestAdminAuthWithEmptyList(t *testing.T) {
	_, middleware := setupAdminAuthTest(t)

	userID := int64(123456)
	if middleware.IsAuthorized(context.Background(), userID) {
		t.Errorf("Expected user %d to not be authorized with empty admin list", userID)
	}

	admins, err := middleware.Admins(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(admins) != 0 {
		t.Errorf("Expected no admins, got %v", admins)
	}
}

type brokenStore struct{ db.RowStore }

func (brokenStore) Rows(context.Context, string) ([][]string, error) {
	return nil, errors.New("sheet unavailable")
}

func TestAdminAuthDeniesOnLookupFailure(t *testing.T) {
	middleware := NewAdminAuthMiddleware(db.NewAdminConfigRepository(brokenStore{}), zerolog.Nop())
	if middleware.IsAuthorized(context.Background(), 1) {
		t.Error("lookup failure must deny access")
	}
}

func TestSettingsManagerKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	repo, middleware := setupAdminAuthTest(t)
	sm := NewSettingsManager(repo)

	if err := sm.Seed(ctx, []int64{10, 20}); err != nil {
		t.Fatal(err)
	}
	if err := sm.RemoveAdmin(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if middleware.IsAuthorized(ctx, 10) {
		t.Error("removed admin is still authorized")
	}
	if err := sm.RemoveAdmin(ctx, 20); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("RemoveAdmin(last) = %v, want ErrLastAdmin", err)
	}
	if err := sm.AddAdmin(ctx, -5); err == nil {
		t.Error("negative id accepted")
	}
	if err := sm.AddAdmin(ctx, 30); err != nil {
		t.Fatal(err)
	}

	admins, err := sm.GetAdmins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(admins) != 2 {
		t.Errorf("GetAdmins = %v, want [30 20] in some order", admins)
	}
}
