// integration/gift_postgres_test.go
// Package integration provides integration tests that exercise the gift
// service against real backing services. They are skipped unless the
// corresponding environment variables point at live instances.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/storage"
)

func postgresStore(t *testing.T) storage.Store {
	t.Helper()
	dsn := os.Getenv("GIFT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("GIFT_TEST_DATABASE_DSN not set, skipping postgres integration test")
	}
	store, err := storage.NewPostgres(dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func seedGift(t *testing.T, store storage.Store, ownerID string) model.Gift {
	t.Helper()
	ctx := context.Background()

	g := model.Gift{
		ID:            ulid.Make().String(),
		UserID:        ownerID,
		RecipientName: "Integration",
		Occasion:      model.OccasionBirthday,
		OccasionDate:  time.Now().AddDate(0, 1, 0).UTC(),
		Scenarios:     []string{"a", "b", "c"},
		SongGenre:     "jazz",
		Photos:        []string{"https://cdn.example.com/upload/v1/a.jpg"},
		PhotoAssetIDs: []string{"a"},
		Plan:          model.PlanMomentum,
		Status:        model.StatusPending,
		SubmittedAt:   time.Now().UTC(),
		TemplateID:    "birthday-celebration",
	}
	if err := store.CreateGift(ctx, g); err != nil {
		t.Fatalf("CreateGift: %v", err)
	}
	return g
}

func TestPostgresGiftRoundTrip(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "integration@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	g := seedGift(t, store, user.ID)

	got, err := store.GetGift(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGift: %v", err)
	}
	if got.Status != model.StatusPending || got.UserID != user.ID {
		t.Errorf("round trip mismatch: %+v", got)
	}

	owned, err := store.ListGiftsByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListGiftsByOwner: %v", err)
	}
	if len(owned) == 0 {
		t.Error("expected at least one gift for owner")
	}
}

func TestPostgresConditionalUpdate(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "cas@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	g := seedGift(t, store, user.ID)

	now := time.Now().UTC()
	g.Status = model.StatusVerified
	g.VerifiedAt = &now
	if err := store.UpdateGift(ctx, g, model.StatusPending); err != nil {
		t.Fatalf("first conditional update: %v", err)
	}

	// The same precondition no longer holds.
	if err := store.UpdateGift(ctx, g, model.StatusPending); err != storage.ErrConflict {
		t.Errorf("expected ErrConflict on stale precondition, got %v", err)
	}
}

func TestPostgresExpireGifts(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "sweep@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	g := seedGift(t, store, user.ID)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	g.Status = model.StatusCompleted
	g.CompletedAt = &past
	g.AssignedAt = &past
	g.ExpiresAt = &past
	g.AccessEnabled = true
	if err := store.UpdateGift(ctx, g, model.StatusPending); err != nil {
		t.Fatalf("UpdateGift: %v", err)
	}

	flipped, err := store.ExpireGifts(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("ExpireGifts: %v", err)
	}
	if flipped != 1 {
		t.Errorf("expected 1 gift flipped, got %d", flipped)
	}

	after, err := store.GetGift(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGift: %v", err)
	}
	if after.AccessEnabled {
		t.Error("sweep should have disabled access")
	}
}
