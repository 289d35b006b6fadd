package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

func newGift(id, ownerID string, submitted time.Time) model.Gift {
	return model.Gift{
		ID:            id,
		UserID:        ownerID,
		RecipientName: "Alex",
		Occasion:      model.OccasionBirthday,
		OccasionDate:  submitted.AddDate(0, 1, 0),
		Scenarios:     []string{"a", "b", "c"},
		SongGenre:     "pop",
		Photos:        []string{"https://cdn.example.com/upload/v1/a.jpg"},
		Plan:          model.PlanMomentum,
		Status:        model.StatusPending,
		SubmittedAt:   submitted,
		TemplateID:    "birthday-celebration",
	}
}

func seedOwner(t *testing.T, store Store) string {
	t.Helper()
	user, err := store.CreateUser(context.Background(), "owner@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user.ID
}

func TestCreateUserSequentialIDs(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.CreateUser(ctx, "one@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	second, err := store.CreateUser(ctx, "two@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if first.ID != "usr-00001" || second.ID != "usr-00002" {
		t.Errorf("expected sequential ids, got %s and %s", first.ID, second.ID)
	}

	if _, err := store.CreateUser(ctx, "one@example.com"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate email, got %v", err)
	}
}

func TestEnsureUserIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.EnsureUser(ctx, "usr-77777", "mirror@example.com")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if first.ID != "usr-77777" || first.Email != "mirror@example.com" {
		t.Errorf("unexpected mirrored user: %+v", first)
	}

	// A second call with a different claim keeps the stored record.
	again, err := store.EnsureUser(ctx, "usr-77777", "other@example.com")
	if err != nil {
		t.Fatalf("EnsureUser repeat: %v", err)
	}
	if again.Email != "mirror@example.com" {
		t.Errorf("expected stored email to win, got %s", again.Email)
	}
}

func TestCreateGiftRequiresOwner(t *testing.T) {
	store := NewMemory()
	g := newGift("g1", "usr-99999", time.Now().UTC())

	if err := store.CreateGift(context.Background(), g); err == nil {
		t.Fatal("expected error for missing owner")
	}
}

func TestGetGiftReturnsCopy(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	if err := store.CreateGift(ctx, newGift("g1", owner, time.Now().UTC())); err != nil {
		t.Fatalf("CreateGift: %v", err)
	}

	got, err := store.GetGift(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGift: %v", err)
	}
	got.Scenarios[0] = "mutated"

	fresh, err := store.GetGift(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGift again: %v", err)
	}
	if fresh.Scenarios[0] != "a" {
		t.Error("stored gift shares a backing array with the caller")
	}
}

func TestUpdateGiftConditional(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	if err := store.CreateGift(ctx, newGift("g1", owner, time.Now().UTC())); err != nil {
		t.Fatalf("CreateGift: %v", err)
	}

	g, _ := store.GetGift(ctx, "g1")
	g.Status = model.StatusVerified
	if err := store.UpdateGift(ctx, *g, model.StatusPending); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// The losing side of the race sees the stale precondition.
	if err := store.UpdateGift(ctx, *g, model.StatusPending); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if err := store.UpdateGift(ctx, newGift("missing", owner, time.Now().UTC()), model.StatusPending); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateGiftOwnerImmutable(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	if err := store.CreateGift(ctx, newGift("g1", owner, time.Now().UTC())); err != nil {
		t.Fatalf("CreateGift: %v", err)
	}

	g, _ := store.GetGift(ctx, "g1")
	g.UserID = "usr-66666"
	if err := store.UpdateGift(ctx, *g, model.StatusPending); err != nil {
		t.Fatalf("UpdateGift: %v", err)
	}

	after, _ := store.GetGift(ctx, "g1")
	if after.UserID != owner {
		t.Errorf("owner changed to %s, want %s", after.UserID, owner)
	}
}

func TestListGiftsByOwnerNewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	base := time.Now().UTC()
	for i, id := range []string{"g1", "g2", "g3"} {
		if err := store.CreateGift(ctx, newGift(id, owner, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateGift %s: %v", id, err)
		}
	}

	gifts, err := store.ListGiftsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListGiftsByOwner: %v", err)
	}
	if len(gifts) != 3 || gifts[0].ID != "g3" || gifts[2].ID != "g1" {
		ids := make([]string, len(gifts))
		for i, g := range gifts {
			ids[i] = g.ID
		}
		t.Errorf("expected newest first ordering g3,g2,g1, got %v", ids)
	}
}

func TestListGiftsByStatus(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	now := time.Now().UTC()
	pending := newGift("g1", owner, now)
	verified := newGift("g2", owner, now.Add(time.Minute))
	for _, g := range []model.Gift{pending, verified} {
		if err := store.CreateGift(ctx, g); err != nil {
			t.Fatalf("CreateGift %s: %v", g.ID, err)
		}
	}
	verified.Status = model.StatusVerified
	if err := store.UpdateGift(ctx, verified, model.StatusPending); err != nil {
		t.Fatalf("UpdateGift: %v", err)
	}

	onlyPending, err := store.ListGiftsByStatus(ctx, model.StatusPending)
	if err != nil {
		t.Fatalf("ListGiftsByStatus: %v", err)
	}
	if len(onlyPending) != 1 || onlyPending[0].ID != "g1" {
		t.Errorf("expected only g1 pending, got %v", onlyPending)
	}

	all, err := store.ListGiftsByStatus(ctx, "")
	if err != nil {
		t.Fatalf("ListGiftsByStatus all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected both gifts with empty status filter, got %d", len(all))
	}
}

func TestExpireGifts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	owner := seedOwner(t, store)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		id        string
		expiresAt *time.Time
		enabled   bool
		tombstone bool
	}{
		{"lapsed", &past, true, false},
		{"boundary", &now, true, false},
		{"alive", &future, true, false},
		{"no-window", nil, true, false},
		{"already-off", &past, false, false},
		{"tombstoned", &past, true, true},
	}

	for _, c := range cases {
		g := newGift(c.id, owner, now)
		g.Status = model.StatusCompleted
		g.ExpiresAt = c.expiresAt
		g.AccessEnabled = c.enabled
		g.PermanentlyDeleted = c.tombstone
		if err := store.CreateGift(ctx, g); err != nil {
			t.Fatalf("CreateGift %s: %v", c.id, err)
		}
	}

	flipped, err := store.ExpireGifts(ctx, owner, now)
	if err != nil {
		t.Fatalf("ExpireGifts: %v", err)
	}
	// Both the lapsed gift and the exact-boundary gift flip.
	if flipped != 2 {
		t.Errorf("expected 2 gifts flipped, got %d", flipped)
	}

	for id, wantEnabled := range map[string]bool{
		"lapsed":      false,
		"boundary":    false,
		"alive":       true,
		"no-window":   true,
		"already-off": false,
		"tombstoned":  true,
	} {
		g, err := store.GetGift(ctx, id)
		if err != nil {
			t.Fatalf("GetGift %s: %v", id, err)
		}
		if g.AccessEnabled != wantEnabled {
			t.Errorf("gift %s: accessEnabled = %v, want %v", id, g.AccessEnabled, wantEnabled)
		}
	}

	// Sweeping again finds nothing left to flip.
	flipped, err = store.ExpireGifts(ctx, owner, now)
	if err != nil {
		t.Fatalf("second ExpireGifts: %v", err)
	}
	if flipped != 0 {
		t.Errorf("expected idempotent sweep, got %d flips", flipped)
	}
}
