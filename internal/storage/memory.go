// internal/storage/memory.go
// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a row is not found
	ErrConflict = errors.New("conflict")  // Returned when a conditional write loses its precondition
)

// Store defines the persistence operations required by the gift service.
// Implemented by the in-memory and PostgreSQL backends.
type Store interface {
	// User operations. CreateUser assigns the next sequential usr-%05d id;
	// EnsureUser mirrors an externally issued identity, inserting only when
	// the id is new.
	CreateUser(ctx context.Context, email string) (model.User, error)
	EnsureUser(ctx context.Context, id, email string) (model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)

	// Gift operations.
	CreateGift(ctx context.Context, g model.Gift) error
	GetGift(ctx context.Context, id string) (*model.Gift, error)
	ListGiftsByOwner(ctx context.Context, ownerID string) ([]model.Gift, error)

	// ListGiftsByStatus backs the admin review queue. An empty status
	// returns every gift. Tombstoned gifts are included so admins can
	// still see deletion history.
	ListGiftsByStatus(ctx context.Context, status model.Status) ([]model.Gift, error)

	// UpdateGift is the single conditional write backing every status
	// transition: it commits only while the stored status still equals
	// expectStatus and returns ErrConflict otherwise. Two racing
	// transitions therefore resolve to exactly one winner.
	UpdateGift(ctx context.Context, g model.Gift, expectStatus model.Status) error

	// ExpireGifts is the auto-expiry sweep: one bulk conditional update
	// disabling access for the owner's non-tombstoned gifts whose
	// expires_at is at or before now. Returns the number of gifts flipped.
	ExpireGifts(ctx context.Context, ownerID string, now time.Time) (int, error)

	Close()
}

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing purposes.
type memory struct {
	mu           sync.RWMutex
	users        map[string]*model.User
	gifts        map[string]*model.Gift
	giftsByOwner map[string][]string
	userSeq      int
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		users:        make(map[string]*model.User),
		gifts:        make(map[string]*model.Gift),
		giftsByOwner: make(map[string][]string),
	}
}

func (m *memory) Close() {}

func (m *memory) CreateUser(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return model.User{}, ErrConflict
		}
	}

	m.userSeq++
	user := model.User{
		ID:        fmt.Sprintf("usr-%05d", m.userSeq),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	m.users[user.ID] = &user
	return user, nil
}

func (m *memory) EnsureUser(ctx context.Context, id, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, exists := m.users[id]; exists {
		return *u, nil
	}
	user := model.User{
		ID:        id,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	m.users[id] = &user
	return user, nil
}

func (m *memory) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (m *memory) CreateGift(ctx context.Context, g model.Gift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gifts[g.ID]; exists {
		return ErrConflict
	}
	if _, exists := m.users[g.UserID]; !exists {
		return fmt.Errorf("owner not found: %s", g.UserID)
	}

	stored := cloneGift(g)
	m.gifts[g.ID] = &stored
	m.giftsByOwner[g.UserID] = append(m.giftsByOwner[g.UserID], g.ID)
	return nil
}

func (m *memory) GetGift(ctx context.Context, id string) (*model.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, exists := m.gifts[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := cloneGift(*g)
	return &out, nil
}

func (m *memory) ListGiftsByOwner(ctx context.Context, ownerID string) ([]model.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.giftsByOwner[ownerID]
	gifts := make([]model.Gift, 0, len(ids))
	for _, id := range ids {
		if g, exists := m.gifts[id]; exists {
			gifts = append(gifts, cloneGift(*g))
		}
	}

	// Newest submission first, matching the postgres ORDER BY.
	sort.SliceStable(gifts, func(i, j int) bool {
		return gifts[i].SubmittedAt.After(gifts[j].SubmittedAt)
	})
	return gifts, nil
}

func (m *memory) ListGiftsByStatus(ctx context.Context, status model.Status) ([]model.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gifts := make([]model.Gift, 0)
	for _, g := range m.gifts {
		if status != "" && g.Status != status {
			continue
		}
		gifts = append(gifts, cloneGift(*g))
	}

	sort.SliceStable(gifts, func(i, j int) bool {
		return gifts[i].SubmittedAt.After(gifts[j].SubmittedAt)
	})
	return gifts, nil
}

func (m *memory) UpdateGift(ctx context.Context, g model.Gift, expectStatus model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.gifts[g.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Status != expectStatus {
		return ErrConflict
	}

	// Owner is immutable after creation.
	g.UserID = stored.UserID
	updated := cloneGift(g)
	m.gifts[g.ID] = &updated
	return nil
}

func (m *memory) ExpireGifts(ctx context.Context, ownerID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flipped := 0
	for _, id := range m.giftsByOwner[ownerID] {
		g, exists := m.gifts[id]
		if !exists {
			continue
		}
		if g.PermanentlyDeleted || !g.AccessEnabled || g.ExpiresAt == nil {
			continue
		}
		if !g.ExpiresAt.After(now) {
			g.AccessEnabled = false
			flipped++
		}
	}
	return flipped, nil
}

// cloneGift copies a gift including its slice fields so callers never share
// backing arrays with the store.
func cloneGift(g model.Gift) model.Gift {
	g.Scenarios = append([]string(nil), g.Scenarios...)
	g.Photos = append([]string(nil), g.Photos...)
	g.PhotoAssetIDs = append([]string(nil), g.PhotoAssetIDs...)
	return g
}
