// internal/gift/service.go
// The lifecycle state machine. Every transition re-verifies its status
// precondition through the storage layer's conditional write, so two racing
// calls resolve to exactly one winner. Asset deletion and notification are
// best-effort and never fail the owning transition.
package gift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/assets"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/event"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/metrics"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/notify"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/plan"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/storage"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/token"
)

// defaultRejectionReason is recorded when the administrator gives none.
const defaultRejectionReason = "Rejected by administrator"

// Service implements the gift lifecycle operations and the expiry sweep.
type Service struct {
	store    storage.Store
	assets   assets.Store
	events   event.Publisher
	notifier notify.Notifier
	codec    *token.Codec
	metrics  *metrics.Metrics
	logger   *slog.Logger
	linkBase string

	now func() time.Time
}

// NewService wires the state machine to its collaborators. linkBase is the
// public frontend origin used when building share links for notifications.
func NewService(
	store storage.Store,
	assetStore assets.Store,
	events event.Publisher,
	notifier notify.Notifier,
	codec *token.Codec,
	m *metrics.Metrics,
	logger *slog.Logger,
	linkBase string,
) *Service {
	return &Service{
		store:    store,
		assets:   assetStore,
		events:   events,
		notifier: notifier,
		codec:    codec,
		metrics:  m,
		logger:   logger,
		linkBase: strings.TrimRight(linkBase, "/"),
		now:      time.Now,
	}
}

// Create validates a submission and stores the gift in status pending.
func (s *Service) Create(ctx context.Context, ownerID string, req model.CreateGiftRequest) (*model.Gift, error) {
	occasionDate, fieldErrs := ValidateSubmission(req)
	if len(fieldErrs) > 0 {
		s.countTransition("create", "invalid")
		return nil, &ValidationError{Fields: fieldErrs}
	}

	// Only the first three briefs are stored; extras beyond the form's
	// slots are discarded.
	scenarios := req.Scenarios
	if len(scenarios) > MaxScenarios {
		scenarios = scenarios[:MaxScenarios]
	}

	now := s.now().UTC()
	g := model.Gift{
		ID:            strings.ToLower(ulid.Make().String()),
		UserID:        ownerID,
		RecipientName: strings.TrimSpace(req.RecipientName),
		Occasion:      model.Occasion(req.Occasion),
		OccasionDate:  occasionDate,
		Scenarios:     scenarios,
		SongGenre:     strings.TrimSpace(req.SongGenre),
		Photos:        req.Photos,
		PhotoAssetIDs: req.PhotoAssetIDs,
		Plan:          model.Plan(req.Plan),
		Message:       strings.TrimSpace(req.Message),
		Status:        model.StatusPending,
		SubmittedAt:   now,
	}
	g = Normalize(g)

	if err := s.store.CreateGift(ctx, g); err != nil {
		s.countTransition("create", "error")
		return nil, fmt.Errorf("create gift: %w", err)
	}

	s.countTransition("create", "ok")
	s.logger.Info("gift request created",
		"gift_id", g.ID, "user_id", ownerID, "occasion", g.Occasion, "plan", g.Plan)
	return &g, nil
}

// ListOwn runs the expiry sweep for the owner and returns the list
// projection, newest submission first.
func (s *Service) ListOwn(ctx context.Context, ownerID string) ([]model.GiftSummary, error) {
	if err := s.Sweep(ctx, ownerID); err != nil {
		return nil, err
	}
	gifts, err := s.store.ListGiftsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	summaries := make([]model.GiftSummary, 0, len(gifts))
	for i := range gifts {
		summaries = append(summaries, gifts[i].Summary())
	}
	return summaries, nil
}

// ListByStatus returns the admin review queue for one status, or every
// gift when status is empty.
func (s *Service) ListByStatus(ctx context.Context, status model.Status) ([]model.Gift, error) {
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Fields: []model.FieldError{
			{Field: "status", Message: "unknown status"},
		}}
	}
	gifts, err := s.store.ListGiftsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list gifts by status: %w", err)
	}
	return gifts, nil
}

// Sweep disables access for the owner's expired gifts. Invoked lazily at
// the start of every read path touching that owner's gifts.
func (s *Service) Sweep(ctx context.Context, ownerID string) error {
	flipped, err := s.store.ExpireGifts(ctx, ownerID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SweepRunTotal.Inc()
		s.metrics.SweepDisabledTotal.Add(float64(flipped))
	}
	if flipped > 0 {
		s.logger.Info("expiry sweep disabled access", "user_id", ownerID, "gifts", flipped)
	}
	return nil
}

// Verify moves a pending gift to verified.
func (s *Service) Verify(ctx context.Context, giftID string) (*model.Gift, error) {
	g, err := s.loadForTransition(ctx, giftID)
	if err != nil {
		s.countTransition("verify", "error")
		return nil, err
	}
	if g.Status != model.StatusPending {
		s.countTransition("verify", "invalid")
		return nil, &TransitionError{Current: g.Status, Expected: string(model.StatusPending)}
	}

	now := s.now().UTC()
	g.Status = model.StatusVerified
	g.VerifiedAt = &now
	*g = Normalize(*g)

	if err := s.commit(ctx, *g, model.StatusPending, "verify", string(model.StatusPending)); err != nil {
		return nil, err
	}
	s.countTransition("verify", "ok")
	s.logger.Info("gift verified", "gift_id", g.ID, "user_id", g.UserID)
	return g, nil
}

// Reject diverts a non-completed gift to rejected, purging its stored
// assets best-effort and clearing the asset references.
func (s *Service) Reject(ctx context.Context, giftID, reason string) (*model.Gift, error) {
	g, err := s.loadForTransition(ctx, giftID)
	if err != nil {
		s.countTransition("reject", "error")
		return nil, err
	}
	if g.Status == model.StatusCompleted {
		s.countTransition("reject", "invalid")
		return nil, &TransitionError{
			Current:  g.Status,
			Expected: "pending or verified",
		}
	}

	s.deleteGiftAssets(ctx, g)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectionReason
	}

	expect := g.Status
	now := s.now().UTC()
	g.Status = model.StatusRejected
	g.RejectedAt = &now
	g.RejectionReason = reason
	g.Photos = nil
	g.PhotoAssetIDs = nil
	g.Audio = ""
	g.AudioAssetID = ""

	if err := s.commit(ctx, *g, expect, "reject", "pending or verified"); err != nil {
		return nil, err
	}
	s.countTransition("reject", "ok")
	s.logger.Info("gift rejected", "gift_id", g.ID, "user_id", g.UserID, "reason", reason)

	if err := s.events.PublishGiftRejected(ctx, *g); err != nil {
		s.logger.Warn("failed to publish gift rejected event", "gift_id", g.ID, "error", err)
	}
	return g, nil
}

// Complete moves a verified gift to completed, attaches the produced audio
// and lyrics, opens access, anchors the validity window, and fires the
// recipient notification.
func (s *Service) Complete(ctx context.Context, giftID string, req model.CompleteGiftRequest) (*model.Gift, error) {
	g, err := s.loadForTransition(ctx, giftID)
	if err != nil {
		s.countTransition("complete", "error")
		return nil, err
	}
	if g.Status != model.StatusVerified {
		s.countTransition("complete", "invalid")
		return nil, &TransitionError{Current: g.Status, Expected: string(model.StatusVerified)}
	}

	var fieldErrs []model.FieldError
	if strings.TrimSpace(req.Audio) == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "audio", Message: "audio reference is required"})
	}
	if strings.TrimSpace(req.Lyrics) == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "lyrics", Message: "lyrics are required"})
	}
	if len(fieldErrs) > 0 {
		s.countTransition("complete", "invalid")
		return nil, &ValidationError{Fields: fieldErrs}
	}

	now := s.now().UTC()
	g.Status = model.StatusCompleted
	g.CompletedAt = &now
	g.Audio = strings.TrimSpace(req.Audio)
	g.AudioAssetID = strings.TrimSpace(req.AudioAssetID)
	g.Lyrics = strings.TrimSpace(req.Lyrics)
	g.AccessEnabled = true
	*g = Normalize(*g) // derives expiresAt, assignedAt and the audio asset id

	if err := s.commit(ctx, *g, model.StatusVerified, "complete", string(model.StatusVerified)); err != nil {
		return nil, err
	}
	s.countTransition("complete", "ok")
	s.logger.Info("gift completed",
		"gift_id", g.ID, "user_id", g.UserID, "expires_at", g.ExpiresAt)

	if err := s.events.PublishGiftCompleted(ctx, *g); err != nil {
		s.logger.Warn("failed to publish gift completed event", "gift_id", g.ID, "error", err)
	}
	s.notifyOwner(ctx, *g)
	return g, nil
}

// SetAccess toggles the access gate of a gift. Enabling past expiry
// requires an explicit window reset; the new window is anchored at now.
func (s *Service) SetAccess(ctx context.Context, giftID string, req model.SetAccessRequest) (*model.Gift, error) {
	g, err := s.loadGift(ctx, giftID)
	if err != nil {
		s.countTransition("set_access", "error")
		return nil, err
	}
	if g.PermanentlyDeleted {
		s.countTransition("set_access", "invalid")
		return nil, &OperationError{Reason: "gift is permanently deleted"}
	}

	now := s.now().UTC()
	if !req.AccessEnabled {
		g.AccessEnabled = false
	} else {
		expired := g.IsExpired(now)
		if expired && !req.ResetExpiry {
			s.countTransition("set_access", "invalid")
			return nil, ErrExpiredGrant
		}
		if _, finite := plan.DurationDays(g.Plan); finite && (expired || req.ResetExpiry) {
			// Fresh validity window anchored at the re-grant.
			g.AssignedAt = &now
			g.ExpiresAt = plan.ComputeExpiry(now, g.Plan)
		}
		g.AccessEnabled = true
	}

	if err := s.commit(ctx, *g, g.Status, "set_access", string(g.Status)); err != nil {
		return nil, err
	}
	s.countTransition("set_access", "ok")
	s.logger.Info("gift access updated",
		"gift_id", g.ID, "access_enabled", g.AccessEnabled, "expires_at", g.ExpiresAt)

	if err := s.events.PublishAccessChanged(ctx, *g); err != nil {
		s.logger.Warn("failed to publish access changed event", "gift_id", g.ID, "error", err)
	}
	return g, nil
}

// PermanentDelete tombstones a gift. Idempotent: deleting an already
// tombstoned gift returns the terminal state without error. The tombstone
// always commits regardless of asset-store outcome.
func (s *Service) PermanentDelete(ctx context.Context, giftID string) (*model.Gift, error) {
	g, err := s.loadGift(ctx, giftID)
	if err != nil {
		s.countTransition("permanent_delete", "error")
		return nil, err
	}
	if g.PermanentlyDeleted {
		s.countTransition("permanent_delete", "ok")
		return g, nil
	}

	s.deleteGiftAssets(ctx, g)
	s.deleteGiftFolder(ctx, g)

	now := s.now().UTC()
	g.PermanentlyDeleted = true
	g.DeletedAt = &now
	g.AccessEnabled = false
	g.Photos = nil
	g.PhotoAssetIDs = nil
	g.Audio = ""
	g.AudioAssetID = ""

	if err := s.commit(ctx, *g, g.Status, "permanent_delete", string(g.Status)); err != nil {
		return nil, err
	}
	s.countTransition("permanent_delete", "ok")
	s.logger.Info("gift permanently deleted", "gift_id", g.ID, "user_id", g.UserID)

	if err := s.events.PublishGiftDeleted(ctx, *g); err != nil {
		s.logger.Warn("failed to publish gift deleted event", "gift_id", g.ID, "error", err)
	}
	return g, nil
}

// ShareLink encodes the owner's identity into a fresh access token and
// builds the recipient-facing URL for the gift.
func (s *Service) ShareLink(g model.Gift) (string, error) {
	tok, err := s.codec.Encode(g.UserID)
	if err != nil {
		return "", fmt.Errorf("encode access token: %w", err)
	}
	return fmt.Sprintf("%s/gifts/%s/%s", s.linkBase, g.ID, url.PathEscape(tok)), nil
}

// notifyOwner sends the gift-ready email in a detached goroutine. Failure
// is logged, never surfaced into the completing transition.
func (s *Service) notifyOwner(ctx context.Context, g model.Gift) {
	owner, err := s.store.GetUser(ctx, g.UserID)
	if err != nil {
		s.countNotify("error")
		s.logger.Warn("cannot notify: owner lookup failed", "gift_id", g.ID, "user_id", g.UserID, "error", err)
		return
	}
	link, err := s.ShareLink(g)
	if err != nil {
		s.countNotify("error")
		s.logger.Warn("cannot notify: link build failed", "gift_id", g.ID, "error", err)
		return
	}

	go func() {
		if err := s.notifier.GiftReady(*owner, g, link); err != nil {
			s.countNotify("error")
			s.logger.Warn("gift-ready notification failed",
				"gift_id", g.ID, "user_id", g.UserID, "error", err)
			return
		}
		s.countNotify("ok")
	}()
}

// deleteGiftAssets removes every stored asset of the gift by id,
// best-effort. Each failure is logged with the asset id for manual
// remediation and never aborts the caller.
func (s *Service) deleteGiftAssets(ctx context.Context, g *model.Gift) {
	for _, id := range g.PhotoAssetIDs {
		s.deleteAsset(ctx, g.ID, id, assets.KindImage)
	}
	if g.AudioAssetID != "" {
		s.deleteAsset(ctx, g.ID, g.AudioAssetID, assets.KindAudio)
	}
}

// deleteGiftFolder is the defense-in-depth bulk delete covering assets
// whose ids were never correctly derived. The prefix comes from the first
// known asset id.
func (s *Service) deleteGiftFolder(ctx context.Context, g *model.Gift) {
	first := ""
	if len(g.PhotoAssetIDs) > 0 {
		first = g.PhotoAssetIDs[0]
	} else if g.AudioAssetID != "" {
		first = g.AudioAssetID
	}
	prefix, ok := FolderPrefix(first)
	if !ok {
		return
	}
	for _, kind := range []assets.Kind{assets.KindImage, assets.KindAudio} {
		if err := s.assets.DeleteByPrefix(ctx, prefix, kind); err != nil {
			s.countAssetDelete(kind, "error")
			s.logger.Warn("asset folder delete failed",
				"gift_id", g.ID, "prefix", prefix, "kind", kind, "error", err)
			continue
		}
		s.countAssetDelete(kind, "ok")
	}
}

func (s *Service) deleteAsset(ctx context.Context, giftID, assetID string, kind assets.Kind) {
	if err := s.assets.DeleteByID(ctx, assetID, kind); err != nil {
		s.countAssetDelete(kind, "error")
		s.logger.Warn("asset delete failed",
			"gift_id", giftID, "asset_id", assetID, "kind", kind, "error", err)
		return
	}
	s.countAssetDelete(kind, "ok")
}

// loadGift fetches a gift, mapping the storage sentinel to the domain one.
func (s *Service) loadGift(ctx context.Context, giftID string) (*model.Gift, error) {
	g, err := s.store.GetGift(ctx, giftID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get gift: %w", err)
	}
	return g, nil
}

// loadForTransition additionally refuses tombstoned gifts, which can never
// transition status.
func (s *Service) loadForTransition(ctx context.Context, giftID string) (*model.Gift, error) {
	g, err := s.loadGift(ctx, giftID)
	if err != nil {
		return nil, err
	}
	if g.PermanentlyDeleted {
		return nil, &OperationError{Reason: "gift is permanently deleted"}
	}
	return g, nil
}

// commit writes the transitioned gift through the conditional update and
// translates a lost precondition into TransitionError using the status the
// loser actually finds.
func (s *Service) commit(ctx context.Context, g model.Gift, expect model.Status, op, expected string) error {
	err := s.store.UpdateGift(ctx, g, expect)
	if err == nil {
		return nil
	}
	s.countTransition(op, "error")
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, storage.ErrConflict) {
		current := expect
		if fresh, lerr := s.store.GetGift(ctx, g.ID); lerr == nil {
			current = fresh.Status
		}
		return &TransitionError{Current: current, Expected: expected}
	}
	return fmt.Errorf("%s gift: %w", op, err)
}

func (s *Service) countTransition(op, status string) {
	if s.metrics != nil {
		s.metrics.TransitionTotal.WithLabelValues(op, status).Inc()
	}
}

func (s *Service) countAssetDelete(kind assets.Kind, status string) {
	if s.metrics != nil {
		s.metrics.AssetDeleteTotal.WithLabelValues(string(kind), status).Inc()
	}
}

func (s *Service) countNotify(status string) {
	if s.metrics != nil {
		s.metrics.NotifyTotal.WithLabelValues(status).Inc()
	}
}
