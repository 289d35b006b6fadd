// internal/gift/gate.go
// The access gate: the request-time authorization pipeline deciding whether
// a caller may view one gift. The shared-link path additionally binds the
// link to its intended user through the reversible token.
package gift

import (
	"context"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

// ViewShared authorizes viewing a gift through a shared link.
//
//  1. Decode the token; structural or decryption failure is a client error.
//  2. Match the decoded identity against the caller. A mismatch must not
//     reveal whether the gift exists.
//  3. Sweep the caller's gifts so expiry state is never stale.
//  4. Load the gift.
//  5. Re-check ownership against the stored record.
//  6. Tombstoned gifts are gone.
//  7. Access must be switched on.
//  8. A passed validity window flips access off, persisted, before refusing.
func (s *Service) ViewShared(ctx context.Context, callerID, giftID, tok string) (*model.Gift, error) {
	intendedID, err := s.codec.Decode(tok)
	if err != nil {
		s.logger.Info("share link rejected: token decode failed", "gift_id", giftID, "error", err)
		return nil, ErrInvalidLink
	}

	if intendedID != callerID {
		return nil, &AccessDeniedError{IntendedForDifferentUser: true}
	}

	return s.ViewOwn(ctx, callerID, giftID)
}

// ViewOwn authorizes the owner browsing their own gift without a shared
// link: the gate minus the token steps.
func (s *Service) ViewOwn(ctx context.Context, callerID, giftID string) (*model.Gift, error) {
	if err := s.Sweep(ctx, callerID); err != nil {
		return nil, err
	}

	g, err := s.loadGift(ctx, giftID)
	if err != nil {
		return nil, err
	}

	if g.UserID != callerID {
		return nil, &AccessDeniedError{}
	}
	if g.PermanentlyDeleted {
		return nil, ErrGone
	}
	now := s.now().UTC()
	if !g.AccessEnabled {
		// When the window passed, report expiry rather than a bare
		// disable, whether the sweep already flipped the flag or not.
		if g.IsExpired(now) {
			return nil, ErrAccessExpired
		}
		return nil, ErrAccessDisabled
	}

	if g.IsExpired(now) {
		// A racing re-grant may have slipped in since the sweep. Flip and
		// persist before refusing so storage converges.
		g.AccessEnabled = false
		if uerr := s.store.UpdateGift(ctx, *g, g.Status); uerr != nil {
			s.logger.Warn("failed to persist expiry flip", "gift_id", g.ID, "error", uerr)
		}
		return nil, ErrAccessExpired
	}

	return g, nil
}
