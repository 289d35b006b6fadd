package conformance

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

func newHarness(t *testing.T) *Harness {
	t.Helper()
	h, err := NewHarness(Config{
		JWTIssuer:        "https://auth.memoryhaze.example",
		JWTAudience:      "memoryhaze-api",
		EncryptionSecret: "conformance-secret",
	})
	if err != nil {
		t.Fatalf("failed to create harness: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func (h *Harness) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := h.Token(sub, role)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return tok
}

func (h *Harness) must(t *testing.T, method, path, bearer string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()
	status, decoded, err := h.Do(method, path, bearer, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if status != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %v", method, path, wantStatus, status, decoded)
	}
	return decoded
}

func giftOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data envelope, got %v", body)
	}
	g, ok := data["gift"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data.gift, got %v", data)
	}
	return g
}

func errCodeOf(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + path)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}

// A momentum-plan gift walks pending -> verified -> completed and comes out
// the far end with access enabled and a seven-day window.
func TestFullLifecycle(t *testing.T) {
	h := newHarness(t)
	owner := h.token(t, "usr-00001", "")
	admin := h.token(t, "usr-admin", "admin")

	created := giftOf(t, h.must(t, http.MethodPost, "/v1/gifts/request", owner, SubmissionBody("momentum"), http.StatusCreated))
	giftID := created["id"].(string)
	if created["status"] != "pending" {
		t.Fatalf("expected pending after submission, got %v", created["status"])
	}

	verified := giftOf(t, h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/verify", admin, nil, http.StatusOK))
	if verified["status"] != "verified" {
		t.Fatalf("expected verified, got %v", verified["status"])
	}

	completed := giftOf(t, h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/complete", admin, map[string]interface{}{
		"audio":  "https://cdn.example.com/upload/v50/song.mp3",
		"lyrics": "first verse\nchorus\nsecond verse",
	}, http.StatusOK))

	if completed["status"] != "completed" {
		t.Errorf("expected completed, got %v", completed["status"])
	}
	if completed["accessEnabled"] != true {
		t.Error("completed gift should have access enabled")
	}

	completedAt, err := time.Parse(time.RFC3339, completed["completedAt"].(string))
	if err != nil {
		t.Fatalf("parsing completedAt: %v", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, completed["expiresAt"].(string))
	if err != nil {
		t.Fatalf("parsing expiresAt: %v", err)
	}
	if got := expiresAt.Sub(completedAt); got != 7*24*time.Hour {
		t.Errorf("momentum window should be 7 days, got %v", got)
	}

	// Owner can view it through both endpoints.
	h.must(t, http.MethodGet, "/v1/gifts/"+giftID, owner, nil, http.StatusOK)

	tok, err := h.ShareToken("usr-00001")
	if err != nil {
		t.Fatalf("ShareToken: %v", err)
	}
	h.must(t, http.MethodGet, "/v1/gifts/"+giftID+"/"+tok, owner, nil, http.StatusOK)
}

// A completed gift whose window has lapsed is flipped off by the owner's
// next sweep and refused as expired from then on.
func TestExpirySweep(t *testing.T) {
	h := newHarness(t)
	owner := h.token(t, "usr-00002", "")
	admin := h.token(t, "usr-admin", "admin")

	created := giftOf(t, h.must(t, http.MethodPost, "/v1/gifts/request", owner, SubmissionBody("momentum"), http.StatusCreated))
	giftID := created["id"].(string)
	h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/verify", admin, nil, http.StatusOK)
	h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/complete", admin, map[string]interface{}{
		"audio":  "https://cdn.example.com/upload/v50/song.mp3",
		"lyrics": "lyrics",
	}, http.StatusOK)

	// Backdate the window directly in storage.
	ctx := context.Background()
	stored, err := h.store.GetGift(ctx, giftID)
	if err != nil {
		t.Fatalf("GetGift: %v", err)
	}
	past := time.Now().Add(-time.Hour).UTC()
	stored.ExpiresAt = &past
	if err := h.store.UpdateGift(ctx, *stored, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateGift: %v", err)
	}

	// The listing runs the sweep for this owner.
	h.must(t, http.MethodGet, "/v1/gifts", owner, nil, http.StatusOK)

	after, err := h.store.GetGift(ctx, giftID)
	if err != nil {
		t.Fatalf("GetGift after sweep: %v", err)
	}
	if after.AccessEnabled {
		t.Error("sweep should have disabled access on the lapsed gift")
	}

	status, body, err := h.Do(http.MethodGet, "/v1/gifts/"+giftID, owner, nil)
	if err != nil {
		t.Fatalf("view after sweep: %v", err)
	}
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 after expiry, got %d", status)
	}
	if code := errCodeOf(t, body); code != "GIFT_ACCESS_EXPIRED" {
		t.Errorf("expected GIFT_ACCESS_EXPIRED, got %s", code)
	}
}

// A share-link token naming user X presented by user Y is refused with the
// mismatch flag whether or not the gift exists.
func TestShareLinkWrongRecipient(t *testing.T) {
	h := newHarness(t)
	owner := h.token(t, "usr-00003", "")
	stranger := h.token(t, "usr-00004", "")
	admin := h.token(t, "usr-admin", "admin")

	created := giftOf(t, h.must(t, http.MethodPost, "/v1/gifts/request", owner, SubmissionBody("everlasting"), http.StatusCreated))
	giftID := created["id"].(string)
	h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/verify", admin, nil, http.StatusOK)
	h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/complete", admin, map[string]interface{}{
		"audio":  "https://cdn.example.com/upload/v50/song.mp3",
		"lyrics": "lyrics",
	}, http.StatusOK)

	tok, err := h.ShareToken("usr-00003")
	if err != nil {
		t.Fatalf("ShareToken: %v", err)
	}

	for _, id := range []string{giftID, "no-such-gift"} {
		status, body, err := h.Do(http.MethodGet, "/v1/gifts/"+id+"/"+tok, stranger, nil)
		if err != nil {
			t.Fatalf("shared view of %s: %v", id, err)
		}
		if status != http.StatusForbidden {
			t.Fatalf("gift %s: expected 403, got %d", id, status)
		}
		if code := errCodeOf(t, body); code != "GIFT_ACCESS_DENIED" {
			t.Errorf("gift %s: expected GIFT_ACCESS_DENIED, got %s", id, code)
		}
		details, _ := body["error"].(map[string]interface{})["details"].(map[string]interface{})
		if details["intendedForDifferentUser"] != true {
			t.Errorf("gift %s: expected intendedForDifferentUser detail, got %v", id, details)
		}
	}
}

// Rejecting a pending gift purges its stored photo assets, clears the media
// references and records the rejection reason.
func TestRejectionPurgesAssets(t *testing.T) {
	h := newHarness(t)
	owner := h.token(t, "usr-00005", "")
	admin := h.token(t, "usr-admin", "admin")

	created := giftOf(t, h.must(t, http.MethodPost, "/v1/gifts/request", owner, SubmissionBody("momentum"), http.StatusCreated))
	giftID := created["id"].(string)

	rejected := giftOf(t, h.must(t, http.MethodPatch, "/v1/admin/requests/"+giftID+"/reject", admin, map[string]interface{}{
		"reason": "photos are too low resolution",
	}, http.StatusOK))

	if rejected["status"] != "rejected" {
		t.Errorf("expected rejected, got %v", rejected["status"])
	}
	if rejected["rejectionReason"] != "photos are too low resolution" {
		t.Errorf("unexpected rejection reason: %v", rejected["rejectionReason"])
	}

	stored, err := h.store.GetGift(context.Background(), giftID)
	if err != nil {
		t.Fatalf("GetGift: %v", err)
	}
	if len(stored.Photos) != 0 || len(stored.PhotoAssetIDs) != 0 {
		t.Errorf("photo references should be cleared, got %v / %v", stored.Photos, stored.PhotoAssetIDs)
	}

	deleted := h.assets.Deleted()
	if len(deleted) != 2 {
		t.Fatalf("expected 2 asset deletions, got %v", deleted)
	}
	for _, d := range deleted {
		if !strings.HasPrefix(d, "image:") {
			t.Errorf("expected image deletion, got %s", d)
		}
	}
}
