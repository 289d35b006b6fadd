// internal/gift/normalize.go
// Normalization of gift drafts. The original system ran these derivations in
// an implicit pre-save hook; here they are one explicit pure pass invoked at
// every write boundary so ordering and idempotence are testable in isolation.
package gift

import (
	"regexp"
	"strings"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/plan"
)

// uploadMarker is the fixed path marker in asset reference URLs; everything
// after it, minus version/query/extension decoration, is the store-side id.
const uploadMarker = "/upload/"

var versionSegment = regexp.MustCompile(`^v\d+/`)

// DeriveAssetID extracts the store-side asset id from a reference URL.
// Returns ("", false) for references lacking the marker or reducing to an
// empty id. Pure, total, and deterministic.
func DeriveAssetID(url string) (string, bool) {
	i := strings.Index(url, uploadMarker)
	if i < 0 {
		return "", false
	}
	id := url[i+len(uploadMarker):]

	// Optional leading version segment: v<digits>/
	id = versionSegment.ReplaceAllString(id, "")

	// Query-string suffix.
	if q := strings.Index(id, "?"); q >= 0 {
		id = id[:q]
	}

	// File-extension suffix, only in the last path segment.
	if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
		id = id[:dot]
	}

	if id == "" {
		return "", false
	}
	return id, true
}

// FolderPrefix returns the folder portion of an asset id, used for the
// defense-in-depth bulk delete. Ids shallower than three segments have no
// usable folder.
func FolderPrefix(assetID string) (string, bool) {
	parts := strings.Split(assetID, "/")
	if len(parts) < 3 {
		return "", false
	}
	return strings.Join(parts[:len(parts)-1], "/"), true
}

// templateForOccasion is the deterministic occasion-to-template mapping.
func templateForOccasion(o model.Occasion) string {
	switch o {
	case model.OccasionBirthday:
		return model.TemplateBirthday
	case model.OccasionAnniversary:
		return model.TemplateAnniversary
	case model.OccasionValentines:
		return model.TemplateValentines
	default:
		return ""
	}
}

// Normalize applies the field-derivation rules to a gift draft and returns
// the normalized copy. Running it twice yields the same result. Order:
//  1. Empty-string enum fields become unset.
//  2. templateId derived from occasion when occasion present, template absent.
//  3. Legacy occasion alias synced when absent.
//  4. expiresAt computed once for completed gifts that lack it.
//  5. Photo asset ids derived from references when absent; references that
//     fail derivation are dropped so ids and references stay aligned.
//  6. Audio asset id derived the same way.
func Normalize(g model.Gift) model.Gift {
	// 1. Unset empty enums.
	if !g.Occasion.Valid() {
		g.Occasion = ""
	}
	if g.Plan != model.PlanMomentum && g.Plan != model.PlanEverlasting {
		g.Plan = ""
	}

	// 2. Template from occasion. Never overwrite an already-derived value.
	if g.Occasion != "" && g.TemplateID == "" {
		g.TemplateID = templateForOccasion(g.Occasion)
	}

	// 3. Legacy alias.
	if g.Memory == "" {
		g.Memory = g.Occasion
	}

	// 4. Expiry anchor. Set exactly once; never recomputed afterward.
	if g.Status == model.StatusCompleted && g.CompletedAt != nil && g.ExpiresAt == nil {
		g.ExpiresAt = plan.ComputeExpiry(*g.CompletedAt, g.Plan)
		if g.AssignedAt == nil {
			g.AssignedAt = g.CompletedAt
		}
	}

	// 5. Photo asset ids. Derivation must run before any store deletion is
	// possible, since deletion is id-keyed, not URL-keyed.
	if len(g.PhotoAssetIDs) == 0 && len(g.Photos) > 0 {
		photos := make([]string, 0, len(g.Photos))
		ids := make([]string, 0, len(g.Photos))
		for _, url := range g.Photos {
			if id, ok := DeriveAssetID(url); ok {
				photos = append(photos, url)
				ids = append(ids, id)
			}
		}
		g.Photos = photos
		g.PhotoAssetIDs = ids
	}

	// 6. Audio asset id.
	if g.AudioAssetID == "" && g.Audio != "" {
		if id, ok := DeriveAssetID(g.Audio); ok {
			g.AudioAssetID = id
		}
	}

	return g
}
