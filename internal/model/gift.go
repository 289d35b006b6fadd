// internal/model/gift.go
// Package model defines the data structures used throughout the gift service.
// These structures represent the core domain objects for users and gifts.
package model

import (
	"time"
)

// Status is the workflow state of a gift request.
type Status string

const (
	StatusPending   Status = "pending"   // Submitted by a user, awaiting review
	StatusVerified  Status = "verified"  // Approved by an admin, production in progress
	StatusCompleted Status = "completed" // Audio and lyrics attached, viewable by the recipient
	StatusRejected  Status = "rejected"  // Diverted out of the forward path
)

// Valid reports whether s is one of the recognized workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Occasion is the fixed enumeration of supported gift occasions.
type Occasion string

const (
	OccasionBirthday    Occasion = "birthday"
	OccasionAnniversary Occasion = "anniversary"
	OccasionValentines  Occasion = "valentines"
)

// Valid reports whether o is a recognized occasion.
func (o Occasion) Valid() bool {
	switch o {
	case OccasionBirthday, OccasionAnniversary, OccasionValentines:
		return true
	}
	return false
}

// Plan is the subscription tier determining how long a completed gift
// remains accessible.
type Plan string

const (
	PlanMomentum    Plan = "momentum"    // Shorter validity tier
	PlanEverlasting Plan = "everlasting" // Longer validity tier
)

// Template identifiers derived from the occasion. The minimalist template
// only appears on gifts that predate the occasion field.
const (
	TemplateBirthday    = "birthday-celebration"
	TemplateAnniversary = "grand-anniversary"
	TemplateValentines  = "romantic-evening"
	TemplateMinimalist  = "minimalist-love"
)

// User owns zero or more gifts. The ID is a sequential human-readable
// identifier (usr-00001) assigned once at creation and never reused.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Gift is the central entity: one personalized-present record with its own
// lifecycle, owned by exactly one user.
type Gift struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"userId" db:"user_id"` // Owner, immutable after creation

	// Submission fields, set once by the requester.
	RecipientName string    `json:"recipientName" db:"recipient_name"`
	Occasion      Occasion  `json:"occasion" db:"occasion"`
	OccasionDate  time.Time `json:"occasionDate" db:"occasion_date"`
	Scenarios     []string  `json:"scenarios" db:"scenarios"`
	SongGenre     string    `json:"songGenre" db:"song_genre"`
	Photos        []string  `json:"photos" db:"photos"`                   // Asset reference URLs
	PhotoAssetIDs []string  `json:"photoPublicIds" db:"photo_asset_ids"` // Derived store-side ids
	Plan          Plan      `json:"plan" db:"plan"`
	Message       string    `json:"message" db:"message"`

	// Completion fields, set once by an administrator during complete.
	Audio        string `json:"audio" db:"audio"`
	AudioAssetID string `json:"audioPublicId" db:"audio_asset_id"`
	Lyrics       string `json:"lyrics" db:"lyrics"`

	// Workflow fields.
	Status          Status     `json:"status" db:"status"`
	SubmittedAt     time.Time  `json:"submittedAt" db:"submitted_at"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty" db:"rejected_at"`
	RejectionReason string     `json:"rejectionReason,omitempty" db:"rejection_reason"`
	AssignedAt      *time.Time `json:"assignedAt,omitempty" db:"assigned_at"` // Anchor of the current validity window
	ExpiresAt       *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	AccessEnabled   bool       `json:"accessEnabled" db:"access_enabled"`

	// Tombstone fields.
	PermanentlyDeleted bool       `json:"permanentlyDeleted" db:"permanently_deleted"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`

	// Legacy/derived fields retained for backward compatibility.
	Memory     Occasion `json:"memory,omitempty" db:"memory"` // Legacy occasion alias
	TemplateID string   `json:"templateId" db:"template_id"`  // Deterministic function of occasion
}

// IsExpired reports whether the gift's validity window, if any, has passed.
func (g *Gift) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// IsViewable reports whether the recipient may view the gift right now.
func (g *Gift) IsViewable(now time.Time) bool {
	return g.Status == StatusCompleted &&
		g.AccessEnabled &&
		!g.PermanentlyDeleted &&
		!g.IsExpired(now)
}

// GiftSummary is the projection returned by the owner's list endpoint.
type GiftSummary struct {
	ID                 string     `json:"id"`
	TemplateID         string     `json:"templateId"`
	RecipientName      string     `json:"recipientName"`
	Occasion           Occasion   `json:"occasion"`
	OccasionDate       time.Time  `json:"occasionDate"`
	Plan               Plan       `json:"plan"`
	Status             Status     `json:"status"`
	SubmittedAt        time.Time  `json:"submittedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	AccessEnabled      bool       `json:"accessEnabled"`
	PermanentlyDeleted bool       `json:"permanentlyDeleted"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
}

// Summary returns the list projection of the gift.
func (g *Gift) Summary() GiftSummary {
	return GiftSummary{
		ID:                 g.ID,
		TemplateID:         g.TemplateID,
		RecipientName:      g.RecipientName,
		Occasion:           g.Occasion,
		OccasionDate:       g.OccasionDate,
		Plan:               g.Plan,
		Status:             g.Status,
		SubmittedAt:        g.SubmittedAt,
		CompletedAt:        g.CompletedAt,
		ExpiresAt:          g.ExpiresAt,
		AccessEnabled:      g.AccessEnabled,
		PermanentlyDeleted: g.PermanentlyDeleted,
		DeletedAt:          g.DeletedAt,
	}
}

// CreateGiftRequest represents the request body for submitting a gift request.
type CreateGiftRequest struct {
	RecipientName string   `json:"recipientName"`
	Occasion      string   `json:"occasion"`
	OccasionDate  string   `json:"occasionDate"` // RFC 3339 or YYYY-MM-DD
	Scenarios     []string `json:"scenarios"`
	SongGenre     string   `json:"songGenre"`
	Photos        []string `json:"photos"`
	PhotoAssetIDs []string `json:"photoPublicIds,omitempty"`
	Plan          string   `json:"plan"`
	Message       string   `json:"message,omitempty"`
}

// CompleteGiftRequest represents the admin request body for the complete
// transition.
type CompleteGiftRequest struct {
	Audio        string `json:"audio"`
	AudioAssetID string `json:"audioPublicId,omitempty"`
	Lyrics       string `json:"lyrics"`
}

// RejectGiftRequest represents the admin request body for the reject
// transition.
type RejectGiftRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SetAccessRequest represents the admin request body for toggling access.
type SetAccessRequest struct {
	AccessEnabled bool `json:"accessEnabled"`
	ResetExpiry   bool `json:"resetExpiry,omitempty"`
}

// FieldError describes a single invalid submission field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
