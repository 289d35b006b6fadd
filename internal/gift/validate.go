// internal/gift/validate.go
package gift

import (
	"fmt"
	"strings"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

// Submission limits.
const (
	MinScenarios      = 3
	MaxScenarios      = 3
	MinScenarioLength = 150
	MinPhotos         = 1
	MaxPhotos         = 4
)

// ParseOccasionDate accepts RFC 3339 timestamps or plain dates.
func ParseOccasionDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// ValidateSubmission checks a gift request against the submission rules and
// returns the parsed occasion date together with any field-level errors.
// An empty slice means the submission is acceptable.
func ValidateSubmission(req model.CreateGiftRequest) (time.Time, []model.FieldError) {
	var errs []model.FieldError

	if strings.TrimSpace(req.RecipientName) == "" {
		errs = append(errs, model.FieldError{Field: "recipientName", Message: "recipientName is required"})
	}
	if !model.Occasion(req.Occasion).Valid() {
		errs = append(errs, model.FieldError{Field: "occasion", Message: "occasion must be one of birthday, anniversary, valentines"})
	}
	if strings.TrimSpace(req.SongGenre) == "" {
		errs = append(errs, model.FieldError{Field: "songGenre", Message: "songGenre is required"})
	}
	if req.Plan != string(model.PlanMomentum) && req.Plan != string(model.PlanEverlasting) {
		errs = append(errs, model.FieldError{Field: "plan", Message: "plan must be one of momentum, everlasting"})
	}

	var occasionDate time.Time
	if req.OccasionDate == "" {
		errs = append(errs, model.FieldError{Field: "occasionDate", Message: "occasionDate is required"})
	} else {
		t, err := ParseOccasionDate(req.OccasionDate)
		if err != nil {
			errs = append(errs, model.FieldError{Field: "occasionDate", Message: "occasionDate is not a valid date"})
		} else {
			occasionDate = t
		}
	}

	if len(req.Photos) < MinPhotos {
		errs = append(errs, model.FieldError{Field: "photos", Message: "at least one photo is required"})
	} else if len(req.Photos) > MaxPhotos {
		errs = append(errs, model.FieldError{Field: "photos", Message: fmt.Sprintf("maximum %d photos allowed", MaxPhotos)})
	}

	if len(req.Scenarios) < MinScenarios {
		errs = append(errs, model.FieldError{Field: "scenarios", Message: fmt.Sprintf("all %d scenarios are required", MinScenarios)})
	} else {
		for i, s := range req.Scenarios {
			if len(strings.TrimSpace(s)) < MinScenarioLength {
				errs = append(errs, model.FieldError{
					Field:   fmt.Sprintf("scenarios[%d]", i),
					Message: fmt.Sprintf("scenario %d must be at least %d characters long", i+1, MinScenarioLength),
				})
			}
		}
	}

	return occasionDate, errs
}
