// internal/plan/plan.go
// Package plan maps subscription tiers to validity durations and computes
// absolute expiry timestamps from a completion anchor.
package plan

import (
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

// Validity durations per tier, in days.
const (
	MomentumDays    = 7
	EverlastingDays = 14
)

// DurationDays returns the validity duration of a plan in days. The second
// return value is false for unrecognized or unset plans, meaning the gift
// never expires.
func DurationDays(p model.Plan) (int, bool) {
	switch p {
	case model.PlanMomentum:
		return MomentumDays, true
	case model.PlanEverlasting:
		return EverlastingDays, true
	default:
		return 0, false
	}
}

// ComputeExpiry returns anchor + the plan's duration, or nil when the plan
// has no duration. Callers must invoke this exactly once per anchor; expiry
// is never recomputed from "now" on later reads.
func ComputeExpiry(anchor time.Time, p model.Plan) *time.Time {
	days, ok := DurationDays(p)
	if !ok {
		return nil
	}
	t := anchor.Add(time.Duration(days) * 24 * time.Hour)
	return &t
}
