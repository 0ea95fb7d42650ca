package engine

import (
	"time"

	"civicgrid-be/models"
)

const (
	// Resolution window floor: no amount of upvote pressure pushes a
	// deadline under 4 hours from creation.
	minResolutionHours = 4.0

	percentPerUpvote    = 2.0
	maxReductionPercent = 50.0
)

// baseHours maps priority to the unreduced resolution window. Unknown
// priorities fall back to medium.
func baseHours(priority models.IssuePriority) float64 {
	switch priority {
	case models.PriorityHigh:
		return 24
	case models.PriorityLow:
		return 168
	default:
		return 72
	}
}

// ComputeDeadline derives the target resolution deadline from priority,
// crowd interest and creation time. Each upvote shaves 2% off the base
// window, capped at 50%. The deadline is a derived value: it must be
// recomputed whenever upvotes or priority change, not read back from a
// previous computation.
func ComputeDeadline(priority models.IssuePriority, upvotes int, createdAt time.Time) time.Time {
	if upvotes < 0 {
		upvotes = 0
	}

	reduction := float64(upvotes) * percentPerUpvote
	if reduction > maxReductionPercent {
		reduction = maxReductionPercent
	}

	hours := baseHours(priority) * (1 - reduction/100)
	if hours < minResolutionHours {
		hours = minResolutionHours
	}

	return createdAt.Add(time.Duration(hours * float64(time.Hour)))
}

// IsOverdue reports whether an issue has slipped past its deadline.
// Terminal issues are never overdue, whatever the deadline says.
func IsOverdue(deadline, now time.Time, status models.IssueStatus) bool {
	if status.Terminal() {
		return false
	}
	return now.After(deadline)
}
