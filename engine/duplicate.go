package engine

import (
	"context"

	"civicgrid-be/models"
)

// DefaultDuplicateThresholdMeters is how close two same-category issues
// must be before the newer one counts as a duplicate, unless the caller
// overrides it.
const DefaultDuplicateThresholdMeters = 300.0

// DuplicateMatch is the nearest open issue of the same category within
// the threshold.
type DuplicateMatch struct {
	Issue          models.Issue `json:"issue"`
	DistanceMeters float64      `json:"distanceMeters"`
}

// FindDuplicate searches open issues of the same category for one within
// thresholdMeters of the given point and returns the nearest, ties broken
// by most recent creation. Category match is mandatory: cross-category
// proximity never counts. The result is advisory; the engine never blocks
// creation on it. A nil match means no duplicate.
func (e *Engine) FindDuplicate(ctx context.Context, category models.IssueCategory, lat, lon, thresholdMeters float64) (*DuplicateMatch, error) {
	if !models.ValidCategory(string(category)) {
		return nil, &ValidationError{Field: "category", Reason: "unknown category"}
	}
	if !ValidCoordinates(lat, lon) {
		return nil, &ValidationError{Field: "coordinates", Reason: "latitude/longitude out of range"}
	}
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultDuplicateThresholdMeters
	}

	candidates, err := e.issues.OpenIssuesByCategory(ctx, category)
	if err != nil {
		return nil, &DependencyError{Op: "scan open issues", Err: err, Retryable: true}
	}

	var best *DuplicateMatch
	for i := range candidates {
		cand := &candidates[i]
		if !cand.HasCoordinates() {
			continue
		}

		d := distanceMeters(lat, lon, *cand.Latitude, *cand.Longitude)
		if d > thresholdMeters {
			continue
		}

		if best == nil || d < best.DistanceMeters ||
			(d == best.DistanceMeters && cand.CreatedAt.After(best.Issue.CreatedAt)) {
			best = &DuplicateMatch{Issue: *cand, DistanceMeters: d}
		}
	}

	return best, nil
}
