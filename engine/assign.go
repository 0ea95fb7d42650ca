package engine

import (
	"context"

	"civicgrid-be/models"
)

// AssignNearestAuthority picks the closest active authority account in
// the given department. Candidates without a last-known location cannot
// be ranked and are skipped; distance ties break by ascending account id
// so the result is reproducible. An empty pool yields (nil, nil): the
// issue stays unassigned rather than being mis-routed across departments.
func (e *Engine) AssignNearestAuthority(ctx context.Context, department models.Department, lat, lon float64) (*models.User, error) {
	if !ValidCoordinates(lat, lon) {
		return nil, &ValidationError{Field: "coordinates", Reason: "latitude/longitude out of range"}
	}

	candidates, err := e.authorities.ActiveAuthorities(ctx, department)
	if err != nil {
		return nil, &DependencyError{Op: "scan authorities", Err: err, Retryable: true}
	}

	var (
		best     *models.User
		bestDist float64
	)
	for i := range candidates {
		cand := &candidates[i]
		if !cand.HasCoordinates() {
			continue
		}

		d := distanceMeters(lat, lon, *cand.Latitude, *cand.Longitude)
		if best == nil || d < bestDist ||
			(d == bestDist && cand.ID.Hex() < best.ID.Hex()) {
			best = cand
			bestDist = d
		}
	}

	if best != nil {
		e.log.Debugw("authority assigned",
			"department", department, "authority", best.ID.Hex(), "distance_m", bestDist)
	}
	return best, nil
}
