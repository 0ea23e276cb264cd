package series

import (
	"tidycensus/pkg/census"
	"tidycensus/pkg/geom"
)

// WeightResult carries the sparse weight matrix plus the per-unit problems
// encountered while building it. Geometry errors are collected, not raised:
// one bad tract must not abort reconciliation of a whole state.
type WeightResult struct {
	Entries []census.WeightEntry
	// Degenerate lists source units skipped for zero-area or invalid geometry.
	Degenerate []census.DegenerateGeometryError
	// Unmatched lists source units with nonzero area but no intersecting
	// target unit; their values cannot be redistributed anywhere and the
	// conservation validator will surface the shortfall.
	Unmatched []string
}

// Identity reports whether every entry maps a unit onto itself with weight 1.
func (r WeightResult) Identity() bool {
	for _, e := range r.Entries {
		if e.SourceID != e.TargetID || e.Weight != 1 {
			return false
		}
	}
	return len(r.Entries) > 0
}

// ComputeWeights builds the areal weight matrix from source onto target.
//
// When both partitions cover the same unit identifiers the weighting is the
// identity: each unit maps to itself with weight 1. This is the common case
// for geographies stable over time and is detected up front, both for speed
// and to keep stable values bit-exact instead of accumulating overlay noise.
//
// Otherwise every source/target pair whose bounding boxes overlap is
// intersected and weighted by intersection area over source area. Both
// partitions must already be in one shared equal-area projected CRS; the
// caller (the aligner) projects before invoking this.
func ComputeWeights(source, target census.Partition) WeightResult {
	var res WeightResult
	if source.SameUnits(target) {
		for _, id := range source.IDs() {
			res.Entries = append(res.Entries, census.WeightEntry{SourceID: id, TargetID: id, Weight: 1})
		}
		return res
	}

	targetIDs := target.IDs()
	targetBounds := make(map[string]geom.Bounds, len(targetIDs))
	for _, id := range targetIDs {
		targetBounds[id] = target.Units[id].Geometry.Bounds()
	}

	for _, sid := range source.IDs() {
		su := source.Units[sid]
		if su.Geometry.IsEmpty() {
			res.Degenerate = append(res.Degenerate, census.DegenerateGeometryError{
				UnitID: sid, Year: su.Year, Reason: "empty geometry",
			})
			continue
		}
		srcArea := su.Geometry.Area()
		if srcArea <= 0 {
			res.Degenerate = append(res.Degenerate, census.DegenerateGeometryError{
				UnitID: sid, Year: su.Year, Reason: "zero area",
			})
			continue
		}
		sb := su.Geometry.Bounds()
		matched := false
		var overlayErr error
		for _, tid := range targetIDs {
			if !sb.Intersects(targetBounds[tid]) {
				continue
			}
			shared, err := geom.IntersectionArea(su.Geometry, target.Units[tid].Geometry)
			if err != nil {
				if overlayErr == nil {
					overlayErr = err
				}
				continue
			}
			if shared <= 0 {
				continue
			}
			res.Entries = append(res.Entries, census.WeightEntry{
				SourceID: sid,
				TargetID: tid,
				Weight:   shared / srcArea,
			})
			matched = true
		}
		// One diagnostic per unit: an overlay failure is reported once, and
		// a unit already reported degenerate is not also listed unmatched.
		if overlayErr != nil {
			res.Degenerate = append(res.Degenerate, census.DegenerateGeometryError{
				UnitID: sid, Year: su.Year, Reason: overlayErr.Error(),
			})
			continue
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, sid)
		}
	}
	return res
}
