package geo

// CoveringSet computes the set of cells whose union covers region: the
// region's center cell alone if the region cannot reach past its parent's
// bounding box, otherwise the center cell plus same-level neighbors that
// the region's circle actually intersects.
//
// Order is [center_cell, neighbors by ascending id], giving the walk a
// deterministic covering-cell iteration order.
func CoveringSet(region SearchRegion) []Cell {
	center := CellFromRegion(region)

	if center.Level == 0 {
		return []Cell{center}
	}

	parent := Parent(center)
	if NearestBoundaryDistance(region, parent) > region.RadiusM {
		return []Cell{center}
	}

	set := []Cell{center}
	for _, n := range Neighbors(center) {
		if Intersects(region, n) {
			set = append(set, n)
		}
	}
	return set
}
