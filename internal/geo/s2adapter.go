package geo

import (
	"math"
	"sort"

	"github.com/golang/geo/s2"
)

// MinS2Level and MaxS2Level bound the S2 levels this adapter will ever
// choose or walk into. Levels outside this band are too coarse or too fine
// for a places-of-interest search.
const (
	MinS2Level = 10
	MaxS2Level = 24

	earthRadiusMeters  = 6371000.0
	metersPerDegreeLat = 111320.0
)

// LevelToDiameter is the fixed level->approximate-cell-diameter (meters)
// table used to pick a search level from a radius.
var LevelToDiameter = map[int]float64{
	10: 9766, 11: 4883, 12: 2441, 13: 1220, 14: 610,
	15: 305, 16: 153, 17: 76, 18: 38, 19: 19,
	20: 9.5, 21: 4.8, 22: 2.4, 23: 1.2, 24: 0.6,
}

// RadiusToLevel returns the largest (finest) level L such that
// LevelToDiameter[L] >= 2*radiusM, found by binary search over
// [MinS2Level, MaxS2Level]. radiusM <= 0 saturates to MaxS2Level; a radius
// too large for every level saturates to MinS2Level.
func RadiusToLevel(radiusM float64) int {
	if radiusM <= 0 {
		return MaxS2Level
	}
	diameter := radiusM * 2

	left, right := MinS2Level, MaxS2Level
	for left < right {
		mid := (left + right + 1) / 2
		if LevelToDiameter[mid] >= diameter {
			left = mid
		} else {
			right = mid - 1
		}
	}
	return left
}

// CellFromRegion returns the Cell at the level RadiusToLevel(region.RadiusM)
// selects, centered on the S2 cell containing (region.Lat, region.Lon).
func CellFromRegion(region SearchRegion) Cell {
	level := RadiusToLevel(region.RadiusM)
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(region.Lat, region.Lon)).Parent(level)
	return cellFromID(id)
}

func cellFromID(id s2.CellID) Cell {
	ll := id.LatLng()
	return Cell{
		ID:        uint64(id),
		Token:     id.ToToken(),
		Level:     id.Level(),
		CenterLat: ll.Lat.Degrees(),
		CenterLon: ll.Lng.Degrees(),
	}
}

// CellFromToken reconstructs a Cell from its cache-key token.
func CellFromToken(token string) Cell {
	return cellFromID(s2.CellIDFromToken(token))
}

// Parent returns the cell one level coarser than c. Calling Parent on a
// level-0 cell is a programmer error and is not guarded against, matching
// the adapter's "cells are always derived from a clamped region" invariant.
func Parent(c Cell) Cell {
	return cellFromID(s2.CellID(c.ID).Parent(c.Level - 1))
}

// Children returns the 4 cells one level finer than c, in ascending S2 id
// order, giving the walk a deterministic recursion order.
func Children(c Cell) [4]Cell {
	kids := s2.CellID(c.ID).Children()
	var out [4]Cell
	for i, k := range kids {
		out[i] = cellFromID(k)
	}
	return out
}

// Neighbors returns the up-to-8 edge+corner same-level neighbors of c,
// sorted by ascending S2 id for deterministic covering-set iteration.
func Neighbors(c Cell) []Cell {
	ids := s2.CellID(c.ID).AllNeighbors(s2.CellID(c.ID).Level())
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Cell, 0, len(ids))
	seen := make(map[s2.CellID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, cellFromID(id))
	}
	return out
}

// Bounds approximates c's extent as a lat/lon box, using the level-diameter
// table and a simple meters-per-degree conversion. Precision is acceptable
// here because callers only use it for a coverage decision, not geometry.
func Bounds(c Cell) CellBounds {
	half := LevelToDiameter[c.Level] / 2
	dLat := half / metersPerDegreeLat
	dLon := half / (metersPerDegreeLat * math.Cos(radians(c.CenterLat)))

	return CellBounds{
		LatMin: c.CenterLat - dLat,
		LonMin: c.CenterLon - dLon,
		LatMax: c.CenterLat + dLat,
		LonMax: c.CenterLon + dLon,
	}
}

// Haversine returns the great-circle distance in meters between two lat/lon
// points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := phi2 - phi1
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return earthRadiusMeters * 2 * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Intersects reports whether region's circle reaches into cell: the region
// center clamped to cell's bounding box, measured by Haversine distance from
// the unclamped center, must be within region.RadiusM.
func Intersects(region SearchRegion, cell Cell) bool {
	bounds := Bounds(cell)
	closestLat := clamp(region.Lat, bounds.LatMin, bounds.LatMax)
	closestLon := clamp(region.Lon, bounds.LonMin, bounds.LonMax)

	return Haversine(region.Lat, region.Lon, closestLat, closestLon) <= region.RadiusM
}

// NearestBoundaryDistance returns the Haversine distance from region's
// center to the nearest edge of cell's bounding box. For a center inside the
// box this is the shortest of the four distances to its edges, so a value
// greater than region.RadiusM means the region cannot reach past the box;
// for a center outside the box it is the distance to the box's closest point.
func NearestBoundaryDistance(region SearchRegion, cell Cell) float64 {
	bounds := Bounds(cell)
	inside := region.Lat >= bounds.LatMin && region.Lat <= bounds.LatMax &&
		region.Lon >= bounds.LonMin && region.Lon <= bounds.LonMax
	if !inside {
		closestLat := clamp(region.Lat, bounds.LatMin, bounds.LatMax)
		closestLon := clamp(region.Lon, bounds.LonMin, bounds.LonMax)
		return Haversine(region.Lat, region.Lon, closestLat, closestLon)
	}
	return math.Min(
		math.Min(Haversine(region.Lat, region.Lon, bounds.LatMin, region.Lon),
			Haversine(region.Lat, region.Lon, bounds.LatMax, region.Lon)),
		math.Min(Haversine(region.Lat, region.Lon, region.Lat, bounds.LonMin),
			Haversine(region.Lat, region.Lon, region.Lat, bounds.LonMax)),
	)
}
