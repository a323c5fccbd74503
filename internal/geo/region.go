// Package geo implements the S2-cell geometry adapter and the region model
// the search engine walks over.
package geo

// SearchRegion is the circular area a client asks about: a center point and
// a radius in meters. Values are clamped on construction so downstream code
// never has to re-validate them.
type SearchRegion struct {
	Lat     float64
	Lon     float64
	RadiusM float64
}

// NewSearchRegion clamps lat to [-90,90], lon to [-180,180], and radius to
// [0,1000] meters.
func NewSearchRegion(lat, lon, radiusM float64) SearchRegion {
	return SearchRegion{
		Lat:     clamp(lat, -90, 90),
		Lon:     clamp(lon, -180, 180),
		RadiusM: clamp(radiusM, 0, 1000),
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Cell bundles the S2 identifiers the rest of the engine needs, so callers
// never touch s2.CellID directly outside this package.
type Cell struct {
	ID        uint64
	Token     string
	Level     int
	CenterLat float64
	CenterLon float64
}

// CellBounds is an axis-aligned lat/lon box approximating a Cell, used only
// to decide whether a search region crosses into a neighboring cell.
type CellBounds struct {
	LatMin, LonMin, LatMax, LonMax float64
}
