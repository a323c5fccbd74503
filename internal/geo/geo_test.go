package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSearchRegionClamps(t *testing.T) {
	r := NewSearchRegion(100, 200, 5000)
	assert.Equal(t, 90.0, r.Lat)
	assert.Equal(t, 180.0, r.Lon)
	assert.Equal(t, 1000.0, r.RadiusM)

	r2 := NewSearchRegion(-100, -200, -5)
	assert.Equal(t, -90.0, r2.Lat)
	assert.Equal(t, -180.0, r2.Lon)
	assert.Equal(t, 0.0, r2.RadiusM)
}

// Property 1: cell_from_region returns a level L with D(L) >= 2r and
// (if L<24) D(L+1) < 2r, subject to saturation.
func TestCellFromRegionLevelSaturatesCorrectly(t *testing.T) {
	cases := []struct {
		radius float64
	}{{0}, {1}, {50}, {300}, {600}, {1000}, {50000}}

	for _, c := range cases {
		region := NewSearchRegion(38.9, -77.0, c.radius)
		cell := CellFromRegion(region)

		diameter := 2 * region.RadiusM
		if region.RadiusM <= 0 {
			assert.Equal(t, MaxS2Level, cell.Level)
			continue
		}

		assert.GreaterOrEqual(t, LevelToDiameter[cell.Level], diameter,
			"level %d diameter must cover 2*radius=%v", cell.Level, diameter)
		if cell.Level < MaxS2Level {
			assert.Less(t, LevelToDiameter[cell.Level+1], diameter,
				"level %d+1 should be too fine to cover 2*radius=%v", cell.Level, diameter)
		}
	}
}

func TestScenarioAPointQueryLevel(t *testing.T) {
	region := NewSearchRegion(38.826589169752516, -77.30255757609915, 300)
	cell := CellFromRegion(region)
	// 2*300 = 600: D(14)=610 covers it, D(15)=305 does not.
	assert.Equal(t, 14, cell.Level)
}

// Property 2: haversine symmetry, identity, rough triangle inequality.
func TestHaversineSymmetryAndIdentity(t *testing.T) {
	a := []float64{38.9072, -77.0369}
	b := []float64{40.7128, -74.0060}

	assert.InDelta(t, Haversine(a[0], a[1], b[0], b[1]), Haversine(b[0], b[1], a[0], a[1]), 1e-6)
	assert.InDelta(t, 0, Haversine(a[0], a[1], a[0], a[1]), 1e-6)
}

func TestScenarioBHaversineSanity(t *testing.T) {
	d := Haversine(38.9072, -77.0369, 40.7128, -74.0060)
	assert.Greater(t, d, 320000.0)
	assert.Less(t, d, 340000.0)
}

func TestScenarioCAntipode(t *testing.T) {
	d := Haversine(0, 0, 0, 180)
	assert.InDelta(t, math.Pi*earthRadiusMeters, d, 1000)
}

// Property 3: parent(child_i(C)) = C for all children.
func TestParentChildRoundTrip(t *testing.T) {
	region := NewSearchRegion(38.9, -77.0, 200)
	cell := CellFromRegion(region)
	require.Less(t, cell.Level, MaxS2Level)

	kids := Children(cell)
	for _, k := range kids {
		p := Parent(k)
		assert.Equal(t, cell.ID, p.ID)
	}
}

func TestChildrenAreDistinctAndOneLevelFiner(t *testing.T) {
	region := NewSearchRegion(38.9, -77.0, 200)
	cell := CellFromRegion(region)
	kids := Children(cell)

	seen := map[uint64]bool{}
	for _, k := range kids {
		assert.Equal(t, cell.Level+1, k.Level)
		assert.False(t, seen[k.ID], "duplicate child id")
		seen[k.ID] = true
	}
	assert.Len(t, seen, 4)
}

func TestNeighborsAreSameLevelAndExcludeSelf(t *testing.T) {
	region := NewSearchRegion(38.9, -77.0, 200)
	cell := CellFromRegion(region)
	neighbors := Neighbors(cell)

	assert.LessOrEqual(t, len(neighbors), 8)
	for _, n := range neighbors {
		assert.Equal(t, cell.Level, n.Level)
		assert.NotEqual(t, cell.ID, n.ID)
	}
}

func TestIntersectsCenterCellContainsOwnCenter(t *testing.T) {
	region := NewSearchRegion(38.9, -77.0, 10)
	cell := CellFromRegion(region)
	assert.True(t, Intersects(region, cell))
}
