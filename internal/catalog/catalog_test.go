package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodmap/internal/raster"
	"floodmap/pkg/geometry"
)

func day(d int) time.Time {
	return time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
}

func testScene(id string, acquired time.Time, mode, orbit string, footprint geometry.Rect, bands ...string) Scene {
	grid := raster.GridForRegion(footprint, 10, "")
	return Scene{
		ID:        id,
		Acquired:  acquired,
		Mode:      mode,
		Orbit:     orbit,
		Footprint: geometry.FromRect(footprint),
		Bands:     bands,
		Load: func() (*raster.Raster, error) {
			made := make([]raster.Band, len(bands))
			for i, name := range bands {
				made[i] = raster.NewConstBand(name, grid.Size(), float64(i+1))
			}
			return raster.New(grid, made...)
		},
	}
}

func testCollection() Collection {
	extent := geometry.NewRect(0, 0, 1000, 1000)
	far := geometry.NewRect(50000, 50000, 1000, 1000)
	return NewCollection([]Scene{
		testScene("s1", day(1), "IW", "DESCENDING", extent, "VV", "VH"),
		testScene("s2", day(5), "IW", "ASCENDING", extent, "VV", "VH"),
		testScene("s3", day(9), "EW", "DESCENDING", extent, "VV"),
		testScene("s4", day(5), "IW", "DESCENDING", far, "VV", "VH"),
	})
}

func TestCollection_FilterDate(t *testing.T) {
	c := testCollection()

	// Half-open interval: the end day is excluded.
	got := c.FilterDate(day(1), day(5))
	require.Equal(t, 1, got.Size())
	assert.Equal(t, "s1", got.Scenes()[0].ID)

	assert.Equal(t, 3, c.FilterDate(day(1), day(6)).Size())
	assert.Equal(t, 0, c.FilterDate(day(20), day(30)).Size())
}

func TestCollection_FilterBounds(t *testing.T) {
	c := testCollection()

	near := geometry.FromRect(geometry.NewRect(500, 500, 1000, 1000))
	got := c.FilterBounds(near)
	require.Equal(t, 3, got.Size())
	for _, s := range got.Scenes() {
		assert.NotEqual(t, "s4", s.ID)
	}

	// Touching extents without overlapping area are excluded.
	adjacent := geometry.FromRect(geometry.NewRect(1000, 0, 500, 500))
	assert.Equal(t, 0, c.FilterBounds(adjacent).Size())
}

func TestCollection_FilterModeOrbitBands(t *testing.T) {
	c := testCollection()

	assert.Equal(t, 3, c.FilterMode("IW").Size())
	assert.Equal(t, 3, c.FilterOrbit("DESCENDING").Size())
	assert.Equal(t, 3, c.FilterBands("VV", "VH").Size())

	chained := c.FilterMode("IW").FilterOrbit("DESCENDING").FilterBands("VV", "VH")
	require.Equal(t, 2, chained.Size())

	// The source collection is untouched.
	assert.Equal(t, 4, c.Size())
}

func TestCollection_LoadAll(t *testing.T) {
	c := testCollection().FilterBands("VV", "VH").FilterMode("IW").FilterOrbit("DESCENDING")
	grid := raster.GridForRegion(geometry.NewRect(0, 0, 1000, 1000), 10, "")

	rasters, err := c.LoadAll(grid, "VV")
	require.NoError(t, err)
	require.Len(t, rasters, 2)
	for _, r := range rasters {
		assert.Equal(t, []string{"VV"}, r.BandNames())
		assert.True(t, r.Grid().Equal(grid))
	}

	_, err = c.LoadAll(grid, "B99")
	assert.Error(t, err)
}
