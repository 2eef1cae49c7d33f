package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodmap/pkg/geometry"
)

func testGrid(w, h int) Grid {
	return GridForRegion(geometry.NewRect(0, 0, float64(w)*10, float64(h)*10), 10, "EPSG:32633")
}

func TestGridForRegion(t *testing.T) {
	g := GridForRegion(geometry.NewRect(100, 200, 2000, 1000), 10, "EPSG:32633")

	assert.Equal(t, 200, g.Width)
	assert.Equal(t, 100, g.Height)
	assert.Equal(t, geometry.Point2D{X: 100, Y: 1200}, g.Origin)
	assert.Equal(t, 100.0, g.PixelArea())

	b := g.Bounds()
	assert.Equal(t, 100.0, b.X)
	assert.Equal(t, 200.0, b.Y)
	assert.Equal(t, 2000.0, b.Width)
	assert.Equal(t, 1000.0, b.Height)
}

func TestGrid_PixelRoundTrip(t *testing.T) {
	g := testGrid(20, 10)

	for _, tc := range []struct{ x, y int }{{0, 0}, {19, 9}, {7, 3}} {
		px, py, ok := g.PixelAt(g.PixelCenter(tc.x, tc.y))
		require.True(t, ok)
		assert.Equal(t, tc.x, px)
		assert.Equal(t, tc.y, py)
	}

	_, _, ok := g.PixelAt(geometry.Point2D{X: -5, Y: 50})
	assert.False(t, ok)
}

func TestGrid_PixelAt_RejectsPointsJustOutside(t *testing.T) {
	g := testGrid(20, 10)

	// Points within one pixel width of the west and north edges must not
	// truncate into column or row 0.
	for _, p := range []geometry.Point2D{
		{X: -0.5, Y: 50},
		{X: 100, Y: 100.5},
		{X: -0.5, Y: 100.5},
	} {
		_, _, ok := g.PixelAt(p)
		assert.False(t, ok, "point %+v lies outside the grid", p)
	}

	// The east and south boundary coordinates belong to no pixel.
	_, _, ok := g.PixelAt(geometry.Point2D{X: 200, Y: 50})
	assert.False(t, ok)
	_, _, ok = g.PixelAt(geometry.Point2D{X: 100, Y: 0})
	assert.False(t, ok)

	// Interior corners of the edge pixels still resolve.
	x, y, ok := g.PixelAt(geometry.Point2D{X: 0.5, Y: 99.5})
	require.True(t, ok)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestNew_RejectsBadBands(t *testing.T) {
	g := testGrid(4, 4)

	_, err := New(g, NewBand("a", 3))
	assert.Error(t, err)

	_, err = New(g, NewConstBand("a", g.Size(), 1), NewConstBand("a", g.Size(), 2))
	assert.Error(t, err)
}

func TestRaster_SelectAndConcat(t *testing.T) {
	g := testGrid(4, 4)
	a, err := New(g, NewConstBand("VV", g.Size(), -12), NewConstBand("VH", g.Size(), -19))
	require.NoError(t, err)
	b, err := New(g, NewConstBand("B8", g.Size(), 0.3))
	require.NoError(t, err)

	sel, err := a.Select("VH")
	require.NoError(t, err)
	assert.Equal(t, []string{"VH"}, sel.BandNames())

	_, err = a.Select("B99")
	assert.Error(t, err)

	stacked, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"VV", "VH", "B8"}, stacked.BandNames())

	other, err := New(testGrid(5, 5), NewConstBand("B8", 25, 0.3))
	require.NoError(t, err)
	_, err = Concat(a, other)
	assert.Error(t, err)
}

func TestRatio(t *testing.T) {
	num := NewBand("n", 4)
	den := NewBand("d", 4)
	num.Set(0, 10)
	den.Set(0, 4)
	num.Set(1, 10) // denominator masked
	num.Set(2, 10) // denominator zero
	den.Set(2, 0)

	r, err := Ratio("ratio", num, den)
	require.NoError(t, err)

	v, ok := r.Value(0)
	require.True(t, ok)
	assert.InDelta(t, 2.5, v, 1e-12)
	assert.False(t, r.Valid(1))
	assert.False(t, r.Valid(2))
	assert.False(t, r.Valid(3))
}

func TestRaster_Clip(t *testing.T) {
	g := testGrid(10, 10)
	r, err := New(g, NewConstBand("v", g.Size(), 1))
	require.NoError(t, err)

	// Left half of the extent.
	region := geometry.FromRect(geometry.NewRect(0, 0, 50, 100))
	clipped := r.Clip(region)
	band, _ := clipped.Band("v")

	inside := 0
	for i := 0; i < g.Size(); i++ {
		if band.Valid(i) {
			inside++
		}
	}
	assert.Equal(t, 50, inside)

	// The original raster is untouched.
	orig, _ := r.Band("v")
	for i := 0; i < g.Size(); i++ {
		assert.True(t, orig.Valid(i))
	}
}

func TestMedian(t *testing.T) {
	g := testGrid(2, 1)

	mk := func(values ...float64) *Raster {
		b := NewBand("v", g.Size())
		for i, v := range values {
			b.Set(i, v)
		}
		r, err := New(g, b)
		require.NoError(t, err)
		return r
	}

	// Odd observation count: middle value.
	med, err := Median([]*Raster{mk(1, 10), mk(5, 20), mk(3, 90)})
	require.NoError(t, err)
	band, _ := med.Band("v")
	v0, _ := band.Value(0)
	v1, _ := band.Value(1)
	assert.InDelta(t, 3, v0, 1e-12)
	assert.InDelta(t, 20, v1, 1e-12)

	// Even count: mean of the two middle values.
	med, err = Median([]*Raster{mk(1, 1), mk(2, 2), mk(3, 3), mk(10, 10)})
	require.NoError(t, err)
	band, _ = med.Band("v")
	v0, _ = band.Value(0)
	assert.InDelta(t, 2.5, v0, 1e-12)
}

func TestMedian_SkipsMaskedObservations(t *testing.T) {
	g := testGrid(1, 1)

	withValue := NewBand("v", 1)
	withValue.Set(0, 7)
	masked := NewBand("v", 1)

	a, err := New(g, withValue)
	require.NoError(t, err)
	b, err := New(g, masked)
	require.NoError(t, err)

	med, err := Median([]*Raster{a, b})
	require.NoError(t, err)
	band, _ := med.Band("v")
	v, ok := band.Value(0)
	require.True(t, ok)
	assert.InDelta(t, 7, v, 1e-12)

	// No valid observation at all leaves the pixel masked.
	med, err = Median([]*Raster{b})
	require.NoError(t, err)
	band, _ = med.Band("v")
	assert.False(t, band.Valid(0))
}

func TestResample_NearestNeighbor(t *testing.T) {
	src := testGrid(2, 2)
	b := NewBand("v", src.Size())
	for i := 0; i < src.Size(); i++ {
		b.Set(i, float64(i))
	}
	r, err := New(src, b)
	require.NoError(t, err)

	// Same extent at half the pixel size: each source pixel covers 2×2
	// target pixels.
	target := GridForRegion(src.Bounds(), 5, src.CRS)
	res := r.Resample(target)
	require.Equal(t, 16, res.Grid().Size())

	rb, _ := res.Band("v")
	v, ok := rb.Value(0)
	require.True(t, ok)
	assert.InDelta(t, 0, v, 1e-12)
	v, _ = rb.Value(3)
	assert.InDelta(t, 1, v, 1e-12)
	v, _ = rb.Value(15)
	assert.InDelta(t, 3, v, 1e-12)
}
