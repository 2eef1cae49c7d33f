package postfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodmap/internal/classify"
	"floodmap/internal/raster"
	"floodmap/internal/terrain"
	"floodmap/pkg/geometry"
)

func testGrid() raster.Grid {
	return raster.GridForRegion(geometry.NewRect(0, 0, 200, 200), 10, "")
}

// classifiedRaster builds a 20×20 "class" raster with the given flood
// pixels set to 1 and everything else 0.
func classifiedRaster(t *testing.T, flooded ...int) *raster.Raster {
	t.Helper()
	g := testGrid()
	b := raster.NewConstBand(classify.ClassBand, g.Size(), 0)
	for _, i := range flooded {
		b.Set(i, 1)
	}
	r, err := raster.New(g, b)
	require.NoError(t, err)
	return r
}

func slopeRaster(t *testing.T, degrees float64) *raster.Raster {
	t.Helper()
	g := testGrid()
	r, err := raster.New(g, raster.NewConstBand(terrain.SlopeBand, g.Size(), degrees))
	require.NoError(t, err)
	return r
}

// blob returns the linear indices of an 8-connected block of n pixels
// starting at (x, y), filling row by row w pixels wide.
func blob(g raster.Grid, x, y, w, n int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, (y+i/w)*g.Width+(x+i%w))
	}
	return out
}

func floodValue(t *testing.T, r *raster.Raster, idx int) float64 {
	t.Helper()
	b, ok := r.Band(FloodBand)
	require.True(t, ok)
	v, valid := b.Value(idx)
	require.True(t, valid)
	return v
}

func TestApply_IsolatedPixelRemoved(t *testing.T) {
	g := testGrid()
	idx := 10*g.Width + 10
	classified := classifiedRaster(t, idx)

	out, err := Apply(classified, slopeRaster(t, 0), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 0.0, floodValue(t, out, idx))
}

func TestApply_LargePatchKept(t *testing.T) {
	g := testGrid()
	patch := blob(g, 5, 5, 5, 10)
	classified := classifiedRaster(t, patch...)

	out, err := Apply(classified, slopeRaster(t, 0), DefaultOptions())
	require.NoError(t, err)

	for _, idx := range patch {
		assert.Equal(t, 1.0, floodValue(t, out, idx))
	}
	// Non-flood pixels remain 0, not masked.
	assert.Equal(t, 0.0, floodValue(t, out, 0))
}

func TestApply_PatchExactlyAtThreshold(t *testing.T) {
	g := testGrid()
	patch := blob(g, 5, 5, 4, 8)
	classified := classifiedRaster(t, patch...)

	opts := DefaultOptions() // minimum 8 pixels
	out, err := Apply(classified, slopeRaster(t, 0), opts)
	require.NoError(t, err)

	for _, idx := range patch {
		assert.Equal(t, 1.0, floodValue(t, out, idx))
	}
}

func TestApply_DiagonalConnectivityCounts(t *testing.T) {
	g := testGrid()
	// A diagonal staircase of 8 pixels is one 8-connected patch.
	patch := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		patch = append(patch, (5+i)*g.Width+(5+i))
	}
	classified := classifiedRaster(t, patch...)

	out, err := Apply(classified, slopeRaster(t, 0), DefaultOptions())
	require.NoError(t, err)

	for _, idx := range patch {
		assert.Equal(t, 1.0, floodValue(t, out, idx))
	}
}

func TestApply_SlopeWinsOverLargePatch(t *testing.T) {
	g := testGrid()
	patch := blob(g, 5, 5, 5, 20)
	classified := classifiedRaster(t, patch...)

	out, err := Apply(classified, slopeRaster(t, 10), DefaultOptions())
	require.NoError(t, err)

	for _, idx := range patch {
		assert.Equal(t, 0.0, floodValue(t, out, idx))
	}
}

func TestApply_ZeroMinPatchSkipsTheRule(t *testing.T) {
	g := testGrid()
	idx := 10*g.Width + 10
	classified := classifiedRaster(t, idx)

	opts := DefaultOptions()
	opts.MinPatchPixels = 0
	out, err := Apply(classified, slopeRaster(t, 0), opts)
	require.NoError(t, err)

	assert.Equal(t, 1.0, floodValue(t, out, idx))
}

func TestApply_MaskedClassificationStaysMasked(t *testing.T) {
	g := testGrid()
	classified := classifiedRaster(t)
	band, _ := classified.Band(classify.ClassBand)
	band.Mask(3)

	out, err := Apply(classified, slopeRaster(t, 0), DefaultOptions())
	require.NoError(t, err)

	fb, _ := out.Band(FloodBand)
	assert.False(t, fb.Valid(3))
}

func TestApply_MissingSlopeExcludes(t *testing.T) {
	g := testGrid()
	patch := blob(g, 5, 5, 5, 10)
	classified := classifiedRaster(t, patch...)

	slope := slopeRaster(t, 0)
	sb, _ := slope.Band(terrain.SlopeBand)
	sb.Mask(patch[0])

	out, err := Apply(classified, slope, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 0.0, floodValue(t, out, patch[0]))
	assert.Equal(t, 1.0, floodValue(t, out, patch[1]))
}

func TestApply_OptionValidation(t *testing.T) {
	classified := classifiedRaster(t)
	slope := slopeRaster(t, 0)

	bad := DefaultOptions()
	bad.SlopeThreshold = 45
	_, err := Apply(classified, slope, bad)
	assert.Error(t, err)

	bad = DefaultOptions()
	bad.MinPatchPixels = 60
	_, err = Apply(classified, slope, bad)
	assert.Error(t, err)
}
