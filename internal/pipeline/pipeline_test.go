package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodmap/internal/catalog"
	"floodmap/internal/composite"
	"floodmap/internal/observability"
	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
	"floodmap/pkg/geometry"
)

// fakeCatalog serves in-memory collections.
type fakeCatalog struct {
	collections map[string]catalog.Collection
}

func (c *fakeCatalog) Collection(id string) (catalog.Collection, error) {
	col, ok := c.collections[id]
	if !ok {
		return catalog.Collection{}, fmt.Errorf("unknown collection %q", id)
	}
	return col, nil
}

// The synthetic scenario: a 2 km × 2 km flat area whose western half is
// flooded. Radar backscatter and optical reflectance are both perfectly
// separable across the divide.
var (
	testRegion   = geometry.FromRect(geometry.NewRect(0, 0, 2000, 2000))
	floodDivideX = 1000.0
	testWindow   = composite.TimeWindow{
		Start: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	}
)

func sceneGrid() raster.Grid {
	return raster.GridForRegion(testRegion.Bounds(), 10, "")
}

// halfBand fills a band with west everywhere left of the flood divide and
// east elsewhere.
func halfBand(g raster.Grid, name string, west, east float64) raster.Band {
	b := raster.NewBand(name, g.Size())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := east
			if g.PixelCenter(x, y).X < floodDivideX {
				v = west
			}
			b.Set(y*g.Width+x, v)
		}
	}
	return b
}

func radarScene(id string, day int) catalog.Scene {
	g := sceneGrid()
	return catalog.Scene{
		ID:        id,
		Acquired:  time.Date(2023, 5, day, 0, 0, 0, 0, time.UTC),
		Mode:      "IW",
		Orbit:     "DESCENDING",
		Footprint: testRegion,
		Bands:     []string{"VV", "VH"},
		Load: func() (*raster.Raster, error) {
			return raster.New(g,
				halfBand(g, "VV", -22, -8),
				halfBand(g, "VH", -30, -16))
		},
	}
}

func opticalScene(id string, day int) catalog.Scene {
	g := sceneGrid()
	names := []string{"B2", "B3", "B4", "B8", "B11", "B12", "QA60"}
	return catalog.Scene{
		ID:        id,
		Acquired:  time.Date(2023, 5, day, 0, 0, 0, 0, time.UTC),
		Footprint: testRegion,
		Bands:     names,
		Load: func() (*raster.Raster, error) {
			bands := []raster.Band{
				halfBand(g, "B2", 400, 900),
				halfBand(g, "B3", 500, 1100),
				halfBand(g, "B4", 300, 1200),
				halfBand(g, "B8", 500, 3000),
				halfBand(g, "B11", 200, 2200),
				halfBand(g, "B12", 150, 1900),
				raster.NewConstBand("QA60", g.Size(), 0),
			}
			return raster.New(g, bands...)
		},
	}
}

func demScene(id string) catalog.Scene {
	g := sceneGrid()
	return catalog.Scene{
		ID:        id,
		Acquired:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Footprint: testRegion,
		Bands:     []string{"elevation"},
		Load: func() (*raster.Raster, error) {
			return raster.New(g, raster.NewConstBand("elevation", g.Size(), 85))
		},
	}
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{collections: map[string]catalog.Collection{
		"sentinel1": catalog.NewCollection([]catalog.Scene{
			radarScene("s1a", 5), radarScene("s1b", 17),
		}),
		"sentinel2": catalog.NewCollection([]catalog.Scene{
			opticalScene("s2a", 8), opticalScene("s2b", 20),
		}),
		"dem": catalog.NewCollection([]catalog.Scene{demScene("dem")}),
	}}
}

// writeTestPoints writes 40 labeled points, 20 per class, well away from
// the flood divide and the region border.
func writeTestPoints(t *testing.T) string {
	t.Helper()

	type feature struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]float64 `json:"properties"`
	}
	var fc struct {
		Type     string    `json:"type"`
		Features []feature `json:"features"`
	}
	fc.Type = "FeatureCollection"

	add := func(x, y float64, label int, fid int) {
		var f feature
		f.Geometry.Type = "Point"
		f.Geometry.Coordinates = []float64{x, y}
		f.Properties = map[string]float64{"flood": float64(label), "fid": float64(fid)}
		fc.Features = append(fc.Features, f)
	}
	for i := 0; i < 20; i++ {
		y := 150 + float64(i)*85
		add(200+float64(i%5)*120, y, 1, i)
		add(1200+float64(i%5)*150, y, 0, 20+i)
	}

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "points.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testParams(t *testing.T) Params {
	p := DefaultParams()
	p.Region = testRegion
	p.Window = testWindow
	p.RadarCollection = "sentinel1"
	p.OpticalCollection = "sentinel2"
	p.DEMCollection = "dem"
	p.PointsPath = writeTestPoints(t)
	p.LabelProperty = "flood"
	p.Trees = 50
	p.MinPatchPixels = 0
	return p
}

func testRunner(cat catalog.Catalog) *Runner {
	return NewRunner(cat, RunnerOptions{
		Clock:   clockwork.NewRealClock(),
		Metrics: observability.NewMetricsForTesting(),
	})
}

func TestRun_EndToEnd(t *testing.T) {
	runner := testRunner(testCatalog())

	res, err := runner.Run(context.Background(), testParams(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"VV", "VH", "ratio", "B2", "B3", "B4", "B8", "B11", "B12"}, res.StackBands)
	assert.Equal(t, 40, res.TrainingSamples+res.ValidationSamples)
	assert.Positive(t, res.TrainingSamples)
	assert.Positive(t, res.ValidationSamples)

	// Perfectly separable data: near-perfect validation accuracy.
	assert.GreaterOrEqual(t, res.Accuracy, 0.9)

	// The western half is flooded: 200 ha of the 400 ha region, within a
	// tolerance for speckle-filter blending along the divide.
	assert.InDelta(t, 200, res.FloodAreaHa, 15)
	assert.InDelta(t, 400, res.RegionAreaHa, 1e-9)

	require.Len(t, res.Layers, 3)
	assert.NotEmpty(t, res.Legend)
	assert.NoError(t, res.ExportErr)
}

func TestRun_IdenticalInputsReproduceResults(t *testing.T) {
	params := testParams(t)

	a, err := testRunner(testCatalog()).Run(context.Background(), params)
	require.NoError(t, err)
	b, err := testRunner(testCatalog()).Run(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, a.Confusion, b.Confusion)
	assert.Equal(t, a.Accuracy, b.Accuracy)
	assert.Equal(t, a.FloodAreaHa, b.FloodAreaHa)

	maskA, _ := a.Mask.Band(postfilter.FloodBand)
	maskB, _ := b.Mask.Band(postfilter.FloodBand)
	for i := 0; i < a.Mask.Grid().Size(); i++ {
		va, okA := maskA.Value(i)
		vb, okB := maskB.Value(i)
		require.Equal(t, okA, okB)
		require.Equal(t, va, vb)
	}
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	runner := testRunner(testCatalog())
	params := testParams(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	wg.Add(len(errs))
	for i := range errs {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = runner.Run(context.Background(), params)
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if err == ErrRunInFlight {
			rejected++
		} else {
			require.NoError(t, err)
		}
	}
	// At least one run went through, and runs never interleaved.
	assert.GreaterOrEqual(t, rejected, 1)
	assert.LessOrEqual(t, rejected, len(errs)-1)

	// The guard resets after completion.
	_, err := runner.Run(context.Background(), params)
	assert.NoError(t, err)
}

func TestRun_CanceledContext(t *testing.T) {
	runner := testRunner(testCatalog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, testParams(t))
	require.Error(t, err)
	assert.Equal(t, CategoryComputation, CategoryOf(err))
}

func TestRun_InputErrors(t *testing.T) {
	runner := testRunner(testCatalog())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty region", func(p *Params) { p.Region = geometry.Polygon{} }},
		{"inverted window", func(p *Params) { p.Window = composite.TimeWindow{Start: testWindow.End, End: testWindow.Start} }},
		{"missing points", func(p *Params) { p.PointsPath = "" }},
		{"missing label", func(p *Params) { p.LabelProperty = "" }},
		{"reserved label", func(p *Params) { p.LabelProperty = "fid" }},
		{"unknown label", func(p *Params) { p.LabelProperty = "depth" }},
		{"zero trees", func(p *Params) { p.Trees = 0 }},
		{"slope out of range", func(p *Params) { p.SlopeThreshold = 31 }},
		{"patch out of range", func(p *Params) { p.MinPatchPixels = 51 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams(t)
			tc.mutate(&params)

			_, err := runner.Run(context.Background(), params)
			require.Error(t, err)
			assert.Equal(t, CategoryInput, CategoryOf(err))
		})
	}
}

func TestRun_NoImageryIsDataAvailability(t *testing.T) {
	runner := testRunner(testCatalog())
	params := testParams(t)
	params.Window = composite.TimeWindow{
		Start: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := runner.Run(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, CategoryDataAvailability, CategoryOf(err))
}

func TestRun_PointsOutsideStackIsSamplingError(t *testing.T) {
	runner := testRunner(testCatalog())
	params := testParams(t)

	// All points far outside the region.
	var fc struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	fc.Type = "FeatureCollection"
	for i := 0; i < 5; i++ {
		fc.Features = append(fc.Features, map[string]any{
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{90000 + float64(i), 90000},
			},
			"properties": map[string]float64{"flood": 1},
		})
	}
	data, err := json.Marshal(fc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "far.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	params.PointsPath = path

	_, err = runner.Run(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, CategorySampling, CategoryOf(err))
}

func TestRun_FailedExportDoesNotDiscardResults(t *testing.T) {
	runner := testRunner(testCatalog())
	params := testParams(t)
	params.ExportPath = filepath.Join(t.TempDir(), "no", "such", "dir", "mask.tif")

	res, err := runner.Run(context.Background(), params)
	require.NoError(t, err)
	require.Error(t, res.ExportErr)
	assert.Equal(t, CategoryExport, CategoryOf(res.ExportErr))

	// Analysis figures survive the failed export.
	assert.GreaterOrEqual(t, res.Accuracy, 0.9)
	assert.Positive(t, res.FloodAreaHa)
}
