// Package pipeline orchestrates one flood mapping analysis run: composite
// building, sampling, training, classification, spatial refinement,
// evaluation and display products. Stages are strictly sequential in data
// dependency; only the radar/optical composite branches and the two area
// figures are computed concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"floodmap/internal/catalog"
	"floodmap/internal/classify"
	"floodmap/internal/composite"
	"floodmap/internal/evaluate"
	"floodmap/internal/export"
	"floodmap/internal/observability"
	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
	"floodmap/internal/render"
	"floodmap/internal/sampling"
	"floodmap/internal/terrain"
)

// ErrRunInFlight is returned when Run is called while a previous run has
// not finished. Runs are never queued or interleaved.
var ErrRunInFlight = errors.New("an analysis run is already in flight")

// demBandName is the elevation band expected in DEM collections.
const demBandName = "elevation"

// Results carries everything one successful run produces.
type Results struct {
	Mask       *raster.Raster
	StackBands []string

	Confusion evaluate.ConfusionMatrix
	Accuracy  float64
	Kappa     float64

	FloodAreaHa  float64
	RegionAreaHa float64

	TrainingSamples   int
	ValidationSamples int

	Layers []render.Layer
	Legend []render.LegendEntry

	// ExportErr reports a failed mask export. The analysis results above
	// remain valid when it is set.
	ExportErr error
}

// Runner executes analysis runs against a scene catalog.
type Runner struct {
	catalog catalog.Catalog
	trainer classify.Trainer
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics *observability.Metrics

	running atomic.Bool
}

// RunnerOptions supplies the runner's collaborators. Zero fields fall back
// to the defaults: a forest trainer, the default slog logger, the real
// clock, and an unregistered metrics set.
type RunnerOptions struct {
	Trainer classify.Trainer
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Metrics *observability.Metrics
}

// NewRunner creates a runner over the given catalog.
func NewRunner(cat catalog.Catalog, opts RunnerOptions) *Runner {
	if opts.Trainer == nil {
		opts.Trainer = classify.NewForestTrainer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	return &Runner{
		catalog: cat,
		trainer: opts.Trainer,
		logger:  opts.Logger,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
}

// Run executes one analysis. It rejects concurrent invocations, observes
// context cancellation at stage boundaries, and never retries a failed
// stage. The returned error carries the failure category.
func (r *Runner) Run(ctx context.Context, p Params) (*Results, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInFlight
	}
	defer r.running.Store(false)

	r.metrics.RunsStarted.Inc()
	r.metrics.RunInFlight.Set(1)
	defer r.metrics.RunInFlight.Set(0)

	start := r.clock.Now()
	res, err := r.run(ctx, p)
	if err != nil {
		cat := CategoryOf(err)
		r.metrics.RunsFailed.WithLabelValues(string(cat)).Inc()
		r.logger.Error("run failed", "category", string(cat), "error", err)
		return nil, err
	}

	r.metrics.RunsSucceeded.Inc()
	r.logger.Info("run complete",
		"duration", r.clock.Since(start),
		"flood_area_ha", res.FloodAreaHa,
		"accuracy", res.Accuracy)
	return res, nil
}

func (r *Runner) run(ctx context.Context, p Params) (*Results, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// Reference points are read up front so that a missing label property
	// is reported before any imagery is touched.
	points, err := sampling.LoadPoints(p.PointsPath)
	if err != nil {
		return nil, wrapErr(CategoryInput, fmt.Errorf("reading reference points: %w", err))
	}
	if !hasProperty(points, p.LabelProperty) {
		return nil, inputErr("reference points have no property %q", p.LabelProperty)
	}

	grid := raster.GridForRegion(p.Region.Bounds(), p.Scale, p.CRS)
	r.logger.Info("run started",
		"grid_width", grid.Width,
		"grid_height", grid.Height,
		"scale_m", p.Scale,
		"points", len(points.Points))

	var radarC, opticalC composite.Composite
	err = r.stage(ctx, "composites", func() error {
		return r.buildComposites(p, grid, &radarC, &opticalC)
	})
	if err != nil {
		return nil, err
	}

	var stack *raster.Raster
	err = r.stage(ctx, "stack", func() error {
		var err error
		stack, err = composite.Stack(radarC, opticalC)
		if errors.Is(err, composite.ErrNoImagery) {
			return wrapErr(CategoryDataAvailability, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var slope *raster.Raster
	err = r.stage(ctx, "terrain", func() error {
		var err error
		slope, err = r.buildSlope(p, grid)
		return err
	})
	if err != nil {
		return nil, err
	}

	var split sampling.Split
	err = r.stage(ctx, "sampling", func() error {
		ds, err := sampling.Build(stack, points, p.LabelProperty, sampling.DefaultBuildOptions())
		if err != nil {
			return wrapErr(CategorySampling, err)
		}
		split = sampling.SplitDataset(ds, p.SplitFraction, p.Seed)
		if len(split.Training.Samples) == 0 {
			return wrapErr(CategorySampling, errors.New("empty training subset after split"))
		}
		if len(split.Validation.Samples) == 0 {
			return wrapErr(CategorySampling, errors.New("empty validation subset after split"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var model classify.Model
	err = r.stage(ctx, "training", func() error {
		var err error
		model, err = r.trainer.Train(split.Training, p.trainOptions())
		if err != nil {
			return wrapErr(CategoryComputation, fmt.Errorf("training classifier: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var classified *raster.Raster
	err = r.stage(ctx, "classification", func() error {
		var err error
		classified, err = classify.Raster(model, stack, stack.BandNames())
		if err != nil {
			return wrapErr(CategoryComputation, fmt.Errorf("classifying stack: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var mask *raster.Raster
	err = r.stage(ctx, "postfilter", func() error {
		var err error
		mask, err = postfilter.Apply(classified, slope, p.postFilterOptions())
		if err != nil {
			return wrapErr(CategoryComputation, fmt.Errorf("refining mask: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Results{
		Mask:              mask,
		StackBands:        stack.BandNames(),
		TrainingSamples:   len(split.Training.Samples),
		ValidationSamples: len(split.Validation.Samples),
	}

	err = r.stage(ctx, "evaluation", func() error {
		return r.evaluateRun(p, model, split.Validation, mask, res)
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, "render", func() error {
		return buildLayers(radarC, opticalC, mask, res)
	})
	if err != nil {
		return nil, err
	}

	if p.ExportPath != "" {
		err = r.stage(ctx, "export", func() error {
			if err := export.WriteMaskGeoTIFF(p.ExportPath, mask); err != nil {
				r.metrics.ExportErrors.Inc()
				res.ExportErr = wrapErr(CategoryExport, err)
				r.logger.Error("mask export failed", "path", p.ExportPath, "error", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// buildComposites builds the radar and optical composites concurrently.
// The two branches share no mutable state.
func (r *Runner) buildComposites(p Params, grid raster.Grid, radarC, opticalC *composite.Composite) error {
	radarCol, err := r.catalog.Collection(p.RadarCollection)
	if err != nil {
		return wrapErr(CategoryComputation, fmt.Errorf("opening radar collection: %w", err))
	}
	opticalCol, err := r.catalog.Collection(p.OpticalCollection)
	if err != nil {
		return wrapErr(CategoryComputation, fmt.Errorf("opening optical collection: %w", err))
	}
	r.metrics.ScenesLoaded.WithLabelValues(p.RadarCollection).Add(float64(radarCol.Size()))
	r.metrics.ScenesLoaded.WithLabelValues(p.OpticalCollection).Add(float64(opticalCol.Size()))

	var wg sync.WaitGroup
	var radarErr, opticalErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		*radarC, radarErr = composite.Radar(radarCol, p.Region, p.Window, grid, composite.DefaultRadarOptions())
	}()
	go func() {
		defer wg.Done()
		*opticalC, opticalErr = composite.Optical(opticalCol, p.Region, p.Window, grid, composite.DefaultOpticalOptions())
	}()
	wg.Wait()

	for _, err := range []error{radarErr, opticalErr} {
		if err == nil {
			continue
		}
		if errors.Is(err, composite.ErrNoImagery) {
			return wrapErr(CategoryDataAvailability, err)
		}
		return wrapErr(CategoryComputation, err)
	}
	return nil
}

// buildSlope derives the slope raster from the DEM collection.
func (r *Runner) buildSlope(p Params, grid raster.Grid) (*raster.Raster, error) {
	col, err := r.catalog.Collection(p.DEMCollection)
	if err != nil {
		return nil, wrapErr(CategoryComputation, fmt.Errorf("opening DEM collection: %w", err))
	}
	col = col.FilterBounds(p.Region).FilterBands(demBandName)
	if col.Size() == 0 {
		return nil, wrapErr(CategoryDataAvailability,
			fmt.Errorf("no elevation data covers the region"))
	}
	tiles, err := col.LoadAll(grid, demBandName)
	if err != nil {
		return nil, wrapErr(CategoryComputation, fmt.Errorf("loading DEM: %w", err))
	}
	dem, err := raster.Median(tiles)
	if err != nil {
		return nil, wrapErr(CategoryComputation, fmt.Errorf("merging DEM tiles: %w", err))
	}
	slope, err := terrain.Slope(dem, demBandName)
	if err != nil {
		return nil, wrapErr(CategoryComputation, fmt.Errorf("computing slope: %w", err))
	}
	return slope, nil
}

// evaluateRun fills in the confusion matrix, agreement figures and areas.
// The two area figures are independent and computed concurrently.
func (r *Runner) evaluateRun(p Params, model classify.Model, validation sampling.Dataset, mask *raster.Raster, res *Results) error {
	cm, err := evaluate.Confusion(model, validation)
	if err != nil {
		return wrapErr(CategoryComputation, fmt.Errorf("evaluating validation set: %w", err))
	}
	res.Confusion = cm
	res.Accuracy = cm.Accuracy()
	res.Kappa = cm.Kappa()

	var wg sync.WaitGroup
	var floodErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.FloodAreaHa, floodErr = evaluate.FloodArea(mask, p.reduceOptions())
	}()
	go func() {
		defer wg.Done()
		res.RegionAreaHa = evaluate.RegionArea(p.Region)
	}()
	wg.Wait()

	if floodErr != nil {
		return wrapErr(CategoryComputation, fmt.Errorf("computing flood area: %w", floodErr))
	}
	r.metrics.PixelsReduced.Add(float64(mask.Grid().Size()))
	r.metrics.FloodAreaHa.Set(res.FloodAreaHa)
	return nil
}

// buildLayers assembles the display products for the presentation layer.
func buildLayers(radarC, opticalC composite.Composite, mask *raster.Raster, res *Results) error {
	stretch := render.DefaultStretchOptions()

	optical, err := render.OpticalRGB(opticalC.Raster(), stretch)
	if err != nil {
		return wrapErr(CategoryComputation, err)
	}
	radar, err := render.RadarFalseColor(radarC.Raster(), stretch)
	if err != nil {
		return wrapErr(CategoryComputation, err)
	}
	flood, err := render.FloodMask(mask)
	if err != nil {
		return wrapErr(CategoryComputation, err)
	}

	res.Layers = []render.Layer{optical, radar, flood}
	res.Legend = render.Legend()
	return nil
}

// stage runs one pipeline stage, checking for cancellation at the boundary
// and recording its duration.
func (r *Runner) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(CategoryComputation, fmt.Errorf("run canceled before %s: %w", name, err))
	}

	start := r.clock.Now()
	err := fn()
	elapsed := r.clock.Since(start)
	r.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		return err
	}
	r.logger.Debug("stage complete", "stage", name, "duration", elapsed.Round(time.Millisecond))
	return nil
}

func hasProperty(ps sampling.PointSet, name string) bool {
	for _, p := range ps.Properties() {
		if p == name {
			return true
		}
	}
	return false
}
