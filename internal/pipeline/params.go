package pipeline

import (
	"floodmap/internal/classify"
	"floodmap/internal/composite"
	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
	"floodmap/internal/sampling"
	"floodmap/pkg/geometry"
)

// Params are the inputs of one analysis run. Everything downstream is
// derived from these; changing any field invalidates all prior results.
type Params struct {
	Region geometry.Polygon
	Window composite.TimeWindow

	// Catalog collection identifiers.
	RadarCollection   string
	OpticalCollection string
	DEMCollection     string

	// Reference points and the property holding the 0/1 flood label.
	PointsPath    string
	LabelProperty string

	// Processing grid.
	Scale float64 // pixel size in meters
	CRS   string

	Trees          int
	SlopeThreshold float64
	MinPatchPixels int
	SplitFraction  float64
	Seed           int64

	TileSize  int
	MaxPixels int64

	// ExportPath, when set, receives the final mask as GeoTIFF.
	ExportPath string
}

// DefaultParams returns run parameters with all tunables at their standard
// values. Region, window, collections and points must still be supplied.
func DefaultParams() Params {
	train := classify.DefaultTrainOptions()
	post := postfilter.DefaultOptions()
	reduce := raster.DefaultReduceOptions()
	return Params{
		Scale:          10,
		Trees:          train.Trees,
		SlopeThreshold: post.SlopeThreshold,
		MinPatchPixels: post.MinPatchPixels,
		SplitFraction:  0.7,
		Seed:           train.Seed,
		TileSize:       reduce.TileSize,
		MaxPixels:      reduce.MaxPixels,
	}
}

// Validate checks the parameters before any computation starts. All
// problems found here are input errors.
func (p Params) Validate() error {
	if !p.Region.Valid() {
		return inputErr("region polygon is empty, degenerate or self-intersecting")
	}
	if !p.Window.Valid() {
		return inputErr("time window start must precede end")
	}
	if p.RadarCollection == "" || p.OpticalCollection == "" || p.DEMCollection == "" {
		return inputErr("radar, optical and DEM collection identifiers are required")
	}
	if p.PointsPath == "" {
		return inputErr("reference points path is required")
	}
	if p.LabelProperty == "" {
		return inputErr("label property is required")
	}
	if p.LabelProperty == sampling.ReservedIDProperty {
		return inputErr("label property %q is reserved for point identifiers", p.LabelProperty)
	}
	if p.Scale <= 0 {
		return inputErr("scale %g must be positive", p.Scale)
	}
	if p.Trees < 1 {
		return inputErr("tree count %d must be a positive integer", p.Trees)
	}
	if p.SplitFraction <= 0 || p.SplitFraction >= 1 {
		return inputErr("split fraction %g outside (0, 1)", p.SplitFraction)
	}
	if err := p.postFilterOptions().Validate(); err != nil {
		return wrapErr(CategoryInput, err)
	}
	return nil
}

func (p Params) postFilterOptions() postfilter.Options {
	opts := postfilter.DefaultOptions()
	opts.SlopeThreshold = p.SlopeThreshold
	opts.MinPatchPixels = p.MinPatchPixels
	return opts
}

func (p Params) reduceOptions() raster.ReduceOptions {
	return raster.ReduceOptions{TileSize: p.TileSize, MaxPixels: p.MaxPixels}
}

func (p Params) trainOptions() classify.TrainOptions {
	return classify.TrainOptions{Trees: p.Trees, Seed: p.Seed}
}
