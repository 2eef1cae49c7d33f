// Package composite builds analysis-ready sensor composites over an AOI and
// time window, and stacks them into the multi-band raster the classifier
// consumes.
package composite

import (
	"errors"
	"fmt"
	"time"

	"floodmap/internal/catalog"
	"floodmap/internal/optical"
	"floodmap/internal/raster"
	"floodmap/internal/sar"
	"floodmap/pkg/geometry"
)

// ErrNoImagery reports that a sensor contributed no usable imagery for the
// AOI and time window. The pipeline aborts on it instead of classifying a
// garbage stack.
var ErrNoImagery = errors.New("no usable imagery for the area and time window")

// TimeWindow is a half-open [Start, End) acquisition interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether Start precedes End.
func (w TimeWindow) Valid() bool {
	return w.Start.Before(w.End)
}

// Composite is the result of one sensor path: either a raster or nothing.
// The explicit empty state replaces sentinel zero-band rasters so the fatal
// no-imagery check is a type inspection, not a band count inference.
type Composite struct {
	r *raster.Raster
}

// Present wraps a materialized composite raster.
func Present(r *raster.Raster) Composite {
	return Composite{r: r}
}

// Empty is the no-imagery composite.
func Empty() Composite {
	return Composite{}
}

// IsPresent reports whether the composite holds a raster with at least one
// band.
func (c Composite) IsPresent() bool {
	return c.r != nil && c.r.NumBands() > 0
}

// Raster returns the underlying raster; nil when empty.
func (c Composite) Raster() *raster.Raster {
	return c.r
}

// RadarOptions configures the radar composite path.
type RadarOptions struct {
	Mode         string // acquisition mode, e.g. IW
	Orbit        string // orbit direction, e.g. DESCENDING
	Polarization [2]string
	RatioBand    string
	Speckle      sar.FilterOptions
}

// DefaultRadarOptions returns the Sentinel-1 IW descending dual-pol setup.
func DefaultRadarOptions() RadarOptions {
	return RadarOptions{
		Mode:         "IW",
		Orbit:        "DESCENDING",
		Polarization: [2]string{"VV", "VH"},
		RatioBand:    "ratio",
		Speckle:      sar.DefaultFilterOptions(),
	}
}

// OpticalOptions configures the optical composite path.
type OpticalOptions struct {
	Mask  optical.MaskOptions
	Bands []string // reflectance bands selected into the stack
}

// DefaultOpticalOptions returns the Sentinel-2 setup.
func DefaultOpticalOptions() OpticalOptions {
	return OpticalOptions{
		Mask:  optical.DefaultMaskOptions(),
		Bands: []string{"B2", "B3", "B4", "B8", "B11", "B12"},
	}
}

// Radar builds the radar composite: the collection is filtered by time
// window, AOI overlap, acquisition mode, orbit direction, and presence of
// both polarization channels; the per-pixel temporal median of the surviving
// scenes is clipped to the AOI and speckle-filtered per band, and the
// polarization ratio is derived from the filtered bands. An empty filtered
// collection yields the Empty composite.
func Radar(col catalog.Collection, aoi geometry.Polygon, window TimeWindow, grid raster.Grid, opts RadarOptions) (Composite, error) {
	polA, polB := opts.Polarization[0], opts.Polarization[1]

	filtered := col.
		FilterDate(window.Start, window.End).
		FilterBounds(aoi).
		FilterMode(opts.Mode).
		FilterOrbit(opts.Orbit).
		FilterBands(polA, polB)
	if filtered.Size() == 0 {
		return Empty(), nil
	}

	scenes, err := filtered.LoadAll(grid, polA, polB)
	if err != nil {
		return Composite{}, fmt.Errorf("radar composite: %w", err)
	}

	med, err := raster.Median(scenes)
	if err != nil {
		return Composite{}, fmt.Errorf("radar composite: %w", err)
	}
	med = med.Clip(aoi)

	bandA, okA := sar.Filter(med, polA, opts.Speckle)
	bandB, okB := sar.Filter(med, polB, opts.Speckle)
	if !okA || !okB {
		// The band filter above guarantees both polarizations exist; a
		// one-sided composite means the archive metadata lied about its
		// band content, which is a data availability problem.
		return Composite{}, fmt.Errorf("%w: polarization band missing from radar composite", ErrNoImagery)
	}

	ratio, err := raster.Ratio(opts.RatioBand, bandA, bandB)
	if err != nil {
		return Composite{}, fmt.Errorf("radar composite: %w", err)
	}

	out, err := raster.New(grid, bandA, bandB, ratio)
	if err != nil {
		return Composite{}, fmt.Errorf("radar composite: %w", err)
	}
	return Present(out), nil
}

// Optical builds the optical composite: the collection is filtered by time
// window and AOI overlap, every scene is cloud-masked, and the per-pixel
// median over unmasked observations is clipped to the AOI and reduced to the
// configured reflectance bands. An empty filtered collection yields the
// Empty composite.
func Optical(col catalog.Collection, aoi geometry.Polygon, window TimeWindow, grid raster.Grid, opts OpticalOptions) (Composite, error) {
	required := append([]string{opts.Mask.QABand}, opts.Bands...)

	filtered := col.
		FilterDate(window.Start, window.End).
		FilterBounds(aoi).
		FilterBands(required...)
	if filtered.Size() == 0 {
		return Empty(), nil
	}

	scenes, err := filtered.LoadAll(grid, required...)
	if err != nil {
		return Composite{}, fmt.Errorf("optical composite: %w", err)
	}

	masked := make([]*raster.Raster, 0, len(scenes))
	for _, s := range scenes {
		m, err := optical.MaskClouds(s, opts.Mask)
		if err != nil {
			return Composite{}, fmt.Errorf("optical composite: %w", err)
		}
		m, err = m.Select(opts.Bands...)
		if err != nil {
			return Composite{}, fmt.Errorf("optical composite: %w", err)
		}
		masked = append(masked, m)
	}

	med, err := raster.Median(masked)
	if err != nil {
		return Composite{}, fmt.Errorf("optical composite: %w", err)
	}
	return Present(med.Clip(aoi)), nil
}

// Stack concatenates the radar and optical composites band-wise into the
// classifier input. Either composite contributing zero bands aborts with
// ErrNoImagery.
func Stack(radar, opt Composite) (*raster.Raster, error) {
	if !radar.IsPresent() {
		return nil, fmt.Errorf("%w: radar", ErrNoImagery)
	}
	if !opt.IsPresent() {
		return nil, fmt.Errorf("%w: optical", ErrNoImagery)
	}
	return raster.Concat(radar.Raster(), opt.Raster())
}
