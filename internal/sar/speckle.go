// Package sar provides radar-specific processing, chiefly speckle-noise
// suppression on backscatter bands.
package sar

import (
	"floodmap/internal/raster"
)

// FilterOptions configures the speckle filter.
type FilterOptions struct {
	Window int // square neighborhood side, must be odd
}

// DefaultFilterOptions returns the standard 7×7 neighborhood.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Window: 7}
}

// FilterBand applies edge-preserving adaptive smoothing to a single
// backscatter band, assumed to carry multiplicative speckle.
//
// For each pixel the local mean and variance over the window are computed
// (window clamped at the raster boundary, masked neighbors ignored). The
// noise-suppression weight is b = max(0, 1 − mean²/variance) and the
// smoothing factor w = b/(1+b); the output is center·w + mean·(1−w).
// Low-texture neighborhoods are pulled toward the local mean while
// high-texture edges stay close to the original value.
//
// A zero-variance neighborhood is treated as fully smoothed: the output is
// the local mean, which for a uniform region equals the input value. Masked
// pixels stay masked. The output band keeps the input band's name.
func FilterBand(b raster.Band, g raster.Grid, opts FilterOptions) raster.Band {
	window := opts.Window
	if window < 1 || window%2 == 0 {
		window = DefaultFilterOptions().Window
	}

	stats := raster.Focal(b, g, window)
	out := raster.NewBand(b.Name, b.Len())

	for i := 0; i < b.Len(); i++ {
		center, ok := b.Value(i)
		if !ok || !stats.Valid[i] {
			continue
		}

		mean := stats.Mean[i]
		variance := stats.Variance[i]
		if variance <= 0 {
			// Degenerate uniform neighborhood: fully smoothed.
			out.Set(i, mean)
			continue
		}

		bWeight := 1 - mean*mean/variance
		if bWeight < 0 {
			bWeight = 0
		}
		w := bWeight / (1 + bWeight)
		out.Set(i, center*w+mean*(1-w))
	}

	return out
}

// Filter applies FilterBand to the named band of a raster. A raster without
// the band yields a zero-length placeholder band rather than an error, so
// composite building can degrade gracefully when a polarization is missing.
func Filter(r *raster.Raster, band string, opts FilterOptions) (raster.Band, bool) {
	b, ok := r.Band(band)
	if !ok {
		return raster.Band{}, false
	}
	return FilterBand(b, r.Grid(), opts), true
}
