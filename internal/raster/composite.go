package raster

import (
	"fmt"
	"sort"
)

// Median derives a per-pixel temporal median composite from a set of rasters
// on the same grid with the same band list. For each band and pixel, the
// median of the valid observations is taken; a pixel with no valid
// observation in any input stays masked. The median is robust to individual
// noisy acquisitions.
func Median(rasters []*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("median of empty raster set")
	}

	first := rasters[0]
	for _, r := range rasters[1:] {
		if !r.grid.Equal(first.grid) {
			return nil, fmt.Errorf("median inputs on different grids")
		}
		if len(r.bands) != len(first.bands) {
			return nil, fmt.Errorf("median inputs have different band counts")
		}
		for i, b := range r.bands {
			if b.Name != first.bands[i].Name {
				return nil, fmt.Errorf("median inputs have mismatched band %q vs %q", b.Name, first.bands[i].Name)
			}
		}
	}

	size := first.grid.Size()
	out := make([]Band, len(first.bands))
	obs := make([]float64, 0, len(rasters))

	for bi := range first.bands {
		band := NewBand(first.bands[bi].Name, size)
		for i := 0; i < size; i++ {
			obs = obs[:0]
			for _, r := range rasters {
				if v, ok := r.bands[bi].Value(i); ok {
					obs = append(obs, v)
				}
			}
			if len(obs) == 0 {
				continue
			}
			band.Set(i, median(obs))
		}
		out[bi] = band
	}

	return New(first.grid, out...)
}

// median computes the median of values, sorting in place.
func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}
