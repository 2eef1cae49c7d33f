// Package postfilter spatially refines a raw classified raster into the
// final flood mask: speckle-scale patches of classified flood are removed by
// a minimum 8-connected patch-size rule, and steep terrain is excluded by a
// slope threshold, modeling the prior that steep slopes cannot pond
// floodwater.
package postfilter

import (
	"fmt"

	"floodmap/internal/classify"
	"floodmap/internal/raster"
	"floodmap/internal/terrain"
)

// FloodBand is the band name of the final flood mask.
const FloodBand = "flood"

// Options configures the spatial refinement.
type Options struct {
	SlopeThreshold float64 // degrees; pixels steeper than this never flood
	MinPatchPixels int     // minimum 8-connected patch size; 0 disables the rule
	PatchCap       int     // exploration cap per patch, bounds cost
}

// DefaultOptions returns the standard refinement thresholds.
func DefaultOptions() Options {
	return Options{
		SlopeThreshold: 5,
		MinPatchPixels: 8,
		PatchCap:       100,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.SlopeThreshold < 0 || o.SlopeThreshold > 30 {
		return fmt.Errorf("slope threshold %g outside [0, 30] degrees", o.SlopeThreshold)
	}
	if o.MinPatchPixels < 0 || o.MinPatchPixels > 50 {
		return fmt.Errorf("minimum patch size %d outside [0, 50] pixels", o.MinPatchPixels)
	}
	if o.PatchCap < o.MinPatchPixels {
		return fmt.Errorf("patch exploration cap %d below minimum patch size %d", o.PatchCap, o.MinPatchPixels)
	}
	return nil
}

// Apply derives the final flood mask from a classified raster and a slope
// raster on the same grid. The patch-size rule runs first over the
// classified flood pixels; the slope rule is applied last over the whole
// result, so slope exclusion wins even over large valid patches. A pixel
// with no valid slope value is excluded. Output pixels are 1 where all rules
// pass, 0 where the classification is valid but a rule fails, and masked
// where the classification is masked.
func Apply(classified, slope *raster.Raster, opts Options) (*raster.Raster, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	classBand, ok := classified.Band(classify.ClassBand)
	if !ok {
		return nil, fmt.Errorf("classified raster has no %q band", classify.ClassBand)
	}
	slopeBand, ok := slope.Band(terrain.SlopeBand)
	if !ok {
		return nil, fmt.Errorf("slope raster has no %q band", terrain.SlopeBand)
	}
	grid := classified.Grid()
	if !grid.Equal(slope.Grid()) {
		return nil, fmt.Errorf("classified and slope rasters are on different grids")
	}

	size := grid.Size()
	flooded := make([]bool, size)
	for i := 0; i < size; i++ {
		if v, valid := classBand.Value(i); valid && v == 1 {
			flooded[i] = true
		}
	}

	out := raster.NewBand(FloodBand, size)
	for i := 0; i < size; i++ {
		if !classBand.Valid(i) {
			continue
		}

		pass := flooded[i]
		if pass && opts.MinPatchPixels > 0 {
			pass = patchSize(flooded, grid, i, opts.PatchCap) >= opts.MinPatchPixels
		}
		if pass {
			s, valid := slopeBand.Value(i)
			pass = valid && s <= opts.SlopeThreshold
		}

		if pass {
			out.Set(i, 1)
		} else {
			out.Set(i, 0)
		}
	}

	return raster.New(grid, out)
}

// patchSize counts the 8-connected flooded patch containing start,
// exploring at most cap pixels.
func patchSize(flooded []bool, g raster.Grid, start, limit int) int {
	visited := map[int]bool{start: true}
	queue := []int{start}
	count := 0

	for len(queue) > 0 && count < limit {
		idx := queue[0]
		queue = queue[1:]
		count++

		x := idx % g.Width
		y := idx / g.Width
		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= g.Height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx := x + dx
				if nx < 0 || nx >= g.Width {
					continue
				}
				n := ny*g.Width + nx
				if flooded[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}

	return count
}
