package raster

// FocalStats holds per-pixel local mean and population variance computed
// over a square neighborhood.
type FocalStats struct {
	Mean     []float64
	Variance []float64
	Valid    []bool
}

// Focal computes the local mean and variance of a band over a window×window
// neighborhood centered on each pixel. The window must be odd.
//
// Boundary policy: the neighborhood is clamped to the grid, so edge pixels
// use the in-bounds portion of the window. Masked neighbors are skipped.
// A pixel with no valid neighbors (including itself masked) yields an
// invalid entry.
func Focal(b Band, g Grid, window int) FocalStats {
	if window < 1 || window%2 == 0 {
		window = 3
	}
	half := window / 2

	size := g.Size()
	st := FocalStats{
		Mean:     make([]float64, size),
		Variance: make([]float64, size),
		Valid:    make([]bool, size),
	}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			idx := y*g.Width + x
			if !b.Valid(idx) {
				continue
			}

			var sum, sumSq float64
			var n int
			for dy := -half; dy <= half; dy++ {
				ny := y + dy
				if ny < 0 || ny >= g.Height {
					continue
				}
				for dx := -half; dx <= half; dx++ {
					nx := x + dx
					if nx < 0 || nx >= g.Width {
						continue
					}
					v, ok := b.Value(ny*g.Width + nx)
					if !ok {
						continue
					}
					sum += v
					sumSq += v * v
					n++
				}
			}
			if n == 0 {
				continue
			}

			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				// Rounding can push the variance of a uniform window
				// fractionally below zero.
				variance = 0
			}
			st.Mean[idx] = mean
			st.Variance[idx] = variance
			st.Valid[idx] = true
		}
	}

	return st
}
