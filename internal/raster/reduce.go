package raster

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrMaxPixels is returned when a reduction would cover more pixels than its
// configured cap. Reductions fail outright instead of silently truncating.
var ErrMaxPixels = errors.New("reduction exceeds maximum pixel count")

// ReduceOptions bounds the memory and compute of a whole-raster reduction.
// Reductions walk the grid in TileSize×TileSize tiles and refuse rasters
// larger than MaxPixels.
type ReduceOptions struct {
	TileSize  int
	MaxPixels int64
}

// DefaultReduceOptions returns the standard reduction bounds.
func DefaultReduceOptions() ReduceOptions {
	return ReduceOptions{
		TileSize:  256,
		MaxPixels: 1e8,
	}
}

func (o ReduceOptions) check(g Grid) error {
	if int64(g.Width)*int64(g.Height) > o.MaxPixels {
		return fmt.Errorf("%w: %d pixels, cap %d", ErrMaxPixels, int64(g.Width)*int64(g.Height), o.MaxPixels)
	}
	return nil
}

func (o ReduceOptions) tileSize() int {
	if o.TileSize < 1 {
		return 256
	}
	return o.TileSize
}

// CountNonZero counts valid pixels with a non-zero value, tile by tile.
// Masked pixels never contribute.
func CountNonZero(b Band, g Grid, opts ReduceOptions) (int64, error) {
	if err := opts.check(g); err != nil {
		return 0, err
	}

	var count int64
	forEachTile(g, opts.tileSize(), func(x0, y0, x1, y1 int) {
		for y := y0; y < y1; y++ {
			row := y * g.Width
			for x := x0; x < x1; x++ {
				if v, ok := b.Value(row + x); ok && v != 0 {
					count++
				}
			}
		}
	})
	return count, nil
}

// MeanValid computes the mean of all valid pixels, tile by tile, returning
// the mean and the number of contributing pixels. A fully masked band yields
// a zero count and a zero mean.
func MeanValid(b Band, g Grid, opts ReduceOptions) (float64, int64, error) {
	if err := opts.check(g); err != nil {
		return 0, 0, err
	}

	var sum float64
	var count int64
	tile := make([]float64, 0, opts.tileSize()*opts.tileSize())

	forEachTile(g, opts.tileSize(), func(x0, y0, x1, y1 int) {
		tile = tile[:0]
		for y := y0; y < y1; y++ {
			row := y * g.Width
			for x := x0; x < x1; x++ {
				if v, ok := b.Value(row + x); ok {
					tile = append(tile, v)
				}
			}
		}
		// Per-tile partial sums keep the accumulation error bounded for
		// very large rasters.
		sum += floats.Sum(tile)
		count += int64(len(tile))
	})

	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count), count, nil
}

// forEachTile visits the grid in tileSize×tileSize blocks, passing the
// half-open pixel bounds of each block.
func forEachTile(g Grid, tileSize int, fn func(x0, y0, x1, y1 int)) {
	for y0 := 0; y0 < g.Height; y0 += tileSize {
		y1 := y0 + tileSize
		if y1 > g.Height {
			y1 = g.Height
		}
		for x0 := 0; x0 < g.Width; x0 += tileSize {
			x1 := x0 + tileSize
			if x1 > g.Width {
				x1 = g.Width
			}
			fn(x0, y0, x1, y1)
		}
	}
}
