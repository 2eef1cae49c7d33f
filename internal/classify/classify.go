// Package classify defines the supervised classifier contract the pipeline
// depends on and provides the default implementation, a bootstrap-aggregated
// decision-tree ensemble.
package classify

import (
	"fmt"

	"floodmap/internal/raster"
	"floodmap/internal/sampling"
)

// ClassBand is the band name of a classified raster.
const ClassBand = "class"

// Model predicts a class in {0, 1} for a feature vector ordered like the
// training dataset's bands.
type Model interface {
	Predict(features []float64) int
}

// TrainOptions configures model fitting.
type TrainOptions struct {
	Trees int   // ensemble size
	Seed  int64 // drives bootstrap and feature sampling only
}

// DefaultTrainOptions returns the standard ensemble size.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Trees: 500, Seed: 42}
}

// Trainer fits a model on a labeled dataset. Implementations must be
// deterministic for a fixed seed: the pipeline introduces no randomness
// beyond the sample split and the trainer's own bootstrap.
type Trainer interface {
	Train(ds sampling.Dataset, opts TrainOptions) (Model, error)
}

// Samples predicts a label for every sample in the dataset, in order.
func Samples(m Model, ds sampling.Dataset) []int {
	out := make([]int, len(ds.Samples))
	for i, s := range ds.Samples {
		out[i] = m.Predict(s.Features)
	}
	return out
}

// Raster predicts a per-pixel class over the stack, producing a single-band
// raster named "class". Pixels masked in any stack band stay masked.
func Raster(m Model, stack *raster.Raster, bands []string) (*raster.Raster, error) {
	selected, err := stack.Select(bands...)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	grid := selected.Grid()
	out := raster.NewBand(ClassBand, grid.Size())
	features := make([]float64, len(bands))

	for i := 0; i < grid.Size(); i++ {
		usable := true
		for bi, b := range selected.Bands() {
			v, ok := b.Value(i)
			if !ok {
				usable = false
				break
			}
			features[bi] = v
		}
		if !usable {
			continue
		}
		out.Set(i, float64(m.Predict(features)))
	}

	return raster.New(grid, out)
}
