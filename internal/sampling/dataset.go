package sampling

import (
	"errors"
	"fmt"
	"math/rand"

	"floodmap/internal/raster"
)

// ErrNoSamples reports that no training point yielded a usable feature
// vector, typically because every point fell in cloud-masked or
// out-of-extent stack regions. Training on an empty set is never attempted.
var ErrNoSamples = errors.New("no usable training samples")

// Sample is one labeled feature vector: the stack band values at a point
// location plus the class label.
type Sample struct {
	Features []float64
	Label    int
}

// Dataset is a labeled sample collection with its feature band ordering.
type Dataset struct {
	Bands   []string
	Samples []Sample
}

// BuildOptions configures dataset extraction. BatchSize only chunks the
// point loop for bounded working-set growth on very large point sets; it has
// no effect on the result.
type BuildOptions struct {
	BatchSize int
}

// DefaultBuildOptions returns the standard extraction options.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{BatchSize: 1024}
}

// Build samples the stack at every point location and attaches the label
// from the given property. Points outside the stack extent, over masked
// pixels in any band, or missing the label property are dropped. A label
// other than exactly 0 or 1 is an error. An empty result yields ErrNoSamples.
func Build(stack *raster.Raster, points PointSet, labelProperty string, opts BuildOptions) (Dataset, error) {
	if labelProperty == "" || labelProperty == ReservedIDProperty {
		return Dataset{}, fmt.Errorf("invalid label property %q", labelProperty)
	}

	batch := opts.BatchSize
	if batch < 1 {
		batch = DefaultBuildOptions().BatchSize
	}

	grid := stack.Grid()
	bands := stack.Bands()
	ds := Dataset{Bands: stack.BandNames()}

	for start := 0; start < len(points.Points); start += batch {
		end := start + batch
		if end > len(points.Points) {
			end = len(points.Points)
		}
		for _, p := range points.Points[start:end] {
			label, ok := p.Properties[labelProperty]
			if !ok {
				continue
			}
			if label != 0 && label != 1 {
				return Dataset{}, fmt.Errorf("label property %q has value %g at (%g, %g); labels must be 0 or 1",
					labelProperty, label, p.Location.X, p.Location.Y)
			}

			x, y, inside := grid.PixelAt(p.Location)
			if !inside {
				continue
			}
			idx := y*grid.Width + x

			features := make([]float64, 0, len(bands))
			usable := true
			for _, b := range bands {
				v, valid := b.Value(idx)
				if !valid {
					usable = false
					break
				}
				features = append(features, v)
			}
			if !usable {
				continue
			}

			ds.Samples = append(ds.Samples, Sample{Features: features, Label: int(label)})
		}
	}

	if len(ds.Samples) == 0 {
		return Dataset{}, ErrNoSamples
	}
	return ds, nil
}

// Split is a disjoint partition of a dataset into training and validation
// subsets.
type Split struct {
	Training   Dataset
	Validation Dataset
}

// SplitDataset assigns each sample an independent uniform draw in [0, 1)
// from a generator seeded with seed, in sample order: draws below fraction
// go to training, the rest to validation. The same seed always reproduces
// the same partition, and no sample appears in both subsets. The one split
// is shared by training and accuracy evaluation.
func SplitDataset(ds Dataset, fraction float64, seed int64) Split {
	rng := rand.New(rand.NewSource(seed))

	split := Split{
		Training:   Dataset{Bands: ds.Bands},
		Validation: Dataset{Bands: ds.Bands},
	}
	for _, s := range ds.Samples {
		if rng.Float64() < fraction {
			split.Training.Samples = append(split.Training.Samples, s)
		} else {
			split.Validation.Samples = append(split.Validation.Samples, s)
		}
	}
	return split
}
