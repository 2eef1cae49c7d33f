// Package evaluate measures classification quality on held-out samples and
// converts flood masks into surface areas.
package evaluate

import (
	"fmt"
	"math"

	"floodmap/internal/classify"
	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
	"floodmap/internal/sampling"
	"floodmap/pkg/geometry"
)

// ConfusionMatrix tallies binary predictions against reference labels.
// Rows index the reference class, columns the predicted class.
type ConfusionMatrix struct {
	Counts [2][2]int
}

// Confusion builds the confusion matrix for a model over a validation set.
func Confusion(m classify.Model, ds sampling.Dataset) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(ds.Samples) == 0 {
		return cm, sampling.ErrNoSamples
	}
	predicted := classify.Samples(m, ds)
	for i, s := range ds.Samples {
		if s.Label != 0 && s.Label != 1 {
			return cm, fmt.Errorf("sample %d has label %d, want 0 or 1", i, s.Label)
		}
		cm.Counts[s.Label][predicted[i]]++
	}
	return cm, nil
}

// Total returns the number of tallied samples.
func (cm ConfusionMatrix) Total() int {
	var n int
	for _, row := range cm.Counts {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// Accuracy returns the fraction of samples on the matrix diagonal.
func (cm ConfusionMatrix) Accuracy() float64 {
	n := cm.Total()
	if n == 0 {
		return math.NaN()
	}
	return float64(cm.Counts[0][0]+cm.Counts[1][1]) / float64(n)
}

// Kappa returns Cohen's kappa, agreement corrected for chance. When the
// expected chance agreement is 1 the statistic is undefined and NaN is
// returned.
func (cm ConfusionMatrix) Kappa() float64 {
	n := float64(cm.Total())
	if n == 0 {
		return math.NaN()
	}
	observed := cm.Accuracy()

	var expected float64
	for k := 0; k < 2; k++ {
		rowSum := float64(cm.Counts[k][0] + cm.Counts[k][1])
		colSum := float64(cm.Counts[0][k] + cm.Counts[1][k])
		expected += (rowSum / n) * (colSum / n)
	}
	if expected == 1 {
		return math.NaN()
	}
	return (observed - expected) / (1 - expected)
}

// FloodArea sums the area of flood pixels in a mask raster, in hectares.
func FloodArea(mask *raster.Raster, opts raster.ReduceOptions) (float64, error) {
	band, ok := mask.Band(postfilter.FloodBand)
	if !ok {
		return 0, fmt.Errorf("mask raster has no %q band", postfilter.FloodBand)
	}
	count, err := raster.CountNonZero(band, mask.Grid(), opts)
	if err != nil {
		return 0, err
	}
	return float64(count) * mask.Grid().PixelArea() / 10000, nil
}

// RegionArea returns the geometric area of a region polygon, in hectares.
func RegionArea(region geometry.Polygon) float64 {
	return region.Area() / 10000
}
