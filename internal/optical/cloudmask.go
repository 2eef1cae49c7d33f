// Package optical provides optical-sensor preprocessing: per-pixel cloud
// masking from a bit-encoded quality band and reflectance rescaling.
package optical

import (
	"fmt"
	"math"

	"floodmap/internal/raster"
)

// MaskOptions configures the cloud mask: the quality band name, the bit
// positions flagging opaque cloud and cirrus, and the reflectance scale
// divisor.
type MaskOptions struct {
	QABand           string
	CloudBit         uint
	CirrusBit        uint
	ReflectanceScale float64
}

// DefaultMaskOptions returns the Sentinel-2 QA60 convention: cloud bit 10,
// cirrus bit 11, reflectance stored as 10000× surface reflectance.
func DefaultMaskOptions() MaskOptions {
	return MaskOptions{
		QABand:           "QA60",
		CloudBit:         10,
		CirrusBit:        11,
		ReflectanceScale: 10000,
	}
}

// MaskClouds derives a cloud-free reflectance raster from an optical scene.
// A pixel is kept only where neither the cloud bit nor the cirrus bit of the
// quality band is set; everywhere else the pixel is masked in every output
// band, so it cannot contribute to any downstream composite or statistic.
// The quality band itself is dropped and the remaining bands are divided by
// the reflectance scale.
func MaskClouds(scene *raster.Raster, opts MaskOptions) (*raster.Raster, error) {
	qa, ok := scene.Band(opts.QABand)
	if !ok {
		return nil, fmt.Errorf("quality band %q not present", opts.QABand)
	}
	if opts.ReflectanceScale <= 0 {
		return nil, fmt.Errorf("reflectance scale must be positive, got %g", opts.ReflectanceScale)
	}

	cloudMask := uint64(1) << opts.CloudBit
	cirrusMask := uint64(1) << opts.CirrusBit

	var out []raster.Band
	for _, b := range scene.Bands() {
		if b.Name == opts.QABand {
			continue
		}
		scaled := raster.NewBand(b.Name, b.Len())
		for i := 0; i < b.Len(); i++ {
			v, valid := b.Value(i)
			if !valid {
				continue
			}
			q, qValid := qa.Value(i)
			if !qValid {
				continue
			}
			bits := uint64(math.Max(q, 0))
			if bits&cloudMask != 0 || bits&cirrusMask != 0 {
				continue
			}
			scaled.Set(i, v/opts.ReflectanceScale)
		}
		out = append(out, scaled)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("scene has no reflectance bands besides %q", opts.QABand)
	}
	return raster.New(scene.Grid(), out...)
}
