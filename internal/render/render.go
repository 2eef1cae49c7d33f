// Package render turns analysis rasters into display products for an
// external presentation layer: RGB and false-color composites with
// percentile-stretched value ranges, a colored flood mask, and a legend.
package render

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"gonum.org/v1/gonum/stat"

	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
)

// Layer is one displayable product: a raster with per-band display ranges
// and an optional palette for single-band layers.
type Layer struct {
	Name    string
	Raster  *raster.Raster
	Bands   []string  // bands to display, in R, G, B order for composites
	Min     []float64 // display range lower bound per band
	Max     []float64 // display range upper bound per band
	Palette []color.RGBA
}

// LegendEntry maps a class label to its display color.
type LegendEntry struct {
	Label string
	Color color.RGBA
}

// FloodColor is the flood class color in mask layers and the legend.
var FloodColor = color.RGBA{R: 0x1f, G: 0x78, B: 0xb4, A: 0xff}

// StretchOptions controls the percentile stretch of composite layers.
type StretchOptions struct {
	LowPercentile  float64
	HighPercentile float64
}

// DefaultStretchOptions returns the standard 2-98 percent stretch.
func DefaultStretchOptions() StretchOptions {
	return StretchOptions{LowPercentile: 0.02, HighPercentile: 0.98}
}

// OpticalRGB builds a true-color layer from an optical composite using the
// red, green and blue reflectance bands.
func OpticalRGB(r *raster.Raster, opts StretchOptions) (Layer, error) {
	return compositeLayer("Optical RGB", r, []string{"B4", "B3", "B2"}, opts)
}

// RadarFalseColor builds a false-color layer from a radar composite, mapping
// the two polarizations and their ratio to the color channels.
func RadarFalseColor(r *raster.Raster, opts StretchOptions) (Layer, error) {
	return compositeLayer("Radar false color", r, []string{"VV", "VH", "ratio"}, opts)
}

// FloodMask builds the final flood mask layer with its palette.
func FloodMask(r *raster.Raster) (Layer, error) {
	if !r.HasBand(postfilter.FloodBand) {
		return Layer{}, fmt.Errorf("mask raster has no %q band", postfilter.FloodBand)
	}
	return Layer{
		Name:    "Flood extent",
		Raster:  r,
		Bands:   []string{postfilter.FloodBand},
		Min:     []float64{0},
		Max:     []float64{1},
		Palette: []color.RGBA{{A: 0}, FloodColor},
	}, nil
}

// Legend returns the legend entries for the flood map.
func Legend() []LegendEntry {
	return []LegendEntry{
		{Label: "Flooded", Color: FloodColor},
	}
}

func compositeLayer(name string, r *raster.Raster, bands []string, opts StretchOptions) (Layer, error) {
	if opts.LowPercentile < 0 || opts.HighPercentile > 1 || opts.LowPercentile >= opts.HighPercentile {
		return Layer{}, fmt.Errorf("invalid stretch percentiles [%g, %g]", opts.LowPercentile, opts.HighPercentile)
	}

	layer := Layer{Name: name, Raster: r, Bands: bands}
	for _, name := range bands {
		band, ok := r.Band(name)
		if !ok {
			return Layer{}, fmt.Errorf("composite has no %q band", name)
		}
		lo, hi := stretchRange(band, r.Grid().Size(), opts)
		layer.Min = append(layer.Min, lo)
		layer.Max = append(layer.Max, hi)
	}
	return layer, nil
}

// stretchRange computes the display range of a band from the value
// distribution of its valid pixels.
func stretchRange(b raster.Band, size int, opts StretchOptions) (float64, float64) {
	values := make([]float64, 0, size)
	for i := 0; i < size; i++ {
		if v, valid := b.Value(i); valid {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, 1
	}
	sort.Float64s(values)

	lo := stat.Quantile(opts.LowPercentile, stat.Empirical, values, nil)
	hi := stat.Quantile(opts.HighPercentile, stat.Empirical, values, nil)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// Image rasterizes a layer into an RGBA image for quicklooks. Composite
// layers map their three bands to the color channels with the layer's
// display ranges; single-band layers look values up in the palette. Masked
// pixels are transparent.
func (l Layer) Image() (*image.RGBA, error) {
	g := l.Raster.Grid()
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))

	switch len(l.Bands) {
	case 1:
		band, ok := l.Raster.Band(l.Bands[0])
		if !ok {
			return nil, fmt.Errorf("layer raster has no %q band", l.Bands[0])
		}
		for i := 0; i < g.Size(); i++ {
			v, valid := band.Value(i)
			if !valid {
				continue
			}
			idx := int(v)
			if idx < 0 || idx >= len(l.Palette) {
				continue
			}
			img.SetRGBA(i%g.Width, i/g.Width, l.Palette[idx])
		}
	case 3:
		var bands [3]raster.Band
		for c, name := range l.Bands {
			band, ok := l.Raster.Band(name)
			if !ok {
				return nil, fmt.Errorf("layer raster has no %q band", name)
			}
			bands[c] = band
		}
		for i := 0; i < g.Size(); i++ {
			var channels [3]uint8
			valid := true
			for c, band := range bands {
				v, ok := band.Value(i)
				if !ok {
					valid = false
					break
				}
				channels[c] = scaleChannel(v, l.Min[c], l.Max[c])
			}
			if !valid {
				continue
			}
			img.SetRGBA(i%g.Width, i/g.Width, color.RGBA{
				R: channels[0], G: channels[1], B: channels[2], A: 0xff,
			})
		}
	default:
		return nil, fmt.Errorf("layer %q has %d display bands, want 1 or 3", l.Name, len(l.Bands))
	}

	return img, nil
}

// scaleChannel maps a value onto [0, 255] over the display range.
func scaleChannel(v, lo, hi float64) uint8 {
	s := (v - lo) / (hi - lo)
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return uint8(s*255 + 0.5)
}
