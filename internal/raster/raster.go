// Package raster provides the georeferenced multi-band grid model the
// pipeline operates on. A Raster is a rectangular grid of float64 pixel
// values at a fixed ground sampling distance; every band shares the grid and
// projection, and each pixel of each band may be individually masked.
// Operations never mutate their inputs; they derive new rasters.
package raster

import (
	"fmt"

	"floodmap/pkg/geometry"
)

// Grid describes the georeferencing of a raster: pixel counts, ground
// sampling distance in metres, the map coordinate of the top-left corner,
// and the projection as an opaque WKT/identifier string.
type Grid struct {
	Width  int
	Height int
	Scale  float64
	Origin geometry.Point2D
	CRS    string
}

// GridForRegion builds a grid covering the given map-coordinate bounds at the
// given scale. The pixel count is rounded up so the grid fully covers the
// region.
func GridForRegion(bounds geometry.Rect, scale float64, crs string) Grid {
	w := int(bounds.Width/scale + 0.5)
	h := int(bounds.Height/scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Grid{
		Width:  w,
		Height: h,
		Scale:  scale,
		Origin: geometry.Point2D{X: bounds.X, Y: bounds.Y + bounds.Height},
		CRS:    crs,
	}
}

// Size returns the pixel count of the grid.
func (g Grid) Size() int {
	return g.Width * g.Height
}

// PixelArea returns the ground area of one pixel in square metres.
func (g Grid) PixelArea() float64 {
	return g.Scale * g.Scale
}

// Bounds returns the map-coordinate extent of the grid.
func (g Grid) Bounds() geometry.Rect {
	return geometry.Rect{
		X:      g.Origin.X,
		Y:      g.Origin.Y - float64(g.Height)*g.Scale,
		Width:  float64(g.Width) * g.Scale,
		Height: float64(g.Height) * g.Scale,
	}
}

// PixelCenter returns the map coordinate of the center of pixel (x, y).
// Row 0 is the northernmost row.
func (g Grid) PixelCenter(x, y int) geometry.Point2D {
	return geometry.Point2D{
		X: g.Origin.X + (float64(x)+0.5)*g.Scale,
		Y: g.Origin.Y - (float64(y)+0.5)*g.Scale,
	}
}

// PixelAt returns the pixel containing the map coordinate p, and false when
// p falls outside the grid.
func (g Grid) PixelAt(p geometry.Point2D) (int, int, bool) {
	// Reject negative offsets before truncation: int() rounds toward zero,
	// so a point just west or north of the origin would land in pixel 0.
	fx := (p.X - g.Origin.X) / g.Scale
	fy := (g.Origin.Y - p.Y) / g.Scale
	if fx < 0 || fy < 0 {
		return 0, 0, false
	}
	x, y := int(fx), int(fy)
	if x >= g.Width || y >= g.Height {
		return 0, 0, false
	}
	return x, y, true
}

// Equal reports whether two grids describe the same pixel lattice and
// projection.
func (g Grid) Equal(other Grid) bool {
	return g.Width == other.Width && g.Height == other.Height &&
		g.Scale == other.Scale && g.Origin == other.Origin && g.CRS == other.CRS
}

// Band is a single named layer of pixel values with a per-pixel validity
// mask. Pixels with valid=false carry no value and are excluded from every
// reduction.
type Band struct {
	Name  string
	data  []float64
	valid []bool
}

// NewBand creates a band of the given size with all pixels masked.
func NewBand(name string, size int) Band {
	return Band{
		Name:  name,
		data:  make([]float64, size),
		valid: make([]bool, size),
	}
}

// NewConstBand creates a band with every pixel valid and set to v.
func NewConstBand(name string, size int, v float64) Band {
	b := NewBand(name, size)
	for i := range b.data {
		b.data[i] = v
		b.valid[i] = true
	}
	return b
}

// Len returns the pixel count of the band.
func (b Band) Len() int {
	return len(b.data)
}

// Value returns the pixel value at linear index i and whether it is valid.
func (b Band) Value(i int) (float64, bool) {
	return b.data[i], b.valid[i]
}

// Valid reports whether the pixel at linear index i carries a value.
func (b Band) Valid(i int) bool {
	return b.valid[i]
}

// Set assigns a valid value to the pixel at linear index i.
func (b Band) Set(i int, v float64) {
	b.data[i] = v
	b.valid[i] = true
}

// Mask removes the value of the pixel at linear index i.
func (b Band) Mask(i int) {
	b.data[i] = 0
	b.valid[i] = false
}

// Rename returns the band under a new name, sharing pixel storage.
func (b Band) Rename(name string) Band {
	return Band{Name: name, data: b.data, valid: b.valid}
}

// Clone returns a deep copy of the band.
func (b Band) Clone() Band {
	c := Band{
		Name:  b.Name,
		data:  make([]float64, len(b.data)),
		valid: make([]bool, len(b.valid)),
	}
	copy(c.data, b.data)
	copy(c.valid, b.valid)
	return c
}

// Raster is an immutable multi-band grid. All bands share the grid.
type Raster struct {
	grid  Grid
	bands []Band
}

// New assembles a raster from a grid and bands. Every band must match the
// grid size and band names must be unique.
func New(grid Grid, bands ...Band) (*Raster, error) {
	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if b.Len() != grid.Size() {
			return nil, fmt.Errorf("band %q has %d pixels, grid has %d", b.Name, b.Len(), grid.Size())
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("duplicate band name %q", b.Name)
		}
		seen[b.Name] = true
	}
	return &Raster{grid: grid, bands: bands}, nil
}

// Grid returns the raster's grid.
func (r *Raster) Grid() Grid {
	return r.grid
}

// NumBands returns the number of bands.
func (r *Raster) NumBands() int {
	return len(r.bands)
}

// BandNames returns the band names in order.
func (r *Raster) BandNames() []string {
	names := make([]string, len(r.bands))
	for i, b := range r.bands {
		names[i] = b.Name
	}
	return names
}

// Band returns the named band, or false if absent.
func (r *Raster) Band(name string) (Band, bool) {
	for _, b := range r.bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// Bands returns the bands in order.
func (r *Raster) Bands() []Band {
	return r.bands
}

// HasBand reports whether the named band exists.
func (r *Raster) HasBand(name string) bool {
	_, ok := r.Band(name)
	return ok
}

// Select derives a raster containing only the named bands, in the given
// order. Bands are shared, not copied.
func (r *Raster) Select(names ...string) (*Raster, error) {
	selected := make([]Band, 0, len(names))
	for _, name := range names {
		b, ok := r.Band(name)
		if !ok {
			return nil, fmt.Errorf("band %q not present", name)
		}
		selected = append(selected, b)
	}
	return &Raster{grid: r.grid, bands: selected}, nil
}

// Concat derives a raster holding the bands of a followed by the bands of b.
// Both inputs must share the same grid.
func Concat(a, b *Raster) (*Raster, error) {
	if !a.grid.Equal(b.grid) {
		return nil, fmt.Errorf("cannot concatenate rasters on different grids")
	}
	bands := make([]Band, 0, len(a.bands)+len(b.bands))
	bands = append(bands, a.bands...)
	bands = append(bands, b.bands...)
	return New(a.grid, bands...)
}

// Clip derives a raster with every pixel whose center falls outside the
// polygon masked in all bands.
func (r *Raster) Clip(region geometry.Polygon) *Raster {
	clipped := make([]Band, len(r.bands))
	for i, b := range r.bands {
		clipped[i] = b.Clone()
	}
	for y := 0; y < r.grid.Height; y++ {
		for x := 0; x < r.grid.Width; x++ {
			if region.Contains(r.grid.PixelCenter(x, y)) {
				continue
			}
			idx := y*r.grid.Width + x
			for i := range clipped {
				clipped[i].Mask(idx)
			}
		}
	}
	out, _ := New(r.grid, clipped...)
	return out
}

// Ratio derives a band dividing num by den pixel-wise. A pixel is masked when
// either input is masked or the denominator is zero.
func Ratio(name string, num, den Band) (Band, error) {
	if num.Len() != den.Len() {
		return Band{}, fmt.Errorf("ratio bands differ in size: %d vs %d", num.Len(), den.Len())
	}
	out := NewBand(name, num.Len())
	for i := 0; i < num.Len(); i++ {
		n, okN := num.Value(i)
		d, okD := den.Value(i)
		if !okN || !okD || d == 0 {
			continue
		}
		out.Set(i, n/d)
	}
	return out, nil
}

// Scaled derives a band with every valid pixel multiplied by factor.
func Scaled(b Band, factor float64) Band {
	out := NewBand(b.Name, b.Len())
	for i := 0; i < b.Len(); i++ {
		if v, ok := b.Value(i); ok {
			out.Set(i, v*factor)
		}
	}
	return out
}
