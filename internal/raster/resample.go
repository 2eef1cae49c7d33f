package raster

// Resample derives a raster on the target grid by nearest-neighbor lookup:
// each target pixel takes the value of the source pixel containing its
// center. Target pixels falling outside the source extent, or over masked
// source pixels, stay masked. Both grids must be in the same projection.
func (r *Raster) Resample(target Grid) *Raster {
	if r.grid.Equal(target) {
		return r
	}

	size := target.Size()
	out := make([]Band, len(r.bands))
	for i, b := range r.bands {
		out[i] = NewBand(b.Name, size)
	}

	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			sx, sy, ok := r.grid.PixelAt(target.PixelCenter(x, y))
			if !ok {
				continue
			}
			srcIdx := sy*r.grid.Width + sx
			dstIdx := y*target.Width + x
			for i, b := range r.bands {
				if v, valid := b.Value(srcIdx); valid {
					out[i].Set(dstIdx, v)
				}
			}
		}
	}

	res, _ := New(target, out...)
	return res
}
