// Package terrain derives topographic products from a digital elevation
// model.
package terrain

import (
	"fmt"
	"math"

	"floodmap/internal/raster"
)

// SlopeBand is the band name of a derived slope raster.
const SlopeBand = "slope"

// Slope derives per-pixel terrain slope in degrees from a DEM raster using
// Horn's third-order finite difference over the 3×3 neighborhood. The DEM
// band must hold elevation in metres on a metric grid. Border pixels reuse
// the nearest in-bounds neighbor (clamped window). Pixels whose 3×3
// neighborhood contains any masked elevation are masked.
func Slope(dem *raster.Raster, band string) (*raster.Raster, error) {
	elev, ok := dem.Band(band)
	if !ok {
		return nil, fmt.Errorf("elevation band %q not present", band)
	}

	g := dem.Grid()
	out := raster.NewBand(SlopeBand, g.Size())

	at := func(x, y int) (float64, bool) {
		if x < 0 {
			x = 0
		}
		if x >= g.Width {
			x = g.Width - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= g.Height {
			y = g.Height - 1
		}
		return elev.Value(y*g.Width + x)
	}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var z [3][3]float64
			valid := true
			for dy := -1; dy <= 1 && valid; dy++ {
				for dx := -1; dx <= 1; dx++ {
					v, ok := at(x+dx, y+dy)
					if !ok {
						valid = false
						break
					}
					z[dy+1][dx+1] = v
				}
			}
			if !valid {
				continue
			}

			dzdx := ((z[0][2] + 2*z[1][2] + z[2][2]) - (z[0][0] + 2*z[1][0] + z[2][0])) / (8 * g.Scale)
			dzdy := ((z[2][0] + 2*z[2][1] + z[2][2]) - (z[0][0] + 2*z[0][1] + z[0][2])) / (8 * g.Scale)
			rise := math.Sqrt(dzdx*dzdx + dzdy*dzdy)
			out.Set(y*g.Width+x, math.Atan(rise)*180/math.Pi)
		}
	}

	return raster.New(g, out)
}
