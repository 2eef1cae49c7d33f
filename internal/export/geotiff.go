// Package export writes analysis products to georeferenced GeoTIFF files
// through GDAL.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"floodmap/internal/postfilter"
	"floodmap/internal/raster"
)

// maskNoData marks masked pixels in exported byte masks.
const maskNoData = 255

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// WriteMaskGeoTIFF writes the final flood mask as a single-band byte
// GeoTIFF at path, carrying the grid's geotransform, projection and a
// nodata value for masked pixels.
func WriteMaskGeoTIFF(path string, mask *raster.Raster) error {
	band, ok := mask.Band(postfilter.FloodBand)
	if !ok {
		return fmt.Errorf("mask raster has no %q band", postfilter.FloodBand)
	}
	registerDrivers()

	g := mask.Grid()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, g.Width, g.Height,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform([6]float64{
		g.Origin.X, g.Scale, 0,
		g.Origin.Y, 0, -g.Scale,
	}); err != nil {
		return fmt.Errorf("setting geotransform: %w", err)
	}
	if g.CRS != "" {
		sr, err := spatialRef(g.CRS)
		if err != nil {
			return err
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("setting projection: %w", err)
		}
	}

	out := ds.Bands()[0]
	if err := out.SetNoData(maskNoData); err != nil {
		return fmt.Errorf("setting nodata: %w", err)
	}

	data := make([]byte, g.Size())
	for i := range data {
		if v, valid := band.Value(i); valid {
			data[i] = byte(v)
		} else {
			data[i] = maskNoData
		}
	}
	if err := out.Write(0, 0, data, g.Width, g.Height); err != nil {
		return fmt.Errorf("writing mask band: %w", err)
	}
	return nil
}

// spatialRef resolves a CRS identifier, either an EPSG code or WKT.
func spatialRef(crs string) (*godal.SpatialRef, error) {
	if code, ok := strings.CutPrefix(crs, "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("invalid EPSG code %q", crs)
		}
		return godal.NewSpatialRefFromEPSG(n)
	}
	return godal.NewSpatialRefFromWKT(crs)
}
