package catalog

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"floodmap/internal/raster"
	"floodmap/pkg/geometry"

	_ "golang.org/x/image/tiff" // register TIFF decoding
)

// DirectoryCatalog serves collections from a local archive laid out as
// root/<collection>/<scene>.json, where each JSON sidecar describes one
// scene's acquisition metadata, georeferencing, and per-band TIFF files.
type DirectoryCatalog struct {
	root string
}

// NewDirectoryCatalog creates a catalog over the given archive root.
func NewDirectoryCatalog(root string) *DirectoryCatalog {
	return &DirectoryCatalog{root: root}
}

// Collection scans the collection directory and returns its scenes sorted by
// acquisition time. Pixel data is not read until a scene is loaded.
func (dc *DirectoryCatalog) Collection(id string) (Collection, error) {
	dir := filepath.Join(dc.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Collection{}, fmt.Errorf("read collection %q: %w", id, err)
	}

	var scenes []Scene
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		scene, err := readSceneFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return Collection{}, fmt.Errorf("scene %s: %w", entry.Name(), err)
		}
		scenes = append(scenes, scene)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].Acquired.Before(scenes[j].Acquired)
	})
	return NewCollection(scenes), nil
}

// sceneFile mirrors the sidecar JSON structure.
type sceneFile struct {
	ID       string             `json:"id"`
	Acquired time.Time          `json:"acquired"`
	Mode     string             `json:"mode,omitempty"`
	Orbit    string             `json:"orbit,omitempty"`
	OriginX  float64            `json:"origin_x"`
	OriginY  float64            `json:"origin_y"`
	Scale    float64            `json:"scale"`
	CRS      string             `json:"crs"`
	Bands    []bandFile         `json:"bands"`
	Footprnt []geometry.Point2D `json:"footprint,omitempty"`
}

// bandFile describes one band's TIFF file and value decoding.
type bandFile struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Scale  float64  `json:"value_scale,omitempty"`
	Offset float64  `json:"value_offset,omitempty"`
	NoData *float64 `json:"nodata,omitempty"`
}

func readSceneFile(path string) (Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, err
	}

	var sf sceneFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return Scene{}, fmt.Errorf("parse sidecar: %w", err)
	}
	if sf.Scale <= 0 {
		return Scene{}, fmt.Errorf("sidecar has non-positive scale %g", sf.Scale)
	}
	if len(sf.Bands) == 0 {
		return Scene{}, fmt.Errorf("sidecar lists no bands")
	}

	if sf.ID == "" {
		sf.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	names := make([]string, len(sf.Bands))
	for i, b := range sf.Bands {
		names[i] = b.Name
	}

	dir := filepath.Dir(path)
	scene := Scene{
		ID:       sf.ID,
		Acquired: sf.Acquired,
		Mode:     sf.Mode,
		Orbit:    sf.Orbit,
		Bands:    names,
		Load: func() (*raster.Raster, error) {
			return loadSceneRaster(dir, sf)
		},
	}

	if len(sf.Footprnt) >= 3 {
		scene.Footprint = geometry.NewPolygon(sf.Footprnt)
	} else {
		// Footprint defaults to the scene extent, which requires the
		// pixel dimensions of the first band file.
		w, h, err := tiffDimensions(filepath.Join(dir, sf.Bands[0].File))
		if err != nil {
			return Scene{}, err
		}
		scene.Footprint = geometry.FromRect(geometry.Rect{
			X:      sf.OriginX,
			Y:      sf.OriginY - float64(h)*sf.Scale,
			Width:  float64(w) * sf.Scale,
			Height: float64(h) * sf.Scale,
		})
	}

	return scene, nil
}

// loadSceneRaster decodes every band TIFF and assembles the scene raster.
// All band files must share the same pixel dimensions.
func loadSceneRaster(dir string, sf sceneFile) (*raster.Raster, error) {
	var grid raster.Grid
	bands := make([]raster.Band, 0, len(sf.Bands))

	for i, bf := range sf.Bands {
		img, err := decodeTIFF(filepath.Join(dir, bf.File))
		if err != nil {
			return nil, fmt.Errorf("band %q: %w", bf.Name, err)
		}

		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		if i == 0 {
			grid = raster.Grid{
				Width:  w,
				Height: h,
				Scale:  sf.Scale,
				Origin: geometry.Point2D{X: sf.OriginX, Y: sf.OriginY},
				CRS:    sf.CRS,
			}
		} else if w != grid.Width || h != grid.Height {
			return nil, fmt.Errorf("band %q is %dx%d, expected %dx%d", bf.Name, w, h, grid.Width, grid.Height)
		}

		valueScale := bf.Scale
		if valueScale == 0 {
			valueScale = 1
		}

		band := raster.NewBand(bf.Name, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				raw := grayValue(img, bounds.Min.X+x, bounds.Min.Y+y)
				if bf.NoData != nil && raw == *bf.NoData {
					continue
				}
				band.Set(y*w+x, raw*valueScale+bf.Offset)
			}
		}
		bands = append(bands, band)
	}

	return raster.New(grid, bands...)
}

func decodeTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func tiffDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// grayValue extracts the raw sample value at (x, y). Single-channel images
// return their native sample depth; anything else falls back to 16-bit
// luminance.
func grayValue(img image.Image, x, y int) float64 {
	switch im := img.(type) {
	case *image.Gray16:
		return float64(im.Gray16At(x, y).Y)
	case *image.Gray:
		return float64(im.GrayAt(x, y).Y)
	default:
		r, g, b, _ := img.At(x, y).RGBA()
		return float64(r+g+b) / 3
	}
}
