// Package catalog models the external imagery source: named collections of
// time-stamped, footprint-bounded multi-band scenes that can be filtered and
// loaded onto an analysis grid. The pipeline only depends on the Catalog
// interface; the directory-backed implementation in this package serves local
// archives.
package catalog

import (
	"fmt"
	"time"

	"floodmap/internal/raster"
	"floodmap/pkg/geometry"
)

// RasterLoader materializes a scene's pixel data on demand.
type RasterLoader func() (*raster.Raster, error)

// Scene is one acquisition: metadata plus a lazy raster loader.
type Scene struct {
	ID        string
	Acquired  time.Time
	Mode      string
	Orbit     string
	Footprint geometry.Polygon
	Bands     []string
	Load      RasterLoader
}

// HasBands reports whether the scene carries every named band.
func (s Scene) HasBands(names ...string) bool {
	for _, want := range names {
		found := false
		for _, have := range s.Bands {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Collection is an immutable set of scenes. Filters derive new collections.
type Collection struct {
	scenes []Scene
}

// NewCollection builds a collection from scenes.
func NewCollection(scenes []Scene) Collection {
	return Collection{scenes: scenes}
}

// Size returns the number of scenes.
func (c Collection) Size() int {
	return len(c.scenes)
}

// Scenes returns the scenes in order.
func (c Collection) Scenes() []Scene {
	return c.scenes
}

// FilterDate keeps scenes acquired within [start, end).
func (c Collection) FilterDate(start, end time.Time) Collection {
	return c.filter(func(s Scene) bool {
		return !s.Acquired.Before(start) && s.Acquired.Before(end)
	})
}

// FilterBounds keeps scenes whose footprint overlaps the region.
func (c Collection) FilterBounds(region geometry.Polygon) Collection {
	return c.filter(func(s Scene) bool {
		if !s.Footprint.Bounds().Intersects(region.Bounds()) {
			return false
		}
		return s.Footprint.Intersect(geometry.FromRect(region.Bounds())).Area() > 0
	})
}

// FilterMode keeps scenes with the given acquisition mode.
func (c Collection) FilterMode(mode string) Collection {
	return c.filter(func(s Scene) bool { return s.Mode == mode })
}

// FilterOrbit keeps scenes with the given orbit direction.
func (c Collection) FilterOrbit(orbit string) Collection {
	return c.filter(func(s Scene) bool { return s.Orbit == orbit })
}

// FilterBands keeps scenes carrying all of the named bands.
func (c Collection) FilterBands(names ...string) Collection {
	return c.filter(func(s Scene) bool { return s.HasBands(names...) })
}

func (c Collection) filter(keep func(Scene) bool) Collection {
	var out []Scene
	for _, s := range c.scenes {
		if keep(s) {
			out = append(out, s)
		}
	}
	return Collection{scenes: out}
}

// LoadAll materializes every scene and resamples it onto the target grid,
// selecting only the named bands. Scenes are returned in collection order.
func (c Collection) LoadAll(grid raster.Grid, bands ...string) ([]*raster.Raster, error) {
	out := make([]*raster.Raster, 0, len(c.scenes))
	for _, s := range c.scenes {
		r, err := s.Load()
		if err != nil {
			return nil, fmt.Errorf("load scene %s: %w", s.ID, err)
		}
		if len(bands) > 0 {
			r, err = r.Select(bands...)
			if err != nil {
				return nil, fmt.Errorf("scene %s: %w", s.ID, err)
			}
		}
		out = append(out, r.Resample(grid))
	}
	return out, nil
}

// Catalog resolves external collection identifiers to scene collections.
type Catalog interface {
	Collection(id string) (Collection, error)
}
