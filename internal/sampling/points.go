// Package sampling extracts labeled feature vectors from a band stack at
// training-point locations and partitions them into reproducible training
// and validation subsets.
package sampling

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"floodmap/pkg/geometry"
)

// ReservedIDProperty is the feature-id column present in most point exports.
// It indexes features rather than describing them, so it is never offered as
// a label property.
const ReservedIDProperty = "fid"

// Point is one labeled training location.
type Point struct {
	Location   geometry.Point2D
	Properties map[string]float64
}

// PointSet is a collection of labeled training points.
type PointSet struct {
	Points []Point
}

// Properties lists the property names available across the point set,
// sorted, with the reserved feature-id property dropped. The UI layer uses
// this to offer label column choices.
func (ps PointSet) Properties() []string {
	seen := make(map[string]bool)
	for _, p := range ps.Points {
		for name := range p.Properties {
			if name == ReservedIDProperty {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// geoJSON mirrors the subset of the GeoJSON FeatureCollection structure the
// loader understands: Point features with numeric properties.
type geoJSON struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// LoadPoints reads a GeoJSON FeatureCollection of point features. Non-point
// geometries are rejected; non-numeric property values are skipped.
func LoadPoints(path string) (PointSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PointSet{}, fmt.Errorf("read points: %w", err)
	}

	var gj geoJSON
	if err := json.Unmarshal(data, &gj); err != nil {
		return PointSet{}, fmt.Errorf("parse points: %w", err)
	}
	if gj.Type != "FeatureCollection" {
		return PointSet{}, fmt.Errorf("expected FeatureCollection, got %q", gj.Type)
	}

	var ps PointSet
	for i, f := range gj.Features {
		if f.Geometry.Type != "Point" {
			return PointSet{}, fmt.Errorf("feature %d: geometry %q is not a point", i, f.Geometry.Type)
		}
		if len(f.Geometry.Coordinates) < 2 {
			return PointSet{}, fmt.Errorf("feature %d: point needs two coordinates", i)
		}

		props := make(map[string]float64, len(f.Properties))
		for name, raw := range f.Properties {
			if v, ok := raw.(float64); ok {
				props[name] = v
			}
		}
		ps.Points = append(ps.Points, Point{
			Location:   geometry.Point2D{X: f.Geometry.Coordinates[0], Y: f.Geometry.Coordinates[1]},
			Properties: props,
		})
	}
	return ps, nil
}
