// Package config holds the CLI-facing configuration: where the scene
// catalog lives, which collections to analyze, and the pipeline tunables.
package config

import (
	"fmt"

	"floodmap/internal/pipeline"
)

// Config is the full application configuration.
type Config struct {
	// CatalogRoot is the directory holding the scene collections.
	CatalogRoot string

	RadarCollection   string
	OpticalCollection string
	DEMCollection     string

	Scale float64 // processing pixel size in meters
	CRS   string

	Trees          int
	SlopeThreshold float64
	MinPatchPixels int
	Seed           int64

	TileSize  int
	MaxPixels int64

	Logging Logging
}

// Logging configures the structured logger.
type Logging struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// Default returns the configuration defaults. CatalogRoot and the
// collection identifiers must still be supplied.
func Default() Config {
	p := pipeline.DefaultParams()
	return Config{
		RadarCollection:   "sentinel1",
		OpticalCollection: "sentinel2",
		DEMCollection:     "dem",
		Scale:             p.Scale,
		Trees:             p.Trees,
		SlopeThreshold:    p.SlopeThreshold,
		MinPatchPixels:    p.MinPatchPixels,
		Seed:              p.Seed,
		TileSize:          p.TileSize,
		MaxPixels:         p.MaxPixels,
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration before a run is attempted.
func (c Config) Validate() error {
	if c.CatalogRoot == "" {
		return fmt.Errorf("catalog root is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	return nil
}

// Params builds run parameters from the configured tunables. Region,
// window, points and label still come from the run command.
func (c Config) Params() pipeline.Params {
	p := pipeline.DefaultParams()
	p.RadarCollection = c.RadarCollection
	p.OpticalCollection = c.OpticalCollection
	p.DEMCollection = c.DEMCollection
	p.Scale = c.Scale
	p.CRS = c.CRS
	p.Trees = c.Trees
	p.SlopeThreshold = c.SlopeThreshold
	p.MinPatchPixels = c.MinPatchPixels
	p.Seed = c.Seed
	p.TileSize = c.TileSize
	p.MaxPixels = c.MaxPixels
	return p
}
