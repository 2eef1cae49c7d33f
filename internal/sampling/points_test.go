package sampling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePoints(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPoints(t *testing.T) {
	path := writePoints(t, `{
		"type": "FeatureCollection",
		"features": [
			{
				"geometry": {"type": "Point", "coordinates": [100.5, 200.5]},
				"properties": {"fid": 1, "flood": 1, "note": "wet"}
			},
			{
				"geometry": {"type": "Point", "coordinates": [300, 400]},
				"properties": {"fid": 2, "flood": 0}
			}
		]
	}`)

	ps, err := LoadPoints(path)
	require.NoError(t, err)
	require.Len(t, ps.Points, 2)

	assert.Equal(t, 100.5, ps.Points[0].Location.X)
	assert.Equal(t, 200.5, ps.Points[0].Location.Y)
	assert.Equal(t, 1.0, ps.Points[0].Properties["flood"])

	// Non-numeric property values are skipped, not fatal.
	_, hasNote := ps.Points[0].Properties["note"]
	assert.False(t, hasNote)
}

func TestLoadPoints_Errors(t *testing.T) {
	_, err := LoadPoints(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)

	_, err = LoadPoints(writePoints(t, `{"type": "Feature"}`))
	assert.Error(t, err)

	_, err = LoadPoints(writePoints(t, `{
		"type": "FeatureCollection",
		"features": [{"geometry": {"type": "LineString", "coordinates": []}, "properties": {}}]
	}`))
	assert.Error(t, err)
}

func TestPointSet_Properties(t *testing.T) {
	ps := PointSet{Points: []Point{
		{Properties: map[string]float64{"fid": 1, "flood": 1}},
		{Properties: map[string]float64{"fid": 2, "depth": 0.4}},
	}}

	assert.Equal(t, []string{"depth", "flood"}, ps.Properties())
}
