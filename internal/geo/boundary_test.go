package geo_test

import (
	"testing"

	"github.com/roostlabs/roost/internal/geo"
	"github.com/stretchr/testify/assert"
)

// square is a roughly 1km x 1km boundary around the origin point.
var square = []geo.Point{
	{Lat: 0.000, Lng: 0.000},
	{Lat: 0.009, Lng: 0.000},
	{Lat: 0.009, Lng: 0.009},
	{Lat: 0.000, Lng: 0.009},
}

func TestContains(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		boundary []geo.Point
		point    geo.Point
		want     bool
	}{
		{
			name:     "point inside square",
			boundary: square,
			point:    geo.Point{Lat: 0.004, Lng: 0.004},
			want:     true,
		},
		{
			name:     "point outside square",
			boundary: square,
			point:    geo.Point{Lat: 0.02, Lng: 0.02},
			want:     false,
		},
		{
			name:     "point west of square",
			boundary: square,
			point:    geo.Point{Lat: 0.004, Lng: -0.001},
			want:     false,
		},
		{
			name:     "empty boundary",
			boundary: nil,
			point:    geo.Point{},
			want:     false,
		},
		{
			name:     "single point boundary",
			boundary: []geo.Point{{Lat: 0.004, Lng: 0.004}},
			point:    geo.Point{Lat: 0.004, Lng: 0.004},
			want:     false,
		},
		{
			name:     "two point boundary",
			boundary: square[:2],
			point:    geo.Point{Lat: 0.004, Lng: 0.0},
			want:     false,
		},
		{
			name: "concave boundary notch excluded",
			boundary: []geo.Point{
				{Lat: 0, Lng: 0},
				{Lat: 0.01, Lng: 0},
				{Lat: 0.01, Lng: 0.01},
				{Lat: 0.005, Lng: 0.003},
				{Lat: 0, Lng: 0.01},
			},
			point: geo.Point{Lat: 0.006, Lng: 0.008},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := geo.Contains(tt.boundary, tt.point)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCenter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		boundary []geo.Point
		want     geo.Point
	}{
		{
			name:     "square centroid",
			boundary: square,
			want:     geo.Point{Lat: 0.0045, Lng: 0.0045},
		},
		{
			name:     "empty boundary returns zero point",
			boundary: nil,
			want:     geo.Point{},
		},
		{
			name:     "single point is its own center",
			boundary: []geo.Point{{Lat: 51.5, Lng: -0.12}},
			want:     geo.Point{Lat: 51.5, Lng: -0.12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := geo.Center(tt.boundary)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
		})
	}
}

func TestMonitoringRadius(t *testing.T) {
	t.Parallel()

	t.Run("degenerate boundary gets fallback", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, geo.FallbackMonitoringRadius, geo.MonitoringRadius(nil, 0), 1e-9)
		assert.InDelta(t, geo.FallbackMonitoringRadius, geo.MonitoringRadius(square[:2], 0), 1e-9)
	})

	t.Run("tiny boundary floored at minimum", func(t *testing.T) {
		t.Parallel()
		tiny := []geo.Point{
			{Lat: 0, Lng: 0},
			{Lat: 0.00001, Lng: 0},
			{Lat: 0.00001, Lng: 0.00001},
		}
		assert.InDelta(t, geo.MinMonitoringRadius, geo.MonitoringRadius(tiny, 0), 1e-9)
	})

	t.Run("radius covers furthest vertex with buffer", func(t *testing.T) {
		t.Parallel()
		radius := geo.MonitoringRadius(square, 0)
		center := geo.Center(square)

		var maxDist float64
		for _, p := range square {
			if d := geo.Distance(center, p); d > maxDist {
				maxDist = d
			}
		}

		assert.InDelta(t, maxDist*1.1, radius, 1e-6)
		assert.Greater(t, radius, geo.MinMonitoringRadius)
	})

	t.Run("radius capped at host maximum", func(t *testing.T) {
		t.Parallel()
		huge := []geo.Point{
			{Lat: 0, Lng: 0},
			{Lat: 1, Lng: 0},
			{Lat: 1, Lng: 1},
			{Lat: 0, Lng: 1},
		}
		assert.InDelta(t, 1000.0, geo.MonitoringRadius(huge, 1000), 1e-9)
	})
}

func TestDistance(t *testing.T) {
	t.Parallel()

	t.Run("identical points", func(t *testing.T) {
		t.Parallel()
		p := geo.Point{Lat: 40.7128, Lng: -74.0060}
		assert.Zero(t, geo.Distance(p, p))
	})

	t.Run("known city pair", func(t *testing.T) {
		t.Parallel()
		london := geo.Point{Lat: 51.5074, Lng: -0.1278}
		paris := geo.Point{Lat: 48.8566, Lng: 2.3522}

		// Great-circle distance is roughly 343km.
		got := geo.Distance(london, paris)
		assert.InDelta(t, 343000, got, 2000)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := geo.Point{Lat: 35.6762, Lng: 139.6503}
		b := geo.Point{Lat: 37.5665, Lng: 126.9780}
		assert.InDelta(t, geo.Distance(a, b), geo.Distance(b, a), 1e-9)
	})
}
