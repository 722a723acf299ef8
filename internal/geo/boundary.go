// Package geo provides the pure boundary geometry used for presence
// decisions: point-in-polygon tests, centroids, and monitoring radii
// derived from group boundaries.
package geo

const (
	// MinMonitoringRadius is the smallest radius ever registered for a
	// geofence region, in meters.
	MinMonitoringRadius = 50.0

	// FallbackMonitoringRadius is used when a boundary has too few points
	// to derive a radius from.
	FallbackMonitoringRadius = 100.0

	// radiusBuffer pads the circumscribing radius so the monitored circle
	// fully covers the polygon edges.
	radiusBuffer = 1.1
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Contains reports whether p lies inside the polygon described by boundary
// using the ray casting algorithm. Boundaries with fewer than 3 points
// cannot enclose anything and always return false.
func Contains(boundary []Point, p Point) bool {
	if len(boundary) < 3 {
		return false
	}

	inside := false
	j := len(boundary) - 1
	for i := range boundary {
		vi, vj := boundary[i], boundary[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lng < (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Center calculates the arithmetic mean of the boundary points.
// Returns the zero point for an empty boundary.
func Center(boundary []Point) Point {
	if len(boundary) == 0 {
		return Point{}
	}

	var sumLat, sumLng float64
	for _, p := range boundary {
		sumLat += p.Lat
		sumLng += p.Lng
	}

	n := float64(len(boundary))
	return Point{Lat: sumLat / n, Lng: sumLng / n}
}

// MonitoringRadius calculates the geofence radius for a boundary: the
// greatest distance from the center to any vertex with a buffer applied,
// clamped between MinMonitoringRadius and hostMax. Boundaries with fewer
// than 3 points get FallbackMonitoringRadius. A hostMax of 0 means the
// host imposes no upper limit.
func MonitoringRadius(boundary []Point, hostMax float64) float64 {
	if len(boundary) < 3 {
		return FallbackMonitoringRadius
	}

	center := Center(boundary)
	var maxDist float64
	for _, p := range boundary {
		if d := Distance(center, p); d > maxDist {
			maxDist = d
		}
	}

	radius := maxDist * radiusBuffer
	if radius < MinMonitoringRadius {
		radius = MinMonitoringRadius
	}
	if hostMax > 0 && radius > hostMax {
		radius = hostMax
	}
	return radius
}
