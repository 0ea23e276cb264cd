package geom

import "math"

// Projection maps longitude/latitude coordinates onto a plane.
type Projection interface {
	Project(lonlat XY) XY
}

const (
	degToRad    = math.Pi / 180
	earthRadius = 6371008.8 // mean radius, meters
)

// Albers is a spherical Albers equal-area conic projection. Equal-area is the
// property areal interpolation depends on: intersection/source area ratios
// must be preserved, absolute distortion does not matter.
type Albers struct {
	originLat float64 // radians
	originLon float64 // radians
	n         float64
	c         float64
	rho0      float64
}

// NewAlbers builds a projection from origin and standard parallels, all in
// degrees.
func NewAlbers(originLat, originLon, parallel1, parallel2 float64) Albers {
	phi0 := originLat * degToRad
	phi1 := parallel1 * degToRad
	phi2 := parallel2 * degToRad
	n := (math.Sin(phi1) + math.Sin(phi2)) / 2
	c := math.Cos(phi1)*math.Cos(phi1) + 2*n*math.Sin(phi1)
	rho0 := earthRadius / n * math.Sqrt(c-2*n*math.Sin(phi0))
	return Albers{
		originLat: phi0,
		originLon: originLon * degToRad,
		n:         n,
		c:         c,
		rho0:      rho0,
	}
}

// ConusAlbers returns the projection conventionally used for the
// conterminous United States (the EPSG:5070 parameter set on a sphere).
func ConusAlbers() Albers {
	return NewAlbers(23, -96, 29.5, 45.5)
}

// Project converts a lon/lat pair (degrees) to planar meters.
func (a Albers) Project(lonlat XY) XY {
	phi := lonlat.Y * degToRad
	lam := lonlat.X * degToRad
	rho := earthRadius / a.n * math.Sqrt(a.c-2*a.n*math.Sin(phi))
	theta := a.n * (lam - a.originLon)
	return XY{
		X: rho * math.Sin(theta),
		Y: a.rho0 - rho*math.Cos(theta),
	}
}
