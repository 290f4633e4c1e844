// Package geodesy converts between WGS-84 geodetic coordinates, Earth-centered
// Earth-fixed (ECEF) coordinates and a local East-North-Up tangent-plane frame.
package geodesy

import "math"

const (
	WGS84SemiMajorAxis     = 6378137.0     // a, m
	WGS84InverseFlattening = 298.257223563 // 1/f
	WGS84Flattening        = 1 / WGS84InverseFlattening
	// WGS84FirstEccentricitySquared is e² = 1-(1-f)².
	WGS84FirstEccentricitySquared = 1 - (1-WGS84Flattening)*(1-WGS84Flattening)
	WGS84SemiMinorAxis            = WGS84SemiMajorAxis * (1 - WGS84Flattening)

	Deg = math.Pi / 180
)

// Vec3 is a Cartesian vector, m.
type Vec3 [3]float64

// LLA is a geodetic position: longitude and latitude in degrees, altitude
// above the ellipsoid in meters.
type LLA struct {
	Lon, Lat, Alt float64
}

// Rotation is a 3x3 rotation matrix; R[i] is row i.
type Rotation [3][3]float64

// Apply returns R·v.
func (r *Rotation) Apply(v Vec3) (out Vec3) {
	for i := 0; i < 3; i++ {
		out[i] = r[i][0]*v[0] + r[i][1]*v[1] + r[i][2]*v[2]
	}
	return
}

// ApplyTranspose returns Rᵗ·v, the inverse rotation.
func (r *Rotation) ApplyTranspose(v Vec3) (out Vec3) {
	for i := 0; i < 3; i++ {
		out[i] = r[0][i]*v[0] + r[1][i]*v[1] + r[2][i]*v[2]
	}
	return
}

// normal returns the prime vertical radius of curvature at sin(lat) = sLat.
func normal(sLat float64) float64 {
	return WGS84SemiMajorAxis / math.Sqrt(1-WGS84FirstEccentricitySquared*sLat*sLat)
}

// GeodeticToEcef converts a geodetic position to ECEF coordinates.
func GeodeticToEcef(p LLA) Vec3 {
	sLon, cLon := math.Sincos(p.Lon * Deg)
	sLat, cLat := math.Sincos(p.Lat * Deg)
	n := normal(sLat)

	return Vec3{
		(n + p.Alt) * cLat * cLon,
		(n + p.Alt) * cLat * sLon,
		(n*(1-WGS84FirstEccentricitySquared) + p.Alt) * sLat,
	}
}

// EcefToGeodetic converts ECEF coordinates to a geodetic position by fixed-point
// iteration on latitude.
func EcefToGeodetic(v Vec3) LLA {
	p := math.Hypot(v[0], v[1])
	lon := math.Atan2(v[1], v[0])

	if p < 1e-6 {
		lat := math.Copysign(math.Pi/2, v[2])
		return LLA{Lon: lon / Deg, Lat: lat / Deg, Alt: math.Abs(v[2]) - WGS84SemiMinorAxis}
	}

	lat := math.Atan2(v[2], p*(1-WGS84FirstEccentricitySquared))
	for i := 0; i < 20; i++ {
		n := normal(math.Sin(lat))
		next := math.Atan2(v[2], p*(1-WGS84FirstEccentricitySquared*n/(n+height(p, v[2], lat))))
		done := math.Abs(next-lat) < 1e-13
		lat = next
		if done {
			break
		}
	}
	alt := height(p, v[2], lat)
	return LLA{Lon: lon / Deg, Lat: lat / Deg, Alt: alt}
}

// height is the distance above the ellipsoid of the point at distance p from
// the polar axis and z above the equator, on the normal through latitude lat.
func height(p, z, lat float64) float64 {
	sLat, cLat := math.Sincos(lat)
	return p*cLat + z*sLat - WGS84SemiMajorAxis*WGS84SemiMajorAxis/normal(sLat)
}

// EcefToEnuRotation returns the rotation taking ECEF vectors into the local
// East-North-Up frame at the given longitude and latitude, in degrees.
// It is a yaw about the polar axis by the longitude followed by a pitch
// by the latitude; its rows are the E, N and U axes expressed in ECEF.
func EcefToEnuRotation(lon, lat float64) Rotation {
	sLon, cLon := math.Sincos(lon * Deg)
	sLat, cLat := math.Sincos(lat * Deg)

	// yaw: x toward the local meridian, y east, z polar
	yaw := Rotation{
		{+cLon, +sLon, 0},
		{-sLon, +cLon, 0},
		{0, 0, 1},
	}
	// pitch: (meridian, east, polar) -> (east, north, up)
	pitch := Rotation{
		{0, 1, 0},
		{-sLat, 0, cLat},
		{cLat, 0, sLat},
	}

	var r Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = pitch[i][0]*yaw[0][j] + pitch[i][1]*yaw[1][j] + pitch[i][2]*yaw[2][j]
		}
	}
	return r
}

// Frame is a local tangent-plane frame anchored at a fixed geodetic origin.
type Frame struct {
	Origin LLA
	ecef   Vec3
	rot    Rotation
}

// NewFrame builds the East-North-Up frame tangent to the ellipsoid at origin.
func NewFrame(origin LLA) *Frame {
	return &Frame{
		Origin: origin,
		ecef:   GeodeticToEcef(origin),
		rot:    EcefToEnuRotation(origin.Lon, origin.Lat),
	}
}

// ToEnu returns the tangent-plane coordinates of a geodetic position.
func (f *Frame) ToEnu(p LLA) Vec3 {
	e := GeodeticToEcef(p)
	return f.rot.Apply(Vec3{e[0] - f.ecef[0], e[1] - f.ecef[1], e[2] - f.ecef[2]})
}

// ToGeodetic returns the geodetic position of a tangent-plane point.
func (f *Frame) ToGeodetic(enu Vec3) LLA {
	d := f.rot.ApplyTranspose(enu)
	return EcefToGeodetic(Vec3{f.ecef[0] + d[0], f.ecef[1] + d[1], f.ecef[2] + d[2]})
}
