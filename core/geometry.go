package core

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances
// (kilometres). Scene geometry works on the unit sphere instead.
const EarthRadiusKm = 6371.0

// GlobeRadius is the radius of the rendered sphere in scene units.
const GlobeRadius = 1.0

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Vec3 is a position in scene space. +Y points at the north pole and
// longitude 0 lies on +X.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ToCartesian maps a latitude/longitude pair onto a sphere of the given
// radius. The polar angle is phi = 90° - lat and the azimuth is offset by
// 180° so that longitude 0 faces +X.
func ToCartesian(lat, lon, radius float64) Vec3 {
	phi := (90 - lat) * degToRad
	theta := (lon + 180) * degToRad

	return Vec3{
		X: -(radius * math.Sin(phi) * math.Cos(theta)),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}

// ToLatLon is the inverse of ToCartesian. Longitude is normalised into
// [-180, 180). At the poles longitude is undefined and reported as -180.
func ToLatLon(v Vec3, radius float64) LatLon {
	if radius == 0 {
		return LatLon{}
	}
	cosPhi := clamp(v.Y/radius, -1, 1)
	lat := 90 - math.Acos(cosPhi)*radToDeg
	lon := NormalizeLon(math.Atan2(v.Z, -v.X)*radToDeg - 180)
	return LatLon{Lat: lat, Lon: lon}
}

// NormalizeLon wraps a longitude into [-180, 180).
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// Haversine returns the great-circle distance between two positions in km.
func Haversine(a, b LatLon) float64 {
	return EarthRadiusKm * AngularDistance(a, b)
}

// AngularDistance returns the central angle between two positions in
// radians.
func AngularDistance(a, b LatLon) float64 {
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// MapPoint is a position on the flat equirectangular map, in map units.
// The map spans [-2, 2] horizontally and [-1, 1] vertically.
type MapPoint struct {
	X, Y float64
}

const (
	mapHalfWidth  = 2.0
	mapHalfHeight = 1.0
)

// ToMapPoint projects a position onto the flat map used by the 2D backend.
func ToMapPoint(lat, lon float64) MapPoint {
	return MapPoint{
		X: NormalizeLon(lon) / 180 * mapHalfWidth,
		Y: clamp(lat, -90, 90) / 90 * mapHalfHeight,
	}
}

// FromMapPoint is the inverse of ToMapPoint.
func FromMapPoint(p MapPoint) LatLon {
	return LatLon{
		Lat: clamp(p.Y/mapHalfHeight*90, -90, 90),
		Lon: NormalizeLon(p.X / mapHalfWidth * 180),
	}
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * degToRad }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * radToDeg }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
