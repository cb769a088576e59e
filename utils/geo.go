package utils

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"radar_server/models"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

// EncodeGeohash returns the fixed-precision bucket key for a coordinate.
// Callers validate ranges with ValidCoordinates first.
func EncodeGeohash(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, models.GeohashPrecision)
}

// ValidCoordinates reports whether lat/lon are finite and in range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// CalculateDistance returns the haversine distance in meters, rounded to the nearest meter.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(EarthRadiusMeters * c)
}

// CalculateBearing returns the forward azimuth from point 1 to point 2 in [0, 360).
func CalculateBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	bearing := math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
	if bearing >= 360 {
		bearing = 0
	}
	return bearing
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
