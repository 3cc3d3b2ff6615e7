// Package geo provides great-circle distance and bounding-box containment
// for position filtering.
package geo

import "math"

const earthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance in kilometers
// between two coordinates given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// InBounds reports whether the point lies inside the box, boundary included.
// The box is the south-west corner (lat1, lon1) to the north-east corner
// (lat2, lon2).
func InBounds(lat, lon, lat1, lon1, lat2, lon2 float64) bool {
	return lat >= lat1 && lat <= lat2 && lon >= lon1 && lon <= lon2
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
