// Package geo holds the location predicates used by the event filter:
// great-circle distance and place-label region membership.
package geo

import (
	"math"
	"strings"

	"github.com/quocanhngo/quakealert/internal/model"
)

// EarthRadiusKm is the mean radius used for haversine distances
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two points in degrees
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// WithinDistance reports whether the event lies within maxKm of the user.
// It is permissive: when either coordinate pair is absent or zero the distance filter is a no-op.
func WithinDistance(eventLat, eventLon float64, userLat, userLon *float64, maxKm float64) bool {
	if userLat == nil || userLon == nil {
		return true
	}
	if *userLat == 0 || *userLon == 0 || eventLat == 0 || eventLon == 0 {
		return true
	}
	return DistanceKm(*userLat, *userLon, eventLat, eventLon) <= maxKm
}

// regionKeywords lists the lower-cased place-name fragments per region (English and Thai)
var regionKeywords = map[model.Region][]string{
	model.RegionThailand: {"thailand", "ประเทศไทย", "ไทย"},
	model.RegionSoutheastAsia: {
		"thailand", "malaysia", "singapore", "indonesia", "philippines",
		"vietnam", "cambodia", "laos", "myanmar", "brunei", "east timor",
		"ประเทศไทย", "ไทย", "มาเลเซีย", "สิงคโปร์", "อินโดนีเซีย",
		"ฟิลิปปินส์", "เวียดนาม", "กัมพูชา", "ลาว", "พม่า", "บรูไน",
		"southeast asia", "เอเชียตะวันออกเฉียงใต้",
	},
	model.RegionChina:       {"china", "จีน"},
	model.RegionJapan:       {"japan", "ญี่ปุ่น"},
	model.RegionPhilippines: {"philippines", "ฟิลิปปินส์"},
	model.RegionIndonesia:   {"indonesia", "อินโดนีเซีย"},
	model.RegionMyanmar:     {"myanmar", "burma", "พม่า"},
}

// RegionMatches reports whether place belongs to region.
// RegionAll and unrecognized codes always match.
func RegionMatches(place string, region model.Region) bool {
	keywords, ok := regionKeywords[region]
	if !ok {
		return true
	}
	lower := strings.ToLower(place)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
