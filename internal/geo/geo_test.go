package geo

import (
	"testing"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestDistanceKm_SamePointIsZero(t *testing.T) {
	assert.InDelta(t, 0, DistanceKm(13.75, 100.5, 13.75, 100.5), 1e-9)
}

func TestDistanceKm_Symmetric(t *testing.T) {
	points := [][2]float64{
		{13.75, 100.5}, {35.0, 139.0}, {-33.87, 151.21}, {51.5, -0.12}, {0, 0}, {89.9, 179.9},
	}
	for _, a := range points {
		for _, b := range points {
			ab := DistanceKm(a[0], a[1], b[0], b[1])
			ba := DistanceKm(b[0], b[1], a[0], a[1])
			assert.InDelta(t, ab, ba, 1e-6, "distance(%v,%v) must be symmetric", a, b)
		}
	}
}

func TestDistanceKm_TriangleInequality(t *testing.T) {
	points := [][2]float64{
		{13.75, 100.5}, {35.0, 139.0}, {-6.2, 106.8}, {14.6, 121.0}, {16.8, 96.2},
	}
	for _, a := range points {
		for _, b := range points {
			for _, c := range points {
				ac := DistanceKm(a[0], a[1], c[0], c[1])
				ab := DistanceKm(a[0], a[1], b[0], b[1])
				bc := DistanceKm(b[0], b[1], c[0], c[1])
				assert.LessOrEqual(t, ac, ab+bc+1e-6)
			}
		}
	}
}

func TestDistanceKm_KnownDistances(t *testing.T) {
	// Bangkok to a point ~1.5 km away
	near := DistanceKm(13.75, 100.5, 13.76, 100.51)
	assert.Greater(t, near, 0.1)
	assert.Less(t, near, 2.0)

	// Bangkok to Tokyo area
	far := DistanceKm(13.75, 100.5, 35.0, 139.0)
	assert.InDelta(t, 4600, far, 150)

	// Half the circumference for antipodal points
	assert.InDelta(t, 20015, DistanceKm(0, 0, 0, 180), 1)
}

func TestWithinDistance(t *testing.T) {
	tests := []struct {
		name     string
		eLat     float64
		eLon     float64
		uLat     *float64
		uLon     *float64
		maxKm    float64
		expected bool
	}{
		{"near event admitted", 13.76, 100.51, ptr(13.75), ptr(100.5), 100, true},
		{"far event rejected", 35.0, 139.0, ptr(13.75), ptr(100.5), 100, false},
		{"no user latitude", 35.0, 139.0, nil, ptr(100.5), 100, true},
		{"no user longitude", 35.0, 139.0, ptr(13.75), nil, 100, true},
		{"zero user coordinate", 35.0, 139.0, ptr(0), ptr(100.5), 100, true},
		{"zero event coordinate", 0, 139.0, ptr(13.75), ptr(100.5), 100, true},
		{"boundary inclusive", 13.75, 100.5, ptr(13.75), ptr(100.5), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WithinDistance(tt.eLat, tt.eLon, tt.uLat, tt.uLon, tt.maxKm))
		})
	}
}

func TestWithinDistance_FailOpenIgnoresMax(t *testing.T) {
	for _, maxKm := range []float64{0, 1, 1e9, -5} {
		assert.True(t, WithinDistance(35.0, 139.0, nil, nil, maxKm))
	}
}

func TestRegionMatches(t *testing.T) {
	tests := []struct {
		place    string
		region   model.Region
		expected bool
	}{
		{"Bangkok, Thailand", model.RegionThailand, true},
		{"Bangkok, Thailand", model.RegionJapan, false},
		{"Bangkok, Thailand", model.RegionSoutheastAsia, true},
		{"เชียงใหม่ ประเทศไทย", model.RegionThailand, true},
		{"10 km SW of Mandalay, Myanmar", model.RegionMyanmar, true},
		{"Burma-India border region", model.RegionMyanmar, true},
		{"HONSHU, JAPAN", model.RegionJapan, true},
		{"Sichuan, China", model.RegionChina, true},
		{"Mindanao, Philippines", model.RegionPhilippines, true},
		{"Java, Indonesia", model.RegionIndonesia, true},
		{"Hanoi, Vietnam", model.RegionSoutheastAsia, true},
		{"Alaska", model.RegionSoutheastAsia, false},
		{"Alaska", model.RegionAll, true},
		{"Alaska", model.Region("xx"), true},
		{"", model.Region(""), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.region)+"/"+tt.place, func(t *testing.T) {
			assert.Equal(t, tt.expected, RegionMatches(tt.place, tt.region))
		})
	}
}
