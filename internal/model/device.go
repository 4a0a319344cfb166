package model

import "time"

// Region is a region filter code
type Region string

const (
	RegionAll           Region = "all"
	RegionThailand      Region = "th"
	RegionSoutheastAsia Region = "sea"
	RegionChina         Region = "cn"
	RegionJapan         Region = "jp"
	RegionPhilippines   Region = "ph"
	RegionIndonesia     Region = "id"
	RegionMyanmar       Region = "mm"
)

// ValidRegions lists the region codes accepted by the settings API
var ValidRegions = []Region{
	RegionAll, RegionSoutheastAsia, RegionThailand, RegionChina,
	RegionJapan, RegionPhilippines, RegionIndonesia, RegionMyanmar,
}

// IsValid reports whether r is one of ValidRegions
func (r Region) IsValid() bool {
	for _, v := range ValidRegions {
		if r == v {
			return true
		}
	}
	return false
}

// DeviceConfig is the filter configuration of one registered device
type DeviceConfig struct {
	DeviceID             string   `json:"deviceId,omitempty"`
	Enabled              bool     `json:"enabled"`
	FilterByRegion       bool     `json:"filterByRegion"`
	Region               Region   `json:"defaultRegion"`
	FilterByMagnitude    bool     `json:"filterByMagnitude"`
	MinMagnitude         float64  `json:"minMagnitude"`
	FilterByDistance     bool     `json:"filterByDistance"`
	UserLatitude         *float64 `json:"userLatitude"`
	UserLongitude        *float64 `json:"userLongitude"`
	MaxDistanceKm        float64  `json:"maxDistanceKm"`
	CheckIntervalMinutes int      `json:"checkIntervalMinutes"`
	AutoCheckOnStartup   bool     `json:"autoCheckOnStartup"`
	LogFilteringDetails  bool     `json:"logFilteringDetails"`
}

// DefaultDeviceConfig returns the settings a device receives on first contact
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Enabled:              true,
		FilterByRegion:       true,
		Region:               RegionAll,
		FilterByMagnitude:    true,
		MinMagnitude:         3.5,
		FilterByDistance:     false,
		MaxDistanceKm:        2000,
		CheckIntervalMinutes: 1,
		AutoCheckOnStartup:   true,
		LogFilteringDetails:  true,
	}
}

// HasLocation reports whether both user coordinates are configured
func (c DeviceConfig) HasLocation() bool {
	return c.UserLatitude != nil && c.UserLongitude != nil
}

// Clone returns a deep copy so callers never share coordinate pointers
func (c DeviceConfig) Clone() DeviceConfig {
	out := c
	if c.UserLatitude != nil {
		v := *c.UserLatitude
		out.UserLatitude = &v
	}
	if c.UserLongitude != nil {
		v := *c.UserLongitude
		out.UserLongitude = &v
	}
	return out
}

// DeviceRecord is the persisted form of a device configuration.
// Columns carry no GORM defaults so that false and zero values are written as-is.
type DeviceRecord struct {
	DeviceID             string `gorm:"primaryKey;size:255"`
	Enabled              bool
	FilterByRegion       bool
	Region               string `gorm:"size:10"`
	FilterByMagnitude    bool
	MinMagnitude         float64
	FilterByDistance     bool
	UserLatitude         *float64
	UserLongitude        *float64
	MaxDistanceKm        float64
	CheckIntervalMinutes int
	AutoCheckOnStartup   bool
	LogFilteringDetails  bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName returns the table name for GORM.
func (DeviceRecord) TableName() string {
	return "devices"
}

// NewDeviceRecord converts a configuration into its persisted form
func NewDeviceRecord(cfg DeviceConfig) DeviceRecord {
	c := cfg.Clone()
	return DeviceRecord{
		DeviceID:             c.DeviceID,
		Enabled:              c.Enabled,
		FilterByRegion:       c.FilterByRegion,
		Region:               string(c.Region),
		FilterByMagnitude:    c.FilterByMagnitude,
		MinMagnitude:         c.MinMagnitude,
		FilterByDistance:     c.FilterByDistance,
		UserLatitude:         c.UserLatitude,
		UserLongitude:        c.UserLongitude,
		MaxDistanceKm:        c.MaxDistanceKm,
		CheckIntervalMinutes: c.CheckIntervalMinutes,
		AutoCheckOnStartup:   c.AutoCheckOnStartup,
		LogFilteringDetails:  c.LogFilteringDetails,
	}
}

// Config converts the record back into a device configuration
func (r DeviceRecord) Config() DeviceConfig {
	return DeviceConfig{
		DeviceID:             r.DeviceID,
		Enabled:              r.Enabled,
		FilterByRegion:       r.FilterByRegion,
		Region:               Region(r.Region),
		FilterByMagnitude:    r.FilterByMagnitude,
		MinMagnitude:         r.MinMagnitude,
		FilterByDistance:     r.FilterByDistance,
		UserLatitude:         r.UserLatitude,
		UserLongitude:        r.UserLongitude,
		MaxDistanceKm:        r.MaxDistanceKm,
		CheckIntervalMinutes: r.CheckIntervalMinutes,
		AutoCheckOnStartup:   r.AutoCheckOnStartup,
		LogFilteringDetails:  r.LogFilteringDetails,
	}.Clone()
}

// EndpointRecord maps an FCM token to the device that registered it
type EndpointRecord struct {
	Token        string    `gorm:"primaryKey;size:512"`
	DeviceID     *string   `gorm:"size:255;index"`
	Platform     string    `gorm:"size:20;default:'unknown'"` // android, ios
	RegisteredAt time.Time `gorm:"index"`
}

// TableName returns the table name for GORM.
func (EndpointRecord) TableName() string {
	return "endpoints"
}
