package model

import "time"

// ========== Registration DTOs ==========

type RegisterTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform"`
}

type RegisterTokenDirectRequest struct {
	Token     string `json:"token" binding:"required"`
	DeviceID  string `json:"deviceId" binding:"required"`
	Platform  string `json:"platform"`
	Timestamp string `json:"timestamp"`
}

type RegisterTokenAlternativeRequest struct {
	Token       string `json:"token" binding:"required"`
	DeviceID    string `json:"deviceId" binding:"required"`
	Platform    string `json:"platform"`
	ForceUpdate bool   `json:"forceUpdate"` // drop every other token of this device first
	Timestamp   string `json:"timestamp"`
}

type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

type RegisterResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Settings DeviceConfig `json:"settings"`
}

// ========== Settings DTOs ==========

type SetRegionRequest struct {
	Region   Region `json:"region" binding:"required"`
	DeviceID string `json:"deviceId"` // empty = global defaults
}

type SetMinMagnitudeRequest struct {
	Magnitude *float64 `json:"magnitude" binding:"required,gt=0"`
	DeviceID  string   `json:"deviceId" binding:"required"`
}

type SetLocationFilterRequest struct {
	Latitude      *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude     *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
	MaxDistanceKm *float64 `json:"maxDistanceKm" binding:"omitempty,gt=0"`
	Enabled       *bool    `json:"enabled"`
	DeviceID      string   `json:"deviceId" binding:"required"`
}

type ToggleFilterRequest struct {
	Enabled  *bool  `json:"enabled" binding:"required"`
	DeviceID string `json:"deviceId"`
}

type SettingsResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message,omitempty"`
	Settings DeviceConfig `json:"settings"`
}

// ========== Check & Test DTOs ==========

type TestNotificationRequest struct {
	Token     string   `json:"token" binding:"required"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	DeviceID  string   `json:"deviceId"`
	Magnitude *float64 `json:"magnitude"`
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Depth     *float64 `json:"depth"`
}

type TestNotificationResponse struct {
	Success bool         `json:"success"`
	Details EventSummary `json:"details"`
}

type TestDistanceRequest struct {
	Lat1     *float64 `json:"lat1" binding:"required"`
	Lon1     *float64 `json:"lon1" binding:"required"`
	Lat2     *float64 `json:"lat2" binding:"required"`
	Lon2     *float64 `json:"lon2" binding:"required"`
	DeviceID string   `json:"deviceId"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type DistanceSettings struct {
	MaxDistanceKm    float64 `json:"maxDistanceKm"`
	FilterByDistance bool    `json:"filterByDistance"`
	WithinRange      *bool   `json:"withinRange"`
}

type DistancePoints struct {
	Point1 Coordinate `json:"point1"`
	Point2 Coordinate `json:"point2"`
}

type TestDistanceResponse struct {
	Success        bool              `json:"success"`
	Distance       float64           `json:"distance"`
	DistanceKm     string            `json:"distanceKm"`
	Coordinates    DistancePoints    `json:"coordinates"`
	DeviceSettings *DistanceSettings `json:"deviceSettings"`
}

// FilterReasons flags which predicates rejected an event
type FilterReasons struct {
	Region    bool `json:"region,omitempty"`
	Magnitude bool `json:"magnitude,omitempty"`
	Distance  bool `json:"distance,omitempty"`
}

type FilteredEvent struct {
	ID        string        `json:"id"`
	Magnitude float64       `json:"magnitude"`
	Place     string        `json:"place"`
	Distance  *float64      `json:"distance"`
	Reason    FilterReasons `json:"reason"`
}

type FilteredSummary struct {
	Count       int             `json:"count"`
	ByRegion    int             `json:"byRegion"`
	ByMagnitude int             `json:"byMagnitude"`
	ByDistance  int             `json:"byDistance"`
	Earthquakes []FilteredEvent `json:"earthquakes"`
}

// CheckReport is returned by a manual check for one device
type CheckReport struct {
	Success                bool            `json:"success"`
	Settings               DeviceConfig    `json:"settings"`
	Total                  int             `json:"total"`
	Filtered               FilteredSummary `json:"filtered"`
	Earthquakes            []Event         `json:"earthquakes"`
	NotificationsCount     int             `json:"notificationsCount"`
	NotifiedQuakes         []EventSummary  `json:"notifiedQuakes"`
	FilteredByNotification int             `json:"filteredByNotification"`
}

// ========== Dispatch & Pass DTOs ==========

type FilteringDetails struct {
	ByRegion    int `json:"byRegion"`
	ByMagnitude int `json:"byMagnitude"`
	ByDistance  int `json:"byDistance"`
}

// DispatchResult aggregates one dispatch call
type DispatchResult struct {
	Delivered            int              `json:"count"`
	Attempted            []EventSummary   `json:"quakes"`
	EndpointsInvalidated int              `json:"endpointsInvalidated"`
	AlreadyNotified      int              `json:"filtered"`
	Unreachable          int              `json:"unreachable"` // admitted but no endpoint to deliver to
	Malformed            int              `json:"malformed"`
	FilteringDetails     FilteringDetails `json:"filteringDetails"`
}

// Merge adds other into r
func (r *DispatchResult) Merge(other DispatchResult) {
	r.Delivered += other.Delivered
	r.Attempted = append(r.Attempted, other.Attempted...)
	r.EndpointsInvalidated += other.EndpointsInvalidated
	r.AlreadyNotified += other.AlreadyNotified
	r.Unreachable += other.Unreachable
	r.Malformed += other.Malformed
	r.FilteringDetails.ByRegion += other.FilteringDetails.ByRegion
	r.FilteringDetails.ByMagnitude += other.FilteringDetails.ByMagnitude
	r.FilteringDetails.ByDistance += other.FilteringDetails.ByDistance
}

// PassReport summarizes one poll cycle
type PassReport struct {
	ID                   string        `json:"id"`
	Trigger              string        `json:"trigger"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	Fetched              int           `json:"fetched"`
	Devices              int           `json:"devices"`
	Delivered            int           `json:"delivered"`
	EndpointsInvalidated int           `json:"endpoints_invalidated"`
	Skipped              bool          `json:"skipped"`
}

// ========== Admin DTOs ==========

type TokenListResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Tokens  []string `json:"tokens"`
}

type ResetDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

type ResetDeviceResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ClearedTokens int    `json:"clearedTokens"`
}

type LedgerStats struct {
	EndpointSets    int `json:"endpoint_sets"`
	DeviceSets      int `json:"device_sets"`
	EndpointEntries int `json:"endpoint_entries"`
	DeviceEntries   int `json:"device_entries"`
}

type EngineStats struct {
	Endpoints       int         `json:"endpoints"`
	MappedEndpoints int         `json:"mapped_endpoints"`
	Devices         int         `json:"devices"`
	Ledger          LedgerStats `json:"ledger"`
	PollerState     string      `json:"poller_state"`
	AuditConsoles   int         `json:"audit_consoles"` // consoles connected to this instance
	LastPass        *PassReport `json:"last_pass,omitempty"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket event types
const (
	WSEventNotificationAttempt = "notification_attempt"
	WSEventEndpointRemoved     = "endpoint_removed"
	WSEventPassCompleted       = "pass_completed"
)

// AttemptEvent is the audit record of one delivery attempt
type AttemptEvent struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"` // targeted | broadcast
	DeviceID string    `json:"device_id,omitempty"`
	Endpoint string    `json:"endpoint"` // masked token
	EventID  string    `json:"event_id"`
	Attempt  int       `json:"attempt"`
	Outcome  string    `json:"outcome"` // delivered | transient | permanent
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// ========== Common ==========

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
