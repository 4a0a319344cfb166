package handler

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
)

// DeviceHandler handles endpoint registration and device settings
type DeviceHandler struct {
	registry *registry.Registry
}

func NewDeviceHandler(reg *registry.Registry) *DeviceHandler {
	return &DeviceHandler{registry: reg}
}

// RegisterToken godoc
// @Summary Register a push token
// @Description Registers a token and maps it to the device when deviceId is given. Returns the effective settings.
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.RegisterTokenRequest true "Register token request"
// @Success 200 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /register-token [post]
func (h *DeviceHandler) RegisterToken(c *gin.Context) {
	var req model.RegisterTokenRequest
	if !bind(c, &req) {
		return
	}

	settings := h.registry.RegisterEndpoint(req.Token, req.DeviceID, req.Platform)
	msg := "Token registered without device ID"
	if req.DeviceID != "" {
		msg = fmt.Sprintf("Token registered and mapped to device %s", req.DeviceID)
	} else {
		log.Printf("⚠️  Token %s registered without device ID", registry.Mask(req.Token))
	}

	c.JSON(http.StatusOK, model.RegisterResponse{Success: true, Message: msg, Settings: settings})
}

// RegisterTokenDirect godoc
// @Summary Register a push token for a device
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.RegisterTokenDirectRequest true "Direct registration request"
// @Success 200 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /register-token-direct [post]
func (h *DeviceHandler) RegisterTokenDirect(c *gin.Context) {
	var req model.RegisterTokenDirectRequest
	if !bind(c, &req) {
		return
	}

	settings := h.registry.RegisterEndpoint(req.Token, req.DeviceID, req.Platform)
	c.JSON(http.StatusOK, model.RegisterResponse{
		Success:  true,
		Message:  fmt.Sprintf("Token directly registered for device %s", req.DeviceID),
		Settings: settings,
	})
}

// RegisterTokenAlternative godoc
// @Summary Register a push token, optionally replacing the device's other tokens
// @Description With forceUpdate the device's previous tokens are unmapped (they stay registered).
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.RegisterTokenAlternativeRequest true "Alternative registration request"
// @Success 200 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /register-token-alternative [post]
func (h *DeviceHandler) RegisterTokenAlternative(c *gin.Context) {
	var req model.RegisterTokenAlternativeRequest
	if !bind(c, &req) {
		return
	}

	var settings model.DeviceConfig
	if req.ForceUpdate {
		settings = h.registry.ReplaceDeviceEndpoints(req.Token, req.DeviceID, req.Platform)
	} else {
		settings = h.registry.RegisterEndpoint(req.Token, req.DeviceID, req.Platform)
	}

	c.JSON(http.StatusOK, model.RegisterResponse{
		Success:  true,
		Message:  fmt.Sprintf("Token registered via alternative method for device %s", req.DeviceID),
		Settings: settings,
	})
}

// RegisterDevice godoc
// @Summary Register a device with its push token
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.RegisterDeviceRequest true "Register device request"
// @Success 200 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /register-device [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if !bind(c, &req) {
		return
	}

	settings := h.registry.RegisterEndpoint(req.Token, req.DeviceID, "")
	c.JSON(http.StatusOK, model.RegisterResponse{
		Success:  true,
		Message:  "Device registered successfully",
		Settings: settings,
	})
}

// SetRegion godoc
// @Summary Set the region filter
// @Description Without deviceId the global default for new devices is changed.
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body model.SetRegionRequest true "Region request"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /set-region [post]
func (h *DeviceHandler) SetRegion(c *gin.Context) {
	var req model.SetRegionRequest
	if !bind(c, &req) {
		return
	}
	if !req.Region.IsValid() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid region value",
			Message: "valid regions: " + validRegions(),
		})
		return
	}

	apply := func(cfg *model.DeviceConfig) { cfg.Region = req.Region }
	if req.DeviceID == "" {
		settings := h.registry.UpdateDefaults(apply)
		log.Printf("⚙️  Global setting: region set to %q", req.Region)
		c.JSON(http.StatusOK, model.SettingsResponse{
			Success:  true,
			Message:  fmt.Sprintf("Global region set to %q", req.Region),
			Settings: settings,
		})
		return
	}

	settings := h.registry.UpdateConfig(req.DeviceID, apply)
	log.Printf("⚙️  Device %s: region set to %q", req.DeviceID, req.Region)
	c.JSON(http.StatusOK, model.SettingsResponse{
		Success:  true,
		Message:  fmt.Sprintf("Region set to %q for device %s", req.Region, req.DeviceID),
		Settings: settings,
	})
}

// SetMinMagnitude godoc
// @Summary Set the minimum magnitude of a device
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body model.SetMinMagnitudeRequest true "Magnitude request"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /set-min-magnitude [post]
func (h *DeviceHandler) SetMinMagnitude(c *gin.Context) {
	var req model.SetMinMagnitudeRequest
	if !bind(c, &req) {
		return
	}

	settings := h.registry.UpdateConfig(req.DeviceID, func(cfg *model.DeviceConfig) {
		cfg.MinMagnitude = *req.Magnitude
	})
	log.Printf("⚙️  Device %s: minimum magnitude set to %.1f", req.DeviceID, *req.Magnitude)
	c.JSON(http.StatusOK, model.SettingsResponse{Success: true, Settings: settings})
}

// SetLocationFilter godoc
// @Summary Set the user location and distance filter of a device
// @Description Only the provided fields are changed.
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body model.SetLocationFilterRequest true "Location filter request"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /set-location-filter [post]
func (h *DeviceHandler) SetLocationFilter(c *gin.Context) {
	var req model.SetLocationFilterRequest
	if !bind(c, &req) {
		return
	}

	settings := h.registry.UpdateConfig(req.DeviceID, func(cfg *model.DeviceConfig) {
		if req.Latitude != nil {
			lat := *req.Latitude
			cfg.UserLatitude = &lat
		}
		if req.Longitude != nil {
			lon := *req.Longitude
			cfg.UserLongitude = &lon
		}
		if req.MaxDistanceKm != nil {
			cfg.MaxDistanceKm = *req.MaxDistanceKm
		}
		if req.Enabled != nil {
			cfg.FilterByDistance = *req.Enabled
		}
	})
	log.Printf("⚙️  Device %s: location filter updated (enabled=%v maxKm=%.0f)",
		req.DeviceID, settings.FilterByDistance, settings.MaxDistanceKm)
	c.JSON(http.StatusOK, model.SettingsResponse{Success: true, Settings: settings})
}

// ToggleRegionFilter godoc
// @Summary Enable or disable the region filter
// @Description Without deviceId the global default for new devices is changed.
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body model.ToggleFilterRequest true "Toggle request"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /toggle-region-filter [post]
func (h *DeviceHandler) ToggleRegionFilter(c *gin.Context) {
	var req model.ToggleFilterRequest
	if !bind(c, &req) {
		return
	}

	apply := func(cfg *model.DeviceConfig) { cfg.FilterByRegion = *req.Enabled }
	if req.DeviceID == "" {
		settings := h.registry.UpdateDefaults(apply)
		c.JSON(http.StatusOK, model.SettingsResponse{
			Success:  true,
			Message:  "Global region filtering " + enabledWord(*req.Enabled),
			Settings: settings,
		})
		return
	}

	settings := h.registry.UpdateConfig(req.DeviceID, apply)
	c.JSON(http.StatusOK, model.SettingsResponse{
		Success:  true,
		Message:  fmt.Sprintf("Region filtering %s for device %s", enabledWord(*req.Enabled), req.DeviceID),
		Settings: settings,
	})
}

// ToggleMagnitudeFilter godoc
// @Summary Enable or disable the magnitude filter of a device
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body model.ToggleFilterRequest true "Toggle request"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /toggle-magnitude-filter [post]
func (h *DeviceHandler) ToggleMagnitudeFilter(c *gin.Context) {
	var req model.ToggleFilterRequest
	if !bind(c, &req) {
		return
	}
	if req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Device ID is required"})
		return
	}

	settings := h.registry.UpdateConfig(req.DeviceID, func(cfg *model.DeviceConfig) {
		cfg.FilterByMagnitude = *req.Enabled
	})
	c.JSON(http.StatusOK, model.SettingsResponse{
		Success:  true,
		Message:  "Magnitude filtering " + enabledWord(*req.Enabled),
		Settings: settings,
	})
}

// GetSettings godoc
// @Summary Get the settings of a device
// @Description Unknown devices are created with the default settings.
// @Tags Settings
// @Produce json
// @Param deviceId query string true "Device ID"
// @Success 200 {object} model.SettingsResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /get-settings [get]
func (h *DeviceHandler) GetSettings(c *gin.Context) {
	deviceID := c.Query("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Device ID is required as a query parameter"})
		return
	}

	c.JSON(http.StatusOK, model.SettingsResponse{Success: true, Settings: h.registry.GetConfig(deviceID)})
}

// DeviceSettings godoc
// @Summary Get the settings of a device by path
// @Tags Settings
// @Produce json
// @Param deviceId path string true "Device ID"
// @Success 200 {object} model.SettingsResponse
// @Router /device-settings/{deviceId} [get]
func (h *DeviceHandler) DeviceSettings(c *gin.Context) {
	c.JSON(http.StatusOK, model.SettingsResponse{
		Success:  true,
		Settings: h.registry.GetConfig(c.Param("deviceId")),
	})
}

// bind decodes the JSON body into req and writes a 400 on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return false
	}
	return true
}

func validRegions() string {
	names := make([]string, len(model.ValidRegions))
	for i, r := range model.ValidRegions {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
