package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/geo"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/service"
)

// CheckHandler handles manual checks and diagnostic sends
type CheckHandler struct {
	engine *service.Engine
}

func NewCheckHandler(engine *service.Engine) *CheckHandler {
	return &CheckHandler{engine: engine}
}

// CheckEarthquakes godoc
// @Summary Check recent earthquakes for a device
// @Description Fetches the feed, reports how the device's filters treat each event and notifies the device of admitted events it has not seen.
// @Tags Checks
// @Produce json
// @Param deviceId query string true "Device ID"
// @Success 200 {object} model.CheckReport
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /check-earthquakes [get]
func (h *CheckHandler) CheckEarthquakes(c *gin.Context) {
	report, err := h.engine.CheckDevice(c.Request.Context(), c.Query("deviceId"))
	if errors.Is(err, service.ErrDeviceIDRequired) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Device ID is required as a query parameter"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Check failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// TestNotification godoc
// @Summary Send a test notification to one token
// @Description Missing event fields fall back to a magnitude 5.0 event in Bangkok. Notification history is not affected.
// @Tags Checks
// @Accept json
// @Produce json
// @Param body body model.TestNotificationRequest true "Test notification request"
// @Success 200 {object} model.TestNotificationResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /test-notification [post]
func (h *CheckHandler) TestNotification(c *gin.Context) {
	var req model.TestNotificationRequest
	if !bind(c, &req) {
		return
	}

	details, err := h.engine.SendTest(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to send test notification", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.TestNotificationResponse{Success: true, Details: details})
}

// TestDistance godoc
// @Summary Compute the great-circle distance between two points
// @Description With deviceId the device's distance filter is evaluated against the result.
// @Tags Checks
// @Accept json
// @Produce json
// @Param body body model.TestDistanceRequest true "Two coordinates"
// @Success 200 {object} model.TestDistanceResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /test-distance [post]
func (h *CheckHandler) TestDistance(c *gin.Context) {
	var req model.TestDistanceRequest
	if !bind(c, &req) {
		return
	}

	km := geo.DistanceKm(*req.Lat1, *req.Lon1, *req.Lat2, *req.Lon2)
	resp := model.TestDistanceResponse{
		Success:    true,
		Distance:   math.Round(km*100) / 100,
		DistanceKm: fmt.Sprintf("%.1f km", km),
		Coordinates: model.DistancePoints{
			Point1: model.Coordinate{Latitude: *req.Lat1, Longitude: *req.Lon1},
			Point2: model.Coordinate{Latitude: *req.Lat2, Longitude: *req.Lon2},
		},
	}

	if req.DeviceID != "" {
		cfg := h.engine.Registry().GetConfig(req.DeviceID)
		settings := &model.DistanceSettings{
			MaxDistanceKm:    cfg.MaxDistanceKm,
			FilterByDistance: cfg.FilterByDistance,
		}
		if cfg.FilterByDistance && cfg.MaxDistanceKm > 0 {
			within := km <= cfg.MaxDistanceKm
			settings.WithinRange = &within
		}
		resp.DeviceSettings = settings
	}

	c.JSON(http.StatusOK, resp)
}
