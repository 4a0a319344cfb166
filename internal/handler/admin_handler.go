package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/internal/service"
	"github.com/quocanhngo/quakealert/internal/ws"
)

// AdminHandler exposes operator endpoints over the engine and poller
type AdminHandler struct {
	engine *service.Engine
	poller *service.Poller
	hub    *ws.Hub // may be nil
}

func NewAdminHandler(engine *service.Engine, poller *service.Poller, hub *ws.Hub) *AdminHandler {
	return &AdminHandler{engine: engine, poller: poller, hub: hub}
}

// Tokens godoc
// @Summary List registered push tokens
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.TokenListResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /tokens [get]
func (h *AdminHandler) Tokens(c *gin.Context) {
	tokens := h.engine.Registry().Endpoints()
	c.JSON(http.StatusOK, model.TokenListResponse{Success: true, Count: len(tokens), Tokens: tokens})
}

// DeleteToken godoc
// @Summary Remove a push token
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param token path string true "Push token"
// @Success 200 {object} model.SuccessResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /token/{token} [delete]
func (h *AdminHandler) DeleteToken(c *gin.Context) {
	token := c.Param("token")
	if err := h.engine.Registry().RemoveEndpoint(token); err != nil {
		if errors.Is(err, registry.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to remove token", Message: err.Error()})
		return
	}

	log.Printf("🗑️  Token removed by operator: %s", registry.Mask(token))
	c.JSON(http.StatusOK, model.SuccessResponse{Success: true, Message: "Token removed"})
}

// ResetNotifications godoc
// @Summary Clear all notification history
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Router /reset-notifications [post]
func (h *AdminHandler) ResetNotifications(c *gin.Context) {
	h.engine.ResetAll()
	c.JSON(http.StatusOK, model.SuccessResponse{Success: true, Message: "Notification history cleared"})
}

// ResetDeviceNotifications godoc
// @Summary Clear the notification history of one device and its tokens
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.ResetDeviceRequest true "Device to reset"
// @Success 200 {object} model.ResetDeviceResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /reset-device-notifications [post]
func (h *AdminHandler) ResetDeviceNotifications(c *gin.Context) {
	var req model.ResetDeviceRequest
	if !bind(c, &req) {
		return
	}

	cleared, err := h.engine.ResetDevice(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.ResetDeviceResponse{
		Success:       true,
		Message:       fmt.Sprintf("Notification history cleared for device %s", req.DeviceID),
		ClearedTokens: cleared,
	})
}

// TestCron godoc
// @Summary Run a poll pass now and restart the poll ticker
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /test-cron [get]
func (h *AdminHandler) TestCron(c *gin.Context) {
	report, err := h.poller.Trigger(c.Request.Context())
	if errors.Is(err, service.ErrPassInProgress) {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "Poll pass already running", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Poll pass failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Poll ticker restarted with interval %s and executed immediately", h.poller.Interval()),
		Data:    report,
	})
}

// Stats godoc
// @Summary Registry, ledger and poller state
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.EngineStats
// @Router /stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats := h.engine.Stats()
	if h.hub != nil {
		stats.AuditConsoles = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, stats)
}

// Maintain godoc
// @Summary Prune notification history and drop tokens the push service rejects
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Router /maintenance [post]
func (h *AdminHandler) Maintain(c *gin.Context) {
	pruned, removed := h.engine.Maintain(c.Request.Context())
	c.JSON(http.StatusOK, model.SuccessResponse{
		Success: true,
		Message: "Maintenance completed",
		Data:    gin.H{"prunedSets": pruned, "removedTokens": removed},
	})
}
