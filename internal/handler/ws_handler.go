package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/quakealert/internal/middleware"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/ws"
	"github.com/quocanhngo/quakealert/pkg/auth"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // admin JWT is the gate
	},
}

// WSHandler serves the live delivery audit stream
type WSHandler struct {
	hub        *ws.Hub
	jwtManager *auth.JWTManager
	rdb        *redis.Client // revocation list, may be nil
}

func NewWSHandler(hub *ws.Hub, jwtManager *auth.JWTManager, rdb *redis.Client) *WSHandler {
	return &WSHandler{
		hub:        hub,
		jwtManager: jwtManager,
		rdb:        rdb,
	}
}

// HandleWebSocket godoc
// @Summary Live delivery audit stream
// @Description Upgrades to a WebSocket that streams notification attempts, endpoint removals and pass reports.
// @Description Send {"type":"follow_device","payload":{"deviceId":"<id>"}} to narrow the stream, {"type":"follow_all"} to widen it.
// @Tags Admin
// @Param token query string true "Admin JWT"
// @Success 101
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// browsers can't set headers on a WebSocket handshake
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid token"})
		return
	}

	if err := middleware.CheckRevoked(c.Request.Context(), h.rdb, claims.ID); err != nil {
		if errors.Is(err, middleware.ErrTokenRevoked) {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token has been revoked"})
			return
		}
		log.Printf("❌ WS auth failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.Subject)
	h.hub.Register(client)

	log.Printf("✅ WS Connected: subject=%s", claims.Subject)

	go client.WritePump()
	go client.ReadPump()
}
