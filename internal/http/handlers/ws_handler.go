// README: Websocket endpoint attaching a driver to the broadcast hub.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ridebid/internal/logger"
	"ridebid/internal/modules/broadcast"
)

type WSHandler struct {
	hub *broadcast.Hub
	log logger.Logger

	upgrader websocket.Upgrader
}

func NewWSHandler(hub *broadcast.Hub, log logger.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth already ran; mobile clients send no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Connect(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed for %s: %v", driverID, err)
		return
	}
	broadcast.NewClient(h.hub, conn, driverID, h.log).Start()
}
