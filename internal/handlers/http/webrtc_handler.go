package http

import (
	"net/http"

	"carebridge/internal/core/domain"
	rtc "carebridge/internal/infrastructure/webrtc"

	"github.com/gin-gonic/gin"
)

// WebRTCHandler hands browsers the ICE setup for consultation calls.
type WebRTCHandler struct {
	ice *rtc.ICEConfig
}

func NewWebRTCHandler(ice *rtc.ICEConfig) *WebRTCHandler {
	return &WebRTCHandler{ice: ice}
}

func (h *WebRTCHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/api/v1/webrtc/config", h.GetConfig)
}

func (h *WebRTCHandler) GetConfig(c *gin.Context) {
	cfg := h.ice.Configuration()
	c.JSON(http.StatusOK, gin.H{
		"iceServers":         cfg.ICEServers,
		"iceTransportPolicy": cfg.ICETransportPolicy.String(),
		// provider creates the offer, patient answers
		"offerer": domain.RoleProvider,
	})
}
