package http

import (
	"net/http"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TriageHandler accepts the output of the external triage step. No scoring
// happens here; the urgency arrives already decided.
type TriageHandler struct {
	triage ports.TriageService
}

func NewTriageHandler(triage ports.TriageService) *TriageHandler {
	return &TriageHandler{triage: triage}
}

func (h *TriageHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/triage")
	{
		api.POST("/sessions", h.RecordSession)
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/urgency-stats", h.UrgencyStats)
	}
}

type RecordSessionRequest struct {
	UrgencyLevel       string   `json:"urgency_level" binding:"required"`
	Summary            string   `json:"summary" binding:"required"`
	RecommendedActions []string `json:"recommended_actions" binding:"max=50"`
	ConfidenceScore    float64  `json:"confidence_score"`
}

func (h *TriageHandler) RecordSession(c *gin.Context) {
	var req RecordSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	session, err := h.triage.RecordSession(c.Request.Context(), ports.TriageInput{
		Urgency:            req.UrgencyLevel,
		Summary:            req.Summary,
		RecommendedActions: req.RecommendedActions,
		Confidence:         req.ConfidenceScore,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *TriageHandler) GetSession(c *gin.Context) {
	session, err := h.triage.GetSession(c.Request.Context(), domain.TriageSessionID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *TriageHandler) UrgencyStats(c *gin.Context) {
	counts, err := h.triage.UrgencyStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	stats := make(map[domain.Urgency]int, len(domain.Urgencies))
	total := 0
	for _, u := range domain.Urgencies {
		stats[u] = counts[u]
		total += counts[u]
	}
	c.JSON(http.StatusOK, gin.H{
		"urgency_stats": stats,
		"total":         total,
	})
}
