package http

import (
	"io"
	"net/http"
	"strings"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/internal/infrastructure/middleware"
	"carebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ConsultationHandler struct {
	consultations ports.ConsultationService
}

func NewConsultationHandler(consultations ports.ConsultationService) *ConsultationHandler {
	return &ConsultationHandler{consultations: consultations}
}

// SetupRoutes registers the consultation endpoints. providerAuth guards the
// provider-only routes; pass nothing when participant tokens are disabled.
func (h *ConsultationHandler) SetupRoutes(router *gin.Engine, providerAuth ...gin.HandlerFunc) {
	api := router.Group("/api/v1/consultations")
	{
		api.POST("", h.CreateConsultation)
		api.GET("/:id", h.GetConsultation)

		provider := api.Group("", providerAuth...)
		provider.GET("/queue", h.ListQueue)
		provider.POST("/:id/start", h.StartConsultation)
		provider.POST("/:id/end", h.EndConsultation)
	}
}

type CreateConsultationRequest struct {
	TriageSessionID string `json:"triage_session_id" binding:"required,max=100"`
	PatientName     string `json:"patient_name" binding:"required,max=120"`
}

type StartConsultationRequest struct {
	ProviderID string `json:"provider_id" binding:"max=100"`
}

type EndConsultationRequest struct {
	Notes string `json:"notes"`
}

func (h *ConsultationHandler) CreateConsultation(c *gin.Context) {
	var req CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	consultation, err := h.consultations.CreateConsultation(
		c.Request.Context(),
		domain.TriageSessionID(strings.TrimSpace(req.TriageSessionID)),
		req.PatientName,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"consultation_id": consultation.ID,
		"patient_id":      consultation.PatientID,
		"urgency_level":   consultation.Urgency,
	})
}

func (h *ConsultationHandler) GetConsultation(c *gin.Context) {
	consultation, err := h.consultations.GetConsultation(c.Request.Context(), domain.ConsultationID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultation": consultation})
}

func (h *ConsultationHandler) ListQueue(c *gin.Context) {
	queue, err := h.consultations.ListQueue(c.Request.Context(), time.Now())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"queue": queue,
		"count": len(queue),
	})
}

func (h *ConsultationHandler) StartConsultation(c *gin.Context) {
	var req StartConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	// An authenticated provider can only start calls as themselves.
	providerID := domain.ParticipantID(strings.TrimSpace(req.ProviderID))
	if id, ok := middleware.ParticipantFromContext(c); ok {
		providerID = id
	}
	if providerID == "" {
		c.Error(errors.NewInvalidInputError("provider_id is required"))
		return
	}

	call, err := h.consultations.StartConsultation(c.Request.Context(), domain.ConsultationID(c.Param("id")), providerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":         call.ID,
		"consultation_id": call.ConsultationID,
		"state":           call.State,
		"offerer":         call.Offerer(),
	})
}

func (h *ConsultationHandler) EndConsultation(c *gin.Context) {
	var req EndConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	id := domain.ConsultationID(c.Param("id"))
	if err := h.consultations.EndConsultation(c.Request.Context(), id, req.Notes); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consultation_id": id,
		"status":          domain.ConsultationCompleted,
	})
}
