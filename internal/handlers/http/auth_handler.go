package http

import (
	"net/http"
	"strings"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/internal/core/services"
	"carebridge/pkg/errors"
	"carebridge/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService   *services.AuthService
	consultations ports.ConsultationService
}

func NewAuthHandler(authService *services.AuthService, consultations ports.ConsultationService) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		consultations: consultations,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/participant-token", h.IssueParticipantToken)
	}
}

// ParticipantTokenRequest asks for a signaling token. Patients identify by
// consultation and receive the patient id minted for it; providers name
// themselves.
type ParticipantTokenRequest struct {
	Role           string `json:"role" binding:"required"`
	ParticipantID  string `json:"participant_id" binding:"max=100"`
	ConsultationID string `json:"consultation_id" binding:"max=100"`
}

func (h *AuthHandler) IssueParticipantToken(c *gin.Context) {
	var req ParticipantTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	role, err := domain.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	var participantID domain.ParticipantID
	switch role {
	case domain.RolePatient:
		if err := validation.ValidateID(req.ConsultationID, "consultation_id"); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
		consultation, err := h.consultations.GetConsultation(c.Request.Context(), domain.ConsultationID(req.ConsultationID))
		if err != nil {
			c.Error(err)
			return
		}
		if consultation.Status == domain.ConsultationCompleted {
			c.Error(errors.NewInvalidStateError("consultation already completed"))
			return
		}
		participantID = consultation.PatientID
	case domain.RoleProvider:
		if err := validation.ValidateID(req.ParticipantID, "participant_id"); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
		participantID = domain.ParticipantID(req.ParticipantID)
	}

	token, expiresAt, err := h.authService.IssueParticipantToken(participantID, role)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"token_type":     "Bearer",
		"participant_id": participantID,
		"role":           role,
		"expires_at":     expiresAt,
	})
}
