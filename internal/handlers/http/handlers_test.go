package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/internal/core/services"
	"carebridge/internal/infrastructure/middleware"
	rtc "carebridge/internal/infrastructure/webrtc"
	"carebridge/pkg/config"
	"carebridge/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockConsultationService struct {
	mock.Mock
}

var _ ports.ConsultationService = (*mockConsultationService)(nil)

func (m *mockConsultationService) CreateConsultation(ctx context.Context, triageSessionID domain.TriageSessionID, patientName string) (*domain.Consultation, error) {
	args := m.Called(ctx, triageSessionID, patientName)
	c, _ := args.Get(0).(*domain.Consultation)
	return c, args.Error(1)
}

func (m *mockConsultationService) GetConsultation(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*domain.Consultation)
	return c, args.Error(1)
}

func (m *mockConsultationService) ListQueue(ctx context.Context, now time.Time) ([]domain.QueueEntry, error) {
	args := m.Called(ctx, now)
	q, _ := args.Get(0).([]domain.QueueEntry)
	return q, args.Error(1)
}

func (m *mockConsultationService) StartConsultation(ctx context.Context, id domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error) {
	args := m.Called(ctx, id, providerID)
	c, _ := args.Get(0).(*domain.Call)
	return c, args.Error(1)
}

func (m *mockConsultationService) EndConsultation(ctx context.Context, id domain.ConsultationID, notes string) error {
	return m.Called(ctx, id, notes).Error(0)
}

type mockTriageService struct {
	mock.Mock
}

var _ ports.TriageService = (*mockTriageService)(nil)

func (m *mockTriageService) RecordSession(ctx context.Context, input ports.TriageInput) (*domain.TriageSession, error) {
	args := m.Called(ctx, input)
	s, _ := args.Get(0).(*domain.TriageSession)
	return s, args.Error(1)
}

func (m *mockTriageService) GetSession(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*domain.TriageSession)
	return s, args.Error(1)
}

func (m *mockTriageService) UrgencyStats(ctx context.Context) (map[domain.Urgency]int, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(map[domain.Urgency]int)
	return s, args.Error(1)
}

func newRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestConsultationHandler_Create(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	svc.On("CreateConsultation", mock.Anything, domain.TriageSessionID("triage-1"), "Ada Lovelace").
		Return(&domain.Consultation{ID: "cons-1", PatientID: "patient-1", Urgency: domain.UrgencyEmergency}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/consultations", gin.H{
		"triage_session_id": "triage-1",
		"patient_name":      "Ada Lovelace",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cons-1", body["consultation_id"])
	assert.Equal(t, "patient-1", body["patient_id"])
	assert.Equal(t, "Emergency", body["urgency_level"])
	svc.AssertExpectations(t)
}

func TestConsultationHandler_CreateRejectsMissingFields(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	w := doJSON(router, http.MethodPost, "/api/v1/consultations", gin.H{"patient_name": "Ada"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["error"])
	svc.AssertNotCalled(t, "CreateConsultation", mock.Anything, mock.Anything, mock.Anything)
}

func TestConsultationHandler_ListQueue(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	before := time.Now()
	svc.On("ListQueue", mock.Anything, mock.MatchedBy(func(now time.Time) bool {
		return !now.Before(before) && time.Since(now) < time.Minute
	})).Return([]domain.QueueEntry{
		{Position: 1, ConsultationID: "cons-2", Urgency: domain.UrgencyEmergency},
		{Position: 2, ConsultationID: "cons-1", Urgency: domain.UrgencyRoutine},
	}, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/consultations/queue", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	queue := body["queue"].([]interface{})
	assert.Equal(t, "cons-2", queue[0].(map[string]interface{})["consultation_id"])
}

func TestConsultationHandler_StartMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", errors.NewConflictError("consultation already being handled"), http.StatusConflict, "CONFLICT"},
		{"not found", errors.NewNotFoundError("consultation"), http.StatusNotFound, "NOT_FOUND"},
		{"invalid state", errors.NewInvalidStateError("consultation is not waiting"), http.StatusConflict, "INVALID_STATE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockConsultationService)
			router := newRouter()
			NewConsultationHandler(svc).SetupRoutes(router)

			svc.On("StartConsultation", mock.Anything, domain.ConsultationID("cons-1"), domain.ParticipantID("doc-1")).
				Return(nil, tc.err)

			w := doJSON(router, http.MethodPost, "/api/v1/consultations/cons-1/start", gin.H{"provider_id": "doc-1"})

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w)["error"])
		})
	}
}

func TestConsultationHandler_Start(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	svc.On("StartConsultation", mock.Anything, domain.ConsultationID("cons-1"), domain.ParticipantID("doc-1")).
		Return(&domain.Call{
			ID:             "call-1",
			ConsultationID: "cons-1",
			PatientID:      "patient-1",
			ProviderID:     "doc-1",
			State:          domain.CallConnecting,
		}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/consultations/cons-1/start", gin.H{"provider_id": "doc-1"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "call-1", body["call_id"])
	assert.Equal(t, "connecting", body["state"])
	assert.Equal(t, "doc-1", body["offerer"])
}

func TestConsultationHandler_StartRequiresProvider(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	w := doJSON(router, http.MethodPost, "/api/v1/consultations/cons-1/start", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsultationHandler_End(t *testing.T) {
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router)

	svc.On("EndConsultation", mock.Anything, domain.ConsultationID("cons-1"), "follow up in 2 weeks").Return(nil)
	svc.On("EndConsultation", mock.Anything, domain.ConsultationID("cons-2"), "").Return(nil)

	w := doJSON(router, http.MethodPost, "/api/v1/consultations/cons-1/end", gin.H{"notes": "follow up in 2 weeks"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = doJSON(router, http.MethodPost, "/api/v1/consultations/cons-2/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestConsultationHandler_ProviderAuth(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)
	svc := new(mockConsultationService)
	router := newRouter()
	NewConsultationHandler(svc).SetupRoutes(router, middleware.RequireRole(auth, domain.RoleProvider))

	svc.On("StartConsultation", mock.Anything, domain.ConsultationID("cons-1"), domain.ParticipantID("doc-7")).
		Return(&domain.Call{ID: "call-1", ConsultationID: "cons-1", ProviderID: "doc-7", State: domain.CallConnecting}, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/consultations/queue", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	patientToken, _, err := auth.IssueParticipantToken("patient-1", domain.RolePatient)
	require.NoError(t, err)
	w = doJSON(router, http.MethodGet, "/api/v1/consultations/queue", nil, "Authorization", "Bearer "+patientToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// the token identity wins over the body
	providerToken, _, err := auth.IssueParticipantToken("doc-7", domain.RoleProvider)
	require.NoError(t, err)
	w = doJSON(router, http.MethodPost, "/api/v1/consultations/cons-1/start", gin.H{"provider_id": "doc-1"},
		"Authorization", "Bearer "+providerToken)
	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestTriageHandler(t *testing.T) {
	svc := new(mockTriageService)
	router := newRouter()
	NewTriageHandler(svc).SetupRoutes(router)

	svc.On("RecordSession", mock.Anything, ports.TriageInput{
		Urgency:    "emergency",
		Summary:    "chest pain radiating to left arm",
		Confidence: 0.92,
	}).Return(&domain.TriageSession{ID: "triage-1", Urgency: domain.UrgencyEmergency}, nil)
	svc.On("GetSession", mock.Anything, domain.TriageSessionID("missing")).Return(nil, errors.NewNotFoundError("triage session"))
	svc.On("UrgencyStats", mock.Anything).Return(map[domain.Urgency]int{domain.UrgencyRoutine: 3, domain.UrgencyEmergency: 1}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/triage/sessions", gin.H{
		"urgency_level":    "emergency",
		"summary":          "chest pain radiating to left arm",
		"confidence_score": 0.92,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	session := decode(t, w)["session"].(map[string]interface{})
	assert.Equal(t, "triage-1", session["id"])

	w = doJSON(router, http.MethodGet, "/api/v1/triage/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/triage/urgency-stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 4, body["total"])
	stats := body["urgency_stats"].(map[string]interface{})
	assert.EqualValues(t, 0, stats["Self-Care"])
	assert.EqualValues(t, 3, stats["Routine"])
}

func TestAuthHandler_IssueParticipantToken(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)
	svc := new(mockConsultationService)
	router := newRouter()
	NewAuthHandler(auth, svc).SetupRoutes(router)

	svc.On("GetConsultation", mock.Anything, domain.ConsultationID("cons-1")).
		Return(&domain.Consultation{ID: "cons-1", PatientID: "patient-9", Status: domain.ConsultationWaiting}, nil)
	svc.On("GetConsultation", mock.Anything, domain.ConsultationID("cons-done")).
		Return(&domain.Consultation{ID: "cons-done", PatientID: "patient-3", Status: domain.ConsultationCompleted}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/participant-token", gin.H{"role": "patient", "consultation_id": "cons-1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "patient-9", body["participant_id"])

	claims, err := auth.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("patient-9"), claims.ParticipantID)
	assert.Equal(t, domain.RolePatient, claims.Role)

	w = doJSON(router, http.MethodPost, "/api/v1/auth/participant-token", gin.H{"role": "provider", "participant_id": "doc-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-1", decode(t, w)["participant_id"])

	w = doJSON(router, http.MethodPost, "/api/v1/auth/participant-token", gin.H{"role": "patient", "consultation_id": "cons-done"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/auth/participant-token", gin.H{"role": "nurse", "participant_id": "n-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebRTCHandler_GetConfig(t *testing.T) {
	ice, err := rtc.NewICEConfig([]config.ICEServer{
		{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"},
	}, "relay")
	require.NoError(t, err)

	router := newRouter()
	NewWebRTCHandler(ice).SetupRoutes(router)

	w := doJSON(router, http.MethodGet, "/api/v1/webrtc/config", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "relay", body["iceTransportPolicy"])
	assert.Equal(t, "provider", body["offerer"])
	servers := body["iceServers"].([]interface{})
	require.Len(t, servers, 1)
	server := servers[0].(map[string]interface{})
	assert.Equal(t, []interface{}{"turn:turn.example.org:3478"}, server["urls"])
	assert.Equal(t, "u", server["username"])
}
