package domain

import (
	"time"
)

type ConsultationID string

type ConsultationStatus string

const (
	ConsultationWaiting    ConsultationStatus = "waiting"
	ConsultationInProgress ConsultationStatus = "in_progress"
	ConsultationCompleted  ConsultationStatus = "completed"
)

type Consultation struct {
	ID              ConsultationID     `json:"id"`
	PatientID       ParticipantID      `json:"patient_id"`
	PatientName     string             `json:"patient_name"`
	TriageSessionID TriageSessionID    `json:"triage_session_id"`
	TriageSummary   string             `json:"triage_summary"`
	Urgency         Urgency            `json:"urgency_level"`
	Status          ConsultationStatus `json:"status"`
	ProviderID      ParticipantID      `json:"provider_id,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// QueueEntry is the provider-facing view of a waiting consultation.
type QueueEntry struct {
	Position       int            `json:"position"`
	ConsultationID ConsultationID `json:"consultation_id"`
	PatientID      ParticipantID  `json:"patient_id"`
	PatientName    string         `json:"patient_name"`
	Urgency        Urgency        `json:"urgency_level"`
	TriageSummary  string         `json:"triage_summary"`
	CreatedAt      time.Time      `json:"created_at"`
	WaitMinutes    int            `json:"wait_minutes"`
}
