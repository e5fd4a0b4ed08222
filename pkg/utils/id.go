package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a prefixed random UUID, e.g. "call_5f0c...".
func GenerateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func GenerateConsultationID() string { return GenerateID("cons") }

func GenerateCallID() string { return GenerateID("call") }

func GeneratePatientID() string { return GenerateID("patient") }

func GenerateTriageSessionID() string { return GenerateID("triage") }

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return GenerateID("req")
}
