package domain

import "time"

type TriageSessionID string

// TriageSession is the result handed over by the external triage step.
type TriageSession struct {
	ID                 TriageSessionID `json:"id"`
	Urgency            Urgency         `json:"urgency_level"`
	Summary            string          `json:"summary"`
	RecommendedActions []string        `json:"recommended_actions,omitempty"`
	Confidence         float64         `json:"confidence_score"`
	CreatedAt          time.Time       `json:"created_at"`
}
