package domain

import (
	"sort"
	"time"

	"carebridge/pkg/utils"
)

// QueueLess is the queue order: urgency rank, then creation time, then id.
func QueueLess(a, b *Consultation) bool {
	if ra, rb := a.Urgency.Rank(), b.Urgency.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ProjectQueue derives the ordered queue from a set of consultations.
// Only Waiting consultations appear; the input is not modified.
func ProjectQueue(consultations []*Consultation, now time.Time) []QueueEntry {
	waiting := make([]*Consultation, 0, len(consultations))
	for _, c := range consultations {
		if c != nil && c.Status == ConsultationWaiting {
			waiting = append(waiting, c)
		}
	}

	sort.Slice(waiting, func(i, j int) bool {
		return QueueLess(waiting[i], waiting[j])
	})

	entries := make([]QueueEntry, 0, len(waiting))
	for i, c := range waiting {
		entries = append(entries, QueueEntry{
			Position:       i + 1,
			ConsultationID: c.ID,
			PatientID:      c.PatientID,
			PatientName:    c.PatientName,
			Urgency:        c.Urgency,
			TriageSummary:  c.TriageSummary,
			CreatedAt:      c.CreatedAt,
			WaitMinutes:    utils.WholeMinutes(now.Sub(c.CreatedAt)),
		})
	}
	return entries
}
