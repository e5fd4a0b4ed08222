package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUrgency(t *testing.T) {
	cases := map[string]Urgency{
		"Emergency": UrgencyEmergency,
		"urgent":    UrgencyUrgent,
		" ROUTINE ": UrgencyRoutine,
		"self-care": UrgencySelfCare,
		"SELF_CARE": UrgencySelfCare,
	}
	for in, want := range cases {
		got, err := ParseUrgency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseUrgency("critical")
	assert.Error(t, err)
}

func TestUrgencyRank(t *testing.T) {
	for i := 1; i < len(Urgencies); i++ {
		assert.Less(t, Urgencies[i-1].Rank(), Urgencies[i].Rank())
	}
	assert.False(t, Urgency("Unknown").Valid())
	assert.Greater(t, Urgency("Unknown").Rank(), UrgencySelfCare.Rank())
}

func TestProjectQueue_Order(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cs := []*Consultation{
		{ID: "r1", Urgency: UrgencyRoutine, Status: ConsultationWaiting, CreatedAt: base},
		{ID: "e2", Urgency: UrgencyEmergency, Status: ConsultationWaiting, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "e1b", Urgency: UrgencyEmergency, Status: ConsultationWaiting, CreatedAt: base.Add(time.Minute)},
		{ID: "e1a", Urgency: UrgencyEmergency, Status: ConsultationWaiting, CreatedAt: base.Add(time.Minute)},
		{ID: "u1", Urgency: UrgencyUrgent, Status: ConsultationWaiting, CreatedAt: base.Add(-time.Hour)},
		{ID: "busy", Urgency: UrgencyEmergency, Status: ConsultationInProgress, CreatedAt: base},
		{ID: "done", Urgency: UrgencyEmergency, Status: ConsultationCompleted, CreatedAt: base},
	}

	entries := ProjectQueue(cs, base.Add(10*time.Minute))

	var ids []ConsultationID
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
		ids = append(ids, e.ConsultationID)
	}
	assert.Equal(t, []ConsultationID{"e1a", "e1b", "e2", "u1", "r1"}, ids)
	assert.Equal(t, 10, entries[4].WaitMinutes)
	assert.Equal(t, 70, entries[3].WaitMinutes)
}

func TestProjectQueue_WaitMinutesRounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cs := []*Consultation{
		{ID: "a", Urgency: UrgencyRoutine, Status: ConsultationWaiting, CreatedAt: now.Add(-89 * time.Second)},
		{ID: "b", Urgency: UrgencyRoutine, Status: ConsultationWaiting, CreatedAt: now.Add(-29 * time.Second)},
		{ID: "c", Urgency: UrgencyRoutine, Status: ConsultationWaiting, CreatedAt: now.Add(time.Second)},
	}

	entries := ProjectQueue(cs, now)
	require.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].WaitMinutes)
	assert.Equal(t, 0, entries[1].WaitMinutes)
	assert.Equal(t, 0, entries[2].WaitMinutes)
}

func TestCall_Transitions(t *testing.T) {
	cases := []struct {
		from CallState
		to   CallState
		ok   bool
	}{
		{CallConnecting, CallActive, true},
		{CallConnecting, CallEnded, true},
		{CallActive, CallEnded, true},
		{CallActive, CallConnecting, false},
		{CallActive, CallActive, false},
		{CallEnded, CallActive, false},
		{CallEnded, CallConnecting, false},
		{CallEnded, CallEnded, false},
	}
	for _, tc := range cases {
		c := &Call{State: tc.from}
		assert.Equal(t, tc.ok, c.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCall_Counterpart(t *testing.T) {
	c := &Call{PatientID: "p", ProviderID: "d"}

	other, ok := c.Counterpart("p")
	assert.True(t, ok)
	assert.Equal(t, ParticipantID("d"), other)

	other, ok = c.Counterpart("d")
	assert.True(t, ok)
	assert.Equal(t, ParticipantID("p"), other)

	_, ok = c.Counterpart("x")
	assert.False(t, ok)
	assert.Equal(t, ParticipantID("d"), c.Offerer())
}

func TestSignalKindMapping(t *testing.T) {
	for _, k := range []SignalKind{SignalOffer, SignalAnswer, SignalIceCandidate} {
		back, ok := SignalKindFor(k.EventType())
		require.True(t, ok)
		assert.Equal(t, k, back)
	}
	_, ok := SignalKindFor(EventStartCall)
	assert.False(t, ok)
}
