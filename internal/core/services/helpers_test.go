package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errChannelClosed = errors.New("channel closed")

type fakeChannel struct {
	mu       sync.Mutex
	msgs     []domain.Envelope
	closed   bool
	failSend bool
}

func (f *fakeChannel) Send(msg domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failSend {
		return errChannelClosed
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeChannel) setFailSend(v bool) {
	f.mu.Lock()
	f.failSend = v
	f.mu.Unlock()
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) messages() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope(nil), f.msgs...)
}

func (f *fakeChannel) ofType(t domain.EventType) []domain.Envelope {
	var out []domain.Envelope
	for _, m := range f.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeChannel) last(t domain.EventType) (domain.Envelope, bool) {
	msgs := f.ofType(t)
	if len(msgs) == 0 {
		return domain.Envelope{}, false
	}
	return msgs[len(msgs)-1], true
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.LifecycleEvent) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []domain.LifecycleEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LifecycleEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (p *recordingPublisher) ofType(t domain.LifecycleEventType) []domain.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.LifecycleEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	registry      *SessionRegistry
	queue         *QueueManager
	calls         *CallCoordinator
	relay         *SignalingRelay
	signaling     *SignalingService
	consultations *ConsultationService
	triage        *TriageService
	events        *recordingPublisher
	logs          *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...CoordinatorOption) *harness {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()
	events := &recordingPublisher{}

	registry := NewSessionRegistry(nil, logger)
	queue := NewQueueManager(memory.NewMemoryConsultationRepository(), registry, nil, logger)
	opts = append([]CoordinatorOption{WithEventPublisher(events)}, opts...)
	calls := NewCallCoordinator(registry, queue, logger, opts...)
	relay := NewSignalingRelay(calls, nil, logger)
	triageRepo := memory.NewMemoryTriageRepository()

	return &harness{
		registry:      registry,
		queue:         queue,
		calls:         calls,
		relay:         relay,
		signaling:     NewSignalingService(registry, queue, calls, relay, logger),
		consultations: NewConsultationService(triageRepo, queue, calls, events, nil, logger),
		triage:        NewTriageService(triageRepo, logger),
		events:        events,
		logs:          logs,
	}
}

func (h *harness) connect(t *testing.T, id domain.ParticipantID, role domain.Role) *fakeChannel {
	t.Helper()
	ch := &fakeChannel{}
	require.NoError(t, h.signaling.Connect(context.Background(), id, role, ch))
	return ch
}

// connectProvider connects a provider that has already announced providerReady.
func (h *harness) connectProvider(t *testing.T, id domain.ParticipantID) *fakeChannel {
	t.Helper()
	ch := h.connect(t, id, domain.RoleProvider)
	require.NoError(t, h.registry.SetAvailable(id, true))
	return ch
}

func (h *harness) enqueue(t *testing.T, id domain.ConsultationID, urgency domain.Urgency, createdAt time.Time) *domain.Consultation {
	t.Helper()
	c := &domain.Consultation{
		ID:          id,
		PatientID:   domain.ParticipantID("patient-" + string(id)),
		PatientName: "Patient " + string(id),
		Urgency:     urgency,
		Status:      domain.ConsultationWaiting,
		CreatedAt:   createdAt,
	}
	require.NoError(t, h.queue.Enqueue(context.Background(), c))
	return c
}

func (h *harness) status(t *testing.T, id domain.ConsultationID) domain.ConsultationStatus {
	t.Helper()
	c, err := h.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return c.Status
}
