package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"
	"carebridge/pkg/utils"

	"go.uber.org/zap"
)

const defaultEndedRetention = 10 * time.Minute

// ParticipantDirectory resolves participants to their live channels.
type ParticipantDirectory interface {
	Lookup(id domain.ParticipantID) (domain.Channel, error)
	Get(id domain.ParticipantID) (domain.Participant, bool)
}

// ConsultationQueue is the part of the queue the coordinator drives.
type ConsultationQueue interface {
	Dequeue(ctx context.Context, id domain.ConsultationID, providerID domain.ParticipantID) (*domain.Consultation, error)
	Requeue(ctx context.Context, id domain.ConsultationID) error
	Complete(ctx context.Context, id domain.ConsultationID, notes string) (*domain.Consultation, error)
}

type CoordinatorOption func(*CallCoordinator)

// WithConnectTimeout ends calls that stay Connecting longer than d. Zero disables it.
func WithConnectTimeout(d time.Duration) CoordinatorOption {
	return func(c *CallCoordinator) { c.connectTimeout = d }
}

func WithCoordinatorMetrics(m ports.MetricsRecorder) CoordinatorOption {
	return func(c *CallCoordinator) { c.metrics = metricsOrNoop(m) }
}

func WithEventPublisher(p ports.EventPublisher) CoordinatorOption {
	return func(c *CallCoordinator) { c.events = publisherOrNoop(p) }
}

// WithClock replaces time.Now for call timestamps and ended-call retention.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *CallCoordinator) { c.now = now }
}

// CallCoordinator runs the call state machine. Every transition, and every
// notification it causes, happens under mu so each participant observes
// Connecting, Active and Ended in order.
type CallCoordinator struct {
	mu             sync.Mutex
	calls          map[domain.CallID]*domain.Call
	byConsultation map[domain.ConsultationID]domain.CallID
	timers         map[domain.CallID]*time.Timer
	ended          map[domain.CallID]time.Time

	participants   ParticipantDirectory
	queue          ConsultationQueue
	events         ports.EventPublisher
	metrics        ports.MetricsRecorder
	connectTimeout time.Duration
	endedRetention time.Duration
	now            func() time.Time
	logger         *zap.SugaredLogger
}

func NewCallCoordinator(
	participants ParticipantDirectory,
	queue ConsultationQueue,
	logger *zap.SugaredLogger,
	opts ...CoordinatorOption,
) *CallCoordinator {
	cc := &CallCoordinator{
		calls:          make(map[domain.CallID]*domain.Call),
		byConsultation: make(map[domain.ConsultationID]domain.CallID),
		timers:         make(map[domain.CallID]*time.Timer),
		ended:          make(map[domain.CallID]time.Time),
		participants:   participants,
		queue:          queue,
		events:         noopPublisher{},
		metrics:        noopMetrics{},
		endedRetention: defaultEndedRetention,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// StartCall claims a waiting consultation for providerID and invites the patient.
func (cc *CallCoordinator) StartCall(ctx context.Context, consultationID domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error) {
	if consultationID == "" {
		return nil, errors.NewInvalidInputError("consultation id is required")
	}
	provider, ok := cc.participants.Get(providerID)
	if !ok {
		return nil, errors.NewNotFoundError("provider").WithContext("provider_id", string(providerID))
	}
	if provider.Role != domain.RoleProvider {
		return nil, errors.NewInvalidInputError("only providers can start calls")
	}
	if !provider.Available {
		return nil, errors.NewInvalidStateError("provider is not ready").
			WithContext("provider_id", string(providerID))
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if existing, ok := cc.byConsultation[consultationID]; ok {
		return nil, errors.NewConflictError("consultation already being handled").
			WithContext("consultation_id", string(consultationID)).
			WithContext("call_id", string(existing))
	}

	consultation, err := cc.queue.Dequeue(ctx, consultationID, providerID)
	if err != nil {
		return nil, err
	}

	patientCh, err := cc.participants.Lookup(consultation.PatientID)
	if err != nil {
		cc.rollbackLocked(ctx, consultationID)
		return nil, errors.NewNotFoundError("patient").
			WithContext("consultation_id", string(consultationID)).
			WithContext("patient_id", string(consultation.PatientID))
	}

	now := cc.now()
	call := &domain.Call{
		ID:             domain.CallID(utils.GenerateCallID()),
		ConsultationID: consultationID,
		PatientID:      consultation.PatientID,
		ProviderID:     providerID,
		State:          domain.CallConnecting,
		CreatedAt:      now,
	}

	invite := domain.Envelope{
		Type:           domain.EventIncomingCall,
		CallID:         call.ID,
		ConsultationID: consultationID,
		ProviderID:     providerID,
		CallerType:     domain.RoleProvider,
	}
	if err := patientCh.Send(invite); err != nil {
		cc.rollbackLocked(ctx, consultationID)
		return nil, errors.WrapError(err, errors.ErrCodeNotFound, "patient is not reachable", http.StatusNotFound).
			WithContext("consultation_id", string(consultationID))
	}

	cc.calls[call.ID] = call
	cc.byConsultation[consultationID] = call.ID
	if cc.connectTimeout > 0 {
		id := call.ID
		cc.timers[id] = time.AfterFunc(cc.connectTimeout, func() { cc.expire(id) })
	}

	if ch, err := cc.participants.Lookup(providerID); err == nil {
		_ = ch.Send(domain.Envelope{
			Type:           domain.EventCallStarted,
			CallID:         call.ID,
			ConsultationID: consultationID,
		})
	}

	cc.metrics.CallStarted()
	cc.publish(ctx, domain.LifecycleEvent{
		Type:           domain.LifecycleCallStarted,
		ConsultationID: consultationID,
		CallID:         call.ID,
		ProviderID:     providerID,
		Urgency:        consultation.Urgency,
		OccurredAt:     now,
	})
	cc.logger.Infow("Call started",
		"call_id", call.ID,
		"consultation_id", consultationID,
		"provider_id", providerID,
		"patient_id", call.PatientID,
	)

	out := *call
	return &out, nil
}

// AcceptCall moves a Connecting call to Active. Only the invited patient may accept.
func (cc *CallCoordinator) AcceptCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	call, err := cc.callLocked(callID)
	if err != nil || call == nil {
		return err
	}
	if participantID != call.PatientID {
		return errors.NewInvalidStateError("only the invited participant can accept the call").
			WithContext("call_id", string(callID))
	}
	if call.State == domain.CallActive {
		return nil
	}
	if !call.CanTransition(domain.CallActive) {
		return errors.NewInvalidStateError("call cannot be accepted").WithContext("call_id", string(callID))
	}

	now := cc.now()
	call.State = domain.CallActive
	call.AcceptedAt = &now
	cc.stopTimerLocked(callID)

	accepted := domain.Envelope{
		Type:           domain.EventCallAccepted,
		CallID:         call.ID,
		ConsultationID: call.ConsultationID,
		Offerer:        call.Offerer(),
	}
	for _, id := range []domain.ParticipantID{call.ProviderID, call.PatientID} {
		ch, err := cc.participants.Lookup(id)
		if err == nil {
			err = ch.Send(accepted)
		}
		if err != nil {
			cc.logger.Warnw("Call party unreachable on accept, ending call",
				"call_id", callID,
				"participant_id", id,
				"error", err,
			)
			cc.endLocked(ctx, call, domain.EndReasonUnreachable)
			return nil
		}
	}

	cc.metrics.CallAccepted(now.Sub(call.CreatedAt))
	cc.publish(ctx, domain.LifecycleEvent{
		Type:           domain.LifecycleCallAccepted,
		ConsultationID: call.ConsultationID,
		CallID:         call.ID,
		ProviderID:     call.ProviderID,
		OccurredAt:     now,
	})
	cc.logger.Infow("Call accepted", "call_id", callID, "consultation_id", call.ConsultationID)
	return nil
}

// EndCall hangs up a call on behalf of one of its parties.
func (cc *CallCoordinator) EndCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	call, err := cc.callLocked(callID)
	if err != nil || call == nil {
		return err
	}
	if !call.Involves(participantID) {
		return errors.NewInvalidStateError("participant is not part of this call").
			WithContext("call_id", string(callID))
	}
	cc.endLocked(ctx, call, domain.EndReasonHangup)
	return nil
}

// EndConsultationCall ends the live call of a consultation, if any.
func (cc *CallCoordinator) EndConsultationCall(ctx context.Context, consultationID domain.ConsultationID) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if id, ok := cc.byConsultation[consultationID]; ok {
		cc.endLocked(ctx, cc.calls[id], domain.EndReasonConsultationEnded)
	}
}

// HandleDisconnect ends every call the departed participant was part of.
func (cc *CallCoordinator) HandleDisconnect(ctx context.Context, participant domain.Participant) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for _, call := range cc.calls {
		if call.Involves(participant.ID) {
			cc.logger.Infow("Participant left during call",
				"call_id", call.ID,
				"participant_id", participant.ID,
				"state", call.State,
			)
			cc.endLocked(ctx, call, domain.EndReasonDisconnect)
		}
	}
}

// Route hands the counterpart's channel of from to deliver while the call is
// held, so relayed signaling never interleaves with a transition of that call.
func (cc *CallCoordinator) Route(callID domain.CallID, from domain.ParticipantID, deliver func(to domain.Channel) error) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	call, ok := cc.calls[callID]
	if !ok {
		return errors.NewNotFoundError("call").WithContext("call_id", string(callID))
	}
	to, ok := call.Counterpart(from)
	if !ok {
		return errors.NewInvalidStateError("sender is not part of this call").
			WithContext("call_id", string(callID))
	}
	ch, err := cc.participants.Lookup(to)
	if err != nil {
		return err
	}
	return deliver(ch)
}

// Get returns a copy of a live call.
func (cc *CallCoordinator) Get(callID domain.CallID) (domain.Call, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	call, ok := cc.calls[callID]
	if !ok {
		return domain.Call{}, errors.NewNotFoundError("call").WithContext("call_id", string(callID))
	}
	return *call, nil
}

// CallForConsultation returns the live call of a consultation.
func (cc *CallCoordinator) CallForConsultation(consultationID domain.ConsultationID) (domain.Call, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	id, ok := cc.byConsultation[consultationID]
	if !ok {
		return domain.Call{}, false
	}
	return *cc.calls[id], true
}

func (cc *CallCoordinator) ActiveCalls() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.calls)
}

// Shutdown ends every live call.
func (cc *CallCoordinator) Shutdown(ctx context.Context) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for _, call := range cc.calls {
		cc.endLocked(ctx, call, domain.EndReasonShutdown)
	}
}

// callLocked returns the live call, nil for a call that already ended,
// or NotFound for an id never seen.
func (cc *CallCoordinator) callLocked(callID domain.CallID) (*domain.Call, error) {
	if call, ok := cc.calls[callID]; ok {
		return call, nil
	}
	if _, ok := cc.ended[callID]; ok {
		return nil, nil
	}
	return nil, errors.NewNotFoundError("call").WithContext("call_id", string(callID))
}

func (cc *CallCoordinator) endLocked(ctx context.Context, call *domain.Call, reason domain.EndReason) {
	if call == nil || call.State == domain.CallEnded {
		return
	}

	now := cc.now()
	var talked time.Duration
	if call.AcceptedAt != nil {
		talked = now.Sub(*call.AcceptedAt)
	}
	call.State = domain.CallEnded
	call.EndedAt = &now
	call.EndReason = reason

	cc.stopTimerLocked(call.ID)
	delete(cc.calls, call.ID)
	delete(cc.byConsultation, call.ConsultationID)
	cc.ended[call.ID] = now
	cc.pruneEndedLocked(now)

	notice := domain.Envelope{
		Type:           domain.EventCallEnded,
		CallID:         call.ID,
		ConsultationID: call.ConsultationID,
		Reason:         reason,
	}
	for _, id := range []domain.ParticipantID{call.ProviderID, call.PatientID} {
		ch, err := cc.participants.Lookup(id)
		if err != nil {
			continue
		}
		if err := ch.Send(notice); err != nil {
			cc.logger.Debugw("Failed to deliver call end", "call_id", call.ID, "participant_id", id, "error", err)
		}
	}

	if _, err := cc.queue.Complete(ctx, call.ConsultationID, ""); err != nil {
		cc.logger.Warnw("Failed to complete consultation after call end",
			"consultation_id", call.ConsultationID,
			"error", err,
		)
	}

	cc.metrics.CallEnded(reason, talked)
	cc.publish(ctx, domain.LifecycleEvent{
		Type:           domain.LifecycleCallEnded,
		ConsultationID: call.ConsultationID,
		CallID:         call.ID,
		ProviderID:     call.ProviderID,
		Reason:         reason,
		OccurredAt:     now,
	})
	cc.logger.Infow("Call ended",
		"call_id", call.ID,
		"consultation_id", call.ConsultationID,
		"reason", reason,
		"duration", utils.FormatDuration(talked),
	)
}

func (cc *CallCoordinator) rollbackLocked(ctx context.Context, consultationID domain.ConsultationID) {
	if err := cc.queue.Requeue(ctx, consultationID); err != nil {
		cc.logger.Errorw("Failed to return consultation to queue",
			"consultation_id", consultationID,
			"error", err,
		)
	}
}

func (cc *CallCoordinator) expire(callID domain.CallID) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	call, ok := cc.calls[callID]
	if !ok || call.State != domain.CallConnecting {
		return
	}
	cc.logger.Infow("Call was not accepted in time", "call_id", callID, "timeout", cc.connectTimeout)
	cc.endLocked(context.Background(), call, domain.EndReasonTimeout)
}

func (cc *CallCoordinator) stopTimerLocked(callID domain.CallID) {
	if t, ok := cc.timers[callID]; ok {
		t.Stop()
		delete(cc.timers, callID)
	}
}

func (cc *CallCoordinator) pruneEndedLocked(now time.Time) {
	for id, at := range cc.ended {
		if now.Sub(at) > cc.endedRetention {
			delete(cc.ended, id)
		}
	}
}

func (cc *CallCoordinator) publish(ctx context.Context, event domain.LifecycleEvent) {
	if err := cc.events.Publish(ctx, event); err != nil {
		cc.logger.Warnw("Failed to publish lifecycle event", "type", event.Type, "error", err)
	}
}
