package services

import (
	"context"
	"sync"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"go.uber.org/zap"
)

type registration struct {
	participant domain.Participant
	channel     domain.Channel
}

// UnregisterHook runs after a participant's channel is gone.
type UnregisterHook func(ctx context.Context, participant domain.Participant)

// SessionRegistry maps participant ids to their live channel.
// A participant has at most one channel; a later Register replaces it.
type SessionRegistry struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*registration

	hooksMu sync.RWMutex
	hooks   []UnregisterHook

	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewSessionRegistry(metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *SessionRegistry {
	return &SessionRegistry{
		participants: make(map[domain.ParticipantID]*registration),
		metrics:      metricsOrNoop(metrics),
		logger:       logger,
		now:          time.Now,
	}
}

// OnUnregister subscribes fn to participant removal.
func (r *SessionRegistry) OnUnregister(fn UnregisterHook) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

func (r *SessionRegistry) Register(ctx context.Context, id domain.ParticipantID, role domain.Role, ch domain.Channel) error {
	if id == "" {
		return errors.NewInvalidInputError("participant id is required")
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}
	if ch == nil {
		return errors.NewInvalidInputError("channel is required")
	}

	r.mu.Lock()
	prev, existed := r.participants[id]
	r.participants[id] = &registration{
		participant: domain.Participant{
			ID:          id,
			Role:        role,
			ConnectedAt: r.now(),
		},
		channel: ch,
	}
	r.mu.Unlock()

	if existed {
		if prev.channel != ch {
			prev.channel.Close()
		}
		r.logger.Infow("Participant reconnected, replaced channel",
			"participant_id", id,
			"role", role,
		)
		if prev.participant.Role != role {
			r.metrics.ParticipantDisconnected(prev.participant.Role)
			r.metrics.ParticipantConnected(role)
		}
		return nil
	}

	r.metrics.ParticipantConnected(role)
	r.logger.Infow("Participant registered", "participant_id", id, "role", role)
	return nil
}

// Unregister removes id only while ch is still its current channel, so a
// stale connection closing after a reconnect leaves the new one alone.
// A nil ch removes unconditionally. Reports whether anything was removed.
func (r *SessionRegistry) Unregister(ctx context.Context, id domain.ParticipantID, ch domain.Channel) bool {
	r.mu.Lock()
	reg, ok := r.participants[id]
	if !ok || (ch != nil && reg.channel != ch) {
		r.mu.Unlock()
		return false
	}
	delete(r.participants, id)
	r.mu.Unlock()

	r.metrics.ParticipantDisconnected(reg.participant.Role)
	r.logger.Infow("Participant unregistered", "participant_id", id, "role", reg.participant.Role)

	r.hooksMu.RLock()
	hooks := append([]UnregisterHook(nil), r.hooks...)
	r.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, reg.participant)
	}
	return true
}

// Lookup returns the current channel for id.
func (r *SessionRegistry) Lookup(id domain.ParticipantID) (domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.participants[id]
	if !ok {
		return nil, errors.NewNotFoundError("participant").WithContext("participant_id", string(id))
	}
	return reg.channel, nil
}

func (r *SessionRegistry) Get(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.participants[id]
	if !ok {
		return domain.Participant{}, false
	}
	return reg.participant, true
}

// SetAvailable marks a registered provider as ready to take calls.
func (r *SessionRegistry) SetAvailable(id domain.ParticipantID, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.participants[id]
	if !ok {
		return errors.NewNotFoundError("participant").WithContext("participant_id", string(id))
	}
	if reg.participant.Role != domain.RoleProvider {
		return errors.NewInvalidInputError("only providers can mark themselves available")
	}
	reg.participant.Available = available
	return nil
}

// ProviderChannels returns the channels of every registered provider.
func (r *SessionRegistry) ProviderChannels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]domain.Channel, 0, len(r.participants))
	for _, reg := range r.participants {
		if reg.participant.Role == domain.RoleProvider {
			channels = append(channels, reg.channel)
		}
	}
	return channels
}

// Counts returns connected participants per role.
func (r *SessionRegistry) Counts() map[domain.Role]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[domain.Role]int{domain.RolePatient: 0, domain.RoleProvider: 0}
	for _, reg := range r.participants {
		counts[reg.participant.Role]++
	}
	return counts
}

// CloseAll drops every channel; used on shutdown.
func (r *SessionRegistry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]domain.ParticipantID, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if ch, err := r.Lookup(id); err == nil {
			ch.Close()
		}
		r.Unregister(ctx, id, nil)
	}
}
