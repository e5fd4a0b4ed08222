package services

import (
	"context"
	"encoding/json"
	"strings"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"go.uber.org/zap"
)

// CallRouter resolves the counterpart of a call party.
type CallRouter interface {
	Route(callID domain.CallID, from domain.ParticipantID, deliver func(to domain.Channel) error) error
}

// SignalingRelay forwards SDP and ICE payloads between the two parties of a
// call without looking inside them.
type SignalingRelay struct {
	router  CallRouter
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
}

func NewSignalingRelay(router CallRouter, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *SignalingRelay {
	return &SignalingRelay{
		router:  router,
		metrics: metricsOrNoop(metrics),
		logger:  logger,
	}
}

// Forward delivers payload to the other party of callID. Messages for calls
// that are unknown or ended, or from a non-party, are dropped.
func (r *SignalingRelay) Forward(ctx context.Context, callID domain.CallID, from domain.ParticipantID, kind domain.SignalKind, payload json.RawMessage) {
	err := r.router.Route(callID, from, func(to domain.Channel) error {
		return to.Send(domain.Envelope{
			Type:    kind.EventType(),
			CallID:  callID,
			Payload: payload,
		})
	})
	if err != nil {
		reason := dropReason(err)
		r.metrics.SignalDropped(kind, reason)
		r.logger.Debugw("Dropped signaling message",
			"call_id", callID,
			"from", from,
			"kind", kind,
			"reason", reason,
		)
		return
	}
	r.metrics.SignalForwarded(kind)
}

func dropReason(err error) string {
	if appErr := errors.GetAppError(err); appErr != nil {
		return strings.ToLower(string(appErr.Code))
	}
	return "send_failed"
}
