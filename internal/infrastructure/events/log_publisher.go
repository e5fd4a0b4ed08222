package events

import (
	"context"

	"carebridge/internal/core/domain"

	"go.uber.org/zap"
)

// LogPublisher records lifecycle events in the service log when no broker is configured.
type LogPublisher struct {
	logger *zap.SugaredLogger
}

func NewLogPublisher(logger *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.LifecycleEvent) error {
	p.logger.Debugw("Lifecycle event",
		"type", event.Type,
		"consultation_id", event.ConsultationID,
		"call_id", event.CallID,
		"reason", event.Reason,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
