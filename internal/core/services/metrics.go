package services

import (
	"context"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
)

type noopMetrics struct{}

func (noopMetrics) ParticipantConnected(domain.Role)          {}
func (noopMetrics) ParticipantDisconnected(domain.Role)       {}
func (noopMetrics) QueueDepth(map[domain.Urgency]int)         {}
func (noopMetrics) ConsultationCreated(domain.Urgency)        {}
func (noopMetrics) CallStarted()                              {}
func (noopMetrics) CallAccepted(time.Duration)                {}
func (noopMetrics) CallEnded(domain.EndReason, time.Duration) {}
func (noopMetrics) SignalForwarded(domain.SignalKind)         {}
func (noopMetrics) SignalDropped(domain.SignalKind, string)   {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.LifecycleEvent) error { return nil }
func (noopPublisher) Close() error                                         { return nil }

func metricsOrNoop(m ports.MetricsRecorder) ports.MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func publisherOrNoop(p ports.EventPublisher) ports.EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
