package diagnose

import (
	"context"
	"log/slog"

	"github.com/HealthConnectAI/healthconnect-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// Diagnosis lifecycle subjects.
const (
	SubjectStarted   = "engine.diagnosis.started"
	SubjectCompleted = "engine.diagnosis.completed"
)

// StartedEvent is published once at the beginning of every request.
type StartedEvent struct {
	RequestID string `json:"request_id"`
	HasAudio  bool   `json:"has_audio"`
	HasImage  bool   `json:"has_image"`
	Timestamp int64  `json:"timestamp"`
}

// CompletedEvent is published exactly once per request, after the final
// result is computed. FallbackUsed marks results produced by the local
// diagnoser after a remote failure; the result itself carries no such flag.
type CompletedEvent struct {
	RequestID      string `json:"request_id"`
	Success        bool   `json:"success"`
	Urgency        string `json:"urgency"`
	FallbackUsed   bool   `json:"fallback_used"`
	DurationMillis int64  `json:"duration_millis"`
	Timestamp      int64  `json:"timestamp"`
}

// EventPublisher emits lifecycle events. Publish failures are the
// publisher's problem: callers never check them.
type EventPublisher interface {
	PublishStarted(ctx context.Context, ev StartedEvent)
	PublishCompleted(ctx context.Context, ev CompletedEvent)
}

// NATSPublisher publishes events over NATS with trace propagation.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher creates a NATSPublisher.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

func (p *NATSPublisher) PublishStarted(ctx context.Context, ev StartedEvent) {
	if err := natsutil.Publish(ctx, p.nc, SubjectStarted, ev); err != nil {
		p.logger.Warn("diagnose: publish started failed", "request_id", ev.RequestID, "error", err)
	}
}

func (p *NATSPublisher) PublishCompleted(ctx context.Context, ev CompletedEvent) {
	if err := natsutil.Publish(ctx, p.nc, SubjectCompleted, ev); err != nil {
		p.logger.Warn("diagnose: publish completed failed", "request_id", ev.RequestID, "error", err)
	}
}

// NopPublisher drops all events. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishStarted(context.Context, StartedEvent)     {}
func (NopPublisher) PublishCompleted(context.Context, CompletedEvent) {}
