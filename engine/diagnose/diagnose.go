// Package diagnose is the orchestrator: it aggregates metrics, calls the
// remote analyzer, falls back to the local heuristic diagnoser when the
// remote path fails and usable signal exists, and persists the outcome.
// Each invocation is independent; a failed persistence step never fails the
// overall call.
package diagnose

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/aggregate"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/alertstore"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/heuristic"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/metrics"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/resilience"
	"github.com/google/uuid"
)

// MsgServiceUnavailable is returned when the circuit breaker rejects the
// remote call outright.
const MsgServiceUnavailable = "Servicio de IA temporalmente no disponible. Intenta de nuevo más tarde."

var errRemoteFailed = errors.New("diagnose: remote analysis failed")

// RemoteAnalyzer is the remote diagnosis surface. Satisfied by genai.Client.
type RemoteAnalyzer interface {
	AnalyzeHealthData(ctx context.Context, metrics domain.HealthMetrics, extraContext ...string) domain.DiagnosisResult
}

// TaskSource supplies the symptom history attached to every metrics bundle.
type TaskSource interface {
	History(ctx context.Context) ([]domain.HealthTask, error)
}

// ContextEnricher contributes prompt context from auxiliary stores. An
// empty string means nothing to add.
type ContextEnricher interface {
	ContextFor(ctx context.Context, metrics domain.HealthMetrics) string
}

// EpisodeRecorder stores completed diagnoses for later similarity lookups.
type EpisodeRecorder interface {
	RecordEpisode(ctx context.Context, result domain.DiagnosisResult) error
}

// GraphRecorder feeds completed diagnoses into the condition graph.
type GraphRecorder interface {
	SaveDiagnosis(ctx context.Context, result domain.DiagnosisResult, bodyPart string) error
}

// Options wires the Service. Aggregator and Remote are required; everything
// else degrades to a no-op when nil.
type Options struct {
	Aggregator *aggregate.Aggregator
	Remote     RemoteAnalyzer
	Alerts     alertstore.Store
	Events     EventPublisher
	Tasks      TaskSource
	Enrichers  []ContextEnricher
	Recorder   EpisodeRecorder
	Graph      GraphRecorder
	Breaker    *resilience.Breaker
	Logger     *slog.Logger
	Metrics    *metrics.Registry
}

// Service runs the diagnosis pipeline. Safe for concurrent use: every
// request carries its own local state.
type Service struct {
	agg       *aggregate.Aggregator
	remote    RemoteAnalyzer
	alerts    alertstore.Store
	events    EventPublisher
	tasks     TaskSource
	enrichers []ContextEnricher
	recorder  EpisodeRecorder
	graph     GraphRecorder
	breaker   *resilience.Breaker
	logger    *slog.Logger

	requestsTotal  *metrics.Counter
	remoteFailures *metrics.Counter
	circuitOpen    *metrics.Counter
	fallbacksTotal *metrics.Counter
	inFlight       *metrics.Gauge
	duration       *metrics.Histogram
}

// New creates a Service from Options.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := opts.Events
	if events == nil {
		events = NopPublisher{}
	}
	s := &Service{
		agg:       opts.Aggregator,
		remote:    opts.Remote,
		alerts:    opts.Alerts,
		events:    events,
		tasks:     opts.Tasks,
		enrichers: opts.Enrichers,
		recorder:  opts.Recorder,
		graph:     opts.Graph,
		breaker:   opts.Breaker,
		logger:    logger,
	}
	if reg := opts.Metrics; reg != nil {
		s.requestsTotal = reg.Counter("diagnosis_requests_total", "Diagnosis requests started")
		s.remoteFailures = reg.Counter(metrics.WithLabels("diagnosis_remote_failures_total", "class", "remote"), "Remote analysis failures by class")
		s.circuitOpen = reg.Counter(metrics.WithLabels("diagnosis_remote_failures_total", "class", "circuit_open"), "")
		s.fallbacksTotal = reg.Counter("diagnosis_fallbacks_total", "Local heuristic fallbacks")
		s.inFlight = reg.Gauge("diagnosis_in_flight", "Diagnosis requests currently running")
		s.duration = reg.Histogram("diagnosis_duration_seconds", "End-to-end diagnosis duration", nil)
	}
	return s
}

// GenerateDiagnosis runs one full pipeline pass. A single logical attempt:
// callers retry by re-invoking.
func (s *Service) GenerateDiagnosis(ctx context.Context, req aggregate.Request) domain.DiagnosisResult {
	requestID := uuid.NewString()
	start := time.Now()
	log := s.logger.With("request_id", requestID)

	if s.requestsTotal != nil {
		s.requestsTotal.Inc()
	}
	if s.inFlight != nil {
		s.inFlight.Inc()
		defer s.inFlight.Dec()
	}
	s.events.PublishStarted(ctx, StartedEvent{
		RequestID: requestID,
		HasAudio:  req.AudioFile != "",
		HasImage:  req.ImageFile != "",
		Timestamp: domain.NowMillis(),
	})

	m := s.agg.Aggregate(req)
	if s.tasks != nil {
		history, err := s.tasks.History(ctx)
		if err != nil {
			log.Warn("diagnose: task history unavailable", "error", err)
		} else {
			m.TaskHistory = history
		}
	}

	var extras []string
	for _, e := range s.enrichers {
		if block := e.ContextFor(ctx, m); block != "" {
			extras = append(extras, block)
		}
	}

	result := s.callRemote(ctx, m, extras)

	fallbackUsed := false
	if !result.Success && (m.AudioAnalysis != nil || m.ImageAnalysis != nil) {
		log.Warn("diagnose: remote failed, using local diagnoser", "remote_error", result.ErrorMessage)
		result = heuristic.Combined(m.AudioAnalysis, m.ImageAnalysis, m.UserProfile)
		fallbackUsed = true
		if s.fallbacksTotal != nil {
			s.fallbacksTotal.Inc()
		}
	}

	if result.Success {
		s.persist(ctx, log, result, m)
	}

	if s.duration != nil {
		s.duration.Since(start)
	}
	s.events.PublishCompleted(ctx, CompletedEvent{
		RequestID:      requestID,
		Success:        result.Success,
		Urgency:        string(result.UrgencyLevel),
		FallbackUsed:   fallbackUsed,
		DurationMillis: time.Since(start).Milliseconds(),
		Timestamp:      domain.NowMillis(),
	})
	log.Info("diagnose: completed",
		"success", result.Success,
		"urgency", result.UrgencyLevel,
		"fallback", fallbackUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// callRemote invokes the remote analyzer through the circuit breaker. An
// open circuit behaves exactly like a remote failure.
func (s *Service) callRemote(ctx context.Context, m domain.HealthMetrics, extras []string) domain.DiagnosisResult {
	var result domain.DiagnosisResult
	call := func(ctx context.Context) error {
		result = s.remote.AnalyzeHealthData(ctx, m, extras...)
		if !result.Success {
			return errRemoteFailed
		}
		return nil
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		result = domain.ErrorResult(MsgServiceUnavailable)
		if s.circuitOpen != nil {
			s.circuitOpen.Inc()
		}
	case err != nil:
		if s.remoteFailures != nil {
			s.remoteFailures.Inc()
		}
	}
	return result
}

// persist runs the best-effort post-success steps: last-alert summary,
// episode memory, condition graph. Failures are logged, never surfaced.
func (s *Service) persist(ctx context.Context, log *slog.Logger, result domain.DiagnosisResult, m domain.HealthMetrics) {
	if s.alerts != nil {
		if err := s.alerts.Save(ctx, alertstore.FromResult(result)); err != nil {
			log.Warn("diagnose: alert persistence failed", "error", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.RecordEpisode(ctx, result); err != nil {
			log.Warn("diagnose: episode recording failed", "error", err)
		}
	}
	if s.graph != nil {
		bodyPart := ""
		if m.ImageAnalysis != nil {
			bodyPart = m.ImageAnalysis.BodyPart
		}
		if err := s.graph.SaveDiagnosis(ctx, result, bodyPart); err != nil {
			log.Warn("diagnose: graph update failed", "error", err)
		}
	}
}
