package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

// EpisodeFinder is the read surface the enricher needs. Satisfied by Store.
type EpisodeFinder interface {
	SimilarEpisodes(ctx context.Context, query string, topK int) ([]Episode, error)
}

// Enricher turns episode retrieval into prompt context. Lookup failures are
// logged and skipped: enrichment never blocks a diagnosis.
type Enricher struct {
	finder EpisodeFinder
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(finder EpisodeFinder, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{finder: finder, logger: logger}
}

// ContextFor searches the episode memory with a summary of the current
// capture and returns similar past episodes as a prompt context block.
// Empty string when the capture carries no searchable signal or nothing
// similar is stored.
func (e *Enricher) ContextFor(ctx context.Context, metrics domain.HealthMetrics) string {
	query := QueryText(metrics)
	if query == "" {
		return ""
	}
	episodes, err := e.finder.SimilarEpisodes(ctx, query, domain.MaxListLen)
	if err != nil {
		e.logger.Warn("history: similar episode lookup failed", "error", err)
		return ""
	}
	return ContextBlock(episodes)
}

// QueryText renders the current capture in the same vocabulary as
// EpisodeSummary so the similarity search compares like with like.
func QueryText(m domain.HealthMetrics) string {
	var parts []string
	if a := m.AudioAnalysis; a != nil {
		parts = append(parts, fmt.Sprintf("Voz: %s. Respiración: %s.", a.VoiceQuality, a.BreathingPattern))
		if a.CoughDetected {
			parts = append(parts, "Tos detectada.")
		}
	}
	if img := m.ImageAnalysis; img != nil && img.BodyPart != "" && img.BodyPart != domain.BodyPartDesconocido {
		parts = append(parts, fmt.Sprintf("Parte del cuerpo afectada: %s.", img.BodyPart))
	}
	return strings.Join(parts, " ")
}
