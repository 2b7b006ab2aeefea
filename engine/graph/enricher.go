package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

// ConditionFinder is the read surface the enricher needs. Satisfied by Store.
type ConditionFinder interface {
	ConditionsForBodyPart(ctx context.Context, bodyPart string, limit int) ([]Condition, error)
	RelatedConditions(ctx context.Context, conditionName string, limit int) ([]Condition, error)
}

// Enricher turns graph lookups into prompt context. Lookup failures are
// logged and skipped: enrichment never blocks a diagnosis.
type Enricher struct {
	finder ConditionFinder
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(finder ConditionFinder, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{finder: finder, logger: logger}
}

// ContextFor returns a prompt context block listing conditions historically
// associated with the captured body part, plus the conditions that co-occur
// with the most frequent of them. Empty string when there is nothing useful
// to add.
func (e *Enricher) ContextFor(ctx context.Context, metrics domain.HealthMetrics) string {
	if metrics.ImageAnalysis == nil {
		return ""
	}
	part := metrics.ImageAnalysis.BodyPart
	if part == "" || part == domain.BodyPartDesconocido {
		return ""
	}

	conditions, err := e.finder.ConditionsForBodyPart(ctx, part, domain.MaxListLen)
	if err != nil {
		e.logger.Warn("graph: enrichment lookup failed", "body_part", part, "error", err)
		return ""
	}
	if len(conditions) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Condiciones previamente asociadas a %s:", part)
	for _, c := range conditions {
		fmt.Fprintf(&b, "\n- %s (urgencia histórica: %s)", c.Name, c.Urgency)
	}

	// conditions is ordered most-seen first.
	related, err := e.finder.RelatedConditions(ctx, conditions[0].Name, domain.MaxListLen)
	if err != nil {
		e.logger.Warn("graph: co-occurrence lookup failed", "condition", conditions[0].Name, "error", err)
		return b.String()
	}
	if len(related) > 0 {
		fmt.Fprintf(&b, "\nCondiciones que suelen presentarse junto a %s:", conditions[0].Name)
		for _, c := range related {
			fmt.Fprintf(&b, "\n- %s", c.Name)
		}
	}
	return b.String()
}
