// Package heuristic is the rule-based local diagnoser used when the remote
// generative service is unavailable or misconfigured. All functions are pure
// and deterministic: no I/O, no clock reads beyond the result timestamp.
package heuristic

import (
	"fmt"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/fn"
)

// MsgNoData is the failure message when neither audio nor image data exists.
const MsgNoData = "Sin datos de audio o imagen disponibles"

const persistReminder = "Consulta a un profesional si los síntomas persisten por más de 1 semana"

// FromAudio derives a diagnosis from audio metrics alone. Always succeeds.
func FromAudio(audio domain.AudioMetrics, profile *domain.UserProfile) domain.DiagnosisResult {
	var conditions, recommendations []string
	urgency := domain.UrgencyBaja
	consult := false

	for _, rule := range audioRules {
		if !rule.applies(audio) {
			continue
		}
		conditions = append(conditions, rule.conditions...)
		recommendations = append(recommendations, rule.recommendations...)
		urgency = domain.MaxUrgency(urgency, rule.minUrgency)
		consult = consult || rule.forceConsult
	}

	if len(conditions) == 0 {
		conditions = append(conditions, "Sin síntomas significativos detectados en el análisis de audio")
		recommendations = append(recommendations, "Continúa con tus rutinas diarias normales")
	} else {
		recommendations = append(recommendations, persistReminder)
	}

	diagnosis := fmt.Sprintf("Análisis de audio local: %s. Estado general: %s",
		strings.Join(conditions, ", "), urgency)

	return domain.DiagnosisResult{
		PreliminaryDiagnosis: diagnosis,
		PotentialConditions:  fn.TakeN(conditions, domain.MaxListLen),
		UrgencyLevel:         urgency,
		Recommendations:      fn.TakeN(recommendations, domain.MaxListLen),
		ShouldConsultDoctor:  consult,
		Timestamp:            domain.NowMillis(),
		Success:              true,
	}.Normalize()
}

// FromImage derives a diagnosis from image metrics alone. Always succeeds.
func FromImage(img domain.ImageMetrics, profile *domain.UserProfile) domain.DiagnosisResult {
	var conditions, recommendations []string
	urgency := domain.UrgencyBaja
	consult := false

	if rule := matchImageRule(img.BodyPart); rule != nil {
		conditions = append(conditions, rule.conditions...)
		recommendations = append(recommendations, rule.recommendations...)
		if containsAnyFold(img.Description, rule.alertKeywords) {
			conditions = append(conditions, rule.alertCondition)
			urgency = domain.MaxUrgency(urgency, rule.alertUrgency)
			consult = consult || rule.alertConsult
		}
	} else {
		conditions = append(conditions, fmt.Sprintf("Imagen de %s analizada", img.BodyPart))
		recommendations = append(recommendations, "Describe cualquier cambio que notes")
	}

	switch {
	case urgency == domain.UrgencyBaja:
		recommendations = append(recommendations, "Continúa monitoreando el área fotografiada")
	case urgency == domain.UrgencyMedia || urgency == domain.UrgencyAlta:
		recommendations = append(recommendations, "Consulta a un médico si no ves mejoría en 48 horas")
		consult = true
	}

	diagnosis := fmt.Sprintf("Análisis de imagen local: %s. %s. Observaciones: %s",
		img.BodyPart, img.Description, strings.Join(conditions, "; "))

	return domain.DiagnosisResult{
		PreliminaryDiagnosis: diagnosis,
		PotentialConditions:  fn.TakeN(conditions, domain.MaxListLen),
		UrgencyLevel:         urgency,
		Recommendations:      fn.TakeN(recommendations, domain.MaxListLen),
		ShouldConsultDoctor:  consult,
		Timestamp:            domain.NowMillis(),
		Success:              true,
	}.Normalize()
}

// Combined merges the applicable sub-diagnosers: union of condition and
// recommendation lists with first-seen dedup, ordinal-maximum urgency, OR of
// the consult flags. Fails only when neither source is present.
func Combined(audio *domain.AudioMetrics, img *domain.ImageMetrics, profile *domain.UserProfile) domain.DiagnosisResult {
	if audio == nil && img == nil {
		return domain.ErrorResult(MsgNoData)
	}

	var conditions, recommendations []string
	urgency := domain.UrgencyBaja
	consult := false
	sources := 0

	merge := func(r domain.DiagnosisResult) {
		conditions = append(conditions, r.PotentialConditions...)
		recommendations = append(recommendations, r.Recommendations...)
		urgency = domain.MaxUrgency(urgency, r.UrgencyLevel)
		consult = consult || r.ShouldConsultDoctor
		sources++
	}

	if audio != nil {
		merge(FromAudio(*audio, profile))
	}
	if img != nil {
		merge(FromImage(*img, profile))
	}

	conditions = fn.TakeN(fn.Unique(conditions), domain.MaxListLen)
	recommendations = fn.TakeN(fn.Unique(recommendations), domain.MaxListLen)

	diagnosis := fmt.Sprintf(
		"Análisis local combinado: Se analizaron %d fuente(s) de datos. Condiciones detectadas: %s.",
		sources, strings.Join(conditions, ", "))

	return domain.DiagnosisResult{
		PreliminaryDiagnosis: diagnosis,
		PotentialConditions:  conditions,
		UrgencyLevel:         urgency,
		Recommendations:      recommendations,
		ShouldConsultDoctor:  consult,
		Timestamp:            domain.NowMillis(),
		Success:              true,
	}.Normalize()
}
