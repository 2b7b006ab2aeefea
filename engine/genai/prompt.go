package genai

import (
	"fmt"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

// jsonInstruction pins the model to the compact single-line JSON contract
// the strict parser expects. Key names must match diagnosisPayload.
const jsonInstruction = "Eres un asistente de salud. Responde SOLO con un objeto JSON compacto en una sola línea, " +
	"sin texto adicional, con exactamente estas claves: " +
	`{"preliminaryDiagnosis": string, "potentialConditions": [string], ` +
	`"urgencyLevel": "BAJA"|"MEDIA"|"ALTA"|"CRÍTICA", "recommendations": [string], ` +
	`"shouldConsultDoctor": boolean, "disclaimer": string}`

// buildJSONHealthPrompt renders the metrics bundle as the JSON-mode prompt.
// Sections for absent signals are omitted entirely so the model never sees
// placeholder noise.
func buildJSONHealthPrompt(m domain.HealthMetrics, extraContext []string) string {
	var b strings.Builder
	b.WriteString(jsonInstruction)
	b.WriteString("\n\nDatos de salud del paciente:\n")

	if a := m.AudioAnalysis; a != nil {
		fmt.Fprintf(&b, "\nAnálisis de audio:\n- Duración: %dms\n- Tono promedio: %.1f Hz\n- Calidad de voz: %s\n- Tos detectada: %t\n- Patrón de respiración: %s\n",
			a.Duration, a.AveragePitch, a.VoiceQuality, a.CoughDetected, a.BreathingPattern)
	}
	if img := m.ImageAnalysis; img != nil {
		fmt.Fprintf(&b, "\nAnálisis de imagen:\n- Parte del cuerpo: %s\n- Descripción: %s\n",
			img.BodyPart, img.Description)
	}
	if len(m.TaskHistory) > 0 {
		b.WriteString("\nHistorial de síntomas:\n")
		for _, t := range m.TaskHistory {
			fmt.Fprintf(&b, "- %s (severidad %d/5, duración %s, fecha %s)", t.Symptom, t.Severity, t.Duration, t.Date)
			if t.Notes != "" {
				fmt.Fprintf(&b, ": %s", t.Notes)
			}
			b.WriteString("\n")
		}
	}
	if p := m.UserProfile; p != nil {
		fmt.Fprintf(&b, "\nPerfil del paciente:\n- Edad: %d\n- Género: %s\n", p.Age, p.Gender)
		if len(p.MedicalHistory) > 0 {
			fmt.Fprintf(&b, "- Historial médico: %s\n", strings.Join(p.MedicalHistory, ", "))
		}
		if len(p.Allergies) > 0 {
			fmt.Fprintf(&b, "- Alergias: %s\n", strings.Join(p.Allergies, ", "))
		}
		if len(p.CurrentMedications) > 0 {
			fmt.Fprintf(&b, "- Medicación actual: %s\n", strings.Join(p.CurrentMedications, ", "))
		}
	}
	if loc := m.Location; loc != nil {
		fmt.Fprintf(&b, "\nUbicación aproximada: %.4f, %.4f\n", loc.Latitude, loc.Longitude)
	}
	for _, extra := range extraContext {
		if s := strings.TrimSpace(extra); s != "" {
			b.WriteString("\nContexto adicional:\n")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nGenera el diagnóstico preliminar en el formato JSON indicado.")
	return b.String()
}
