// Package domain defines core domain types, constants, and validation for
// the health diagnosis pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

import "time"

// Urgency is the ordinal severity classification of a diagnosis.
type Urgency string

const (
	UrgencyBaja    Urgency = "BAJA"
	UrgencyMedia   Urgency = "MEDIA"
	UrgencyAlta    Urgency = "ALTA"
	UrgencyCritica Urgency = "CRÍTICA"
)

// ValidUrgencies is the set of recognised urgency levels.
var ValidUrgencies = map[Urgency]bool{
	UrgencyBaja: true, UrgencyMedia: true, UrgencyAlta: true, UrgencyCritica: true,
}

// Rank returns the ordinal position of the urgency (BAJA=0 .. CRÍTICA=3).
// Unknown values rank as BAJA.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedia:
		return 1
	case UrgencyAlta:
		return 2
	case UrgencyCritica:
		return 3
	default:
		return 0
	}
}

// MaxUrgency returns the higher-ranked of two urgencies. Urgency only ever
// escalates through this function; it never decreases.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RequiresConsult reports whether the level forces a doctor consultation.
func (u Urgency) RequiresConsult() bool {
	return u.Rank() >= UrgencyAlta.Rank()
}

// Voice quality classifications derived from a recorded clip.
const (
	VoiceClara       = "clara"
	VoiceRonca       = "ronca"
	VoiceDebil       = "débil"
	VoiceMuyCorta    = "muy_corta"
	VoiceMuyLarga    = "muy_larga"
	VoiceError       = "error"
	VoiceDesconocida = "desconocida"
)

// Breathing pattern classifications.
const (
	BreathingNormal      = "normal"
	BreathingAcelerada   = "acelerada"
	BreathingSuperficial = "superficial"
	BreathingProfunda    = "profunda"
	BreathingDesconocido = "desconocido"
)

// Body parts recognised from captured photos.
const (
	BodyPartGarganta    = "garganta"
	BodyPartPecho       = "pecho"
	BodyPartPiel        = "piel"
	BodyPartOjo         = "ojo"
	BodyPartOido        = "oído"
	BodyPartGeneral     = "general"
	BodyPartDesconocido = "desconocido"
)

// AudioMetrics holds signals derived from a recorded clip. Immutable once
// built.
type AudioMetrics struct {
	Duration         int64   `json:"duration"` // milliseconds
	AveragePitch     float64 `json:"average_pitch"`
	VoiceQuality     string  `json:"voice_quality"`
	CoughDetected    bool    `json:"cough_detected"`
	BreathingPattern string  `json:"breathing_pattern"`
}

// ImageMetrics holds signals derived from a captured photo. Immutable once
// built.
type ImageMetrics struct {
	ImagePath   string `json:"image_path"`
	Timestamp   int64  `json:"timestamp"` // ms since epoch
	BodyPart    string `json:"body_part"`
	Description string `json:"description"`
}

// HealthTask is a single symptom-log entry. Entries are append-only and
// never modified after creation.
type HealthTask struct {
	Symptom  string `json:"symptom"`
	Severity int    `json:"severity"` // 1..5
	Duration string `json:"duration"` // free text, e.g. "2 días"
	Date     string `json:"date"`
	Notes    string `json:"notes,omitempty"`
}

// UserProfile supplies patient context. Read-only to the pipeline.
type UserProfile struct {
	Age                int      `json:"age"`
	Gender             string   `json:"gender"`
	MedicalHistory     []string `json:"medical_history,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	CurrentMedications []string `json:"current_medications,omitempty"`
}

// LocationData is the capture location, when available.
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// HealthMetrics is the unified health-signal bundle built per diagnosis
// request. It is owned exclusively by the call that builds it.
type HealthMetrics struct {
	AudioAnalysis *AudioMetrics  `json:"audio_analysis,omitempty"`
	ImageAnalysis *ImageMetrics  `json:"image_analysis,omitempty"`
	TaskHistory   []HealthTask   `json:"task_history,omitempty"`
	Location      *LocationData  `json:"location,omitempty"`
	UserProfile   *UserProfile   `json:"user_profile,omitempty"`
	Timestamp     int64          `json:"timestamp"` // ms since epoch
}

// HasSignal reports whether the bundle carries at least one usable health
// signal (audio, image, or symptom history).
func (m HealthMetrics) HasSignal() bool {
	return m.AudioAnalysis != nil || m.ImageAnalysis != nil || len(m.TaskHistory) > 0
}

// MaxListLen caps potentialConditions and recommendations on every produced
// DiagnosisResult.
const MaxListLen = 5

// DefaultRecommendation is emitted when a producer ends up with an empty
// recommendation list.
const DefaultRecommendation = "Consultar a un profesional de salud"

// DiagnosisResult is the pipeline's immutable output value.
type DiagnosisResult struct {
	PreliminaryDiagnosis string   `json:"preliminary_diagnosis"`
	PotentialConditions  []string `json:"potential_conditions"`
	UrgencyLevel         Urgency  `json:"urgency_level"`
	Recommendations      []string `json:"recommendations"`
	ShouldConsultDoctor  bool     `json:"should_consult_doctor"`
	Timestamp            int64    `json:"timestamp"` // ms since epoch
	Success              bool     `json:"success"`
	ErrorMessage         string   `json:"error_message,omitempty"`
}

// ErrorResult builds a failed DiagnosisResult carrying the given message.
func ErrorResult(message string) DiagnosisResult {
	return DiagnosisResult{
		PreliminaryDiagnosis: "Error en diagnóstico",
		UrgencyLevel:         UrgencyBaja,
		Timestamp:            NowMillis(),
		Success:              false,
		ErrorMessage:         message,
	}
}

// Normalize enforces the producer invariants on a successful result: the
// urgency must be a recognised level, ALTA/CRÍTICA forces a consultation,
// both lists are capped at MaxListLen, and an empty recommendation list
// gets the default entry.
func (r DiagnosisResult) Normalize() DiagnosisResult {
	if !ValidUrgencies[r.UrgencyLevel] {
		r.UrgencyLevel = UrgencyBaja
	}
	if r.UrgencyLevel.RequiresConsult() {
		r.ShouldConsultDoctor = true
	}
	if len(r.PotentialConditions) > MaxListLen {
		r.PotentialConditions = r.PotentialConditions[:MaxListLen]
	}
	if len(r.Recommendations) > MaxListLen {
		r.Recommendations = r.Recommendations[:MaxListLen]
	}
	if r.Success && len(r.Recommendations) == 0 {
		r.Recommendations = []string{DefaultRecommendation}
	}
	return r
}

// NowMillis returns the current wall clock in milliseconds since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
