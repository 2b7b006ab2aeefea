package heuristic

import (
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

// audioRule is one (predicate, outcome) entry. Rules are evaluated in slice
// order; urgency only escalates through domain.MaxUrgency.
type audioRule struct {
	name            string
	applies         func(domain.AudioMetrics) bool
	conditions      []string
	recommendations []string
	minUrgency      domain.Urgency
	forceConsult    bool
}

var audioRules = []audioRule{
	{
		name:    "cough",
		applies: func(a domain.AudioMetrics) bool { return a.CoughDetected },
		conditions: []string{
			"Posible tos o irritación de garganta",
		},
		recommendations: []string{
			"Mantente hidratado",
			"Evita irritantes (humo, polvo)",
		},
		minUrgency: domain.UrgencyMedia,
	},
	{
		name: "breathing-acelerada",
		applies: func(a domain.AudioMetrics) bool {
			return a.BreathingPattern == domain.BreathingAcelerada
		},
		conditions: []string{"Respiración acelerada"},
		recommendations: []string{
			"Intenta respirar lentamente",
			"Descansa y busca un lugar tranquilo",
		},
		minUrgency:   domain.UrgencyMedia,
		forceConsult: true,
	},
	{
		name: "breathing-superficial",
		applies: func(a domain.AudioMetrics) bool {
			return a.BreathingPattern == domain.BreathingSuperficial
		},
		conditions: []string{"Respiración superficial o débil"},
		recommendations: []string{
			"Respira profundamente desde el abdomen",
		},
		minUrgency:   domain.UrgencyMedia,
		forceConsult: true,
	},
	{
		name: "breathing-regular",
		// Neutral observation: only when nothing respiratory fired.
		applies: func(a domain.AudioMetrics) bool {
			return !a.CoughDetected &&
				a.BreathingPattern != domain.BreathingAcelerada &&
				a.BreathingPattern != domain.BreathingSuperficial
		},
		conditions: []string{"Patrón de respiración dentro de los parámetros normales"},
		recommendations: []string{
			"Continúa monitoreando tu estado de salud",
		},
		minUrgency: domain.UrgencyBaja,
	},
	{
		name:       "voice-ronca",
		applies:    func(a domain.AudioMetrics) bool { return a.VoiceQuality == domain.VoiceRonca },
		conditions: []string{"Voz ronca o disfonía"},
		recommendations: []string{
			"Evita forzar la voz",
			"Toma bebidas templadas",
		},
		minUrgency: domain.UrgencyMedia,
	},
	{
		name:            "voice-debil",
		applies:         func(a domain.AudioMetrics) bool { return a.VoiceQuality == domain.VoiceDebil },
		conditions:      []string{"Voz débil o entrecortada"},
		recommendations: []string{"Descansa vocal"},
		minUrgency:      domain.UrgencyAlta,
		forceConsult:    true,
	},
}

// imageRule matches on a body-part fragment and optionally escalates when
// the free-text description contains any of its alert keywords.
type imageRule struct {
	partFragment    string
	conditions      []string
	recommendations []string
	alertKeywords   []string
	alertCondition  string
	alertUrgency    domain.Urgency
	alertConsult    bool
}

var imageRules = []imageRule{
	{
		partFragment: domain.BodyPartGarganta,
		conditions:   []string{"Garganta analizada"},
		recommendations: []string{
			"Observa cambios de color o inflamación",
			"Hidratación abundante",
		},
		alertKeywords:  []string{"roja", "inflamada"},
		alertCondition: "Posible enrojecimiento o inflamación",
		alertUrgency:   domain.UrgencyMedia,
		alertConsult:   true,
	},
	{
		partFragment: domain.BodyPartPecho,
		conditions:   []string{"Imagen de pecho analizada"},
		recommendations: []string{
			"Monitorea síntomas respiratorios",
		},
		alertKeywords:  []string{"erupción"},
		alertCondition: "Posible erupción o irritación cutánea",
		alertUrgency:   domain.UrgencyMedia,
		alertConsult:   true,
	},
	{
		partFragment: domain.BodyPartPiel,
		conditions:   []string{"Imagen de piel analizada"},
		recommendations: []string{
			"Mantén la zona limpia y seca",
		},
		alertKeywords:  []string{"rojo", "inflamado"},
		alertCondition: "Posible inflamación o irritación",
		alertUrgency:   domain.UrgencyMedia,
	},
}

// matchImageRule returns the first rule whose part fragment appears in the
// metric's body part, or nil for unrecognised parts.
func matchImageRule(bodyPart string) *imageRule {
	lower := strings.ToLower(bodyPart)
	for i := range imageRules {
		if strings.Contains(lower, imageRules[i].partFragment) {
			return &imageRules[i]
		}
	}
	return nil
}

func containsAnyFold(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
