package genai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/fn"
)

// diagnosisPayload mirrors the JSON contract the prompt pins the model to.
type diagnosisPayload struct {
	PreliminaryDiagnosis string   `json:"preliminaryDiagnosis"`
	PotentialConditions  []string `json:"potentialConditions"`
	UrgencyLevel         string   `json:"urgencyLevel"`
	Recommendations      []string `json:"recommendations"`
	ShouldConsultDoctor  *bool    `json:"shouldConsultDoctor"`
	Disclaimer           string   `json:"disclaimer"`
}

// parseJSONDiagnosis attempts the strict path: extract the substring between
// the first '{' and the last '}' (models often wrap the object in prose) and
// unmarshal it. Returns false when no parseable object exists.
func parseJSONDiagnosis(text string) (domain.DiagnosisResult, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return domain.DiagnosisResult{}, false
	}

	var payload diagnosisPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return domain.DiagnosisResult{}, false
	}
	if payload.PreliminaryDiagnosis == "" && len(payload.PotentialConditions) == 0 {
		// A JSON object, but not our contract.
		return domain.DiagnosisResult{}, false
	}

	urgency := domain.Urgency(strings.ToUpper(strings.TrimSpace(payload.UrgencyLevel)))
	consult := urgency.RequiresConsult()
	if payload.ShouldConsultDoctor != nil {
		consult = *payload.ShouldConsultDoctor || consult
	}

	return domain.DiagnosisResult{
		PreliminaryDiagnosis: payload.PreliminaryDiagnosis,
		PotentialConditions:  payload.PotentialConditions,
		UrgencyLevel:         urgency,
		Recommendations:      payload.Recommendations,
		ShouldConsultDoctor:  consult,
		Timestamp:            domain.NowMillis(),
		Success:              true,
	}.Normalize(), true
}

// Free-text report section markers. (?is): case-insensitive, dot matches
// newline. Each capture runs until the next known section or end of text.
var (
	diagRe = regexp.MustCompile(`(?is)diagn[oó]stico preliminar:?\s*(.*?)(?:posibles condiciones|urgencia|recomendaciones|$)`)
	condRe = regexp.MustCompile(`(?is)posibles condiciones:?\s*(.*?)(?:urgencia|recomendaciones|$)`)
	recRe  = regexp.MustCompile(`(?is)recomendaciones:?\s*(.*?)(?:¿?consultar|urgencia|$)`)
)

// urgencyKeywords is scanned in priority order; the first match wins.
var urgencyKeywords = []struct {
	keyword string
	level   domain.Urgency
}{
	{"CRÍTICA", domain.UrgencyCritica},
	{"CRITICA", domain.UrgencyCritica},
	{"ALTA", domain.UrgencyAlta},
	{"MEDIA", domain.UrgencyMedia},
}

// parseTextDiagnosis is the degraded path for free-text model output: regex
// section extraction plus keyword-based urgency inference. Always produces a
// successful result; garbage in yields a BAJA result quoting the raw text.
func parseTextDiagnosis(text string) domain.DiagnosisResult {
	diagnosis := firstGroup(diagRe, text)
	if diagnosis == "" {
		diagnosis = takeRunes(strings.TrimSpace(text), 200)
	}

	conditions := listBlock(firstGroup(condRe, text))
	recommendations := listBlock(firstGroup(recRe, text))
	if len(recommendations) == 0 {
		recommendations = []string{domain.DefaultRecommendation}
	}

	urgency := inferUrgency(text)

	return domain.DiagnosisResult{
		PreliminaryDiagnosis: diagnosis,
		PotentialConditions:  fn.TakeN(fn.Unique(conditions), domain.MaxListLen),
		UrgencyLevel:         urgency,
		Recommendations:      fn.TakeN(fn.Unique(recommendations), domain.MaxListLen),
		ShouldConsultDoctor:  urgency.RequiresConsult(),
		Timestamp:            domain.NowMillis(),
		Success:              true,
	}.Normalize()
}

func inferUrgency(text string) domain.Urgency {
	upper := strings.ToUpper(text)
	for _, rule := range urgencyKeywords {
		if strings.Contains(upper, rule.keyword) {
			return rule.level
		}
	}
	return domain.UrgencyBaja
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// listBlock splits a captured section into items, stripping bullet and
// numbering prefixes.
func listBlock(block string) []string {
	if block == "" {
		return nil
	}
	var items []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-•*0123456789.) ")
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func takeRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
