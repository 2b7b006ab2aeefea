package domain

import (
	"errors"
	"testing"
)

func TestUrgencyRankOrder(t *testing.T) {
	order := []Urgency{UrgencyBaja, UrgencyMedia, UrgencyAlta, UrgencyCritica}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}

func TestUrgencyRankUnknown(t *testing.T) {
	if Urgency("URGENTE").Rank() != 0 {
		t.Error("unknown urgency should rank as BAJA")
	}
}

func TestMaxUrgencyMonotonic(t *testing.T) {
	cases := []struct {
		a, b, want Urgency
	}{
		{UrgencyBaja, UrgencyMedia, UrgencyMedia},
		{UrgencyAlta, UrgencyMedia, UrgencyAlta},
		{UrgencyCritica, UrgencyBaja, UrgencyCritica},
		{UrgencyBaja, UrgencyBaja, UrgencyBaja},
	}
	for _, c := range cases {
		if got := MaxUrgency(c.a, c.b); got != c.want {
			t.Errorf("MaxUrgency(%s,%s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestRequiresConsult(t *testing.T) {
	if UrgencyBaja.RequiresConsult() || UrgencyMedia.RequiresConsult() {
		t.Error("BAJA/MEDIA must not force a consult")
	}
	if !UrgencyAlta.RequiresConsult() || !UrgencyCritica.RequiresConsult() {
		t.Error("ALTA/CRÍTICA must force a consult")
	}
}

func TestHasSignal(t *testing.T) {
	if (HealthMetrics{}).HasSignal() {
		t.Error("empty bundle should carry no signal")
	}
	if !(HealthMetrics{AudioAnalysis: &AudioMetrics{}}).HasSignal() {
		t.Error("audio metrics count as signal")
	}
	if !(HealthMetrics{ImageAnalysis: &ImageMetrics{}}).HasSignal() {
		t.Error("image metrics count as signal")
	}
	if !(HealthMetrics{TaskHistory: []HealthTask{{Symptom: "tos"}}}).HasSignal() {
		t.Error("task history counts as signal")
	}
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("boom")
	if r.Success {
		t.Error("error result must not be successful")
	}
	if r.ErrorMessage != "boom" {
		t.Errorf("unexpected message %q", r.ErrorMessage)
	}
	if r.Timestamp == 0 {
		t.Error("timestamp should be set")
	}
}

func TestNormalizeForcesConsult(t *testing.T) {
	for _, u := range []Urgency{UrgencyAlta, UrgencyCritica} {
		r := DiagnosisResult{UrgencyLevel: u, Success: true}.Normalize()
		if !r.ShouldConsultDoctor {
			t.Errorf("urgency %s must force shouldConsultDoctor", u)
		}
	}
}

func TestNormalizeCapsLists(t *testing.T) {
	long := []string{"a", "b", "c", "d", "e", "f", "g"}
	r := DiagnosisResult{
		UrgencyLevel:        UrgencyBaja,
		PotentialConditions: long,
		Recommendations:     long,
		Success:             true,
	}.Normalize()
	if len(r.PotentialConditions) != MaxListLen || len(r.Recommendations) != MaxListLen {
		t.Errorf("lists not capped: %d / %d", len(r.PotentialConditions), len(r.Recommendations))
	}
}

func TestNormalizeDefaultsRecommendation(t *testing.T) {
	r := DiagnosisResult{UrgencyLevel: UrgencyBaja, Success: true}.Normalize()
	if len(r.Recommendations) != 1 || r.Recommendations[0] != DefaultRecommendation {
		t.Errorf("expected default recommendation, got %v", r.Recommendations)
	}
}

func TestNormalizeUnknownUrgency(t *testing.T) {
	r := DiagnosisResult{UrgencyLevel: "EXTREMA", Success: true}.Normalize()
	if r.UrgencyLevel != UrgencyBaja {
		t.Errorf("unknown urgency should normalize to BAJA, got %s", r.UrgencyLevel)
	}
}

func TestValidateTask(t *testing.T) {
	if err := ValidateTask(HealthTask{Symptom: "tos", Severity: 3}); err != nil {
		t.Errorf("expected valid task, got %v", err)
	}
	if !errors.Is(ValidateTask(HealthTask{Severity: 3}), ErrEmptySymptom) {
		t.Error("expected ErrEmptySymptom")
	}
	if !errors.Is(ValidateTask(HealthTask{Symptom: "tos", Severity: 0}), ErrInvalidSeverity) {
		t.Error("expected ErrInvalidSeverity for 0")
	}
	if !errors.Is(ValidateTask(HealthTask{Symptom: "tos", Severity: 6}), ErrInvalidSeverity) {
		t.Error("expected ErrInvalidSeverity for 6")
	}
}

func TestValidateProfile(t *testing.T) {
	if err := ValidateProfile(UserProfile{Age: 42}); err != nil {
		t.Errorf("expected valid profile, got %v", err)
	}
	if !errors.Is(ValidateProfile(UserProfile{Age: -1}), ErrInvalidAge) {
		t.Error("expected ErrInvalidAge")
	}
}

func TestValidateLocation(t *testing.T) {
	if err := ValidateLocation(LocationData{Latitude: 40.4, Longitude: -3.7}); err != nil {
		t.Errorf("expected valid location, got %v", err)
	}
	if !errors.Is(ValidateLocation(LocationData{Latitude: 91}), ErrInvalidLatitude) {
		t.Error("expected ErrInvalidLatitude")
	}
	if !errors.Is(ValidateLocation(LocationData{Longitude: 181}), ErrInvalidLongitude) {
		t.Error("expected ErrInvalidLongitude")
	}
}

func TestValidateUrgency(t *testing.T) {
	for u := range ValidUrgencies {
		if err := ValidateUrgency(u); err != nil {
			t.Errorf("expected %s valid, got %v", u, err)
		}
	}
	if !errors.Is(ValidateUrgency("MODERADA"), ErrInvalidUrgency) {
		t.Error("expected ErrInvalidUrgency")
	}
}
