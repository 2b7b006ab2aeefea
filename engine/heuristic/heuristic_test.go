package heuristic

import (
	"reflect"
	"testing"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

func calmAudio() domain.AudioMetrics {
	return domain.AudioMetrics{
		Duration:         6000,
		AveragePitch:     120,
		VoiceQuality:     domain.VoiceClara,
		CoughDetected:    false,
		BreathingPattern: domain.BreathingNormal,
	}
}

func TestFromAudioNoFindings(t *testing.T) {
	r := FromAudio(calmAudio(), nil)
	if !r.Success {
		t.Fatal("local diagnoser must always succeed")
	}
	if r.UrgencyLevel != domain.UrgencyBaja {
		t.Errorf("urgency = %s, want BAJA", r.UrgencyLevel)
	}
	if r.ShouldConsultDoctor {
		t.Error("calm audio should not force a consult")
	}
	if len(r.PotentialConditions) == 0 {
		t.Error("expected at least a neutral observation")
	}
}

func TestFromAudioCough(t *testing.T) {
	a := calmAudio()
	a.CoughDetected = true
	r := FromAudio(a, nil)
	if r.UrgencyLevel.Rank() < domain.UrgencyMedia.Rank() {
		t.Errorf("cough should raise urgency to at least MEDIA, got %s", r.UrgencyLevel)
	}
	if r.PotentialConditions[0] != "Posible tos o irritación de garganta" {
		t.Errorf("unexpected first condition %q", r.PotentialConditions[0])
	}
}

func TestFromAudioAcceleratedBreathing(t *testing.T) {
	// Spec scenario: short clip, no cough, breathing derived as acelerada.
	a := domain.AudioMetrics{
		Duration:         1500,
		VoiceQuality:     domain.VoiceMuyCorta,
		BreathingPattern: domain.BreathingAcelerada,
	}
	r := FromAudio(a, nil)
	if r.UrgencyLevel.Rank() < domain.UrgencyMedia.Rank() {
		t.Errorf("accelerated breathing should raise urgency to at least MEDIA, got %s", r.UrgencyLevel)
	}
	if !r.ShouldConsultDoctor {
		t.Error("accelerated breathing must force a consult")
	}
}

func TestFromAudioWeakVoice(t *testing.T) {
	a := calmAudio()
	a.VoiceQuality = domain.VoiceDebil
	r := FromAudio(a, nil)
	if r.UrgencyLevel.Rank() < domain.UrgencyAlta.Rank() {
		t.Errorf("weak voice should raise urgency to at least ALTA, got %s", r.UrgencyLevel)
	}
	if !r.ShouldConsultDoctor {
		t.Error("weak voice must force a consult")
	}
}

func TestFromAudioHoarseVoice(t *testing.T) {
	a := calmAudio()
	a.VoiceQuality = domain.VoiceRonca
	r := FromAudio(a, nil)
	if r.UrgencyLevel.Rank() < domain.UrgencyMedia.Rank() {
		t.Errorf("hoarse voice should raise urgency to at least MEDIA, got %s", r.UrgencyLevel)
	}
}

func TestFromAudioDeterministic(t *testing.T) {
	a := calmAudio()
	a.CoughDetected = true
	r1, r2 := FromAudio(a, nil), FromAudio(a, nil)
	r1.Timestamp, r2.Timestamp = 0, 0
	if !reflect.DeepEqual(r1, r2) {
		t.Error("FromAudio must be a pure function of its input")
	}
}

func TestFromImageThroatInflamed(t *testing.T) {
	img := domain.ImageMetrics{
		BodyPart:    domain.BodyPartGarganta,
		Description: "Imagen de 640x480 píxeles, zona roja e inflamada",
	}
	r := FromImage(img, nil)
	if r.UrgencyLevel != domain.UrgencyMedia {
		t.Errorf("urgency = %s, want MEDIA", r.UrgencyLevel)
	}
	if !r.ShouldConsultDoctor {
		t.Error("inflamed throat should force a consult")
	}
	found := false
	for _, c := range r.PotentialConditions {
		if c == "Posible enrojecimiento o inflamación" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing escalation condition in %v", r.PotentialConditions)
	}
}

func TestFromImageUnknownPart(t *testing.T) {
	img := domain.ImageMetrics{BodyPart: "rodilla", Description: "sin cambios"}
	r := FromImage(img, nil)
	if !r.Success {
		t.Fatal("image diagnoser must always succeed")
	}
	if r.UrgencyLevel != domain.UrgencyBaja {
		t.Errorf("urgency = %s, want BAJA", r.UrgencyLevel)
	}
	if r.PotentialConditions[0] != "Imagen de rodilla analizada" {
		t.Errorf("unexpected condition %q", r.PotentialConditions[0])
	}
}

func TestFromImageSkinClean(t *testing.T) {
	img := domain.ImageMetrics{BodyPart: domain.BodyPartPiel, Description: "sin alteraciones"}
	r := FromImage(img, nil)
	if r.UrgencyLevel != domain.UrgencyBaja {
		t.Errorf("urgency = %s, want BAJA", r.UrgencyLevel)
	}
	if r.ShouldConsultDoctor {
		t.Error("clean skin image should not force a consult")
	}
}

func TestCombinedNoData(t *testing.T) {
	r := Combined(nil, nil, nil)
	if r.Success {
		t.Fatal("combined with no sources must fail")
	}
	if r.ErrorMessage == "" {
		t.Error("failed result must carry an error message")
	}
}

func TestCombinedMergesAndDedups(t *testing.T) {
	audio := calmAudio()
	audio.CoughDetected = true
	img := domain.ImageMetrics{
		BodyPart:    domain.BodyPartGarganta,
		Description: "garganta roja",
	}
	r := Combined(&audio, &img, nil)
	if !r.Success {
		t.Fatal("combined with sources must succeed")
	}
	if len(r.PotentialConditions) > domain.MaxListLen || len(r.Recommendations) > domain.MaxListLen {
		t.Error("lists must be capped at 5")
	}
	seen := map[string]bool{}
	for _, c := range r.PotentialConditions {
		if seen[c] {
			t.Errorf("duplicate condition %q", c)
		}
		seen[c] = true
	}
	if r.UrgencyLevel.Rank() < domain.UrgencyMedia.Rank() {
		t.Errorf("urgency = %s, want at least MEDIA", r.UrgencyLevel)
	}
}

func TestCombinedTakesMaxUrgency(t *testing.T) {
	audio := calmAudio()
	audio.VoiceQuality = domain.VoiceDebil // ALTA
	img := domain.ImageMetrics{BodyPart: domain.BodyPartPiel, Description: "ok"} // BAJA
	r := Combined(&audio, &img, nil)
	if r.UrgencyLevel != domain.UrgencyAlta {
		t.Errorf("urgency = %s, want ALTA (ordinal max)", r.UrgencyLevel)
	}
	if !r.ShouldConsultDoctor {
		t.Error("ALTA must force a consult")
	}
}

func TestConsultInvariantAcrossProducers(t *testing.T) {
	inputs := []domain.AudioMetrics{
		{VoiceQuality: domain.VoiceDebil, BreathingPattern: domain.BreathingNormal},
		{CoughDetected: true, BreathingPattern: domain.BreathingSuperficial},
		{BreathingPattern: domain.BreathingAcelerada},
	}
	for _, a := range inputs {
		r := FromAudio(a, nil)
		if r.UrgencyLevel.RequiresConsult() && !r.ShouldConsultDoctor {
			t.Errorf("consult invariant violated for %+v", a)
		}
	}
}
