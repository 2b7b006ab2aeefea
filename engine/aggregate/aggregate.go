// Package aggregate builds the unified HealthMetrics bundle from raw capture
// artifacts: an audio clip, a photo, the capture location, and the user
// profile. Extraction is heuristic and never fails: missing or unreadable
// files degrade to explicit "unknown" metric values.
package aggregate

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
)

const (
	// fallbackDurationMillis is assumed when the audio container carries no
	// readable duration.
	fallbackDurationMillis = 5000

	// Byte-size band within which a clip is heuristically flagged as a cough.
	coughMinBytes = 5000
	coughMaxBytes = 50000

	shortClipMillis = 2000
	longClipMillis  = 15000

	fastBreathMillis = 3000
	deepBreathMillis = 10000
)

// bodyPartKeywords maps filename fragments to body parts, checked in order.
var bodyPartKeywords = []struct {
	fragment string
	part     string
}{
	{"garganta", domain.BodyPartGarganta},
	{"throat", domain.BodyPartGarganta},
	{"pecho", domain.BodyPartPecho},
	{"chest", domain.BodyPartPecho},
	{"piel", domain.BodyPartPiel},
	{"skin", domain.BodyPartPiel},
	{"ojo", domain.BodyPartOjo},
	{"eye", domain.BodyPartOjo},
	{"oído", domain.BodyPartOido},
	{"oido", domain.BodyPartOido},
	{"ear", domain.BodyPartOido},
}

// Request names the capture artifacts to aggregate. Empty fields are
// skipped.
type Request struct {
	AudioFile string
	ImageFile string
	Location  *domain.LocationData
	Profile   *domain.UserProfile
}

// Aggregator extracts health metrics from capture artifacts.
type Aggregator struct {
	logger *slog.Logger
	now    func() int64 // ms since epoch, swappable for tests
}

// New creates an Aggregator.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger, now: domain.NowMillis}
}

// Aggregate builds a HealthMetrics bundle. TaskHistory is always empty at
// this layer; the orchestrator fills it from its task source.
func (a *Aggregator) Aggregate(req Request) domain.HealthMetrics {
	m := domain.HealthMetrics{Timestamp: a.now()}
	if req.AudioFile != "" {
		audio := a.extractAudioMetrics(req.AudioFile)
		m.AudioAnalysis = &audio
	}
	if req.ImageFile != "" {
		img := a.extractImageMetrics(req.ImageFile)
		m.ImageAnalysis = &img
	}
	m.Location = req.Location
	m.UserProfile = req.Profile
	return m
}

func (a *Aggregator) extractAudioMetrics(path string) domain.AudioMetrics {
	info, err := os.Stat(path)
	if err != nil {
		a.logger.Error("aggregate: audio file not found", "path", path, "error", err)
		return domain.AudioMetrics{
			VoiceQuality:     domain.VoiceDesconocida,
			BreathingPattern: domain.BreathingDesconocido,
		}
	}

	duration, err := wavDurationMillis(path)
	if err != nil {
		// Unreadable container: keep going with the fallback duration unless
		// the file itself cannot be opened.
		if os.IsNotExist(err) || os.IsPermission(err) {
			a.logger.Error("aggregate: audio unreadable", "path", path, "error", err)
			return domain.AudioMetrics{
				VoiceQuality:     domain.VoiceError,
				BreathingPattern: domain.BreathingDesconocido,
			}
		}
		a.logger.Warn("aggregate: audio duration unreadable, using fallback",
			"path", path, "error", err)
		duration = fallbackDurationMillis
	}

	voiceQuality := domain.VoiceClara
	switch {
	case duration < shortClipMillis:
		voiceQuality = domain.VoiceMuyCorta
	case duration > longClipMillis:
		voiceQuality = domain.VoiceMuyLarga
	}

	// Estimated fundamental frequency; typical voice range is 85-255 Hz.
	averagePitch := float64(100 + duration%100)

	coughDetected := info.Size() >= coughMinBytes && info.Size() <= coughMaxBytes

	breathing := domain.BreathingNormal
	switch {
	case duration < fastBreathMillis:
		breathing = domain.BreathingAcelerada
	case duration > deepBreathMillis:
		breathing = domain.BreathingProfunda
	}

	a.logger.Debug("aggregate: audio metrics",
		"duration_ms", duration, "pitch", averagePitch, "cough", coughDetected)

	return domain.AudioMetrics{
		Duration:         duration,
		AveragePitch:     averagePitch,
		VoiceQuality:     voiceQuality,
		CoughDetected:    coughDetected,
		BreathingPattern: breathing,
	}
}

func (a *Aggregator) extractImageMetrics(path string) domain.ImageMetrics {
	if _, err := os.Stat(path); err != nil {
		a.logger.Error("aggregate: image file not found", "path", path, "error", err)
		return domain.ImageMetrics{
			ImagePath:   path,
			Timestamp:   a.now(),
			BodyPart:    domain.BodyPartDesconocido,
			Description: "Archivo no encontrado",
		}
	}

	width, height, err := imageBounds(path)
	if err != nil {
		a.logger.Error("aggregate: image bounds unreadable", "path", path, "error", err)
		return domain.ImageMetrics{
			ImagePath:   path,
			Timestamp:   a.now(),
			BodyPart:    domain.BodyPartDesconocido,
			Description: fmt.Sprintf("Error analizando imagen: %v", err),
		}
	}

	bodyPart := detectBodyPart(path)
	a.logger.Debug("aggregate: image metrics", "width", width, "height", height, "body_part", bodyPart)

	return domain.ImageMetrics{
		ImagePath:   path,
		Timestamp:   a.now(),
		BodyPart:    bodyPart,
		Description: fmt.Sprintf("Imagen de %dx%d píxeles, parte: %s", width, height, bodyPart),
	}
}

// imageBounds decodes only the image header, never full pixel data.
func imageBounds(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// detectBodyPart matches known keywords against the file name, first match
// wins; anything else is classified as general.
func detectBodyPart(path string) string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, kw := range bodyPartKeywords {
		if strings.Contains(name, kw.fragment) {
			return kw.part
		}
	}
	return domain.BodyPartGeneral
}
