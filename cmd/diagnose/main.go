// Package main implements a one-shot diagnosis CLI: aggregate the given
// capture files, run the pipeline once, and print the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/aggregate"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/diagnose"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/genai"
)

func main() {
	var (
		audioFile = flag.String("audio", "", "path to a recorded WAV clip")
		imageFile = flag.String("image", "", "path to a captured photo")
		age       = flag.Int("age", 0, "patient age")
		gender    = flag.String("gender", "", "patient gender")
		lat       = flag.Float64("lat", 0, "capture latitude")
		lon       = flag.Float64("lon", 0, "capture longitude")
		timeout   = flag.Duration("timeout", 2*time.Minute, "overall run timeout")
		verbose   = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *audioFile == "" && *imageFile == "" {
		fmt.Fprintln(os.Stderr, "at least one of -audio or -image is required")
		flag.Usage()
		os.Exit(2)
	}

	req := aggregate.Request{
		AudioFile: *audioFile,
		ImageFile: *imageFile,
	}
	if *age > 0 || *gender != "" {
		req.Profile = &domain.UserProfile{Age: *age, Gender: *gender}
	}
	if *lat != 0 || *lon != 0 {
		req.Location = &domain.LocationData{Latitude: *lat, Longitude: *lon}
	}

	client := genai.New(os.Getenv("GEMINI_API_KEY"), genai.WithLogger(logger))
	svc := diagnose.New(diagnose.Options{
		Aggregator: aggregate.New(logger),
		Remote:     client,
		Logger:     logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result := svc.GenerateDiagnosis(ctx, req)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("encode result", "err", err)
		os.Exit(1)
	}
	if !result.Success {
		os.Exit(1)
	}
}
