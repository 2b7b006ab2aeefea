// Package main implements the HealthConnect diagnosis API server.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/aggregate"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/alertstore"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/diagnose"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/genai"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/graph"
	"github.com/HealthConnectAI/healthconnect-mvp/engine/history"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/metrics"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/mid"
	"github.com/HealthConnectAI/healthconnect-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	GeminiAPIKey string
	GeminiBase   string
	GeminiModel  string
	NATSURL      string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	QdrantURL    string
	Collection   string
	CORSOrigin   string
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		GeminiAPIKey: envOr("GEMINI_API_KEY", ""),
		GeminiBase:   envOr("GEMINI_BASE_URL", genai.DefaultBaseURL),
		GeminiModel:  envOr("GEMINI_MODEL", genai.DefaultModel),
		NATSURL:      envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:     envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", history.DefaultCollection),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Remote generative client ---
	client := genai.New(cfg.GeminiAPIKey,
		genai.WithBaseURL(cfg.GeminiBase),
		genai.WithModel(cfg.GeminiModel),
		genai.WithLogger(logger),
	)

	// --- NATS (events + last-alert KV); degraded mode without it ---
	var alerts alertstore.Store = alertstore.NewMem()
	var events diagnose.EventPublisher = diagnose.NopPublisher{}
	if nc, err := nats.Connect(cfg.NATSURL); err != nil {
		logger.Warn("nats unavailable, using in-memory alert store", "url", cfg.NATSURL, "err", err)
	} else {
		defer nc.Close()
		events = diagnose.NewNATSPublisher(nc, logger)
		if js, err := nc.JetStream(); err != nil {
			logger.Warn("jetstream unavailable", "err", err)
		} else if kv, err := alertstore.NewKV(js); err != nil {
			logger.Warn("alert bucket unavailable", "err", err)
		} else {
			alerts = kv
		}
	}

	// --- Neo4j condition graph ---
	opts := diagnose.Options{
		Aggregator: aggregate.New(logger),
		Remote:     client,
		Alerts:     alerts,
		Events:     events,
		Breaker:    resilience.NewBreaker(resilience.DefaultBreakerOpts),
		Logger:     logger,
		Metrics:    reg,
	}
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		logger.Warn("neo4j unavailable, condition graph disabled", "err", err)
	} else {
		defer neo4jDriver.Close(ctx)
		condGraph := graph.New(neo4jDriver)
		opts.Graph = condGraph
		opts.Enrichers = append(opts.Enrichers, graph.NewEnricher(condGraph, logger))
	}

	// --- Qdrant episode memory ---
	episodes, err := history.New(cfg.QdrantURL, cfg.Collection, client)
	if err != nil {
		logger.Warn("qdrant unavailable, episode memory disabled", "err", err)
	} else {
		defer episodes.Close()
		if err := episodes.EnsureCollection(ctx); err != nil {
			logger.Warn("episode collection not ready", "err", err)
		}
		opts.Recorder = episodes
		opts.Enrichers = append(opts.Enrichers, history.NewEnricher(episodes, logger))
	}

	svc := diagnose.New(opts)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/v1/diagnose", handleDiagnose(svc, logger))
	mux.HandleFunc("GET /api/v1/alerts/last", handleLastAlert(alerts, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("healthconnect-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// DiagnoseRequest is the JSON body for POST /api/v1/diagnose.
type DiagnoseRequest struct {
	AudioFile string               `json:"audio_file,omitempty"`
	ImageFile string               `json:"image_file,omitempty"`
	Location  *domain.LocationData `json:"location,omitempty"`
	Profile   *domain.UserProfile  `json:"profile,omitempty"`
}

func handleDiagnose(svc *diagnose.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DiagnoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Location != nil {
			if err := domain.ValidateLocation(*req.Location); err != nil {
				writeValidationError(w, err)
				return
			}
		}
		if req.Profile != nil {
			if err := domain.ValidateProfile(*req.Profile); err != nil {
				writeValidationError(w, err)
				return
			}
		}

		result := svc.GenerateDiagnosis(r.Context(), aggregate.Request{
			AudioFile: req.AudioFile,
			ImageFile: req.ImageFile,
			Location:  req.Location,
			Profile:   req.Profile,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleLastAlert(alerts alertstore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert, ok, err := alerts.Last(r.Context())
		if err != nil {
			logger.Error("last alert read failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, `{"error":"no alert stored"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
