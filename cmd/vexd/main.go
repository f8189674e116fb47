// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vexd starts the VEX daemon: it wires the core subsystems (audit
// ledger, episodic memory, debate engine, evolution loop, orchestrator)
// and exposes health, metrics, and a minimal execute endpoint. Auth and
// tenant derivation belong to the upstream gateway; vexd trusts the tenant
// header it is handed.
//
// # Environment Variables
//
//   - VEXD_PORT: HTTP port (default: 12400)
//   - VEX_DB_PATH: BadgerDB directory (default: ./vex-data)
//   - VEX_LOG_LEVEL: debug | info | warn | error (default: info)
//   - VEX_LOG_DIR: directory for dated JSON log files (default: stderr only)
//   - VEX_CONSENSUS_PROTOCOL: majority | super_majority | unanimous | weighted_confidence (default: majority)
//   - VEX_DECAY_STRATEGY: exponential | linear | step | none (default: exponential)
//   - VEX_BATCH_THRESHOLD: experiments per rule-synthesis batch (default: 70)
//   - VEX_LLM_TIMEOUT: per-turn LLM timeout (default: 30s)
//   - VEX_DEBATE_WALL_CLOCK: per-debate wall clock (default: 5m)
//   - VEX_ANCHOR_TIMEOUT: per-anchor publication timeout (default: 15s)
//   - VEX_ANCHOR_PATH: JSON-Lines anchor file (default: anchors.jsonl under VEX_DB_PATH)
//   - VEX_HORIZON_CAPACITY_<HORIZON>: per-horizon capacity override, e.g. VEX_HORIZON_CAPACITY_IMMEDIATE=20
//   - VEX_LLM_BACKEND: openai | ollama (default: ollama)
//   - OPENAI_API_KEY, OPENAI_MODEL: OpenAI backend credentials
//   - OLLAMA_SERVER_URL, OLLAMA_MODEL: Ollama backend location (default model: llama3)
//   - VEX_LLM_RPS: LLM rate limit, requests per second (default: 2)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vexlabs/vex/internal/anchor"
	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/debate"
	"github.com/vexlabs/vex/internal/evolution"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/llm"
	"github.com/vexlabs/vex/internal/memory"
	"github.com/vexlabs/vex/internal/orchestrator"
	"github.com/vexlabs/vex/internal/storage"
	"github.com/vexlabs/vex/pkg/logging"
)

func main() {
	vlog := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("VEX_LOG_LEVEL")),
		Service: "vexd",
		JSON:    true,
		LogDir:  os.Getenv("VEX_LOG_DIR"),
	})
	defer vlog.Close()
	logger := vlog.Slog()
	slog.SetDefault(logger)

	port := getEnvInt("VEXD_PORT", 12400)
	dbPath := getEnvString("VEX_DB_PATH", "./vex-data")
	anchorPath := getEnvString("VEX_ANCHOR_PATH", "anchors.jsonl")

	c := clock.New()

	storageCfg := storage.DefaultConfig()
	storageCfg.Path = dbPath
	storageCfg.Logger = logger
	db, err := storage.Open(storageCfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	signer, err := audit.NewSigner()
	if err != nil {
		log.Fatalf("generate signing key: %v", err)
	}
	ledger := audit.New(db, c, vlog.Component("audit"), signer)

	fileBackend, err := anchor.NewFileBackend(anchorPath, dbPath, c)
	if err != nil {
		log.Fatalf("anchor backend: %v", err)
	}
	publisher := anchor.NewPublisher(fileBackend, getEnvDuration("VEX_ANCHOR_TIMEOUT", 15*time.Second), vlog.Component("anchor")).WithReceiptStore(db)

	provider, err := buildProvider(vlog.Component("llm"))
	if err != nil {
		log.Fatalf("llm provider: %v", err)
	}

	mem, err := memory.NewStore(memory.Config{
		Decay:      memory.ParseDecayStrategy(getEnvString("VEX_DECAY_STRATEGY", "exponential")),
		Capacities: horizonOverrides(),
		Clock:      c,
		Summarizer: llm.NewSummarizer(provider),
		DB:         db,
		Log:        vlog.Component("memory"),
	})
	if err != nil {
		log.Fatalf("memory store: %v", err)
	}

	engine := debate.NewEngine(provider, ledger, publisher, c, debate.Config{
		TurnTimeout: getEnvDuration("VEX_LLM_TIMEOUT", 30*time.Second),
		WallClock:   getEnvDuration("VEX_DEBATE_WALL_CLOCK", 5*time.Minute),
		Protocol:    debate.ParseProtocol(getEnvString("VEX_CONSENSUS_PROTOCOL", "majority")),
	}, vlog.Component("debate"))

	loop := evolution.NewLoop(db, c, provider, getEnvInt("VEX_BATCH_THRESHOLD", evolution.DefaultBatchThreshold), vlog.Component("evolution"))

	orch := orchestrator.New(genome.NewStore(db), mem, engine, loop, ledger, nil, c, orchestrator.Config{
		Protocol: debate.ParseProtocol(getEnvString("VEX_CONSENSUS_PROTOCOL", "majority")),
	}, vlog.Component("orchestrator"))

	shutdownTracing := setupTracing(logger)
	defer shutdownTracing()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"llm_available": provider.Available(ctx.Request.Context()),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/internal/execute", func(ctx *gin.Context) {
		tenant := ctx.GetHeader("X-Vex-Tenant")
		var body struct {
			Task string `json:"task"`
		}
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "task is required"})
			return
		}
		result, err := orch.Execute(ctx.Request.Context(), tenant, body.Task)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, result)
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: router}
	go func() {
		logger.Info("vexd listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// buildProvider selects the LLM backend and stacks the transparent
// wrappers: rate limiter inside, circuit breaker outside.
func buildProvider(logger *slog.Logger) (llm.Provider, error) {
	var inner llm.Provider
	var err error
	switch getEnvString("VEX_LLM_BACKEND", "ollama") {
	case "openai":
		inner, err = llm.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"), logger)
	default:
		inner, err = llm.NewOllamaProvider(os.Getenv("OLLAMA_SERVER_URL"), getEnvString("OLLAMA_MODEL", "llama3"), logger)
	}
	if err != nil {
		return nil, err
	}
	limited := llm.NewRateLimited(inner, getEnvFloat("VEX_LLM_RPS", 2), 4)
	return llm.NewBreaker(limited, llm.DefaultBreakerConfig()), nil
}

func horizonOverrides() map[memory.Horizon]int {
	overrides := make(map[memory.Horizon]int)
	for _, h := range memory.AllHorizons {
		key := "VEX_HORIZON_CAPACITY_" + strings.ToUpper(strings.ReplaceAll(h.String(), "_", ""))
		if v := getEnvInt(key, 0); v > 0 {
			overrides[h] = v
		}
	}
	return overrides
}

func setupTracing(logger *slog.Logger) func() {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func() {}
	}
	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		logger.Warn("otel exporter unavailable, tracing disabled", "error", err)
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a
// default. Present-but-invalid values fall back to the default; absence is
// never a fault.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
