// Command server starts the social-emotional-learning inference service:
// it loads configuration, resolves required secrets, loads the model
// registry and fusion config, and serves the HTTP/JSON surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"selinfer/internal/batch"
	"selinfer/internal/config"
	"selinfer/internal/evidence"
	"selinfer/internal/features"
	"selinfer/internal/fusionconfig"
	"selinfer/internal/httpapi"
	"selinfer/internal/inference"
	llmpkg "selinfer/internal/llm"
	"selinfer/internal/llm/anthropic"
	"selinfer/internal/llm/openai"
	"selinfer/internal/metrics"
	"selinfer/internal/models"
	"selinfer/internal/observability"
	"selinfer/internal/ratelimit"
	"selinfer/internal/rationale"
	"selinfer/internal/secrets"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	resolver := secrets.NewResolver(secrets.ManagedSource{})
	ctx := context.Background()
	llmKey, err := resolver.RequireAtStartup(ctx, "LLM_API_KEY")
	if err != nil {
		log.Fatal().Err(err).Msg("required secret missing")
	}
	if _, err := resolver.RequireAtStartup(ctx, "SIGNING_KEY"); err != nil {
		log.Fatal().Err(err).Msg("required secret missing")
	}

	registry, err := models.Load(cfg.ModelArtifactRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model registry")
	}

	fusionStore, err := fusionconfig.Load(cfg.FusionConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load fusion config")
	}

	sink := metrics.New(cfg.Redis)

	httpClient := observability.NewHTTPClient(nil)
	featureStore := features.NewStoreClient(cfg.FeatureStoreURL, httpClient)

	engine := inference.New(featureStore, registry, sink)
	fuser := evidence.New(featureStore, nil, fusionStore)

	llmpkg.ConfigureLogging(cfg.LLM.LogPayloads, cfg.LLM.TruncateBytes)

	var provider llmpkg.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = anthropic.New(anthropic.Config{APIKey: llmKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model}, httpClient)
	default:
		provider = openai.New(openai.Config{APIKey: llmKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model}, httpClient)
	}
	limiter := ratelimit.New(ratelimit.LLMLimits)
	generator := rationale.New(provider, cfg.LLM.Model, limiter)

	dispatcher := batch.New(engine, fuser, generator)

	server := httpapi.NewServer(httpapi.Deps{
		Engine:           engine,
		Fuser:            fuser,
		Generator:        generator,
		Dispatcher:       dispatcher,
		Fusion:           fusionStore,
		Sink:             sink,
		Registry:         registry,
		Secrets:          resolver,
		BatchConcurrency: cfg.BatchConcurrency,
		BatchDeadline:    time.Duration(cfg.BatchDeadlineMS) * time.Millisecond,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("sel-inference listening")
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
