// Package main is the entrypoint for the reorder precompute Lambda function.
//
// The function is invoked two ways: directly, with a Request naming one of
// the start, run_chunk, status or suggestions actions; and by the SQS
// continuation queue, whose messages each advance a running job by one chunk
// and enqueue the next until the job is done.
//
// This file handles dependency wiring (cold start) and delegates all job
// logic to the internal/precompute package.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"reorder/internal/config"
	"reorder/internal/db"
	"reorder/internal/external"
	"reorder/internal/metrics"
	"reorder/internal/precompute"
	"reorder/internal/queue"
	"reorder/internal/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("Precompute Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})).With("service", cfg.Service, "version", cfg.Build.Version)
	slog.SetDefault(logger)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	zoho, closeCache, err := external.NewZohoFromConfig(cfg.Zoho, cfg.Cache, cfg.Build.UserAgent(cfg.Service), logger)
	if err != nil {
		logger.Error("Failed to initialize inventory client", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	var publisher precompute.MetricPublisher
	if cfg.Observability.EnableMetrics {
		publisher = metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace)
	}

	ctrl := precompute.NewController(
		precompute.ChunkDefaultsFrom(cfg.Precompute),
		db.NewJobRepository(pool),
		db.NewSuggestionRepository(pool),
		zoho,
		logger,
		types.RealClock{},
		publisher,
	)

	h := &Handler{
		Controller: ctrl,
		Continuer:  queue.NewContinuer(sqs.NewFromConfig(awsCfg), cfg.AWS, cfg.Precompute.MaxContinuation, logger),
		Log:        logger,
	}

	logger.Info("Precompute Lambda initialized",
		"environment", cfg.Environment,
		"continuation_queue", cfg.AWS.ContinuationQueue,
		"metrics_enabled", cfg.Observability.EnableMetrics,
		"token_cache", cfg.Cache.RedisURL.IsSet(),
	)

	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("No input received on stdin")
			os.Exit(1)
		}
		out, err := h.Handle(ctx, json.RawMessage(payload))
		if err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logger.Error("Failed to write response", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(h.Handle)
}
