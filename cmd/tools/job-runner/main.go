// Package main implements the job-runner CLI for driving precompute jobs
// directly, bypassing the AWS Lambda shim and the continuation queue.
//
// This tool is intended for local development, manual backfills and
// operational debugging.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --start --months=12
//	go run ./cmd/tools/job-runner --run --job=<id> --batch-size=100
//	go run ./cmd/tools/job-runner --status --job=<id>
//
// Configuration is read from the environment (or a .env file via godotenv)
// exactly as the Lambda reads it. APP_ENV=local skips SSM resolution.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"reorder/internal/config"
	"reorder/internal/db"
	"reorder/internal/external"
	"reorder/internal/precompute"
	"reorder/internal/types"
)

// chunkRunner is the part of *precompute.Controller the run loop needs.
type chunkRunner interface {
	RunChunk(ctx context.Context, jobID string, opts types.ChunkOptions) (precompute.ChunkResult, error)
}

func main() {
	startFlag := flag.Bool("start", false, "Create a new job")
	runFlag := flag.Bool("run", false, "Run chunks of --job until it is done or fails")
	statusFlag := flag.Bool("status", false, "Print the status of --job")
	jobFlag := flag.String("job", "", "Job ID for --run and --status")
	monthsFlag := flag.Int("months", 0, "Sales lookback in months for --start (0 = configured default)")
	batchFlag := flag.Int("batch-size", 0, "Items per chunk (0 = configured default)")
	concurrencyFlag := flag.Int("concurrency", 0, "Items processed in parallel (0 = configured default)")
	maxChunksFlag := flag.Int("max-chunks", 1000, "Stop --run after this many chunks")
	secretsFlag := flag.String("secrets", "ssm", "Resolver for *_SSM_PARAM variables: ssm or env")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner (--start | --run --job=ID | --status --job=ID) [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Drive reorder precompute jobs directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if n := countTrue(*startFlag, *runFlag, *statusFlag); n != 1 {
		fmt.Fprintf(os.Stderr, "error: exactly one of --start, --run, --status is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if (*runFlag || *statusFlag) && *jobFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --job is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load .env file for local development (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrl, cleanup, err := newController(ctx, *secretsFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	opts := types.ChunkOptions{BatchSize: *batchFlag, Concurrency: *concurrencyFlag}

	var out any
	switch {
	case *startFlag:
		out, err = ctrl.Start(ctx, *monthsFlag)
	case *runFlag:
		out, err = runUntilDone(ctx, ctrl, *jobFlag, opts, *maxChunksFlag, logger)
	case *statusFlag:
		out, err = ctrl.Status(ctx, *jobFlag)
	}
	if err != nil {
		logger.Error("job-runner failed", "error", err, "code", types.CodeOf(err))
		cleanup()
		os.Exit(1)
	}

	if err := printJSON(os.Stdout, out); err != nil {
		logger.Error("failed to write output", "error", err)
	}
}

// newController mirrors the cold-start wiring in cmd/precompute without the
// queue and metrics clients.
func newController(ctx context.Context, secrets string, logger *slog.Logger) (*precompute.Controller, func(), error) {
	provider, err := config.NewSecretProvider(secrets, os.Getenv("AWS_REGION"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	zoho, closeCache, err := external.NewZohoFromConfig(cfg.Zoho, cfg.Cache, cfg.Build.UserAgent("reorder-job-runner"), logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	ctrl := precompute.NewController(
		precompute.ChunkDefaultsFrom(cfg.Precompute),
		db.NewJobRepository(pool),
		db.NewSuggestionRepository(pool),
		zoho,
		logger,
		types.RealClock{},
		nil,
	)

	var closed bool
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		_ = closeCache()
		pool.Close()
	}
	return ctrl, cleanup, nil
}

// runUntilDone calls RunChunk until the job leaves the running state. It
// stops early when maxChunks is reached, returning the last result with
// HasMore still set so the caller can resume later.
func runUntilDone(ctx context.Context, ctrl chunkRunner, jobID string, opts types.ChunkOptions, maxChunks int, logger *slog.Logger) (precompute.ChunkResult, error) {
	if maxChunks < 1 {
		return precompute.ChunkResult{}, errors.New("max-chunks must be at least 1")
	}

	var last precompute.ChunkResult
	for i := 1; i <= maxChunks; i++ {
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("interrupted after %d chunks: %w", i-1, err)
		}

		res, err := ctrl.RunChunk(ctx, jobID, opts)
		if err != nil {
			return last, fmt.Errorf("chunk %d: %w", i, err)
		}
		last = res

		logger.InfoContext(ctx, "chunk complete",
			"chunk", i,
			"status", res.Status,
			"processed_items", res.ProcessedItems,
			"total_items", res.TotalItems,
			"progress", res.Progress,
			"suggestions_written", res.SuggestionsWritten,
		)

		if res.Status.IsTerminal() || !res.HasMore {
			return res, nil
		}
	}

	logger.WarnContext(ctx, "chunk limit reached, job still running",
		"job_id", jobID,
		"max_chunks", maxChunks,
	)
	return last, nil
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
