package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"threadpulse.app/pulse/common/id"
	"threadpulse.app/pulse/common/llm"
	"threadpulse.app/pulse/common/logger"
	"threadpulse.app/pulse/common/otel"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/core/db"
	"threadpulse.app/pulse/internal/analysis"
	"threadpulse.app/pulse/internal/kv"
	"threadpulse.app/pulse/internal/notify"
	"threadpulse.app/pulse/internal/pipeline"
	"threadpulse.app/pulse/internal/queue"
	"threadpulse.app/pulse/internal/ratelimit"
	"threadpulse.app/pulse/internal/store"
	"threadpulse.app/pulse/internal/summary"
	"threadpulse.app/pulse/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "pulse worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	stores := store.NewStores(database.Pool())

	// Buffer windows live in redis but degrade to process memory if redis
	// goes away, so ingestion never stalls on the window store.
	windows := kv.NewFailoverStore(
		kv.NewRedisStore(redisClient, "pulse:window:"),
		kv.NewMemoryStore(),
		slog.Default(),
	)

	chat, err := llm.NewChatClient(llm.Config{
		Provider:  cfg.AnalysisLLM.Provider,
		APIKey:    cfg.AnalysisLLM.APIKey,
		BaseURL:   cfg.AnalysisLLM.BaseURL,
		Model:     cfg.AnalysisLLM.Model,
		MaxTokens: cfg.AnalysisLLM.MaxTokens,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.PerDay)
	analyzer := analysis.NewClient(chat, limiter, cfg.Analysis, slog.Default())
	compressor := summary.NewCompressor(analyzer, cfg.Summary, slog.Default())

	var poster notify.Poster
	if !cfg.Notifier.DryRun {
		poster = notify.NewWebhookPoster(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
	}
	notifier := notify.NewNotifier(stores.Conversations(), stores.Notifications(), poster, cfg.Notifier.DryRun, slog.Default())

	pipe := pipeline.New(
		stores,
		windows,
		analyzer,
		compressor,
		notifier,
		cfg.Buffer,
		cfg.Gate,
		cfg.Pipeline.Cooldown,
		slog.Default(),
	)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, pipe, worker.Config{
		MaxAttempts: 3,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be processing)
	w.Stop()

	// Cancel pending silence timers so none fire into torn-down stores
	pipe.Close()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
██████╗ ██╗   ██╗██╗     ███████╗███████╗
██╔══██╗██║   ██║██║     ██╔════╝██╔════╝
██████╔╝██║   ██║██║     ███████╗█████╗
██╔═══╝ ██║   ██║██║     ╚════██║██╔══╝
██║     ╚██████╔╝███████╗███████╗███████╗
╚═╝      ╚═════╝ ╚══════╝╚══════╝╚══════╝
`
