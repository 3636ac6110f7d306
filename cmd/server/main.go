package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opscribe/opscribe/internal/handler"
	"github.com/opscribe/opscribe/pkg/config"
	"github.com/opscribe/opscribe/pkg/logger"
	"github.com/opscribe/opscribe/pkg/middleware"
	"github.com/opscribe/opscribe/pkg/redact"
	"github.com/opscribe/opscribe/pkg/retry"
	"github.com/opscribe/opscribe/pkg/secrets"
	"github.com/opscribe/opscribe/pkg/sink"
	"github.com/opscribe/opscribe/pkg/slack"
	"github.com/opscribe/opscribe/pkg/txlog"
)

func main() {
	// 1. Load Configuration (fails fast on invalid sink settings)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	appLog, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Pretty:      cfg.Logging.Pretty,
		Service:     cfg.Logging.Service,
		Environment: cfg.Logging.Environment,
		RedactKeys:  cfg.Redact.Keys,
		File:        cfg.Logging.File,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
	}

	// 3. Optionally pull secrets into the environment before anything that
	// reads credentials from it.
	if cfg.Secrets.Enabled {
		loader, err := secrets.NewLoader(context.Background(), secrets.Options{
			Region: cfg.Secrets.Region,
			Retry:  retryPolicy,
		})
		if err != nil {
			log.Fatalf("Failed to initialize secrets loader: %v", err)
		}
		if err := loader.Export(context.Background(), cfg.Secrets.SecretNames...); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
		appLog.System("secrets_loaded", map[string]interface{}{"names": cfg.Secrets.SecretNames})
	}

	// 4. Select the persistence sink (OpenSearch > Redis > Postgres > File)
	txSink := selectSink(cfg, appLog)

	// 5. Dispatcher
	dispatcher, err := txlog.NewDispatcher(txSink, appLog, txlog.DispatcherConfig{
		BufferSize:  cfg.Dispatcher.BufferSize,
		Workers:     cfg.Dispatcher.Workers,
		SinkTimeout: cfg.SinkTimeout(),
		RecentMax:   cfg.Dispatcher.RecentMax,
	})
	if err != nil {
		log.Fatalf("Failed to initialize dispatcher: %v", err)
	}

	// 6. Slack notifier (optional)
	var notifier *slack.Notifier
	if cfg.Slack.BotToken != "" || cfg.Slack.WebhookURL != "" {
		notifier, err = slack.New(slack.Config{
			BotToken:          cfg.Slack.BotToken,
			Channel:           cfg.Slack.Channel,
			WebhookURL:        cfg.Slack.WebhookURL,
			MessagesPerMinute: cfg.Slack.MessagesPerMinute,
			Retry:             retryPolicy,
		})
		if err != nil {
			log.Fatalf("Failed to initialize slack notifier: %v", err)
		}
	}

	// 7. Router
	keys := redact.NewKeySet(cfg.Redact.Keys...)
	txHandler := handler.NewTransactionHandler(dispatcher, txSink)

	r := gin.New()
	r.Use(middleware.Transaction(dispatcher,
		middleware.WithService(cfg.Logging.Service),
		middleware.WithKeySet(keys),
		middleware.WithLimits(cfg.Redact.DepthLimit, cfg.Redact.ArrayLimit),
		middleware.WithMaxBodyBytes(cfg.Redact.MaxBodyBytes),
	))
	r.Use(ginzap.RecoveryWithZap(appLog.Zap(), true))
	r.Use(middleware.ErrorHandler(appLog))
	r.Use(middleware.Metrics())

	r.GET("/health", txHandler.Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/transactions", txHandler.List)
		v1.POST("/echo", func(c *gin.Context) {
			middleware.SetOperation(c, "echo")
			var body map[string]interface{}
			if err := c.ShouldBindJSON(&body); err != nil {
				_ = c.Error(err)
				return
			}
			c.JSON(http.StatusOK, body)
		})
	}

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		appLog.System("startup", map[string]interface{}{
			"port": cfg.Server.Port,
			"sink": sinkName(txSink),
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	notify(notifier, appLog, cfg.Logging.Service+" started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.System("shutdown_started", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.LogError(err, "server forced to shutdown")
	}
	// Drain queued transaction records before exiting.
	if err := dispatcher.Shutdown(ctx); err != nil {
		appLog.LogError(err, "dispatcher drain incomplete")
	}

	notify(notifier, appLog, cfg.Logging.Service+" stopped")
	appLog.System("shutdown_complete", nil)
}

// selectSink prefers the search backend, then redis, then postgres, and
// finally the local file so the service always has somewhere to write.
func selectSink(cfg *config.Config, appLog *logger.Logger) txlog.Sink {
	if cfg.OpenSearch.Enabled {
		s, err := sink.NewOpenSearch(context.Background(), sink.OpenSearchConfig{
			Addresses:          cfg.OpenSearch.Addresses,
			Username:           cfg.OpenSearch.Username,
			Password:           cfg.OpenSearch.Password,
			Index:              cfg.OpenSearch.Index,
			InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
			AWSSigning:         cfg.OpenSearch.AWSSigning,
			AWSRegion:          cfg.OpenSearch.AWSRegion,
		})
		if err != nil {
			log.Fatalf("Failed to initialize opensearch sink: %v", err)
		}
		appLog.System("sink_selected", map[string]interface{}{"sink": "opensearch"})
		return s
	}

	if cfg.Redis.Addr != "" {
		s, err := sink.NewRedis(sink.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			ListKey:  cfg.Redis.ListKey,
			ListMax:  cfg.Redis.ListMax,
		})
		if err == nil {
			appLog.System("sink_selected", map[string]interface{}{"sink": "redis"})
			return s
		}
		appLog.LogError(err, "redis sink unavailable, trying next")
	}

	if cfg.Database.DSN != "" {
		s, err := sink.NewPostgres(cfg.Database.DSN)
		if err == nil {
			appLog.System("sink_selected", map[string]interface{}{"sink": "postgres"})
			go cleanupLoop(s, cfg, appLog)
			return s
		}
		appLog.LogError(err, "postgres sink unavailable, falling back to file")
	}

	appLog.System("sink_selected", map[string]interface{}{"sink": "file"})
	return sink.NewFile("./logs/transactions.jsonl")
}

func cleanupLoop(s *sink.Postgres, cfg *config.Config, appLog *logger.Logger) {
	interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
	retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := s.Cleanup(ctx, retention); err != nil {
			appLog.LogError(err, "transaction cleanup failed")
		}
		cancel()
	}
}

func notify(n *slack.Notifier, appLog *logger.Logger, text string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := n.Notify(ctx, text); err != nil {
		appLog.LogError(err, "slack notification failed", zap.String("text", text))
	}
}

func sinkName(s txlog.Sink) string {
	if n, ok := s.(txlog.Named); ok {
		return n.Name()
	}
	return "sink"
}
