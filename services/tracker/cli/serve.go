package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/engine"
	"github.com/krskas/slack-task-tracker/internal/httpapi"
	"github.com/krskas/slack-task-tracker/internal/kafka"
	"github.com/krskas/slack-task-tracker/internal/notify"
	"github.com/krskas/slack-task-tracker/internal/reconcile"
	redisstore "github.com/krskas/slack-task-tracker/internal/redis"
	"github.com/krskas/slack-task-tracker/internal/report"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
	"github.com/krskas/slack-task-tracker/services/tracker"
	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker",
	Long: `Connect to Slack and track tasks from emoji reactions.

Events arrive over Socket Mode (event_mode socket), the Events API HTTP
endpoint (event_mode http) or a Kafka topic fed by a gateway (event_mode kafka).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("event-mode", config.EventModeSocket, "event transport: socket | http | kafka")
	serveCmd.Flags().String("http-addr", ":8080", "HTTP server address")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("redis-addr", "", "Redis address (host:port); empty disables dedup and rate limiting")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables Kafka")
	serveCmd.Flags().String("jwt-secret", "", "HS256 secret for the /api/v1 endpoints")
	serveCmd.Flags().String("scan-schedule", "", "cron schedule for the history sweep; empty disables it")
	serveCmd.Flags().Bool("scan-on-start", true, "sweep every member channel on startup")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("event_mode", serveCmd.Flags(), "event-mode")
	bindFlag("http_addr", serveCmd.Flags(), "http-addr")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("jwt_secret", serveCmd.Flags(), "jwt-secret")
	bindFlag("scan_schedule", serveCmd.Flags(), "scan-schedule")
	bindFlag("scan_on_start", serveCmd.Flags(), "scan-on-start")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)
	if err := validateEventMode(cfg); err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// ── storage and catalog ───────────────────────────────────────────────────
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStore(initCtx, cfg, logger)
	if err != nil {
		cancel()
		return err
	}
	defer func() { _ = st.Close() }()

	cat, err := seedCatalog(initCtx, cfg, st)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("state catalog loaded", slog.Int("states", len(cat.States())), slog.String("store", cfg.StoreDriver))

	// ── chat platform ─────────────────────────────────────────────────────────
	api, chat, err := newChat(cfg, logger)
	if err != nil {
		return err
	}

	// ── notification sinks ────────────────────────────────────────────────────
	sinks := notify.NewMulti(logger, notify.Sink{Name: "slack", Notifier: notify.NewSlack(chat, logger)})

	var producer kafka.Producer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer = kafka.NewProducer(brokers)
		defer func() { _ = producer.Close() }()
		sinks.Add("kafka", notify.NewKafka(producer, cfg.KafkaLifecycleTopic))
	}
	if cfg.WebhookURL != "" {
		sinks.Add("webhook", notify.NewWebhook(cfg.WebhookURL, nil))
	}
	if cfg.TelegramToken != "" {
		bot, err := notify.NewTelegramBot(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sinks.Add("telegram", notify.NewTelegram(bot, cfg.TelegramChatID))
	}
	if cfg.SMTPHost != "" && len(cfg.EmailTo) > 0 {
		sinks.Add("email", notify.NewEmail(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			To:       cfg.EmailTo,
		}))
	}

	// ── domain services ───────────────────────────────────────────────────────
	eng := engine.New(cat, st, engine.WithNotifier(sinks), engine.WithLogger(logger))
	scanner := reconcile.NewScanner(cat, st, chat,
		reconcile.WithLookback(cfg.ScanLookback),
		reconcile.WithMaxMessages(cfg.ScanMaxMessages),
		reconcile.WithNotifier(sinks),
		reconcile.WithLogger(logger),
	)
	queries := commands.NewService(cat, st, chat, logger)

	trackerOpts := []tracker.Option{tracker.WithLogger(logger), tracker.WithEventTimeout(cfg.EventTimeout)}
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		trackerOpts = append(trackerOpts,
			tracker.WithDeduper(redisstore.NewDeduper(redisClient, cfg.EventDedupTTL)),
			tracker.WithRateLimiter(redisstore.NewRateLimiter(redisClient, cfg.CommandRateLimit, time.Minute)),
		)
	}
	trk := tracker.New(cat, eng, scanner, chat, queries, trackerOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	var slackEvents slackchat.Handler
	if cfg.EventMode == config.EventModeHTTP {
		slackEvents = trk
	}
	ready := func(ctx context.Context) error { return st.Ping(ctx) }
	httpAPI := httpapi.NewServer(httpapi.Config{
		SigningSecret: cfg.SlackSigningSecret,
		JWTSecret:     cfg.JWTSecret,
		EventTimeout:  cfg.EventTimeout,
		Ready:         ready,
		Responder:     chat,
	}, slackEvents, st, queries, scanner,
		tracker.CatalogReloader{Catalog: cat, Source: st, Logger: logger},
		report.NewGenerator(), logger)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpAPI.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var sweeper *reconcile.Sweeper
	if cfg.ScanSchedule != "" {
		sweeper = reconcile.NewSweeper(scanner.ScanAllChannels, logger)
		if err := sweeper.Start(cfg.ScanSchedule); err != nil {
			return err
		}
	}

	// ── run ───────────────────────────────────────────────────────────────────
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, ready, logger)

	var wg sync.WaitGroup
	fatal := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal <- fmt.Errorf("http server: %w", err)
		}
	}()

	switch cfg.EventMode {
	case config.EventModeSocket:
		source := slackchat.NewSocketSource(api, chat, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Run(runCtx, trk); err != nil {
				fatal <- err
			}
		}()
	case config.EventModeKafka:
		consumer := kafka.NewConsumer(cfg.Brokers(), cfg.KafkaInboundTopic, cfg.KafkaGroupID, logger)
		defer func() { _ = consumer.Close() }()
		source := kafka.NewSource(consumer, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Run(runCtx, trk); err != nil {
				fatal <- err
			}
		}()
	}
	logger.Info("tracker started", slog.String("event_mode", cfg.EventMode), slog.Int("sinks", sinks.Len()))

	if cfg.ScanOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweep(runCtx, scanner, logger)
		}()
	}

	var runErr error
	select {
	case <-runCtx.Done():
		logger.Info("shutting down...")
	case runErr = <-fatal:
		logger.Error("fatal error, shutting down", slog.String("error", runErr.Error()))
	}
	stop()

	if sweeper != nil {
		sweeper.Stop()
	}
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	httpAPI.Wait()
	wg.Wait()
	logger.Info("stopped")
	return runErr
}

func validateEventMode(cfg config.Config) error {
	switch cfg.EventMode {
	case config.EventModeSocket:
		if cfg.SlackAppToken == "" {
			return errors.New("slack_app_token is required for event_mode socket")
		}
	case config.EventModeHTTP:
		if cfg.SlackSigningSecret == "" {
			return errors.New("slack_signing_secret is required for event_mode http")
		}
	case config.EventModeKafka:
		if len(cfg.Brokers()) == 0 {
			return errors.New("kafka_brokers is required for event_mode kafka")
		}
	default:
		return fmt.Errorf("unknown event_mode %q", cfg.EventMode)
	}
	return nil
}

func sweep(ctx context.Context, scanner *reconcile.Scanner, logger *slog.Logger) {
	logger.Info("startup sweep starting")
	res, err := scanner.ScanAllChannels(ctx)
	if err != nil {
		logger.Error("startup sweep failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("startup sweep finished",
		slog.Int("channels", res.Channels),
		slog.Int("failed", len(res.Failed)),
		slog.Int("created", res.Created()),
	)
}
