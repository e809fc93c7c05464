package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slawatch/slawatch/internal/config"
	"github.com/slawatch/slawatch/internal/escalation"
	"github.com/slawatch/slawatch/internal/event"
	"github.com/slawatch/slawatch/internal/incident"
	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/monitor"
	"github.com/slawatch/slawatch/internal/notify"
	"github.com/slawatch/slawatch/internal/recovery"
	"github.com/slawatch/slawatch/internal/storage"
	"github.com/slawatch/slawatch/internal/trend"
)

func main() {
	cfg, v, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logLevel, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting SLA engine",
		zap.String("environment", cfg.App.Environment),
		zap.String("storage", cfg.Storage.Path))

	nc, err := connectNATS(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	store, err := storage.NewSQLiteStore(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.SeedDefaults(ctx); err != nil {
		logger.Fatal("Failed to seed default configuration", zap.Error(err))
	}

	m := metrics.New()
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("Metrics server listening", zap.String("addr", cfg.Metrics.Addr))
	}

	publisher := event.NewPublisher(js, logger, m)
	if err := publisher.Start(); err != nil {
		logger.Fatal("Failed to create event streams", zap.Error(err))
	}

	executor := recovery.NewExecutor(logger, recovery.Config{
		Enabled:        cfg.Recovery.Enabled,
		Timeout:        cfg.Recovery.Timeout,
		ServiceClasses: cfg.Recovery.ServiceClasses,
	}, store, m)

	if restart, err := recovery.NewDockerRestartAdapter(logger, recovery.DockerConfig{}); err != nil {
		logger.Warn("Docker unavailable, restart remediation disabled", zap.Error(err))
	} else {
		executor.RegisterAdapter(restart)
	}
	cacheClear := recovery.NewCacheClearAdapter(logger, recovery.RedisConfig{
		Addr:     cfg.Recovery.RedisAddr,
		Password: cfg.Recovery.RedisPassword,
		DB:       cfg.Recovery.RedisDB,
	})
	defer cacheClear.Close()
	executor.RegisterAdapter(cacheClear)
	executor.RegisterAdapter(recovery.NewCircuitBreakerAdapter(logger))
	executor.RegisterAdapter(recovery.NewThrottleAdapter(logger, publisher))
	executor.RegisterAdapter(recovery.NewRemedyCommandAdapter(logger, publisher, model.ActionFailover))
	executor.RegisterAdapter(recovery.NewRemedyCommandAdapter(logger, publisher, model.ActionScaleResources))
	executor.RegisterAdapter(recovery.NewRemedyCommandAdapter(logger, publisher, model.ActionRollbackDeployment))
	executor.RegisterAdapter(recovery.NewManualInterventionAdapter())

	dispatcher := notify.NewDispatcher(logger, notify.Config{
		Workers:         cfg.Notify.Workers,
		QueueSize:       cfg.Notify.QueueSize,
		DeliveryTimeout: cfg.Notify.DeliveryTimeout,
		RetryInterval:   cfg.Notify.RetryInterval,
		RetryBackoff:    cfg.Notify.RetryBackoff,
		MaxRetries:      cfg.Notify.MaxRetries,
	}, store, m)

	dispatcher.RegisterAdapter(notify.NewEmailAdapter(logger, notify.EmailConfig{
		Host:         cfg.Notify.Email.Host,
		Port:         cfg.Notify.Email.Port,
		Username:     cfg.Notify.Email.Username,
		Password:     cfg.Notify.Email.Password,
		From:         cfg.Notify.Email.From,
		DashboardURL: cfg.Notify.DashboardURL,
	}))
	dispatcher.RegisterAdapter(notify.NewSlackAdapter(logger, notify.SlackConfig{
		WebhookURL:   cfg.Notify.Slack.WebhookURL,
		DashboardURL: cfg.Notify.DashboardURL,
	}))
	dispatcher.RegisterAdapter(notify.NewPagerDutyAdapter(logger, notify.PagerDutyConfig{
		EventsURL:    cfg.Notify.PagerDuty.EventsURL,
		DashboardURL: cfg.Notify.DashboardURL,
	}))
	dispatcher.RegisterAdapter(notify.NewSMSAdapter(logger, notify.SMSConfig{
		GatewayURL: cfg.Notify.SMS.GatewayURL,
		APIKey:     cfg.Notify.SMS.APIKey,
		From:       cfg.Notify.SMS.From,
	}))
	dispatcher.RegisterAdapter(notify.NewTeamsAdapter(logger, notify.TeamsConfig{
		WebhookURL:   cfg.Notify.Teams.WebhookURL,
		DashboardURL: cfg.Notify.DashboardURL,
	}))
	dispatcher.RegisterAdapter(notify.NewWebhookAdapter(logger))
	dispatcher.RegisterAdapter(notify.NewInAppAdapter(logger, publisher))
	dispatcher.Start(ctx)

	manager := incident.NewManager(logger, incident.Config{
		Timeout:       cfg.Escalation.IncidentTimeout,
		SweepInterval: cfg.Escalation.SweepInterval,
	}, store, publisher, dispatcher, executor, m)
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start incident manager", zap.Error(err))
	}

	evaluator := monitor.NewEvaluator(logger, monitor.Config{
		Interval:         cfg.Evaluator.Interval,
		BufferSize:       cfg.Evaluator.BufferSize,
		ResolverInterval: cfg.Evaluator.ResolverInterval,
		ViolationTimeout: cfg.Evaluator.ViolationTimeout,
	}, store, publisher, manager, m)
	if err := evaluator.Start(ctx); err != nil {
		logger.Fatal("Failed to start evaluator", zap.Error(err))
	}

	ingest := event.NewConsumer(js, logger, evaluator)
	if err := ingest.Start(ctx); err != nil {
		logger.Fatal("Failed to start measurement consumer", zap.Error(err))
	}

	escalator := escalation.NewScheduler(logger, store, manager, cfg.Escalation.Interval)
	escalator.Start(ctx)

	var collector *monitor.SystemCollector
	if cfg.Collector.Enabled {
		collector = monitor.NewSystemCollector(logger, evaluator, cfg.App.ServiceName, cfg.Collector.Interval)
		collector.Start(ctx)
	}

	analyzer := trend.NewAnalyzer(logger, trend.Config{
		Schedule:      cfg.Trend.Schedule,
		Window:        cfg.Trend.Window,
		MinSamples:    cfg.Trend.MinSamples,
		DeadBand:      cfg.Trend.DeadBand,
		RetentionDays: cfg.Storage.RetentionDays,
	}, store)
	if err := analyzer.Start(ctx); err != nil {
		logger.Fatal("Failed to start trend analyzer", zap.Error(err))
	}

	// Only the log level applies live; timing knobs need a restart.
	config.Watch(v, logger, func(next *config.Config) {
		if lvl, err := zapcore.ParseLevel(next.Log.Level); err == nil {
			logLevel.SetLevel(lvl)
		}
	})

	logger.Info("SLA engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	ingest.Stop()
	if collector != nil {
		collector.Stop()
	}
	escalator.Stop()
	evaluator.Stop()
	manager.Stop()
	analyzer.Stop()
	dispatcher.Stop()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("SLA engine stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zcfg zap.Config
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zcfg.Level.SetLevel(lvl)
	}

	logger, err := zcfg.Build()
	return logger, zcfg.Level, err
}

func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(attempt))
	}
	return nil, err
}
