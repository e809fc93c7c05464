package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all process-level settings. Definition, rule and recipient
// configuration lives in the store; this covers timings, endpoints and
// credentials.
type Config struct {
	App struct {
		Name        string `mapstructure:"name"`
		Environment string `mapstructure:"environment"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"app"`

	NATS struct {
		URL            string        `mapstructure:"url"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`

	Storage struct {
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"storage"`

	Evaluator struct {
		Interval         time.Duration `mapstructure:"interval"`
		BufferSize       int           `mapstructure:"buffer_size"`
		ResolverInterval time.Duration `mapstructure:"resolver_interval"`
		ViolationTimeout time.Duration `mapstructure:"violation_timeout"`
	} `mapstructure:"evaluator"`

	Escalation struct {
		Interval        time.Duration `mapstructure:"interval"`
		SweepInterval   time.Duration `mapstructure:"sweep_interval"`
		IncidentTimeout time.Duration `mapstructure:"incident_timeout"`
	} `mapstructure:"escalation"`

	Notify struct {
		Workers         int           `mapstructure:"workers"`
		QueueSize       int           `mapstructure:"queue_size"`
		DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
		RetryInterval   time.Duration `mapstructure:"retry_interval"`
		RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
		MaxRetries      int           `mapstructure:"max_retries"`
		DashboardURL    string        `mapstructure:"dashboard_url"`

		Email struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
			From     string `mapstructure:"from"`
		} `mapstructure:"email"`

		Slack struct {
			WebhookURL string `mapstructure:"webhook_url"`
		} `mapstructure:"slack"`

		PagerDuty struct {
			EventsURL string `mapstructure:"events_url"`
		} `mapstructure:"pagerduty"`

		SMS struct {
			GatewayURL string `mapstructure:"gateway_url"`
			APIKey     string `mapstructure:"api_key"`
			From       string `mapstructure:"from"`
		} `mapstructure:"sms"`

		Teams struct {
			WebhookURL string `mapstructure:"webhook_url"`
		} `mapstructure:"teams"`
	} `mapstructure:"notify"`

	Recovery struct {
		Enabled        bool              `mapstructure:"enabled"`
		Timeout        time.Duration     `mapstructure:"timeout"`
		RedisAddr      string            `mapstructure:"redis_addr"`
		RedisPassword  string            `mapstructure:"redis_password"`
		RedisDB        int               `mapstructure:"redis_db"`
		ServiceClasses map[string]string `mapstructure:"service_classes"`
	} `mapstructure:"recovery"`

	Trend struct {
		Schedule   string        `mapstructure:"schedule"`
		Window     time.Duration `mapstructure:"window"`
		MinSamples int           `mapstructure:"min_samples"`
		DeadBand   float64       `mapstructure:"dead_band"`
	} `mapstructure:"trend"`

	Collector struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"collector"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Log struct {
		Development bool   `mapstructure:"development"`
		Level       string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "slawatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.service_name", "sla_engine")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("storage.path", "slawatch.db")
	v.SetDefault("storage.retention_days", 90)

	v.SetDefault("evaluator.interval", 30*time.Second)
	v.SetDefault("evaluator.buffer_size", 10000)
	v.SetDefault("evaluator.resolver_interval", 5*time.Minute)
	v.SetDefault("evaluator.violation_timeout", 30*time.Minute)

	v.SetDefault("escalation.interval", 60*time.Second)
	v.SetDefault("escalation.sweep_interval", 5*time.Minute)
	v.SetDefault("escalation.incident_timeout", 24*time.Hour)

	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.delivery_timeout", 30*time.Second)
	v.SetDefault("notify.retry_interval", 5*time.Minute)
	v.SetDefault("notify.retry_backoff", 15*time.Minute)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("notify.dashboard_url", "http://localhost:8000")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.pagerduty.events_url", "https://events.pagerduty.com/v2/enqueue")

	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.timeout", 30*time.Second)
	v.SetDefault("recovery.redis_addr", "localhost:6379")
	v.SetDefault("recovery.redis_db", 0)

	v.SetDefault("trend.schedule", "0 0 * * * *")
	v.SetDefault("trend.window", 7*24*time.Hour)
	v.SetDefault("trend.min_samples", 10)
	v.SetDefault("trend.dead_band", 0.1)

	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.interval", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.development", true)
	v.SetDefault("log.level", "info")
}

// Load reads configuration from config/config.yaml, the working directory
// and the environment (prefix SLAWATCH_). A missing file is not an error;
// defaults cover every setting.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SLAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, v, nil
}

// Watch re-unmarshals the configuration whenever the file changes and hands
// the fresh copy to onChange. Reload applies to newly started work; running
// loops keep the intervals they were created with.
func Watch(v *viper.Viper, logger *zap.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			logger.Error("Failed to reload config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}
