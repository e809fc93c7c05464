package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, _, err := Load()
	require.NoError(t, err)

	require.Equal(t, "slawatch", cfg.App.Name)
	require.Equal(t, "sla_engine", cfg.App.ServiceName)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	require.Equal(t, 10, cfg.NATS.MaxReconnects)
	require.Equal(t, "slawatch.db", cfg.Storage.Path)
	require.Equal(t, 90, cfg.Storage.RetentionDays)
	require.Equal(t, 30*time.Second, cfg.Evaluator.Interval)
	require.Equal(t, 10000, cfg.Evaluator.BufferSize)
	require.Equal(t, 30*time.Minute, cfg.Evaluator.ViolationTimeout)
	require.Equal(t, 60*time.Second, cfg.Escalation.Interval)
	require.Equal(t, 24*time.Hour, cfg.Escalation.IncidentTimeout)
	require.Equal(t, 4, cfg.Notify.Workers)
	require.Equal(t, 3, cfg.Notify.MaxRetries)
	require.Equal(t, 15*time.Minute, cfg.Notify.RetryBackoff)
	require.Equal(t, 587, cfg.Notify.Email.Port)
	require.Equal(t, "https://events.pagerduty.com/v2/enqueue", cfg.Notify.PagerDuty.EventsURL)
	require.True(t, cfg.Recovery.Enabled)
	require.Equal(t, "localhost:6379", cfg.Recovery.RedisAddr)
	require.Equal(t, "0 0 * * * *", cfg.Trend.Schedule)
	require.Equal(t, 7*24*time.Hour, cfg.Trend.Window)
	require.True(t, cfg.Collector.Enabled)
	require.Equal(t, ":9090", cfg.Metrics.Addr)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	// Setup
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := `
app:
  environment: production
nats:
  url: nats://broker.internal:4222
evaluator:
  interval: 10s
notify:
  workers: 8
  email:
    host: smtp.example.com
recovery:
  service_classes:
    custom_reporter: report_generation
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(yaml), 0o644))
	chdir(t, dir)

	cfg, _, err := Load()
	require.NoError(t, err)

	require.Equal(t, "production", cfg.App.Environment)
	require.Equal(t, "nats://broker.internal:4222", cfg.NATS.URL)
	require.Equal(t, 10*time.Second, cfg.Evaluator.Interval)
	require.Equal(t, 8, cfg.Notify.Workers)
	require.Equal(t, "smtp.example.com", cfg.Notify.Email.Host)
	require.Equal(t, map[string]string{"custom_reporter": "report_generation"}, cfg.Recovery.ServiceClasses)

	// Settings the file does not mention keep their defaults
	require.Equal(t, "slawatch", cfg.App.Name)
	require.Equal(t, 587, cfg.Notify.Email.Port)
	require.Equal(t, 5*time.Minute, cfg.Evaluator.ResolverInterval)
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SLAWATCH_NATS_URL", "nats://env-broker:4222")
	t.Setenv("SLAWATCH_NOTIFY_MAX_RETRIES", "5")
	t.Setenv("SLAWATCH_RECOVERY_ENABLED", "false")

	cfg, _, err := Load()
	require.NoError(t, err)

	require.Equal(t, "nats://env-broker:4222", cfg.NATS.URL)
	require.Equal(t, 5, cfg.Notify.MaxRetries)
	require.False(t, cfg.Recovery.Enabled)
}

func TestWatchReloads(t *testing.T) {
	// Setup
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notify:\n  workers: 2\n"), 0o644))
	chdir(t, dir)

	cfg, v, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Notify.Workers)

	logger, _ := zap.NewDevelopment()
	var mu sync.Mutex
	var latest *Config
	Watch(v, logger, func(c *Config) {
		mu.Lock()
		latest = c
		mu.Unlock()
	})

	// Give the watcher goroutine time to register before touching the file
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("notify:\n  workers: 6\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.Notify.Workers == 6
	}, 5*time.Second, 50*time.Millisecond)
}
