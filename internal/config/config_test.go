package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "fleetnotify/pkg/logx"
)

const sampleJSON = `{
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "notifier": {"max_queue": 20, "throttle": "0s", "retry_delay": "250ms", "native_enabled": false},
  "storage": {"driver": "sqlite", "path": "./fleet.db", "busy_timeout": "2s"},
  "native": {"driver": "telegram", "telegram": {"token": "abc", "chat_id": -100}},
  "push": {"enabled": true, "endpoint": "https://push.example/v1", "token": "s3cret"},
  "mqtt": {"enabled": true, "broker": "tcp://localhost:1883", "qos": 1}
}`

const sampleYAML = `
logging:
  level: info
  console: true
notifier:
  max_history: 10
  dedup_window: 3s
native:
  driver: log
mqtt:
  enabled: false
  broker: ""
`

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NotNil(t, cfg.Notifier)
	assert.Equal(t, 20, cfg.Notifier.MaxQueue)
	require.NotNil(t, cfg.Notifier.NativeEnabled)
	assert.False(t, *cfg.Notifier.NativeEnabled)
	assert.Nil(t, cfg.Notifier.InAppEnabled)
	assert.Equal(t, int64(-100), cfg.Native.Telegram.ChatID)
	assert.Equal(t, "https://push.example/v1", cfg.Push.Endpoint)
	assert.Equal(t, 1, cfg.MQTT.QoS)
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 10, cfg.Notifier.MaxHistory)
	assert.Equal(t, "3s", cfg.Notifier.DedupWindow)
	assert.Equal(t, "log", cfg.Native.Driver)
	assert.Nil(t, cfg.Storage)

	empty, err := Decode("config.yml", []byte(""))
	require.NoError(t, err)
	assert.Nil(t, empty.Notifier)
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"logging":{"level":"info"},"telegram":{}}`))
	assert.Error(t, err)

	_, err = Decode("c.yaml", []byte("notifier:\n  workers: 2\n"))
	assert.Error(t, err)

	_, err = Decode("c.json", []byte(`{} {}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"bad duration":       {Notifier: &NotifierConfig{RetryDelay: "soon"}},
		"negative duration":  {Notifier: &NotifierConfig{Throttle: "-1s"}},
		"negative size":      {Notifier: &NotifierConfig{MaxQueue: -1}},
		"sqlite needs path":  {Storage: &StorageConfig{Driver: "sqlite"}},
		"redis needs addr":   {Storage: &StorageConfig{Driver: "redis"}},
		"unknown storage":    {Storage: &StorageConfig{Driver: "etcd"}},
		"telegram needs tok": {Native: NativeConfig{Driver: "telegram", Telegram: TelegramConfig{ChatID: 1}}},
		"unknown native":     {Native: NativeConfig{Driver: "dbus"}},
		"push needs url":     {Push: &PushConfig{Enabled: true}},
		"mqtt needs broker":  {MQTT: &MQTTConfig{Enabled: true}},
		"mqtt qos":           {MQTT: &MQTTConfig{QoS: 3}},
		"admin timeout":      {Admin: AdminConfig{IdleTimeout: "1d"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(&cfg))
		})
	}

	assert.NoError(t, Validate(&Config{}))
	assert.Error(t, Validate(nil))
}

func TestParseDurations(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrUnset("x", "0s", 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDurationOrUnset("x", " ", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = ParseDurationField("notifier.retry_delay", "1 minute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier.retry_delay")
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, err := Decode("a.json", []byte(sampleJSON))
	require.NoError(t, err)

	sections, attrs := SummarizeConfigChange(oldCfg, oldCfg)
	assert.Empty(t, sections)
	assert.Empty(t, attrs)

	newCfg, err := Decode("a.json", []byte(sampleJSON))
	require.NoError(t, err)
	newCfg.Logging.Level = "warn"
	no := false
	newCfg.Notifier.InAppEnabled = &no
	newCfg.Push.Token = "rotated"
	newCfg.MQTT.Prefix = "plant"

	sections, attrs = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"logging", "mqtt", "notifier", "push"}, sections)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"mqtt", "push"}, RestartRequired(sections))

	// the same *bool value behind a different pointer is not a change
	same, err := Decode("a.json", []byte(sampleJSON))
	require.NoError(t, err)
	sections, _ = SummarizeConfigChange(oldCfg, same)
	assert.Empty(t, sections)

	sections, _ = SummarizeConfigChange(nil, &Config{Storage: &StorageConfig{Driver: "file"}})
	assert.Equal(t, []string{"storage"}, sections)
}

func TestSummaryNeverLogsSecrets(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{
		Native:  NativeConfig{Driver: "telegram", Telegram: TelegramConfig{Token: "tg-secret", ChatID: 1}},
		Push:    &PushConfig{Token: "push-secret"},
		MQTT:    &MQTTConfig{Password: "mqtt-secret"},
		Storage: &StorageConfig{Driver: "redis", Password: "redis-secret"},
		Admin:   AdminConfig{Enabled: true, Token: "admin-secret"},
	}
	_, attrs := SummarizeConfigChange(oldCfg, newCfg)

	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")
	log.Info("summary", attrs...)
	out := buf.String()
	for _, secret := range []string{"tg-secret", "push-secret", "mqtt-secret", "redis-secret", "admin-secret"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, "push.token_set")
}

func TestManagerLoadAndSubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o644))

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	ch := m.Subscribe(1)
	m.publish(&Config{})
	m.publish(cfg)
	assert.Same(t, cfg, <-ch, "a full subscriber keeps the newest config")
	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, os.WriteFile(path, []byte(`{"mqtt":{"enabled":true}}`), 0o644))
	_, err = m.Load()
	assert.Error(t, err)
}

func TestManagerWatchPublishesValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	m := NewManager(path)
	m.SetLogger(logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)

	var validated atomic.Int32
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		validated.Add(1)
		if cfg.Logging.Level == "trace" {
			return assert.AnError
		}
		return nil
	})

	ch := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// let the watcher register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))

	select {
	case cfg := <-ch:
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}

	require.NoError(t, os.WriteFile(path, []byte("notifier:\n  retry_delay: nope\n"), 0o644))
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, "warn", m.Get().Logging.Level, "invalid config is never committed")

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: trace\n"), 0o644))
	require.Eventually(t, func() bool { return validated.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "warn", m.Get().Logging.Level, "validator rejection keeps the old config")
	assert.Empty(t, ch)
}
