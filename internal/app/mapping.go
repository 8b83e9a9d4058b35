package app

import (
	"strings"
	"time"

	"fleetnotify/internal/config"
	"fleetnotify/internal/ingest"
	"fleetnotify/internal/native"
	"fleetnotify/internal/notifier"
	"fleetnotify/internal/observability/admin"
	"fleetnotify/internal/push"
	"fleetnotify/internal/storage"
	logx "fleetnotify/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapNotifierConfig resolves the engine config. An omitted section yields the
// engine defaults; pushEnabled reports whether a push client was wired.
func mapNotifierConfig(cfg *config.Config, pushEnabled bool) (notifier.Config, error) {
	out := notifier.DefaultConfig()
	if cfg.Push != nil {
		out.ExternalPush = notifier.PushConfig{
			Enabled:  pushEnabled && cfg.Push.Enabled,
			Endpoint: strings.TrimSpace(cfg.Push.Endpoint),
		}
	}
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}

	if n.MaxHistory > 0 {
		out.MaxHistory = n.MaxHistory
	}
	if n.MaxQueue > 0 {
		out.MaxQueue = n.MaxQueue
	}
	if n.MaxPerMinute > 0 {
		out.MaxPerMinute = n.MaxPerMinute
	}
	if n.RetryAttempts > 0 {
		out.RetryAttempts = n.RetryAttempts
	}
	if n.NativeEnabled != nil {
		out.NativeEnabled = *n.NativeEnabled
	}
	if n.InAppEnabled != nil {
		out.InAppEnabled = *n.InAppEnabled
	}
	out.LogLevel = strings.TrimSpace(n.LogLevel)

	// "0s" disables these; omitted keeps the default.
	unset := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"notifier.throttle", n.Throttle, &out.ThrottleDuration},
		{"notifier.dedup_window", n.DedupWindow, &out.DedupWindow},
		{"notifier.expiration_horizon", n.ExpirationHorizon, &out.ExpirationHorizon},
		{"notifier.process_delay", n.ProcessDelay, &out.ProcessDelay},
		{"notifier.retry_delay", n.RetryDelay, &out.RetryDelay},
	}
	for _, f := range unset {
		d, err := config.ParseDurationOrUnset(f.path, f.raw, *f.dst)
		if err != nil {
			return notifier.Config{}, err
		}
		*f.dst = d
	}

	positive := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"notifier.grouping_window", n.GroupingWindow, &out.GroupingWindow},
		{"notifier.poll_interval", n.PollInterval, &out.PollInterval},
		{"notifier.cleanup_interval", n.CleanupInterval, &out.CleanupInterval},
		{"notifier.default_duration", n.DefaultDuration, &out.DefaultDuration},
	}
	for _, f := range positive {
		d, err := config.ParseDurationOrDefault(f.path, f.raw, *f.dst)
		if err != nil {
			return notifier.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

// mapStorageConfig reports enabled=false when the section is omitted or the
// driver is "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Addr:        strings.TrimSpace(sc.Addr),
		Password:    sc.Password,
		DB:          sc.DB,
		KeyPrefix:   sc.KeyPrefix,
	}, true, nil
}

func mapNativeConfig(cfg *config.Config) (native.Config, error) {
	tg := cfg.Native.Telegram
	timeout, err := config.ParseDurationOrDefault("native.telegram.timeout", tg.Timeout, 10*time.Second)
	if err != nil {
		return native.Config{}, err
	}
	return native.Config{
		Driver: strings.TrimSpace(cfg.Native.Driver),
		Telegram: native.TelegramConfig{
			Token:    strings.TrimSpace(tg.Token),
			ChatID:   tg.ChatID,
			ThreadID: tg.ThreadID,
			APIURL:   strings.TrimSpace(tg.APIURL),
			Timeout:  timeout,
		},
	}, nil
}

func mapPushConfig(cfg *config.Config) (push.Config, bool, error) {
	if cfg.Push == nil || !cfg.Push.Enabled {
		return push.Config{}, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("push.timeout", cfg.Push.Timeout, 10*time.Second)
	if err != nil {
		return push.Config{}, false, err
	}
	return push.Config{
		Endpoint:   strings.TrimSpace(cfg.Push.Endpoint),
		Token:      cfg.Push.Token,
		Timeout:    timeout,
		RetryCount: cfg.Push.RetryCount,
		RatePerSec: cfg.Push.RatePerSec,
	}, true, nil
}

func mapIngestConfig(cfg *config.Config) (ingest.Config, bool, error) {
	if cfg.MQTT == nil || !cfg.MQTT.Enabled {
		return ingest.Config{}, false, nil
	}
	m := cfg.MQTT
	timeout, err := config.ParseDurationOrDefault("mqtt.connect_timeout", m.ConnectTimeout, 10*time.Second)
	if err != nil {
		return ingest.Config{}, false, err
	}
	return ingest.Config{
		Broker:         strings.TrimSpace(m.Broker),
		ClientID:       strings.TrimSpace(m.ClientID),
		Username:       m.Username,
		Password:       m.Password,
		Prefix:         strings.TrimSpace(m.Prefix),
		QoS:            byte(m.QoS),
		ConnectTimeout: timeout,
	}, true, nil
}

func mapAdminConfig(cfg *config.Config) (admin.Config, error) {
	ac := cfg.Admin
	out := admin.Config{
		Enabled:       ac.Enabled,
		Addr:          strings.TrimSpace(ac.Addr),
		Token:         strings.TrimSpace(ac.Token),
		AllowInsecure: ac.AllowInsecure,
		Pprof:         ac.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("admin.read_timeout", ac.ReadTimeout, 10*time.Second); err != nil {
		return admin.Config{}, err
	}
	// 0 keeps /debug/pprof/profile usable
	if out.WriteTimeout, err = config.ParseDurationField("admin.write_timeout", ac.WriteTimeout); err != nil {
		return admin.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("admin.idle_timeout", ac.IdleTimeout, time.Minute); err != nil {
		return admin.Config{}, err
	}
	return out, nil
}
