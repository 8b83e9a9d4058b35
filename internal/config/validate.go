package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks bounds, enums and duration strings. It does not touch the
// network or the filesystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if n := cfg.Notifier; n != nil {
		for _, f := range []struct {
			path string
			v    int
		}{
			{"notifier.max_history", n.MaxHistory},
			{"notifier.max_queue", n.MaxQueue},
			{"notifier.max_per_minute", n.MaxPerMinute},
			{"notifier.retry_attempts", n.RetryAttempts},
		} {
			if f.v < 0 {
				errs = append(errs, fmt.Errorf("%s must be >= 0", f.path))
			}
		}
		errs = append(errs, durations(map[string]string{
			"notifier.throttle":           n.Throttle,
			"notifier.dedup_window":       n.DedupWindow,
			"notifier.grouping_window":    n.GroupingWindow,
			"notifier.poll_interval":      n.PollInterval,
			"notifier.process_delay":      n.ProcessDelay,
			"notifier.cleanup_interval":   n.CleanupInterval,
			"notifier.expiration_horizon": n.ExpirationHorizon,
			"notifier.retry_delay":        n.RetryDelay,
			"notifier.default_duration":   n.DefaultDuration,
		})...)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "mem":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
			}
		case "redis":
			if strings.TrimSpace(s.Addr) == "" {
				errs = append(errs, errors.New("storage.addr is required when storage.driver=redis"))
			}
			if s.DB < 0 {
				errs = append(errs, errors.New("storage.db must be >= 0"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		errs = append(errs, durations(map[string]string{"storage.busy_timeout": s.BusyTimeout})...)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Native.Driver)) {
	case "", "log", "none", "off":
	case "telegram":
		if strings.TrimSpace(cfg.Native.Telegram.Token) == "" {
			errs = append(errs, errors.New("native.telegram.token is required when native.driver=telegram"))
		}
		if cfg.Native.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("native.telegram.chat_id is required when native.driver=telegram"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown native.driver: %s", cfg.Native.Driver))
	}
	errs = append(errs, durations(map[string]string{"native.telegram.timeout": cfg.Native.Telegram.Timeout})...)

	if p := cfg.Push; p != nil {
		if p.Enabled && strings.TrimSpace(p.Endpoint) == "" {
			errs = append(errs, errors.New("push.endpoint is required when push.enabled=true"))
		}
		if p.RetryCount < 0 {
			errs = append(errs, errors.New("push.retry_count must be >= 0"))
		}
		if p.RatePerSec < 0 {
			errs = append(errs, errors.New("push.rate_per_sec must be >= 0"))
		}
		errs = append(errs, durations(map[string]string{"push.timeout": p.Timeout})...)
	}

	if m := cfg.MQTT; m != nil {
		if m.Enabled && strings.TrimSpace(m.Broker) == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt.enabled=true"))
		}
		if m.QoS < 0 || m.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2 (got %d)", m.QoS))
		}
		errs = append(errs, durations(map[string]string{"mqtt.connect_timeout": m.ConnectTimeout})...)
	}

	errs = append(errs, durations(map[string]string{
		"admin.read_timeout":  cfg.Admin.ReadTimeout,
		"admin.write_timeout": cfg.Admin.WriteTimeout,
		"admin.idle_timeout":  cfg.Admin.IdleTimeout,
	})...)

	return errors.Join(errs...)
}

func durations(fields map[string]string) []error {
	var errs []error
	for path, raw := range fields {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
