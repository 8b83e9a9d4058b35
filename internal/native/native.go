// Package native provides notifier.NativeNotifier implementations: a log sink
// for headless hosts and a Telegram chat for operators away from the dashboard.
package native

import (
	"fmt"
	"strings"
	"time"

	"fleetnotify/internal/notifier"
	logx "fleetnotify/pkg/logx"
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint (self-hosted API servers, tests).
	APIURL  string
	Timeout time.Duration
}

type Config struct {
	// Driver is "log" (default), "telegram" or "none".
	Driver   string
	Telegram TelegramConfig
}

// Open returns the notifier selected by cfg.Driver, or nil for "none".
func Open(cfg Config, log logx.Logger) (notifier.NativeNotifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return NewLog(log), nil
	case "telegram":
		return NewTelegram(cfg.Telegram, log), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown native driver %q", cfg.Driver)
	}
}

func severityIcon(s notifier.Severity) string {
	switch s {
	case notifier.SeverityError:
		return "🚨"
	case notifier.SeverityWarning:
		return "⚠️"
	case notifier.SeveritySuccess:
		return "✅"
	default:
		return "ℹ️"
	}
}
