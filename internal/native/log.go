package native

import (
	"context"

	"fleetnotify/internal/notifier"
	logx "fleetnotify/pkg/logx"
)

// Log writes native notifications to the service log. It is always available.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	return &Log{log: log.With(logx.String("comp", "native.log"))}
}

func (l *Log) Initialize(context.Context) bool { return true }

func (l *Log) Show(_ context.Context, n notifier.Notification) error {
	fields := []logx.Field{
		logx.String("id", n.ID),
		logx.String("title", n.Title),
		logx.String("type", n.Type),
		logx.String("priority", string(n.Priority)),
	}
	if n.DeviceID != "" {
		fields = append(fields, logx.String("device", n.DeviceID))
	}
	msg := severityIcon(n.Severity) + " " + n.Message
	switch n.Severity {
	case notifier.SeverityError:
		l.log.Error(msg, fields...)
	case notifier.SeverityWarning:
		l.log.Warn(msg, fields...)
	default:
		l.log.Info(msg, fields...)
	}
	return nil
}
