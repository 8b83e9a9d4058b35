package notifier

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

func validate(req Request) error {
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if req.Duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if req.Severity != "" && !req.Severity.valid() {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown value %q", req.Severity)}
	}
	if req.Priority != "" && !req.Priority.valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", req.Priority)}
	}
	if req.Channel != "" && !req.Channel.valid() {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown value %q", req.Channel)}
	}
	return nil
}

// inferChannel picks the originating subsystem from the request's references.
func inferChannel(req Request) Channel {
	t := strings.ToLower(req.Type)
	switch {
	case req.AlarmID != "":
		return ChannelAlarm
	case req.SubscriptionID != "":
		return ChannelSubscription
	case strings.Contains(t, "command"):
		return ChannelCommand
	case strings.Contains(t, "schedul"):
		return ChannelScheduler
	case req.DeviceID != "":
		return ChannelDevice
	}
	return ChannelSystem
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// build resolves a validated request into a notification.
func build(req Request, cfg Config, now time.Time) Notification {
	n := Notification{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Title:          strings.TrimSpace(req.Title),
		Message:        strings.TrimSpace(req.Message),
		Severity:       req.Severity,
		Priority:       req.Priority,
		Type:           req.Type,
		Channel:        req.Channel,
		DeviceID:       req.DeviceID,
		AlarmID:        req.AlarmID,
		SubscriptionID: req.SubscriptionID,
		Duration:       req.Duration,
		Persistent:     req.Persistent,
		ExpiresAt:      req.ExpiresAt,
		Actions:        slices.Clone(req.Actions),
		GroupKey:       req.GroupKey,
		Metadata:       maps.Clone(req.Metadata),
		Tags:           slices.Clone(req.Tags),
		ShowInApp:      boolOr(req.ShowInApp, true),
		ShowNative:     boolOr(req.ShowNative, true),
		Silent:         req.Silent,
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.Type == "" {
		n.Type = "general"
	}
	if n.Channel == "" {
		n.Channel = inferChannel(req)
	}
	switch {
	case n.Persistent:
		n.Duration = 0
	case n.Duration == 0:
		n.Duration = cfg.DefaultDuration
	}
	if n.ExpiresAt.IsZero() && cfg.ExpirationHorizon > 0 {
		n.ExpiresAt = now.Add(cfg.ExpirationHorizon)
	}
	if n.GroupKey == "" {
		n.GroupKey = fmt.Sprintf("%s:%s:%s", n.Type, n.DeviceID, n.Severity)
	}
	if req.Push != nil {
		n.Push = *req.Push
	} else {
		n.Push = cfg.ExternalPush.Enabled && n.Priority.Urgent()
	}
	return n
}
