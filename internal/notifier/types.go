package notifier

import (
	"context"
	"maps"
	"slices"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) valid() bool {
	switch s {
	case SeveritySuccess, SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Urgent reports whether the priority always warrants native delivery.
func (p Priority) Urgent() bool { return p == PriorityHigh || p == PriorityCritical }

// Channel is the originating subsystem of a notification.
type Channel string

const (
	ChannelSystem       Channel = "system"
	ChannelAlarm        Channel = "alarm"
	ChannelSubscription Channel = "subscription"
	ChannelDevice       Channel = "device"
	ChannelCommand      Channel = "command"
	ChannelUser         Channel = "user"
	ChannelScheduler    Channel = "scheduler"
)

func (c Channel) valid() bool {
	switch c {
	case ChannelSystem, ChannelAlarm, ChannelSubscription, ChannelDevice, ChannelCommand, ChannelUser, ChannelScheduler:
		return true
	}
	return false
}

type Action struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Variant string `json:"variant,omitempty"`
}

// Request is the caller input to Notify.
type Request struct {
	Title    string
	Message  string
	Severity Severity
	Priority Priority
	Type     string
	Channel  Channel

	DeviceID       string
	AlarmID        string
	SubscriptionID string

	// Duration is how long a toast stays visible. Zero takes the configured
	// default unless Persistent is set, which forces zero (sticky).
	Duration   time.Duration
	Persistent bool
	// ExpiresAt overrides the configured expiration horizon.
	ExpiresAt time.Time

	Actions  []Action
	GroupKey string
	Metadata map[string]any
	Tags     []string

	// nil means true.
	ShowInApp  *bool
	ShowNative *bool
	// Silent suppresses UI event emission; the notification is still recorded.
	Silent bool
	// Push overrides the configured external push policy when non-nil.
	Push *bool
}

// Notification is the queued/history record.
type Notification struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Priority Priority `json:"priority"`
	Type     string   `json:"type"`
	Channel  Channel  `json:"channel"`

	DeviceID       string `json:"deviceId,omitempty"`
	AlarmID        string `json:"alarmId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`

	Duration   time.Duration `json:"duration"`
	Persistent bool          `json:"persistent,omitempty"`
	ExpiresAt  time.Time     `json:"expiresAt,omitzero"`

	Actions  []Action       `json:"actions,omitempty"`
	GroupKey string         `json:"groupKey"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`

	ShowInApp  bool `json:"showInApp"`
	ShowNative bool `json:"showNative"`
	Silent     bool `json:"silent,omitempty"`
	Push       bool `json:"push,omitempty"`

	Read       bool   `json:"read"`
	Dismissed  bool   `json:"dismissed"`
	Expired    bool   `json:"expired,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	GroupCount int    `json:"groupCount,omitempty"`
	RetryCount int    `json:"retryCount,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// Clone returns a copy that shares no slices or maps with n.
func (n Notification) Clone() Notification {
	n.Actions = slices.Clone(n.Actions)
	n.Tags = slices.Clone(n.Tags)
	n.Metadata = maps.Clone(n.Metadata)
	return n
}

// IsExpired reports whether n has an expiration instant and now is past it.
func IsExpired(n Notification, now time.Time) bool {
	return !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt)
}

// NativeNotifier is the OS/platform notification surface outside the in-app UI.
//
// Initialize must be idempotent. Show may fail; the engine retries.
type NativeNotifier interface {
	Initialize(ctx context.Context) bool
	Show(ctx context.Context, n Notification) error
}

// Pusher forwards a notification to an external push service.
type Pusher interface {
	Push(ctx context.Context, n Notification) error
}

// Store is the bounded key-value persistence the engine writes history to.
type Store interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Filter selects history entries in Notifications.
// The zero value returns every live (not expired, not dismissed) entry.
type Filter struct {
	UnreadOnly bool
	Type       string
	DeviceID   string
	Channel    Channel
	Severity   Severity
	// Tags must all be present on a matching notification.
	Tags  []string
	Limit int
	// IncludeExpired also returns expired and dismissed entries.
	IncludeExpired bool
}

// Metrics are monotonic counters, zeroed only by ResetMetrics.
type Metrics struct {
	TotalSent         int64 `json:"totalSent"`
	TotalRead         int64 `json:"totalRead"`
	TotalDismissed    int64 `json:"totalDismissed"`
	TotalExpired      int64 `json:"totalExpired"`
	TotalThrottled    int64 `json:"totalThrottled"`
	TotalDeduplicated int64 `json:"totalDeduplicated"`
	TotalGrouped      int64 `json:"totalGrouped"`
	TotalFailed       int64 `json:"totalFailed"`
	TotalDropped      int64 `json:"totalDropped"`

	ByType     map[string]int64   `json:"byType"`
	BySeverity map[Severity]int64 `json:"bySeverity"`
	ByChannel  map[Channel]int64  `json:"byChannel"`

	LastReset time.Time `json:"lastReset"`
}

func newMetrics(now time.Time) Metrics {
	return Metrics{
		ByType:     map[string]int64{},
		BySeverity: map[Severity]int64{},
		ByChannel:  map[Channel]int64{},
		LastReset:  now,
	}
}

func (m Metrics) clone() Metrics {
	m.ByType = maps.Clone(m.ByType)
	m.BySeverity = maps.Clone(m.BySeverity)
	m.ByChannel = maps.Clone(m.ByChannel)
	return m
}

// Event types published on the bus.
const (
	EventNotification        = "notification"
	EventNotificationGrouped = "notificationGrouped"
	EventShowToast           = "showToast"
	EventRead                = "notificationRead"
	EventAllRead             = "allNotificationsRead"
	EventDismissed           = "notificationDismissed"
	EventCleared             = "notificationsCleared"
	EventFailed              = "notificationFailed"
	EventInitialized         = "initialized"
	EventConfigUpdated       = "configUpdated"
	EventMetricsReset        = "metricsReset"
	EventDestroyed           = "destroyed"

	EventRateLimited  = "notificationRateLimited"
	EventDeduplicated = "notificationDeduplicated"
	EventDropped      = "notificationDropped"
)

// Toast is the payload of EventShowToast.
type Toast struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"`
	Actions  []Action      `json:"actions,omitempty"`
}

// FailedEvent is the payload of EventFailed.
type FailedEvent struct {
	Notification Notification `json:"notification"`
	Error        string       `json:"error"`
}

// ReadAllEvent is the payload of EventAllRead.
type ReadAllEvent struct {
	Count int `json:"count"`
}
