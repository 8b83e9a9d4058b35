package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Notifier tunes the delivery engine. Omitted means engine defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Native   NativeConfig    `json:"native"`
	Push     *PushConfig     `json:"push,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
	Admin    AdminConfig     `json:"admin"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls the notification engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Zero or omitted values fall back to engine defaults, except throttle,
// dedup_window, expiration_horizon, process_delay and retry_delay where
// an explicit "0s" disables the policy.
//
// Defaults:
//   - max_history: 100
//   - max_queue: 50
//   - max_per_minute: 30
//   - throttle: "2s", dedup_window: "5s", grouping_window: "10s"
//   - poll_interval: "1s", process_delay: "50ms", cleanup_interval: "1h"
//   - expiration_horizon: "24h"
//   - retry_attempts: 3, retry_delay: "1s"
//   - default_duration: "5s"
//   - native_enabled, in_app_enabled: true
type NotifierConfig struct {
	MaxHistory   int `json:"max_history,omitempty"`
	MaxQueue     int `json:"max_queue,omitempty"`
	MaxPerMinute int `json:"max_per_minute,omitempty"`

	Throttle       string `json:"throttle,omitempty"`
	DedupWindow    string `json:"dedup_window,omitempty"`
	GroupingWindow string `json:"grouping_window,omitempty"`

	PollInterval    string `json:"poll_interval,omitempty"`
	ProcessDelay    string `json:"process_delay,omitempty"`
	CleanupInterval string `json:"cleanup_interval,omitempty"`

	NativeEnabled *bool  `json:"native_enabled,omitempty"`
	InAppEnabled  *bool  `json:"in_app_enabled,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`

	ExpirationHorizon string `json:"expiration_horizon,omitempty"`
	RetryAttempts     int    `json:"retry_attempts,omitempty"`
	RetryDelay        string `json:"retry_delay,omitempty"`
	DefaultDuration   string `json:"default_duration,omitempty"`
}

// StorageConfig controls the persistence layer for history and preferences.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./fleetnotify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// redis
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"` // do not log
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// NativeConfig selects the OS-level delivery channel: "log", "telegram" or "none".
type NativeConfig struct {
	Driver   string         `json:"driver"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// PushConfig configures the external push gateway. Only urgent
// notifications are pushed unless a request overrides it.
type PushConfig struct {
	Enabled    bool    `json:"enabled"`
	Endpoint   string  `json:"endpoint"`
	Token      string  `json:"token,omitempty"` // do not log
	Timeout    string  `json:"timeout,omitempty"`
	RetryCount int     `json:"retry_count,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// MQTTConfig configures the fleet ingest bridge.
type MQTTConfig struct {
	Enabled        bool   `json:"enabled"`
	Broker         string `json:"broker"`
	ClientID       string `json:"client_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"` // do not log
	Prefix         string `json:"prefix,omitempty"`
	QoS            int    `json:"qos,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

// AdminConfig controls the operator HTTP server (health, Prometheus metrics,
// recent notifications, optional pprof).
//
// Prefer binding to localhost. A non-loopback addr needs a token or
// allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
