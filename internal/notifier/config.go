package notifier

import "time"

type PushConfig struct {
	Enabled  bool
	Endpoint string
}

// Config is the engine configuration. It can be replaced at runtime through
// Apply or UpdateConfig.
//
// ThrottleDuration, DedupWindow and ExpirationHorizon of zero disable the
// corresponding policy. ProcessDelay and RetryDelay of zero remove the pause.
type Config struct {
	MaxHistory   int
	MaxQueue     int
	MaxPerMinute int

	ThrottleDuration time.Duration
	DedupWindow      time.Duration
	GroupingWindow   time.Duration

	PollInterval    time.Duration
	ProcessDelay    time.Duration
	CleanupInterval time.Duration

	NativeEnabled bool
	InAppEnabled  bool
	LogLevel      string

	ExpirationHorizon time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	DefaultDuration   time.Duration

	ExternalPush PushConfig
}

const (
	defaultMaxHistory        = 100
	defaultMaxQueue          = 50
	defaultMaxPerMinute      = 30
	defaultThrottle          = 2 * time.Second
	defaultDedupWindow       = 5 * time.Second
	defaultGroupingWindow    = 10 * time.Second
	defaultPollInterval      = time.Second
	defaultProcessDelay      = 50 * time.Millisecond
	defaultCleanupInterval   = time.Hour
	defaultExpirationHorizon = 24 * time.Hour
	defaultRetryAttempts     = 3
	defaultRetryDelay        = time.Second
	defaultToastDuration     = 5 * time.Second

	// truncatedHistory is the fallback size persisted when a full save fails.
	truncatedHistory = 50
	rateWindow       = time.Minute
)

func DefaultConfig() Config {
	return Config{
		MaxHistory:        defaultMaxHistory,
		MaxQueue:          defaultMaxQueue,
		MaxPerMinute:      defaultMaxPerMinute,
		ThrottleDuration:  defaultThrottle,
		DedupWindow:       defaultDedupWindow,
		GroupingWindow:    defaultGroupingWindow,
		PollInterval:      defaultPollInterval,
		ProcessDelay:      defaultProcessDelay,
		CleanupInterval:   defaultCleanupInterval,
		NativeEnabled:     true,
		InAppEnabled:      true,
		ExpirationHorizon: defaultExpirationHorizon,
		RetryAttempts:     defaultRetryAttempts,
		RetryDelay:        defaultRetryDelay,
		DefaultDuration:   defaultToastDuration,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxHistory <= 0 {
		c.MaxHistory = defaultMaxHistory
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = defaultMaxQueue
	}
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = defaultMaxPerMinute
	}
	if c.ThrottleDuration < 0 {
		c.ThrottleDuration = defaultThrottle
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = defaultDedupWindow
	}
	if c.GroupingWindow <= 0 {
		c.GroupingWindow = defaultGroupingWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ProcessDelay < 0 {
		c.ProcessDelay = defaultProcessDelay
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.ExpirationHorizon < 0 {
		c.ExpirationHorizon = defaultExpirationHorizon
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = defaultToastDuration
	}
	return c
}
