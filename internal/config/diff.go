package config

import (
	"sort"
	"strings"

	logx "fleetnotify/pkg/logx"
)

// SummarizeConfigChange returns the names of changed sections and safe
// structured attrs describing their new values. Secrets (tokens, passwords)
// are only ever reported as *_set booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oN, nN := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if (oldCfg.Notifier == nil) != (newCfg.Notifier == nil) || !notifierEqual(oN, nN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.max_history", nN.MaxHistory),
			logx.Int("notifier.max_queue", nN.MaxQueue),
			logx.Int("notifier.max_per_minute", nN.MaxPerMinute),
			logx.String("notifier.throttle", strings.TrimSpace(nN.Throttle)),
			logx.String("notifier.dedup_window", strings.TrimSpace(nN.DedupWindow)),
			logx.String("notifier.log_level", nN.LogLevel),
			logx.Int("notifier.retry_attempts", nN.RetryAttempts),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.addr_set", strings.TrimSpace(nS.Addr) != ""),
			logx.Bool("storage.password_set", nS.Password != ""),
		)
	}

	if oldCfg.Native != newCfg.Native {
		changed = append(changed, "native")
		attrs = append(attrs,
			logx.String("native.driver", strings.TrimSpace(newCfg.Native.Driver)),
			logx.Bool("native.telegram.token_set", strings.TrimSpace(newCfg.Native.Telegram.Token) != ""),
			logx.Bool("native.telegram.chat_set", newCfg.Native.Telegram.ChatID != 0),
		)
	}

	oP, nP := derefPush(oldCfg.Push), derefPush(newCfg.Push)
	if oP != nP {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.Bool("push.enabled", nP.Enabled),
			logx.Bool("push.endpoint_set", strings.TrimSpace(nP.Endpoint) != ""),
			logx.Bool("push.token_set", nP.Token != ""),
		)
	}

	oM, nM := derefMQTT(oldCfg.MQTT), derefMQTT(newCfg.MQTT)
	if oM != nM {
		changed = append(changed, "mqtt")
		attrs = append(attrs,
			logx.Bool("mqtt.enabled", nM.Enabled),
			logx.String("mqtt.broker", strings.TrimSpace(nM.Broker)),
			logx.String("mqtt.prefix", strings.TrimSpace(nM.Prefix)),
			logx.Bool("mqtt.password_set", nM.Password != ""),
		)
	}

	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
			logx.Bool("admin.token_set", strings.TrimSpace(newCfg.Admin.Token) != ""),
			logx.Bool("admin.pprof", newCfg.Admin.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports the changed sections that are only read at startup.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "native", "push", "mqtt":
			out = append(out, s)
		}
	}
	return out
}

func notifierEqual(a, b NotifierConfig) bool {
	if !boolPtrEqual(a.NativeEnabled, b.NativeEnabled) || !boolPtrEqual(a.InAppEnabled, b.InAppEnabled) {
		return false
	}
	a.NativeEnabled, a.InAppEnabled = nil, nil
	b.NativeEnabled, b.InAppEnabled = nil, nil
	return a == b
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefPush(p *PushConfig) PushConfig {
	if p == nil {
		return PushConfig{}
	}
	return *p
}

func derefMQTT(m *MQTTConfig) MQTTConfig {
	if m == nil {
		return MQTTConfig{}
	}
	return *m
}
