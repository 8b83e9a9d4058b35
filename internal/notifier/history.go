package notifier

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	logx "fleetnotify/pkg/logx"
)

const historyKey = "notification_history"

// recordLocked puts n at the head of history and trims it to MaxHistory.
func (s *Service) recordLocked(n Notification) {
	s.history = slices.Insert(s.history, 0, n)
	if limit := s.cfg.MaxHistory; limit > 0 && len(s.history) > limit {
		s.history = s.history[:limit:limit]
	}
}

func (s *Service) tallyLocked(n Notification) {
	s.metrics.TotalSent++
	s.metrics.ByType[n.Type]++
	s.metrics.BySeverity[n.Severity]++
	s.metrics.ByChannel[n.Channel]++
}

func (s *Service) loadHistory(ctx context.Context) {
	if s.store == nil {
		return
	}
	raw, ok, err := s.store.Load(ctx, historyKey)
	if err != nil {
		s.logger().Warn("load history failed", logx.Err(err))
		return
	}
	if !ok || raw == "" {
		return
	}
	var items []Notification
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger().Warn("history snapshot unreadable, starting empty", logx.Err(err))
		return
	}
	s.mu.Lock()
	if limit := s.cfg.MaxHistory; len(items) > limit {
		items = items[:limit]
	}
	s.history = items
	s.mu.Unlock()
}

// persistHistory writes the current history. A failed write is retried once
// with only the newest entries; a second failure is logged and dropped.
// Writes are serialized and each one snapshots after the previous finished.
func (s *Service) persistHistory(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	items := append([]Notification(nil), s.history...)
	s.mu.Unlock()

	err := s.saveHistory(ctx, items)
	if err == nil {
		return
	}
	s.logger().Warn("persist history failed, retrying truncated", logx.Int("entries", len(items)), logx.Err(err))
	if len(items) > truncatedHistory {
		items = items[:truncatedHistory]
	}
	if err := s.saveHistory(ctx, items); err != nil {
		s.logger().Error("persist history failed", logx.Err(err))
	}
}

func (s *Service) saveHistory(ctx context.Context, items []Notification) error {
	if items == nil {
		items = []Notification{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, historyKey, string(b))
}

// MarkAsRead marks a history entry read. It reports whether id was found.
func (s *Service) MarkAsRead(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	changed := !s.history[i].Read
	if changed {
		s.history[i].Read = true
		s.metrics.TotalRead++
	}
	s.mu.Unlock()

	if changed {
		s.persistHistory(ctx)
		s.Emit(EventRead, id)
	}
	return true
}

// MarkAllAsRead returns the number of entries that changed.
func (s *Service) MarkAllAsRead(ctx context.Context) int {
	s.mu.Lock()
	count := 0
	for i := range s.history {
		if !s.history[i].Read {
			s.history[i].Read = true
			count++
		}
	}
	s.metrics.TotalRead += int64(count)
	s.mu.Unlock()

	if count > 0 {
		s.persistHistory(ctx)
	}
	s.Emit(EventAllRead, ReadAllEvent{Count: count})
	return count
}

// Dismiss hides a notification from the default views and removes it from
// the queue if it has not been processed yet.
func (s *Service) Dismiss(ctx context.Context, id string) bool {
	s.mu.Lock()
	found := false
	s.queue = slices.DeleteFunc(s.queue, func(n Notification) bool {
		if n.ID == id {
			found = true
			return true
		}
		return false
	})
	if i := s.indexLocked(id); i >= 0 {
		found = true
		if !s.history[i].Dismissed {
			s.history[i].Dismissed = true
			s.metrics.TotalDismissed++
		}
	} else if found {
		s.metrics.TotalDismissed++
	}
	s.mu.Unlock()

	if !found {
		return false
	}
	s.persistHistory(ctx)
	s.Emit(EventDismissed, id)
	return true
}

// ClearAll empties the queue and the history.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.queue = nil
	s.history = nil
	s.clearGen++
	s.mu.Unlock()

	s.persistHistory(ctx)
	s.Emit(EventCleared, nil)
}

func (s *Service) UnreadCount() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.history {
		if !n.Read && live(n, now) {
			count++
		}
	}
	return count
}

func live(n Notification, now time.Time) bool {
	return !n.Dismissed && !n.Expired && !IsExpired(n, now)
}

// Notifications returns matching history entries, newest first.
func (s *Service) Notifications(f Filter) []Notification {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.history))
	for _, n := range s.history {
		if !f.IncludeExpired && !live(n, now) {
			continue
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.DeviceID != "" && n.DeviceID != f.DeviceID {
			continue
		}
		if f.Channel != "" && n.Channel != f.Channel {
			continue
		}
		if f.Severity != "" && n.Severity != f.Severity {
			continue
		}
		if !hasTags(n.Tags, f.Tags) {
			continue
		}
		out = append(out, n.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func hasTags(have, want []string) bool {
	for _, t := range want {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

func (s *Service) indexLocked(id string) int {
	return slices.IndexFunc(s.history, func(n Notification) bool { return n.ID == id })
}

// Metrics returns a snapshot of the counters.
func (s *Service) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.clone()
}

func (s *Service) ResetMetrics() {
	s.mu.Lock()
	s.metrics = newMetrics(s.now())
	s.mu.Unlock()
	s.Emit(EventMetricsReset, nil)
}

// Cleanup evicts expired entries from the queue and history and forgets
// stale throttle and dedup keys. It runs on the cleanup schedule after Start.
func (s *Service) Cleanup(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	expired := 0
	s.queue = slices.DeleteFunc(s.queue, func(n Notification) bool {
		if IsExpired(n, now) {
			expired++
			return true
		}
		return false
	})
	before := len(s.history)
	s.history = slices.DeleteFunc(s.history, func(n Notification) bool {
		if n.Expired {
			return true
		}
		if IsExpired(n, now) {
			expired++
			return true
		}
		return false
	})
	changed := len(s.history) != before
	s.metrics.TotalExpired += int64(expired)
	s.pruneLocked(now)
	s.mu.Unlock()

	if changed {
		s.persistHistory(ctx)
	}
	if expired > 0 {
		s.logger().Debug("cleanup evicted expired notifications", logx.Int("count", expired))
	}
}
