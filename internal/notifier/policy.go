package notifier

import (
	"fmt"
	"time"
)

type outcome int

const (
	admitted outcome = iota
	rejectedExpired
	rejectedRate
	rejectedGrouped
	rejectedDuplicate
)

type admission struct {
	outcome outcome
	// grouped is the synthetic copy announced for rejectedGrouped.
	grouped Notification
	// evicted is set when admission pushed the oldest queued entry out.
	evicted *Notification
}

func throttleKey(n Notification) string {
	switch {
	case n.GroupKey != "":
		return n.GroupKey
	case n.Type != "":
		return n.Type
	}
	return "general"
}

func dedupKey(n Notification) string {
	return n.Type + "|" + n.DeviceID + "|" + n.Message
}

// admitLocked runs the admission policies in order and enqueues n when all pass.
// s.mu must be held.
func (s *Service) admitLocked(n Notification, now time.Time) admission {
	cfg := s.cfg

	if IsExpired(n, now) {
		s.metrics.TotalExpired++
		return admission{outcome: rejectedExpired}
	}

	if s.recentLocked(now) >= cfg.MaxPerMinute {
		s.metrics.TotalThrottled++
		return admission{outcome: rejectedRate}
	}

	if cfg.ThrottleDuration > 0 {
		key := throttleKey(n)
		if last, ok := s.lastAdmit[key]; ok && now.Sub(last) < cfg.ThrottleDuration {
			list := append(s.groups[key], n)
			s.groups[key] = list
			if _, armed := s.groupTimers[key]; !armed {
				s.groupTimers[key] = time.AfterFunc(cfg.GroupingWindow, func() { s.clearGroup(key) })
			}
			s.metrics.TotalThrottled++
			s.metrics.TotalGrouped++

			g := n.Clone()
			g.GroupCount = len(list) + 1
			g.Message = fmt.Sprintf("%s (%d similar)", n.Message, g.GroupCount)
			return admission{outcome: rejectedGrouped, grouped: g}
		}
		s.lastAdmit[key] = now
	}

	if cfg.DedupWindow > 0 {
		key := dedupKey(n)
		if seen, ok := s.dedup[key]; ok && now.Sub(seen) < cfg.DedupWindow {
			s.metrics.TotalDeduplicated++
			return admission{outcome: rejectedDuplicate}
		}
		s.dedup[key] = now
	}

	var res admission
	if len(s.queue) >= cfg.MaxQueue {
		old := s.queue[0]
		s.queue = append(s.queue[:0:0], s.queue[1:]...)
		s.metrics.TotalDropped++
		res.evicted = &old
	}
	s.queue = append(s.queue, n)
	return res
}

// recentLocked counts history and queued entries stamped within the rate window.
func (s *Service) recentLocked(now time.Time) int {
	count := 0
	for i := range s.history {
		if now.Sub(s.history[i].Timestamp) < rateWindow {
			count++
		}
	}
	for i := range s.queue {
		if now.Sub(s.queue[i].Timestamp) < rateWindow {
			count++
		}
	}
	return count
}

func (s *Service) clearGroup(key string) {
	s.mu.Lock()
	delete(s.groups, key)
	delete(s.groupTimers, key)
	s.mu.Unlock()
}

// pruneLocked forgets throttle and dedup entries that can no longer match.
func (s *Service) pruneLocked(now time.Time) {
	for k, t := range s.lastAdmit {
		if now.Sub(t) >= s.cfg.ThrottleDuration {
			delete(s.lastAdmit, k)
		}
	}
	for k, t := range s.dedup {
		if now.Sub(t) >= s.cfg.DedupWindow {
			delete(s.dedup, k)
		}
	}
}
