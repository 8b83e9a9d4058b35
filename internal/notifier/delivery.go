package notifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	logx "fleetnotify/pkg/logx"
)

const pushOptOutKey = "notification_push_opt_out"

// Initialize prepares the native notifier once and caches the result.
// Later calls return the cached value without touching the notifier again.
func (s *Service) Initialize(ctx context.Context) bool {
	s.initMu.Lock()
	if s.initDone {
		ok := s.nativeReady
		s.initMu.Unlock()
		return ok
	}
	ok := false
	if s.native != nil {
		ok = s.native.Initialize(ctx)
	}
	s.nativeReady = ok
	s.initDone = true
	s.initMu.Unlock()

	s.logger().Info("native notifier initialized", logx.Bool("enabled", ok))
	s.Emit(EventInitialized, ok)
	return ok
}

func (s *Service) nativeAvailable() bool {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initDone && s.nativeReady
}

// SetAttending records whether a user is actively looking at the in-app UI.
// While attending, only high and critical notifications go to the native surface.
func (s *Service) SetAttending(attending bool) {
	s.mu.Lock()
	s.attending = attending
	s.mu.Unlock()
}

// SetPushOptOut persists the user's preference to suppress native delivery.
func (s *Service) SetPushOptOut(ctx context.Context, optOut bool) {
	s.mu.Lock()
	s.optOut = optOut
	s.mu.Unlock()
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, pushOptOutKey, strconv.FormatBool(optOut)); err != nil {
		s.logger().Warn("persist push opt-out failed", logx.Err(err))
	}
}

// PushOptOut reads the stored preference, falling back to the in-memory value
// when no store is configured or the read fails.
func (s *Service) PushOptOut(ctx context.Context) bool {
	s.mu.Lock()
	v := s.optOut
	s.mu.Unlock()
	if s.store == nil {
		return v
	}
	raw, ok, err := s.store.Load(ctx, pushOptOutKey)
	if err != nil {
		s.logger().Debug("read push opt-out failed", logx.Err(err))
		return v
	}
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return v
	}
	return b
}

func (s *Service) nativeWorthy(ctx context.Context, n Notification, cfg Config) bool {
	if !n.ShowNative || !cfg.NativeEnabled || s.native == nil || !s.nativeAvailable() {
		return false
	}
	if s.PushOptOut(ctx) {
		return false
	}
	s.mu.Lock()
	attending := s.attending
	s.mu.Unlock()
	return n.Priority.Urgent() || !attending
}

// deliverNative shows n on the native surface, retrying with linear backoff.
// n.RetryCount and n.LastError track the attempts.
func (s *Service) deliverNative(ctx context.Context, n *Notification, cfg Config) error {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for k := 1; k <= attempts; k++ {
		err := s.show(ctx, *n)
		if err == nil {
			n.RetryCount = 0
			n.LastError = ""
			return nil
		}
		last = err
		n.RetryCount = k
		n.LastError = err.Error()
		s.logger().Debug("native delivery failed", logx.String("id", n.ID), logx.Int("attempt", k), logx.Int("max", attempts), logx.Err(err))

		if k == attempts {
			break
		}
		if err := sleepCtx(ctx, time.Duration(k)*cfg.RetryDelay); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.metrics.TotalFailed++
	s.mu.Unlock()
	return &DeliveryError{ID: n.ID, Attempts: attempts, Err: last}
}

func (s *Service) show(ctx context.Context, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("native notifier panic", logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("native notifier panic: %v", r)
		}
	}()
	return s.native.Show(ctx, n)
}

// push forwards n to the external push service. Failures are logged only.
func (s *Service) push(ctx context.Context, n Notification) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(ctx, n); err != nil {
		s.logger().Warn("external push failed", logx.String("id", n.ID), logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
