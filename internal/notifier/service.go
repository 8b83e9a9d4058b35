package notifier

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"fleetnotify/internal/eventbus"
	rtsup "fleetnotify/internal/runtime/supervisor"
	logx "fleetnotify/pkg/logx"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// Service is the notification engine: admission policies, a bounded queue
// drained by one processor, native delivery with retry, and a persisted history.
//
// It is safe for concurrent use. One mutex guards all mutable state; native
// calls, middleware and event handlers run without it.
type Service struct {
	mu sync.Mutex

	base   logx.Logger
	logp   atomic.Pointer[logx.Logger]
	native NativeNotifier
	pusher Pusher
	bus    eventbus.Bus
	store  Store
	now    func() time.Time

	cfg   Config
	pacer *rate.Limiter

	queue       []Notification
	history     []Notification
	lastAdmit   map[string]time.Time
	dedup       map[string]time.Time
	groups      map[string][]Notification
	groupTimers map[string]*time.Timer
	middleware  []middleware
	metrics     Metrics
	attending   bool
	optOut      bool

	initMu      sync.Mutex
	initDone    bool
	nativeReady bool

	// persistMu orders snapshot+Save pairs so a stale copy never lands last.
	persistMu sync.Mutex
	// clearGen is bumped by ClearAll; a dequeued entry from an older
	// generation is not recorded.
	clearGen uint64

	processing atomic.Bool
	kick       chan struct{}
	sup        *rtsup.Supervisor
	cron       *cron.Cron
	cleanupID  cron.EntryID
	started    bool
	destroyed  bool
}

type Option func(*Service)

// WithPusher enables forwarding to an external push service.
func WithPusher(p Pusher) Option { return func(s *Service) { s.pusher = p } }

// WithClock replaces time.Now for admission, expiry and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds an engine and loads persisted history from store.
// native, bus and store may be nil.
func New(cfg Config, native NativeNotifier, log logx.Logger, bus eventbus.Bus, store Store, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	s := &Service{
		base:        log.With(logx.String("comp", "notifier")),
		native:      native,
		bus:         bus,
		store:       store,
		now:         time.Now,
		lastAdmit:   map[string]time.Time{},
		dedup:       map[string]time.Time{},
		groups:      map[string][]Notification{},
		groupTimers: map[string]*time.Timer{},
		kick:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.metrics = newMetrics(s.now())
	s.applyLocked(cfg)
	s.loadHistory(context.Background())
	return s
}

// Notify validates req, runs it through middleware and the admission
// policies, and queues it for delivery. The returned id is valid even when a
// policy or middleware drops the notification; only a *ValidationError is
// ever returned as an error.
func (s *Service) Notify(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	n := build(req, s.cfg, s.now())
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		s.logger().Debug("notify after destroy ignored", logx.String("id", n.ID))
		return n.ID, nil
	}

	n, ok := s.runMiddleware(ctx, n)
	if !ok {
		return n.ID, nil
	}

	s.mu.Lock()
	res := s.admitLocked(n, s.now())
	s.mu.Unlock()

	switch res.outcome {
	case rejectedExpired:
		s.logger().Debug("notification expired before admission", logx.String("id", n.ID))
	case rejectedRate:
		s.logger().Debug("notification rate limited", logx.String("id", n.ID))
		s.Emit(EventRateLimited, n)
	case rejectedGrouped:
		if !n.Silent {
			s.Emit(EventNotificationGrouped, res.grouped)
		}
	case rejectedDuplicate:
		s.Emit(EventDeduplicated, n)
	case admitted:
		if res.evicted != nil {
			s.logger().Warn("queue full, dropped oldest notification", logx.String("dropped", res.evicted.ID))
			s.Emit(EventDropped, *res.evicted)
		}
		s.signal()
	}
	return n.ID, nil
}

func (s *Service) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// ProcessQueue drains the queue until it is empty or ctx is done.
// A call made while another drain is running returns immediately.
func (s *Service) ProcessQueue(ctx context.Context) {
	if !s.processing.CompareAndSwap(false, true) {
		return
	}
	defer s.processing.Store(false)

	for ctx.Err() == nil {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		cfg := s.cfg
		pacer := s.pacer
		gen := s.clearGen
		s.mu.Unlock()

		if err := pacer.Wait(ctx); err != nil {
			return
		}
		s.processOne(ctx, n, cfg, gen)
	}
}

func (s *Service) processOne(ctx context.Context, n Notification, cfg Config, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("notification processing panic", logx.String("id", n.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	if IsExpired(n, s.now()) {
		n.Expired = true
		s.mu.Lock()
		if s.clearGen != gen {
			s.mu.Unlock()
			return
		}
		s.metrics.TotalExpired++
		s.recordLocked(n)
		s.mu.Unlock()
		s.persistHistory(ctx)
		return
	}

	if n.ShowInApp && cfg.InAppEnabled && !n.Silent {
		s.Emit(EventNotification, n.Clone())
		s.Emit(EventShowToast, Toast{
			ID:       n.ID,
			Title:    n.Title,
			Message:  n.Message,
			Severity: n.Severity,
			Duration: n.Duration,
			Actions:  n.Actions,
		})
	}

	var derr error
	if s.nativeWorthy(ctx, n, cfg) {
		derr = s.deliverNative(ctx, &n, cfg)
		if derr != nil && ctx.Err() != nil {
			// Torn down mid-retry; the attempt is abandoned.
			return
		}
	}
	if n.Push {
		s.push(ctx, n)
	}

	s.mu.Lock()
	if s.clearGen != gen {
		// cleared while in flight
		s.mu.Unlock()
		return
	}
	if derr != nil {
		n.Failed = true
	} else {
		s.tallyLocked(n)
	}
	s.recordLocked(n)
	s.mu.Unlock()
	s.persistHistory(ctx)

	if derr != nil {
		s.logger().Warn("native delivery exhausted retries", logx.String("id", n.ID), logx.Err(derr))
		s.Emit(EventFailed, FailedEvent{Notification: n.Clone(), Error: derr.Error()})
	}
}

// Start initializes the native notifier and starts the processor and the
// cleanup schedule. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.base),
		rtsup.WithCancelOnError(false),
	)
	s.cron = cron.New()
	s.scheduleCleanupLocked()
	sup, c := s.sup, s.cron
	s.mu.Unlock()

	s.Initialize(sup.Context())

	sup.GoRestart("processor", s.run, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	c.Start()
	s.signal()
	return nil
}

func (s *Service) run(ctx context.Context) error {
	s.mu.Lock()
	poll := s.cfg.PollInterval
	s.mu.Unlock()

	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
		case <-t.C:
		}
		s.ProcessQueue(ctx)

		s.mu.Lock()
		next := s.cfg.PollInterval
		s.mu.Unlock()
		if next != poll {
			poll = next
			t.Reset(poll)
		}
	}
}

func (s *Service) scheduleCleanupLocked() {
	if s.cron == nil {
		return
	}
	if s.cleanupID != 0 {
		s.cron.Remove(s.cleanupID)
	}
	ctx := context.Background()
	if s.sup != nil {
		ctx = s.sup.Context()
	}
	s.cleanupID = s.cron.Schedule(cron.Every(s.cfg.CleanupInterval), cron.FuncJob(func() { s.Cleanup(ctx) }))
}

// Destroy stops background work, cancels pending retries and grouping
// timers, and empties the queue and policy state. History is kept.
func (s *Service) Destroy(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	sup, c := s.sup, s.cron
	for _, t := range s.groupTimers {
		t.Stop()
	}
	s.groupTimers = map[string]*time.Timer{}
	s.groups = map[string][]Notification{}
	s.lastAdmit = map[string]time.Time{}
	s.dedup = map[string]time.Time{}
	s.queue = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	if sup != nil {
		sup.Cancel()
		if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger().Warn("notifier shutdown incomplete", logx.Err(err))
		}
	}
	s.logger().Info("notifier destroyed")
	s.Emit(EventDestroyed, nil)
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig applies fn to a copy of the current config and commits it.
func (s *Service) UpdateConfig(fn func(*Config)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	fn(&cfg)
	s.Apply(cfg)
}

// Apply replaces the config. Zero and negative values take their defaults.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.applyLocked(cfg)
	if s.cfg.CleanupInterval != prev.CleanupInterval && !s.destroyed {
		s.scheduleCleanupLocked()
	}
	out := s.cfg
	s.mu.Unlock()

	s.logger().Debug("notifier config updated")
	s.Emit(EventConfigUpdated, out)
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	l := s.base.WithLevel(cfg.LogLevel)
	s.logp.Store(&l)

	limit := rate.Every(cfg.ProcessDelay)
	if s.pacer == nil {
		s.pacer = rate.NewLimiter(limit, 1)
	} else {
		s.pacer.SetLimit(limit)
	}
}

func (s *Service) logger() logx.Logger { return *s.logp.Load() }

// On registers h for eventType (or eventbus.All) and returns its handle.
func (s *Service) On(eventType string, h eventbus.Handler) uint64 { return s.bus.On(eventType, h) }

func (s *Service) Off(id uint64) { s.bus.Off(id) }

func (s *Service) Emit(eventType string, data any) {
	s.bus.Publish(eventbus.Event{Type: eventType, Time: time.Now(), Data: data})
}

// Counters reports the processor goroutine counters, zero before Start.
func (s *Service) Counters() rtsup.Counters {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return rtsup.Counters{}
	}
	return sup.Counters()
}
