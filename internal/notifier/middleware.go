package notifier

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	logx "fleetnotify/pkg/logx"
)

// MiddlewareFunc transforms a notification before any admission policy runs.
//
// Returning ErrDrop stops processing. Any other error, or a nil notification,
// leaves the notification as it was before the call.
type MiddlewareFunc func(ctx context.Context, n *Notification) (*Notification, error)

type middleware struct {
	name string
	fn   MiddlewareFunc
}

// AddMiddleware registers fn under name. An existing entry with the same name
// is replaced in place, keeping its position.
func (s *Service) AddMiddleware(name string, fn MiddlewareFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.middleware {
		if s.middleware[i].name == name {
			s.middleware[i].fn = fn
			return
		}
	}
	s.middleware = append(s.middleware, middleware{name: name, fn: fn})
}

func (s *Service) RemoveMiddleware(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.middleware {
		if s.middleware[i].name == name {
			s.middleware = append(s.middleware[:i:i], s.middleware[i+1:]...)
			return
		}
	}
}

// runMiddleware returns false when a middleware dropped the notification.
func (s *Service) runMiddleware(ctx context.Context, n Notification) (Notification, bool) {
	s.mu.Lock()
	chain := append([]middleware(nil), s.middleware...)
	s.mu.Unlock()

	for _, m := range chain {
		out, err := s.callMiddleware(ctx, m, n)
		if errors.Is(err, ErrDrop) {
			s.logger().Debug("notification dropped by middleware", logx.String("middleware", m.name), logx.String("id", n.ID))
			return n, false
		}
		if err != nil {
			s.logger().Warn("middleware failed", logx.String("middleware", m.name), logx.Err(err))
			continue
		}
		if out != nil {
			n = *out
		}
	}
	return n, true
}

func (s *Service) callMiddleware(ctx context.Context, m middleware, n Notification) (out *Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("middleware panic", logx.String("middleware", m.name), logx.Stack(string(debug.Stack())))
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	// Middleware gets its own copy so a failed call cannot leak partial edits.
	c := n.Clone()
	return m.fn(ctx, &c)
}
