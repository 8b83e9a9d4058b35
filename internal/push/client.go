// Package push forwards notifications to an external HTTP push gateway.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetnotify/internal/notifier"
	logx "fleetnotify/pkg/logx"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrNoEndpoint = errors.New("push endpoint is empty")

type Config struct {
	Endpoint string
	// Token is sent as a bearer token when set.
	Token      string
	Timeout    time.Duration
	RetryCount int
	RatePerSec float64
}

// Payload is the JSON body posted to the gateway.
type Payload struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Severity  notifier.Severity `json:"severity"`
	Priority  notifier.Priority `json:"priority"`
	Type      string            `json:"type"`
	Channel   notifier.Channel  `json:"channel"`
	DeviceID  string            `json:"deviceId,omitempty"`
	AlarmID   string            `json:"alarmId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Actions   []notifier.Action `json:"actions,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
}

type Client struct {
	http     *resty.Client
	endpoint string
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}

	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		hc.SetAuthToken(cfg.Token)
	}

	burst := max(int(cfg.RatePerSec), 1)
	return &Client{
		http:     hc,
		endpoint: endpoint,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		log:      log.With(logx.String("comp", "push")),
	}, nil
}

func (c *Client) Push(ctx context.Context, n notifier.Notification) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(Payload{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Severity:  n.Severity,
			Priority:  n.Priority,
			Type:      n.Type,
			Channel:   n.Channel,
			DeviceID:  n.DeviceID,
			AlarmID:   n.AlarmID,
			Timestamp: n.Timestamp,
			Actions:   n.Actions,
			Tags:      n.Tags,
		}).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("push %s: %w", n.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("push %s: gateway returned %s", n.ID, resp.Status())
	}
	c.log.Debug("pushed", logx.String("id", n.ID), logx.Int("status", resp.StatusCode()))
	return nil
}
