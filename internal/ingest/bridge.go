package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logx "fleetnotify/pkg/logx"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Prefix is the topic root; the bridge subscribes to Prefix/#.
	Prefix         string
	QoS            byte
	ConnectTimeout time.Duration
}

// Bridge subscribes to the fleet topics and routes every message to a Sink.
type Bridge struct {
	cfg    Config
	router Router
	log    logx.Logger

	mu     sync.Mutex
	client mqtt.Client
	ctx    context.Context
}

func NewBridge(cfg Config, sink Sink, log logx.Logger) *Bridge {
	if cfg.Prefix == "" {
		cfg.Prefix = "fleet"
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "fleetnotify"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	return &Bridge{
		cfg:    cfg,
		router: Router{Prefix: cfg.Prefix, Sink: sink},
		log:    log.With(logx.String("comp", "ingest")),
	}
}

// Start connects to the broker. Subscriptions are (re)established on every
// connect, so auto-reconnect keeps the bridge fed.
func (b *Bridge) Start(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.Broker) == "" {
		return errors.New("mqtt broker is empty")
	}
	b.mu.Lock()
	if b.client != nil {
		b.mu.Unlock()
		return nil
	}
	b.ctx = ctx
	b.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(b.cfg.ConnectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn("mqtt connection lost", logx.Err(err))
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
	}
	if b.cfg.Password != "" {
		opts.SetPassword(b.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(b.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", b.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

func (b *Bridge) onConnect(c mqtt.Client) {
	topic := b.cfg.Prefix + "/#"
	tok := c.Subscribe(topic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		b.Handle(msg.Topic(), msg.Payload())
	})
	if tok.WaitTimeout(b.cfg.ConnectTimeout) && tok.Error() != nil {
		b.log.Error("mqtt subscribe failed", logx.String("topic", topic), logx.Err(tok.Error()))
		return
	}
	b.log.Info("mqtt subscribed", logx.String("broker", b.cfg.Broker), logx.String("topic", topic))
}

// Handle routes one message. Bad payloads are logged and skipped.
func (b *Bridge) Handle(topic string, payload []byte) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := b.router.Route(ctx, topic, payload)
	if err != nil {
		if errors.Is(err, ErrUnknownTopic) {
			b.log.Debug("ignoring mqtt message", logx.String("topic", topic))
			return
		}
		b.log.Warn("mqtt message rejected", logx.String("topic", topic), logx.Err(err))
		return
	}
	b.log.Debug("mqtt message routed", logx.String("topic", topic), logx.String("id", id))
}

func (b *Bridge) Stop() {
	b.mu.Lock()
	c := b.client
	b.client = nil
	b.mu.Unlock()
	if c != nil {
		c.Disconnect(250)
		b.log.Info("mqtt disconnected")
	}
}
