package native

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetnotify/internal/notifier"
	logx "fleetnotify/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

var ErrNotInitialized = errors.New("telegram notifier not initialized")

// Telegram sends native notifications to one chat (optionally a forum topic).
type Telegram struct {
	cfg TelegramConfig
	log logx.Logger

	mu    sync.Mutex
	done  bool
	ready bool
	bot   *tele.Bot
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) *Telegram {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{cfg: cfg, log: log.With(logx.String("comp", "native.telegram"))}
}

// Initialize verifies the token with getMe. The outcome is cached, so a failed
// first attempt keeps the notifier disabled until the process restarts.
func (t *Telegram) Initialize(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.ready
	}
	t.done = true

	if strings.TrimSpace(t.cfg.Token) == "" || t.cfg.ChatID == 0 {
		t.log.Warn("telegram native notifier needs token and chat_id; disabled")
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    t.cfg.APIURL,
		Token:  t.cfg.Token,
		Client: &http.Client{Timeout: t.cfg.Timeout},
	})
	if err != nil {
		t.log.Warn("telegram bot init failed", logx.Err(err))
		return false
	}
	t.bot = b
	t.ready = true
	t.log.Info("telegram native notifier ready", logx.String("bot", b.Me.Username))
	return true
}

func (t *Telegram) Show(ctx context.Context, n notifier.Notification) error {
	t.mu.Lock()
	b := t.bot
	t.mu.Unlock()
	if b == nil {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.Send(&tele.Chat{ID: t.cfg.ChatID}, formatHTML(n), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ThreadID:              t.cfg.ThreadID,
		DisableWebPagePreview: true,
		DisableNotification:   n.Priority == notifier.PriorityLow,
	})
	return err
}

func formatHTML(n notifier.Notification) string {
	var sb strings.Builder
	sb.WriteString(severityIcon(n.Severity))
	sb.WriteString(" <b>")
	sb.WriteString(html.EscapeString(n.Title))
	sb.WriteString("</b>\n")
	sb.WriteString(html.EscapeString(n.Message))
	if n.DeviceID != "" {
		sb.WriteString("\n<i>device:</i> <code>")
		sb.WriteString(html.EscapeString(n.DeviceID))
		sb.WriteString("</code>")
	}
	if n.Priority.Urgent() {
		sb.WriteString("\n<i>priority:</i> ")
		sb.WriteString(string(n.Priority))
	}
	return sb.String()
}
